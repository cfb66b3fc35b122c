package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

type postEventsResponse struct {
	ID string `json:"id"`
}

type eventResponse struct {
	entity.Event
	Booking entity.BookingStatus `json:"booking"`
}

func (s Server) GetEvents(c echo.Context) error {
	var filter entity.EventFilter
	if category := c.QueryParam("category"); category != "" {
		parsed, err := entity.ParseCategory(category)
		if err != nil {
			return mapError(err)
		}
		filter.Category = parsed
	}

	events := s.eventsRepo.List(c.Request().Context(), filter)

	return c.JSON(http.StatusOK, events)
}

func (s Server) PostEvents(c echo.Context) error {
	var request entity.EventInput
	if err := c.Bind(&request); err != nil {
		return err
	}

	event, err := s.eventsRepo.Create(c.Request().Context(), request, sessionFrom(c).UserID)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusCreated, postEventsResponse{ID: event.ID})
}

func (s Server) GetEvent(c echo.Context) error {
	ctx := c.Request().Context()

	event, err := s.eventsRepo.Get(ctx, c.Param("id"))
	if err != nil {
		return mapError(err)
	}

	status, err := s.booking.EventStatus(ctx, sessionFrom(c), event, entity.ReturnFlags{
		Success:  c.QueryParam("success") == "true",
		Canceled: c.QueryParam("canceled") == "true",
	})
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, eventResponse{
		Event:   event,
		Booking: status,
	})
}

func (s Server) PatchEvent(c echo.Context) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object").SetInternal(err)
	}

	event, err := s.eventsRepo.Update(c.Request().Context(), c.Param("id"), fields, sessionFrom(c).UserID)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, event)
}

func (s Server) DeleteEvent(c echo.Context) error {
	err := s.eventsRepo.Delete(c.Request().Context(), c.Param("id"), sessionFrom(c).UserID)
	if err != nil {
		return mapError(fmt.Errorf("could not delete event: %w", err))
	}

	return c.NoContent(http.StatusNoContent)
}
