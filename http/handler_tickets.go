package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

type postEventTicketsRequest struct {
	Quantity *int `json:"quantity"`
}

type postEventTicketsResponse struct {
	State       entity.BookingState `json:"state"`
	CheckoutURL string              `json:"checkout_url"`
}

type postCheckoutConfirmRequest struct {
	SessionID string `json:"session_id"`
}

func (s Server) PostEventTickets(c echo.Context) error {
	var request postEventTicketsRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	quantity := 1
	if request.Quantity != nil {
		quantity = *request.Quantity
	}

	result, err := s.booking.Book(c.Request().Context(), sessionFrom(c), c.Param("id"), quantity)
	if err != nil {
		return mapError(err)
	}

	if result.State == entity.BookingStateAwaitingPayment {
		return c.JSON(http.StatusAccepted, postEventTicketsResponse{
			State:       result.State,
			CheckoutURL: result.CheckoutURL,
		})
	}

	return c.JSON(http.StatusCreated, result.Ticket)
}

func (s Server) DeleteEventTickets(c echo.Context) error {
	if err := s.booking.Cancel(c.Request().Context(), sessionFrom(c), c.Param("id")); err != nil {
		return mapError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s Server) PostCheckoutConfirm(c echo.Context) error {
	var request postCheckoutConfirmRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	status, err := s.booking.ConfirmCheckout(c.Request().Context(), sessionFrom(c), c.Param("id"), request.SessionID)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, status)
}

func (s Server) GetMyTickets(c echo.Context) error {
	tickets, err := s.ticketsRepo.ListByUser(c.Request().Context(), sessionFrom(c).UserID)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusOK, tickets)
}
