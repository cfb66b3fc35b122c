package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{entity.ErrValidation, http.StatusBadRequest},
	{entity.ErrUnauthorized, http.StatusForbidden},
	{entity.ErrNotFound, http.StatusNotFound},
	{entity.ErrAlreadyBooked, http.StatusConflict},
	{entity.ErrPayment, http.StatusBadGateway},
	{entity.ErrStorage, http.StatusServiceUnavailable},
}

// mapError translates domain errors to HTTP errors. Unknown errors are returned as is and end up as 500.
func mapError(err error) error {
	for _, candidate := range errorStatuses {
		if errors.Is(err, candidate.err) {
			return echo.NewHTTPError(candidate.status, candidate.err.Error()).SetInternal(err)
		}
	}

	return err
}
