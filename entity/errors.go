package entity

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyBooked = errors.New("ticket already booked")
	ErrStorage       = errors.New("storage failure")
	ErrPayment       = errors.New("payment failure")
)
