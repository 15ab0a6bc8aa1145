package store

import "errors"

var (
	ErrServiceNotFound    = errors.New("service not found")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrSlotTaken          = errors.New("slot already booked")
	ErrNoBooking          = errors.New("no booking waiting")
	ErrActiveCall         = errors.New("another booking is being served")
	ErrInvalidState       = errors.New("invalid booking state")
	ErrServiceHasBookings = errors.New("service has bookings")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccessDenied       = errors.New("access denied")
	ErrSessionNotFound    = errors.New("session not found")
)
