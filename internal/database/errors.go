package database

import "errors"

var (
	ErrBookingNotFound        = errors.New("booking not found")
	ErrHallNotFound           = errors.New("hall not found")
	ErrTaskNotFound           = errors.New("queue task not found")
	ErrConcurrentModification = errors.New("booking was modified concurrently, reload and retry")
)
