package service

import "errors"

var (
	ErrPastDate         = errors.New("cannot book a hall in the past")
	ErrInvalidContact   = errors.New("invalid contact details")
	ErrInvalidStatus    = errors.New("invalid booking status")
	ErrInvalidCreatedBy = errors.New("createdBy may only be set to ADMIN")
	ErrInvalidRequest   = errors.New("invalid request")
)
