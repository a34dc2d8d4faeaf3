package entity

import "errors"

var (
	ErrInvalidTaskID    = errors.New("invalid task id")
	ErrInvalidSlotID    = errors.New("invalid slot id")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrNoSlotsAvailable = errors.New("no agent slots available")
)
