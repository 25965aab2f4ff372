package types

import "errors"

// Domain errors shared across packages.
var (
	ErrInvalidScope    = errors.New("scope must have a positive id and a known kind")
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrUnknownFrame    = errors.New("unknown frame type")
	ErrMalformedFrame  = errors.New("malformed frame payload")
	ErrInvalidReaction = errors.New("reaction cannot be empty")
)
