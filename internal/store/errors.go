package store

import "errors"

var (
	ErrLoadInFlight        = errors.New("a load for this conversation is already in flight")
	ErrUnknownConversation = errors.New("conversation is not loaded")
)
