package channel

import "errors"

var (
	ErrNotConnected       = errors.New("channel is not connected")
	ErrChannelClosed      = errors.New("channel has been closed")
	ErrWriteTimeout       = errors.New("channel write timed out")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrInvalidScope       = errors.New("channel scope is invalid")
)
