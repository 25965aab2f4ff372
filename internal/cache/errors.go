package cache

import "errors"

var ErrStoreClosed = errors.New("cache store is closed")
