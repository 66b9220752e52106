package backing_store

import "errors"

var (
	ErrNotFound     = errors.New("no such file or device")
	ErrInvalidFlags = errors.New("invalid open flags")
	ErrNotSupported = errors.New("operation not supported by device")
	ErrClosed       = errors.New("handle already closed")
	ErrInvalidPath  = errors.New("invalid path")
)
