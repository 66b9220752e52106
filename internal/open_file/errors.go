package open_file

import "errors"

var (
	ErrNotReadable    = errors.New("file not opened for reading")
	ErrNotWritable    = errors.New("file not opened for writing")
	ErrReleased       = errors.New("open file already released")
	ErrNegativeOffset = errors.New("resulting offset is negative")
	ErrInvalidWhence  = errors.New("invalid seek whence")
)
