package file_table

import "errors"

var (
	ErrBadDescriptor    = errors.New("bad file descriptor")
	ErrTooManyOpenFiles = errors.New("too many open files")
	ErrTableInUse       = errors.New("file table already has open descriptors")
)
