package backing_store

import "context"

// Open flags. The low two bits carry the access mode, everything above is
// modifier bits, mirroring the usual fcntl encoding.
type Flags int

const (
	FlagReadOnly  Flags = 0
	FlagWriteOnly Flags = 1
	FlagReadWrite Flags = 2

	AccessModeMask Flags = 3

	FlagCreate   Flags = 4
	FlagTruncate Flags = 8
	FlagAppend   Flags = 16
)

func (f Flags) AccessMode() Flags {
	return f & AccessModeMask
}

func (f Flags) CanRead() bool {
	mode := f.AccessMode()
	return mode == FlagReadOnly || mode == FlagReadWrite
}

func (f Flags) CanWrite() bool {
	mode := f.AccessMode()
	return mode == FlagWriteOnly || mode == FlagReadWrite
}

func (f Flags) Valid() bool {
	return f.AccessMode() != AccessModeMask
}

// Handle is an open resource inside a backing store. The descriptor
// subsystem closes every handle it obtains exactly once.
type Handle interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

// BackingStore resolves and opens named resources. A failed Open allocates
// nothing the caller must free.
type BackingStore interface {
	Open(ctx context.Context, path string, flags Flags, mode uint32) (Handle, error)
}
