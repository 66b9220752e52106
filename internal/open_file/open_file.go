package open_file

import (
	"context"
	"sync"

	"github.com/AnishMulay/sandos/internal/backing_store"
)

// Seek whence values.
const (
	SeekSet     = 0
	SeekCurrent = 1
)

// OpenFile is one open instance of a backing resource. It is shared between
// file tables after fork and dup2, so the refcount and the cursor are both
// guarded by the mutex. The handle and access mode are set once at open time
// and never change.
//
// An OpenFile with no remaining references does not exist: the final Release
// closes the backing handle and the object must not be used afterwards.
type OpenFile struct {
	mu         sync.Mutex
	handle     backing_store.Handle
	offset     int64
	accessMode backing_store.Flags
	refs       int
}

// Open resolves and opens path through the backing store. A backing store
// failure is returned verbatim with nothing allocated. The returned OpenFile
// starts with a single reference, owned by the caller.
func Open(ctx context.Context, bs backing_store.BackingStore, path string, flags backing_store.Flags, mode uint32) (*OpenFile, error) {
	handle, err := bs.Open(ctx, path, flags, mode)
	if err != nil {
		return nil, err
	}

	return &OpenFile{
		handle:     handle,
		offset:     0,
		accessMode: flags.AccessMode(),
		refs:       1,
	}, nil
}

// Retain adds a reference. Only table cloning and dup2 call this; a new
// reference always corresponds to a new table slot.
func (of *OpenFile) Retain() {
	of.mu.Lock()
	of.refs++
	of.mu.Unlock()
}

// Release drops one reference. It is the single release point shared by
// descriptor close, dup2 overwrite and table teardown. The last reference
// closes the backing handle; a close error keeps the reference alive so the
// caller can retry.
func (of *OpenFile) Release() error {
	of.mu.Lock()
	defer of.mu.Unlock()

	if of.handle == nil {
		return ErrReleased
	}

	if of.refs == 1 {
		if err := of.handle.Close(); err != nil {
			return err
		}
		of.refs = 0
		of.handle = nil
		return nil
	}

	of.refs--
	return nil
}

func (of *OpenFile) Refs() int {
	of.mu.Lock()
	defer of.mu.Unlock()
	return of.refs
}

func (of *OpenFile) AccessMode() backing_store.Flags {
	return of.accessMode
}

// Read fills p from the current cursor and advances it by the number of
// bytes read. The cursor is shared with every descriptor aliasing this file.
func (of *OpenFile) Read(p []byte) (int, error) {
	of.mu.Lock()
	defer of.mu.Unlock()

	if of.handle == nil {
		return 0, ErrReleased
	}
	if !of.accessMode.CanRead() {
		return 0, ErrNotReadable
	}

	n, err := of.handle.ReadAt(p, of.offset)
	of.offset += int64(n)
	return n, err
}

// Write stores p at the current cursor and advances it by the number of
// bytes written.
func (of *OpenFile) Write(p []byte) (int, error) {
	of.mu.Lock()
	defer of.mu.Unlock()

	if of.handle == nil {
		return 0, ErrReleased
	}
	if !of.accessMode.CanWrite() {
		return 0, ErrNotWritable
	}

	n, err := of.handle.WriteAt(p, of.offset)
	of.offset += int64(n)
	return n, err
}

// Seek moves the cursor. Seeking relative to the end is not supported
// because handles do not expose their size.
func (of *OpenFile) Seek(offset int64, whence int) (int64, error) {
	of.mu.Lock()
	defer of.mu.Unlock()

	if of.handle == nil {
		return 0, ErrReleased
	}

	var next int64
	switch whence {
	case SeekSet:
		next = offset
	case SeekCurrent:
		next = of.offset + offset
	default:
		return 0, ErrInvalidWhence
	}

	if next < 0 {
		return 0, ErrNegativeOffset
	}

	of.offset = next
	return next, nil
}
