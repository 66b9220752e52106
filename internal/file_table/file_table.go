package file_table

import (
	"context"
	"sync"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/log_service"
	"github.com/AnishMulay/sandos/internal/open_file"
)

// MaxOpen is the fixed number of descriptor slots per process.
const MaxOpen = 128

// Standard descriptor numbers, established by Bootstrap in this order.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

// FileTable maps descriptor numbers to open files for one process. A table
// is owned by exactly one process; fork clones it into an independent table
// whose occupied slots alias the same OpenFile objects.
//
// The reference this is modeled on leaves the slot array unlocked on the
// grounds that only the owning process touches it. Here any number of
// goroutines may issue syscalls for the same process, so the table carries
// its own mutex.
type FileTable struct {
	mu      sync.Mutex
	handles [MaxOpen]*open_file.OpenFile
}

func New() *FileTable {
	return &FileTable{}
}

// Bootstrap opens the three standard streams on a fresh table. The paths are
// opened in order with modes read-only, write-only, write-only; lowest-free-
// slot placement lands them at descriptors 0, 1 and 2. The first open
// failure is returned as-is without closing earlier streams: the caller is
// creating a process, and an aborted creation discards the whole table.
func (t *FileTable) Bootstrap(ctx context.Context, bs backing_store.BackingStore, stdinPath, stdoutPath, stderrPath string) error {
	t.mu.Lock()
	for _, of := range t.handles {
		if of != nil {
			t.mu.Unlock()
			return ErrTableInUse
		}
	}
	t.mu.Unlock()

	std := []struct {
		path  string
		flags backing_store.Flags
	}{
		{stdinPath, backing_store.FlagReadOnly},
		{stdoutPath, backing_store.FlagWriteOnly},
		{stderrPath, backing_store.FlagWriteOnly},
	}

	for _, s := range std {
		of, err := open_file.Open(ctx, bs, s.path, s.flags, 0)
		if err != nil {
			return err
		}
		if _, err := t.Place(of); err != nil {
			of.Release()
			return err
		}
	}

	return nil
}

// Place stores the open file at the lowest free descriptor and returns it.
// On a full table the open file is left untouched for the caller to release.
func (t *FileTable) Place(of *open_file.OpenFile) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd := 0; fd < MaxOpen; fd++ {
		if t.handles[fd] == nil {
			t.handles[fd] = of
			return fd, nil
		}
	}

	return -1, ErrTooManyOpenFiles
}

// Find returns the open file at fd without touching its refcount.
func (t *FileTable) Find(fd int) (*open_file.OpenFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findLocked(fd)
}

func (t *FileTable) findLocked(fd int) (*open_file.OpenFile, error) {
	if fd < 0 || fd >= MaxOpen {
		return nil, ErrBadDescriptor
	}
	of := t.handles[fd]
	if of == nil {
		return nil, ErrBadDescriptor
	}
	return of, nil
}

// Clone builds a new table whose occupied slots alias this table's open
// files, each alias counted as a fresh reference. Used at fork.
func (t *FileTable) Clone() *FileTable {
	t.mu.Lock()
	defer t.mu.Unlock()

	clone := New()
	for fd, of := range t.handles {
		if of != nil {
			of.Retain()
			clone.handles[fd] = of
		}
	}
	return clone
}

// Dup2 makes newfd an alias of oldfd, sharing cursor and access mode. An
// open newfd is fully closed first; dup2 of a descriptor to itself succeeds
// without side effects.
func (t *FileTable) Dup2(oldfd, newfd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if newfd < 0 || newfd >= MaxOpen {
		return ErrBadDescriptor
	}
	src, err := t.findLocked(oldfd)
	if err != nil {
		return err
	}

	if oldfd == newfd {
		return nil
	}

	if t.handles[newfd] != nil {
		if err := t.closeLocked(newfd); err != nil {
			return err
		}
	}

	src.Retain()
	t.handles[newfd] = src
	return nil
}

// Close releases the descriptor's open file and clears the slot. If the
// release fails the slot is left occupied so the close can be retried
// without losing track of the file.
func (t *FileTable) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked(fd)
}

func (t *FileTable) closeLocked(fd int) error {
	of, err := t.findLocked(fd)
	if err != nil {
		return err
	}
	if err := of.Release(); err != nil {
		return err
	}
	t.handles[fd] = nil
	return nil
}

// Destroy releases every open descriptor. A release failure here has no
// caller left to retry, so it is logged and the slot dropped anyway. Called
// once, at process exit.
func (t *FileTable) Destroy(ls log_service.LogService) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, of := range t.handles {
		if of == nil {
			continue
		}
		if err := of.Release(); err != nil {
			ls.Error(log_service.LogEvent{
				Message:  "Release failed during table teardown",
				Metadata: map[string]any{"fd": fd, "error": err.Error()},
			})
		}
		t.handles[fd] = nil
	}
}

// Descriptors lists the currently occupied descriptor numbers in order.
func (t *FileTable) Descriptors() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fds []int
	for fd, of := range t.handles {
		if of != nil {
			fds = append(fds, fd)
		}
	}
	return fds
}
