package inmemory

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/log_service"
)

// Device paths served by the in-memory store alongside regular files.
const (
	ConsoleDevice = "con:"
	NullDevice    = "null:"
	RandDevice    = "rand:"
)

type fileKind int

const (
	kindRegular fileKind = iota
	kindConsole
	kindNull
	kindRand
)

type memFile struct {
	data []byte
}

// InMemoryBackingStore keeps every resource in process memory. It backs the
// kernel's standard streams with a console device and tracks open/close
// counts so callers can verify that every handle is closed exactly once.
type InMemoryBackingStore struct {
	mu         sync.Mutex
	files      map[string]*memFile
	consoleIn  []byte
	consoleOut []byte
	randSrc    *rand.Rand
	openCount  int
	closeCount int
	ls         log_service.LogService
}

func NewInMemoryBackingStore(ls log_service.LogService) *InMemoryBackingStore {
	return &InMemoryBackingStore{
		files:   make(map[string]*memFile),
		randSrc: rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
		ls:      ls,
	}
}

func (bs *InMemoryBackingStore) Open(ctx context.Context, path string, flags backing_store.Flags, mode uint32) (backing_store.Handle, error) {
	if !flags.Valid() {
		return nil, backing_store.ErrInvalidFlags
	}
	// Append cannot be honored through a positional handle.
	if flags&backing_store.FlagAppend != 0 {
		return nil, backing_store.ErrNotSupported
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	kind := kindRegular
	var file *memFile

	switch path {
	case ConsoleDevice:
		kind = kindConsole
	case NullDevice:
		kind = kindNull
	case RandDevice:
		if flags.CanWrite() {
			return nil, backing_store.ErrNotSupported
		}
		kind = kindRand
	default:
		var ok bool
		file, ok = bs.files[path]
		if !ok {
			if flags&backing_store.FlagCreate == 0 {
				return nil, backing_store.ErrNotFound
			}
			file = &memFile{}
			bs.files[path] = file
		}
		if flags&backing_store.FlagTruncate != 0 {
			file.data = nil
		}
	}

	bs.openCount++
	bs.ls.Debug(log_service.LogEvent{
		Message:  "Opened in-memory resource",
		Metadata: map[string]any{"path": path, "opens": bs.openCount},
	})

	return &handle{store: bs, kind: kind, file: file, path: path}, nil
}

// QueueConsoleInput appends bytes that subsequent console reads will drain.
func (bs *InMemoryBackingStore) QueueConsoleInput(data []byte) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.consoleIn = append(bs.consoleIn, data...)
}

// ConsoleOutput returns everything written to the console device so far.
func (bs *InMemoryBackingStore) ConsoleOutput() []byte {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	out := make([]byte, len(bs.consoleOut))
	copy(out, bs.consoleOut)
	return out
}

func (bs *InMemoryBackingStore) OpenCount() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.openCount
}

func (bs *InMemoryBackingStore) CloseCount() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.closeCount
}

// LiveHandles is the number of handles opened but not yet closed.
func (bs *InMemoryBackingStore) LiveHandles() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.openCount - bs.closeCount
}

type handle struct {
	store  *InMemoryBackingStore
	kind   fileKind
	file   *memFile
	path   string
	closed bool
}

func (h *handle) ReadAt(p []byte, off int64) (int, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.closed {
		return 0, backing_store.ErrClosed
	}

	switch h.kind {
	case kindConsole:
		if len(h.store.consoleIn) == 0 {
			return 0, io.EOF
		}
		n := copy(p, h.store.consoleIn)
		h.store.consoleIn = h.store.consoleIn[n:]
		return n, nil
	case kindNull:
		return 0, io.EOF
	case kindRand:
		for i := range p {
			p[i] = byte(h.store.randSrc.Uint32())
		}
		return len(p), nil
	default:
		if off >= int64(len(h.file.data)) {
			return 0, io.EOF
		}
		n := copy(p, h.file.data[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}
}

func (h *handle) WriteAt(p []byte, off int64) (int, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.closed {
		return 0, backing_store.ErrClosed
	}

	switch h.kind {
	case kindConsole:
		h.store.consoleOut = append(h.store.consoleOut, p...)
		return len(p), nil
	case kindNull:
		return len(p), nil
	case kindRand:
		return 0, backing_store.ErrNotSupported
	default:
		if grow := off + int64(len(p)) - int64(len(h.file.data)); grow > 0 {
			h.file.data = append(h.file.data, make([]byte, grow)...)
		}
		copy(h.file.data[off:], p)
		return len(p), nil
	}
}

func (h *handle) Close() error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.closed {
		return backing_store.ErrClosed
	}
	h.closed = true
	h.store.closeCount++

	h.store.ls.Debug(log_service.LogEvent{
		Message:  "Closed in-memory resource",
		Metadata: map[string]any{"path": h.path, "closes": h.store.closeCount},
	})
	return nil
}

var _ backing_store.BackingStore = (*InMemoryBackingStore)(nil)
