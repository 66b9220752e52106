package file_table

import (
	"context"
	"errors"
	"testing"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/backing_store/inmemory"
	loglocaldisc "github.com/AnishMulay/sandos/internal/log_service/localdisc"
	"github.com/AnishMulay/sandos/internal/open_file"
)

func newTestStore(t *testing.T) *inmemory.InMemoryBackingStore {
	t.Helper()
	ls := loglocaldisc.NewLocalDiscLogService(t.TempDir(), "test", "ERROR")
	return inmemory.NewInMemoryBackingStore(ls)
}

func mustOpen(t *testing.T, bs backing_store.BackingStore, path string, flags backing_store.Flags) *open_file.OpenFile {
	t.Helper()
	of, err := open_file.Open(context.Background(), bs, path, flags, 0644)
	if err != nil {
		t.Fatalf("open %q: %v", path, err)
	}
	return of
}

func TestBootstrap_StandardDescriptors(t *testing.T) {
	bs := newTestStore(t)
	table := New()

	if err := table.Bootstrap(context.Background(), bs, inmemory.ConsoleDevice, inmemory.ConsoleDevice, inmemory.ConsoleDevice); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	wantModes := map[int]backing_store.Flags{
		Stdin:  backing_store.FlagReadOnly,
		Stdout: backing_store.FlagWriteOnly,
		Stderr: backing_store.FlagWriteOnly,
	}
	for fd, want := range wantModes {
		of, err := table.Find(fd)
		if err != nil {
			t.Fatalf("Find(%d) error = %v", fd, err)
		}
		if got := of.AccessMode(); got != want {
			t.Errorf("fd %d access mode = %d, want %d", fd, got, want)
		}
	}

	if err := table.Bootstrap(context.Background(), bs, inmemory.ConsoleDevice, inmemory.ConsoleDevice, inmemory.ConsoleDevice); !errors.Is(err, ErrTableInUse) {
		t.Errorf("second Bootstrap() error = %v, want %v", err, ErrTableInUse)
	}
}

func TestBootstrap_OpenFailure(t *testing.T) {
	bs := newTestStore(t)
	table := New()

	// Stdout path does not exist and cannot be created.
	err := table.Bootstrap(context.Background(), bs, inmemory.ConsoleDevice, "/no/such/stream", inmemory.ConsoleDevice)
	if !errors.Is(err, backing_store.ErrNotFound) {
		t.Fatalf("Bootstrap() error = %v, want %v", err, backing_store.ErrNotFound)
	}
	if _, err := table.Find(Stdin); err != nil {
		t.Errorf("stdin should remain placed after a later open fails: %v", err)
	}
}

func TestPlace_LowestFreeDescriptor(t *testing.T) {
	bs := newTestStore(t)
	table := New()

	if err := table.Bootstrap(context.Background(), bs, inmemory.ConsoleDevice, inmemory.ConsoleDevice, inmemory.ConsoleDevice); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	a := mustOpen(t, bs, "/a", backing_store.FlagReadWrite|backing_store.FlagCreate)
	b := mustOpen(t, bs, "/b", backing_store.FlagReadWrite|backing_store.FlagCreate)

	fdA, err := table.Place(a)
	if err != nil {
		t.Fatalf("Place(a) error = %v", err)
	}
	fdB, err := table.Place(b)
	if err != nil {
		t.Fatalf("Place(b) error = %v", err)
	}
	if fdA != 3 || fdB != 4 {
		t.Fatalf("Place() gave fds %d, %d, want 3, 4", fdA, fdB)
	}

	// Freeing a low slot makes the next placement reuse it.
	if err := table.Close(fdA); err != nil {
		t.Fatalf("Close(%d) error = %v", fdA, err)
	}
	c := mustOpen(t, bs, "/c", backing_store.FlagReadWrite|backing_store.FlagCreate)
	fdC, err := table.Place(c)
	if err != nil {
		t.Fatalf("Place(c) error = %v", err)
	}
	if fdC != fdA {
		t.Errorf("Place() after close gave fd %d, want %d", fdC, fdA)
	}
}

func TestPlace_TableFull(t *testing.T) {
	bs := newTestStore(t)
	table := New()

	for i := 0; i < MaxOpen; i++ {
		of := mustOpen(t, bs, inmemory.NullDevice, backing_store.FlagWriteOnly)
		if _, err := table.Place(of); err != nil {
			t.Fatalf("Place() #%d error = %v", i, err)
		}
	}

	extra := mustOpen(t, bs, inmemory.NullDevice, backing_store.FlagWriteOnly)
	if _, err := table.Place(extra); !errors.Is(err, ErrTooManyOpenFiles) {
		t.Fatalf("Place() on full table error = %v, want %v", err, ErrTooManyOpenFiles)
	}

	// The rejected file is still the caller's to release; after that, every
	// handle the store handed out for the table is still live.
	if err := extra.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := bs.LiveHandles(); got != MaxOpen {
		t.Errorf("live handles = %d, want %d", got, MaxOpen)
	}
}

func TestFind_BadDescriptor(t *testing.T) {
	bs := newTestStore(t)
	table := New()
	of := mustOpen(t, bs, "/a", backing_store.FlagReadWrite|backing_store.FlagCreate)
	if _, err := table.Place(of); err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	tests := []struct {
		name string
		fd   int
	}{
		{name: "negative", fd: -1},
		{name: "past end", fd: MaxOpen},
		{name: "empty slot", fd: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := table.Find(tt.fd); !errors.Is(err, ErrBadDescriptor) {
				t.Errorf("Find(%d) error = %v, want %v", tt.fd, err, ErrBadDescriptor)
			}
		})
	}
}

func TestDup2_SelfIsNoOp(t *testing.T) {
	bs := newTestStore(t)
	table := New()
	of := mustOpen(t, bs, "/a", backing_store.FlagReadWrite|backing_store.FlagCreate)
	fd, err := table.Place(of)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	if err := table.Dup2(fd, fd); err != nil {
		t.Fatalf("Dup2(%d, %d) error = %v", fd, fd, err)
	}
	if got := of.Refs(); got != 1 {
		t.Errorf("Refs() after self-dup = %d, want 1", got)
	}
}

func TestDup2_ReplacesTarget(t *testing.T) {
	bs := newTestStore(t)
	table := New()

	src := mustOpen(t, bs, "/src", backing_store.FlagReadWrite|backing_store.FlagCreate)
	victim := mustOpen(t, bs, "/victim", backing_store.FlagReadWrite|backing_store.FlagCreate)
	srcFd, _ := table.Place(src)
	victimFd, _ := table.Place(victim)

	if err := table.Dup2(srcFd, victimFd); err != nil {
		t.Fatalf("Dup2() error = %v", err)
	}

	if got := src.Refs(); got != 2 {
		t.Errorf("source Refs() = %d, want 2", got)
	}
	// The victim's only reference was released, closing its handle.
	if err := victim.Release(); !errors.Is(err, open_file.ErrReleased) {
		t.Errorf("victim Release() error = %v, want %v", err, open_file.ErrReleased)
	}

	got, err := table.Find(victimFd)
	if err != nil {
		t.Fatalf("Find(%d) error = %v", victimFd, err)
	}
	if got != src {
		t.Errorf("Find(%d) did not return the duplicated file", victimFd)
	}
}

func TestDup2_SharedCursor(t *testing.T) {
	bs := newTestStore(t)
	table := New()

	of := mustOpen(t, bs, "/shared", backing_store.FlagReadWrite|backing_store.FlagCreate)
	oldfd, _ := table.Place(of)
	newfd := 7

	if err := table.Dup2(oldfd, newfd); err != nil {
		t.Fatalf("Dup2() error = %v", err)
	}

	writer, _ := table.Find(newfd)
	if _, err := writer.Write([]byte("abc")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// The alias moved the cursor for both descriptors.
	reader, _ := table.Find(oldfd)
	if _, err := reader.Seek(0, open_file.SeekSet); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	buf := make([]byte, 3)
	n, err := reader.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf[:n]) != "abc" {
		t.Errorf("Read() = %q, want %q", string(buf[:n]), "abc")
	}
}

func TestDup2_BadDescriptors(t *testing.T) {
	bs := newTestStore(t)
	table := New()
	of := mustOpen(t, bs, "/a", backing_store.FlagReadWrite|backing_store.FlagCreate)
	fd, _ := table.Place(of)

	tests := []struct {
		name  string
		oldfd int
		newfd int
	}{
		{name: "negative old", oldfd: -1, newfd: 4},
		{name: "empty old", oldfd: 9, newfd: 4},
		{name: "negative new", oldfd: fd, newfd: -1},
		{name: "new past end", oldfd: fd, newfd: MaxOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := table.Dup2(tt.oldfd, tt.newfd); !errors.Is(err, ErrBadDescriptor) {
				t.Errorf("Dup2(%d, %d) error = %v, want %v", tt.oldfd, tt.newfd, err, ErrBadDescriptor)
			}
		})
	}
}

func TestClone_IndependentTables(t *testing.T) {
	bs := newTestStore(t)
	parent := New()

	of := mustOpen(t, bs, "/a", backing_store.FlagReadWrite|backing_store.FlagCreate)
	fd, _ := parent.Place(of)

	child := parent.Clone()
	if got := of.Refs(); got != 2 {
		t.Fatalf("Refs() after clone = %d, want 2", got)
	}

	// Closing in the child leaves the parent's descriptor usable.
	if err := child.Close(fd); err != nil {
		t.Fatalf("child Close() error = %v", err)
	}
	if _, err := parent.Find(fd); err != nil {
		t.Errorf("parent Find(%d) after child close error = %v", fd, err)
	}
	if got := of.Refs(); got != 1 {
		t.Errorf("Refs() after child close = %d, want 1", got)
	}
	if got := bs.CloseCount(); got != 0 {
		t.Errorf("backing close count = %d, want 0 while parent still holds the file", got)
	}
}

// flakyStore hands out handles whose Close fails until the fault is cleared.
type flakyStore struct {
	closeErr error
}

func (s *flakyStore) Open(ctx context.Context, path string, flags backing_store.Flags, mode uint32) (backing_store.Handle, error) {
	return &flakyHandle{store: s}, nil
}

type flakyHandle struct {
	store *flakyStore
}

func (h *flakyHandle) ReadAt(p []byte, off int64) (int, error)  { return 0, nil }
func (h *flakyHandle) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }

func (h *flakyHandle) Close() error {
	return h.store.closeErr
}

func TestClose_ReleaseFailureKeepsSlot(t *testing.T) {
	store := &flakyStore{}
	table := New()

	of := mustOpen(t, store, "/dev", backing_store.FlagReadWrite)
	fd, err := table.Place(of)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	closeErr := errors.New("device busy")
	store.closeErr = closeErr

	// The failed release must not lose track of the file.
	if err := table.Close(fd); !errors.Is(err, closeErr) {
		t.Fatalf("Close() error = %v, want %v", err, closeErr)
	}
	if _, err := table.Find(fd); err != nil {
		t.Fatalf("Find(%d) after failed close error = %v, want slot still occupied", fd, err)
	}
	if got := of.Refs(); got != 1 {
		t.Errorf("Refs() after failed close = %d, want 1", got)
	}

	// Once the device recovers the same descriptor closes cleanly.
	store.closeErr = nil
	if err := table.Close(fd); err != nil {
		t.Fatalf("retried Close() error = %v", err)
	}
	if _, err := table.Find(fd); !errors.Is(err, ErrBadDescriptor) {
		t.Errorf("Find(%d) after retried close error = %v, want %v", fd, err, ErrBadDescriptor)
	}
}

func TestClose_EmptySlot(t *testing.T) {
	table := New()
	if err := table.Close(3); !errors.Is(err, ErrBadDescriptor) {
		t.Errorf("Close(3) error = %v, want %v", err, ErrBadDescriptor)
	}
}

func TestDestroy_ReleasesEverything(t *testing.T) {
	bs := newTestStore(t)
	ls := loglocaldisc.NewLocalDiscLogService(t.TempDir(), "test", "ERROR")
	parent := New()

	if err := parent.Bootstrap(context.Background(), bs, inmemory.ConsoleDevice, inmemory.ConsoleDevice, inmemory.ConsoleDevice); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	of := mustOpen(t, bs, "/a", backing_store.FlagReadWrite|backing_store.FlagCreate)
	if _, err := parent.Place(of); err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	child := parent.Clone()

	parent.Destroy(ls)
	if got := len(parent.Descriptors()); got != 0 {
		t.Errorf("parent Descriptors() after destroy = %d entries, want 0", got)
	}
	// Shared files survive until the child lets go too.
	if got := bs.LiveHandles(); got != 4 {
		t.Errorf("live handles after parent destroy = %d, want 4", got)
	}

	child.Destroy(ls)
	if got := bs.LiveHandles(); got != 0 {
		t.Errorf("live handles after both destroys = %d, want 0", got)
	}
	if bs.OpenCount() != bs.CloseCount() {
		t.Errorf("opens = %d, closes = %d, want equal", bs.OpenCount(), bs.CloseCount())
	}
}

func TestDescriptors(t *testing.T) {
	bs := newTestStore(t)
	table := New()

	if err := table.Bootstrap(context.Background(), bs, inmemory.ConsoleDevice, inmemory.ConsoleDevice, inmemory.ConsoleDevice); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	of := mustOpen(t, bs, "/a", backing_store.FlagReadWrite|backing_store.FlagCreate)
	fd, _ := table.Place(of)
	if err := table.Dup2(fd, 10); err != nil {
		t.Fatalf("Dup2() error = %v", err)
	}

	got := table.Descriptors()
	want := []int{0, 1, 2, 3, 10}
	if len(got) != len(want) {
		t.Fatalf("Descriptors() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Descriptors() = %v, want %v", got, want)
		}
	}
}
