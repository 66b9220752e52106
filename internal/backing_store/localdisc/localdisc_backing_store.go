package localdisc

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/log_service"
)

// LocalDiscBackingStore serves opens out of a directory on the host
// filesystem. Paths are resolved relative to the root directory; escaping it
// is rejected.
type LocalDiscBackingStore struct {
	rootDir string
	ls      log_service.LogService
}

func NewLocalDiscBackingStore(rootDir string, ls log_service.LogService) *LocalDiscBackingStore {
	if err := os.MkdirAll(rootDir, os.ModePerm); err != nil {
		panic(err)
	}
	return &LocalDiscBackingStore{
		rootDir: rootDir,
		ls:      ls,
	}
}

func (bs *LocalDiscBackingStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	if cleaned == "/" {
		return "", backing_store.ErrInvalidPath
	}
	return filepath.Join(bs.rootDir, cleaned), nil
}

func osFlags(flags backing_store.Flags) int {
	var out int
	switch flags.AccessMode() {
	case backing_store.FlagReadOnly:
		out = os.O_RDONLY
	case backing_store.FlagWriteOnly:
		out = os.O_WRONLY
	case backing_store.FlagReadWrite:
		out = os.O_RDWR
	}
	if flags&backing_store.FlagCreate != 0 {
		out |= os.O_CREATE
	}
	if flags&backing_store.FlagTruncate != 0 {
		out |= os.O_TRUNC
	}
	return out
}

func (bs *LocalDiscBackingStore) Open(ctx context.Context, path string, flags backing_store.Flags, mode uint32) (backing_store.Handle, error) {
	if !flags.Valid() {
		return nil, backing_store.ErrInvalidFlags
	}
	// os.File rejects WriteAt on O_APPEND files, so the flag cannot be
	// honored through a positional handle.
	if flags&backing_store.FlagAppend != 0 {
		return nil, backing_store.ErrNotSupported
	}

	resolved, err := bs.resolve(path)
	if err != nil {
		bs.ls.Error(log_service.LogEvent{
			Message:  "Rejected backing store path",
			Metadata: map[string]any{"path": path},
		})
		return nil, err
	}

	bs.ls.Debug(log_service.LogEvent{
		Message:  "Opening backing file",
		Metadata: map[string]any{"path": path, "flags": int(flags)},
	})

	file, err := os.OpenFile(resolved, osFlags(flags), os.FileMode(mode))
	if err != nil {
		bs.ls.Error(log_service.LogEvent{
			Message:  "Failed to open backing file",
			Metadata: map[string]any{"path": path, "error": err.Error()},
		})
		if os.IsNotExist(err) {
			return nil, backing_store.ErrNotFound
		}
		return nil, err
	}

	return file, nil
}

var _ backing_store.BackingStore = (*LocalDiscBackingStore)(nil)
