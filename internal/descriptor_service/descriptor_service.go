package descriptor_service

import (
	"context"

	"github.com/AnishMulay/sandos/internal/backing_store"
)

// DescriptorService is the syscall-facing surface of the file descriptor
// subsystem. Every operation names the process it acts for explicitly; there
// is no ambient "current process".
type DescriptorService interface {
	// BootstrapProcess creates a process whose table has the three standard
	// streams open at descriptors 0, 1 and 2, in that order. On failure no
	// process exists and the partial table is discarded.
	BootstrapProcess(ctx context.Context, stdinPath, stdoutPath, stderrPath string) (string, error)

	// ForkProcess clones pid's table into a new process. Cloned descriptors
	// alias the parent's open files, cursors included.
	ForkProcess(ctx context.Context, pid string) (string, error)

	// ExitProcess closes every descriptor and removes the process.
	ExitProcess(ctx context.Context, pid string) error

	// Open opens path and returns the lowest free descriptor.
	Open(ctx context.Context, pid string, path string, flags backing_store.Flags, mode uint32) (int, error)

	// Close closes one descriptor.
	Close(ctx context.Context, pid string, fd int) error

	// Dup2 makes newfd an alias of oldfd, closing an open newfd first.
	Dup2(ctx context.Context, pid string, oldfd, newfd int) error

	// Read reads up to n bytes from the descriptor's shared cursor.
	Read(ctx context.Context, pid string, fd int, n int) ([]byte, error)

	// Write writes data at the descriptor's shared cursor.
	Write(ctx context.Context, pid string, fd int, data []byte) (int, error)

	// Seek repositions the descriptor's shared cursor.
	Seek(ctx context.Context, pid string, fd int, offset int64, whence int) (int64, error)

	// ListProcesses reports the registered processes and their open
	// descriptors.
	ListProcesses(ctx context.Context) ([]ProcessInfo, error)
}

type ProcessInfo struct {
	PID         string `json:"pid"`
	Descriptors []int  `json:"descriptors"`
}
