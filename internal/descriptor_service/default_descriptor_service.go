package descriptor_service

import (
	"context"
	"time"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/file_table"
	"github.com/AnishMulay/sandos/internal/log_service"
	"github.com/AnishMulay/sandos/internal/open_file"
	"github.com/AnishMulay/sandos/internal/process_registry"
)

type DefaultDescriptorService struct {
	bs       backing_store.BackingStore
	registry process_registry.ProcessRegistry
	ls       log_service.LogService
}

func NewDefaultDescriptorService(
	bs backing_store.BackingStore,
	registry process_registry.ProcessRegistry,
	ls log_service.LogService,
) *DefaultDescriptorService {
	return &DefaultDescriptorService{
		bs:       bs,
		registry: registry,
		ls:       ls,
	}
}

func (s *DefaultDescriptorService) BootstrapProcess(ctx context.Context, stdinPath, stdoutPath, stderrPath string) (string, error) {
	table := file_table.New()
	if err := table.Bootstrap(ctx, s.bs, stdinPath, stdoutPath, stderrPath); err != nil {
		// Streams opened before the failure are not unwound; the table is
		// discarded along with the aborted process creation.
		s.ls.Error(log_service.LogEvent{
			Message:  "Process bootstrap failed",
			Metadata: map[string]any{"error": err.Error()},
		})
		return "", err
	}

	proc := &process_registry.Process{
		PID:       process_registry.NewPID(),
		Table:     table,
		CreatedAt: time.Now(),
	}
	if err := s.registry.Register(proc); err != nil {
		table.Destroy(s.ls)
		return "", err
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Process bootstrapped",
		Metadata: map[string]any{"pid": proc.PID},
	})
	return proc.PID, nil
}

func (s *DefaultDescriptorService) ForkProcess(ctx context.Context, pid string) (string, error) {
	parent, err := s.registry.Get(pid)
	if err != nil {
		return "", err
	}

	child := &process_registry.Process{
		PID:       process_registry.NewPID(),
		Table:     parent.Table.Clone(),
		CreatedAt: time.Now(),
	}
	if err := s.registry.Register(child); err != nil {
		child.Table.Destroy(s.ls)
		return "", err
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Process forked",
		Metadata: map[string]any{"parent": pid, "child": child.PID},
	})
	return child.PID, nil
}

func (s *DefaultDescriptorService) ExitProcess(ctx context.Context, pid string) error {
	proc, err := s.registry.Get(pid)
	if err != nil {
		return err
	}

	proc.Table.Destroy(s.ls)
	if err := s.registry.Remove(pid); err != nil {
		return err
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Process exited",
		Metadata: map[string]any{"pid": pid},
	})
	return nil
}

func (s *DefaultDescriptorService) Open(ctx context.Context, pid string, path string, flags backing_store.Flags, mode uint32) (int, error) {
	proc, err := s.registry.Get(pid)
	if err != nil {
		return -1, err
	}

	of, err := open_file.Open(ctx, s.bs, path, flags, mode)
	if err != nil {
		return -1, err
	}

	fd, err := proc.Table.Place(of)
	if err != nil {
		// The table did not take the reference, so drop it here.
		if relErr := of.Release(); relErr != nil {
			s.ls.Error(log_service.LogEvent{
				Message:  "Failed to release open file after placement failure",
				Metadata: map[string]any{"pid": pid, "error": relErr.Error()},
			})
		}
		return -1, err
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Descriptor opened",
		Metadata: map[string]any{"pid": pid, "fd": fd, "path": path},
	})
	return fd, nil
}

func (s *DefaultDescriptorService) Close(ctx context.Context, pid string, fd int) error {
	proc, err := s.registry.Get(pid)
	if err != nil {
		return err
	}

	if err := proc.Table.Close(fd); err != nil {
		return err
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Descriptor closed",
		Metadata: map[string]any{"pid": pid, "fd": fd},
	})
	return nil
}

func (s *DefaultDescriptorService) Dup2(ctx context.Context, pid string, oldfd, newfd int) error {
	proc, err := s.registry.Get(pid)
	if err != nil {
		return err
	}

	if err := proc.Table.Dup2(oldfd, newfd); err != nil {
		return err
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Descriptor duplicated",
		Metadata: map[string]any{"pid": pid, "oldfd": oldfd, "newfd": newfd},
	})
	return nil
}

// maxReadLength bounds a single read. The length arrives from untrusted
// clients and sizes an allocation, so it cannot be taken at face value.
const maxReadLength = 1 << 20

func (s *DefaultDescriptorService) Read(ctx context.Context, pid string, fd int, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidLength
	}
	if n > maxReadLength {
		n = maxReadLength
	}

	proc, err := s.registry.Get(pid)
	if err != nil {
		return nil, err
	}

	of, err := proc.Table.Find(fd)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	read, err := of.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}

func (s *DefaultDescriptorService) Write(ctx context.Context, pid string, fd int, data []byte) (int, error) {
	proc, err := s.registry.Get(pid)
	if err != nil {
		return 0, err
	}

	of, err := proc.Table.Find(fd)
	if err != nil {
		return 0, err
	}

	return of.Write(data)
}

func (s *DefaultDescriptorService) Seek(ctx context.Context, pid string, fd int, offset int64, whence int) (int64, error) {
	proc, err := s.registry.Get(pid)
	if err != nil {
		return 0, err
	}

	of, err := proc.Table.Find(fd)
	if err != nil {
		return 0, err
	}

	return of.Seek(offset, whence)
}

func (s *DefaultDescriptorService) ListProcesses(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := s.registry.List()
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, proc := range procs {
		infos = append(infos, ProcessInfo{
			PID:         proc.PID,
			Descriptors: proc.Table.Descriptors(),
		})
	}
	return infos, nil
}

var _ DescriptorService = (*DefaultDescriptorService)(nil)
