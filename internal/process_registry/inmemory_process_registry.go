package process_registry

import (
	"sync"
)

type InMemoryProcessRegistry struct {
	mu    sync.RWMutex
	procs map[string]*Process
}

func NewInMemoryProcessRegistry() *InMemoryProcessRegistry {
	return &InMemoryProcessRegistry{
		procs: make(map[string]*Process),
	}
}

func (r *InMemoryProcessRegistry) Register(proc *Process) error {
	if proc == nil {
		return ErrNilProcess
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.procs[proc.PID]; exists {
		return ErrProcessExists
	}

	r.procs[proc.PID] = proc
	return nil
}

func (r *InMemoryProcessRegistry) Get(pid string) (*Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proc, exists := r.procs[pid]
	if !exists {
		return nil, ErrProcessNotFound
	}
	return proc, nil
}

func (r *InMemoryProcessRegistry) Remove(pid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.procs[pid]; !exists {
		return ErrProcessNotFound
	}

	delete(r.procs, pid)
	return nil
}

func (r *InMemoryProcessRegistry) List() ([]*Process, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	procs := make([]*Process, 0, len(r.procs))
	for _, proc := range r.procs {
		procs = append(procs, proc)
	}
	return procs, nil
}

var _ ProcessRegistry = (*InMemoryProcessRegistry)(nil)
