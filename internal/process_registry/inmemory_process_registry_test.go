package process_registry

import (
	"errors"
	"testing"
	"time"

	"github.com/AnishMulay/sandos/internal/file_table"
)

func newProcess() *Process {
	return &Process{
		PID:       NewPID(),
		Table:     file_table.New(),
		CreatedAt: time.Now(),
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *InMemoryProcessRegistry) *Process
		wantErr error
	}{
		{
			name:  "fresh process",
			setup: func(r *InMemoryProcessRegistry) *Process { return newProcess() },
		},
		{
			name: "duplicate pid",
			setup: func(r *InMemoryProcessRegistry) *Process {
				proc := newProcess()
				if err := r.Register(proc); err != nil {
					t.Fatalf("setup Register() error = %v", err)
				}
				return proc
			},
			wantErr: ErrProcessExists,
		},
		{
			name:    "nil process",
			setup:   func(r *InMemoryProcessRegistry) *Process { return nil },
			wantErr: ErrNilProcess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewInMemoryProcessRegistry()
			proc := tt.setup(r)
			if err := r.Register(proc); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetRemove(t *testing.T) {
	r := NewInMemoryProcessRegistry()
	proc := newProcess()
	if err := r.Register(proc); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Get(proc.PID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != proc {
		t.Errorf("Get() returned a different process")
	}

	if err := r.Remove(proc.PID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := r.Get(proc.PID); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("Get() after remove error = %v, want %v", err, ErrProcessNotFound)
	}
	if err := r.Remove(proc.PID); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("second Remove() error = %v, want %v", err, ErrProcessNotFound)
	}
}

func TestList(t *testing.T) {
	r := NewInMemoryProcessRegistry()

	procs, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(procs) != 0 {
		t.Fatalf("List() = %d entries, want 0", len(procs))
	}

	a, b := newProcess(), newProcess()
	for _, proc := range []*Process{a, b} {
		if err := r.Register(proc); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	procs, err = r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(procs) != 2 {
		t.Errorf("List() = %d entries, want 2", len(procs))
	}
}

func TestNewPID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pid := NewPID()
		if pid == "" {
			t.Fatalf("NewPID() returned empty string")
		}
		if seen[pid] {
			t.Fatalf("NewPID() repeated %s", pid)
		}
		seen[pid] = true
	}
}
