package process_registry

import (
	"time"

	"github.com/google/uuid"

	"github.com/AnishMulay/sandos/internal/file_table"
)

// Process is the bookkeeping the descriptor subsystem needs from the process
// model: an identifier and the owned file table.
type Process struct {
	PID       string
	Table     *file_table.FileTable
	CreatedAt time.Time
}

type ProcessRegistry interface {
	Register(proc *Process) error
	Get(pid string) (*Process, error)
	Remove(pid string) error
	List() ([]*Process, error)
}

// NewPID allocates a fresh process identifier.
func NewPID() string {
	return uuid.NewString()
}
