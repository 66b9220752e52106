package process_registry

import "errors"

var (
	ErrProcessExists   = errors.New("process already registered")
	ErrProcessNotFound = errors.New("process not found")
	ErrNilProcess      = errors.New("process is nil")
)
