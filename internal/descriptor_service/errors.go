package descriptor_service

import "errors"

var (
	ErrInvalidLength = errors.New("invalid read length")
)
