package buffer

import "github.com/pkg/errors"

// Buffer format errors.
var (
	ErrSlotOutOfRange    = errors.New("vertex cache slot out of range")
	ErrInvalidStrip      = errors.New("triangle strip has fewer than 3 corners")
	ErrIndexOutOfRange   = errors.New("index list references a missing corner")
	ErrSingularTransform = errors.New("node transform is not invertible")
)
