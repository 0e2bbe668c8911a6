package weighted

import "github.com/pkg/errors"

// Conversion errors.
var (
	ErrMissingBufferData   = errors.New("attach has no buffer mesh data, it must be generated first")
	ErrMissingMaterial     = errors.New("polygon corners have no material")
	ErrDegenerateTransform = errors.New("node world matrix is not invertible")
	ErrUnsupportedFormat   = errors.New("no converter registered for attach format")
	ErrTooManyVertices     = errors.New("vertex count exceeds the vertex cache")
	ErrNodeIndexOutOfRange = errors.New("node index outside of the scene")
	ErrCornerOutOfRange    = errors.New("corner references a missing vertex")
)
