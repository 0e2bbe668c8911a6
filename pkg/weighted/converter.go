package weighted

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

// FormatConverter writes weighted attaches onto a scene in a specific
// attach format.
type FormatConverter func(root *scene.Node, attaches []*WeightedBufferAttach, optimize, ignoreWeights bool) error

var (
	convertersMu sync.RWMutex
	converters   = map[scene.AttachFormat]FormatConverter{}
)

// RegisterConverter installs the converter used by FromWeightedBuffer for a
// non-buffer format. A nil converter removes the registration.
func RegisterConverter(format scene.AttachFormat, conv FormatConverter) {
	convertersMu.Lock()
	defer convertersMu.Unlock()

	if conv == nil {
		delete(converters, format)
		return
	}
	converters[format] = conv
}

func lookupConverter(format scene.AttachFormat) (FormatConverter, error) {
	convertersMu.RLock()
	defer convertersMu.RUnlock()

	conv, ok := converters[format]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "format %s", format)
	}
	return conv, nil
}
