package weighted

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger sets the logger used for conversion progress. nil disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}
