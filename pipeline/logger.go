package pipeline

import (
	"go.uber.org/zap"
)

// Logger is the sugared logging surface the pipeline and the demo
// binary report through.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// NewStdLogger builds the default zap development logger.
func NewStdLogger() (Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
