package sender

import (
	"go.uber.org/zap"
)

// Logger receives the sender's flush and fallback diagnostics. A
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// NewStdLogger is the logger a sender falls back to when Config.Logger
// is unset.
func NewStdLogger() (Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
