package device

import (
	"errors"
	"time"

	"github.com/harp-tech/go-harp/logger"
)

// DefaultCommandTimeout is the time a command waits for its reply.
const DefaultCommandTimeout = 2 * time.Second

type options struct {
	timeout time.Duration
	logger  logger.Logger
}

// Option configures a Device.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

// WithCommandTimeout sets the reply timeout of Command. Zero disables the
// timeout so only the context bounds the wait. Negative values are rejected.
func WithCommandTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < 0 {
			return errors.New("device: command timeout must not be negative")
		}
		o.timeout = d

		return nil
	})
}

// WithLogger sets the logger. The default is the package default logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return errors.New("device: logger is nil")
		}
		o.logger = l

		return nil
	})
}
