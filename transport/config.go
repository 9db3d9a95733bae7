package transport

import (
	"errors"
	"time"

	"github.com/harp-tech/go-harp/capture"
	"github.com/harp-tech/go-harp/framing"
	"github.com/harp-tech/go-harp/logger"
)

// Config holds the transport parameters.
type Config struct {
	// name is a human readable label added to every log line.
	name string

	// readBufferSize is the maximum number of bytes requested per stream read.
	// Defaults to 4096.
	readBufferSize int

	// initialBufferCapacity is the initial reassembly ring buffer capacity.
	// Defaults to framing.DefaultInitialCapacity.
	initialBufferCapacity int

	// ignoreErrors suppresses error-flagged Event messages.
	// Defaults to false.
	ignoreErrors bool

	// closeTimeout bounds how long Close waits for the read loop to exit.
	// Defaults to 3 seconds.
	closeTimeout time.Duration

	// recorder, when set, receives every frame read or written.
	recorder capture.Recorder

	logger logger.Logger
}

// NewConfig creates a transport configuration with default values and then
// applies opts in order. The first failing option aborts the construction.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		readBufferSize:        4096,
		initialBufferCapacity: framing.DefaultInitialCapacity,
		closeTimeout:          3 * time.Second,
		logger:                logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithName sets a label used in log output. The default is empty.
func WithName(name string) Option {
	return newOptFunc("WithName", func(cfg *Config) error {
		cfg.name = name
		return nil
	})
}

// WithLogger sets the logger. The default is the package default logger.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("transport: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithReadBufferSize sets the maximum number of bytes requested per read.
// It must be within [1, 65536]. The default value is 4096.
func WithReadBufferSize(size int) Option {
	return newOptFunc("WithReadBufferSize", func(cfg *Config) error {
		if size < 1 || size > 65536 {
			return errors.New("transport: read buffer size out of range [1, 65536]")
		}
		cfg.readBufferSize = size

		return nil
	})
}

// WithInitialBufferCapacity sets the initial reassembly buffer capacity.
// It must be within [1, 1048576]. The buffer grows on demand.
func WithInitialBufferCapacity(size int) Option {
	return newOptFunc("WithInitialBufferCapacity", func(cfg *Config) error {
		if size < 1 || size > 1<<20 {
			return errors.New("transport: initial buffer capacity out of range [1, 1048576]")
		}
		cfg.initialBufferCapacity = size

		return nil
	})
}

// WithIgnoreErrors drops Event messages carrying the error flag before they
// reach subscribers. Read and Write replies are always delivered.
func WithIgnoreErrors(ignore bool) Option {
	return newOptFunc("WithIgnoreErrors", func(cfg *Config) error {
		cfg.ignoreErrors = ignore
		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the read loop to exit.
// It must be within [10ms, 30s]. The default value is 3 seconds.
func WithCloseTimeout(d time.Duration) Option {
	return newOptFunc("WithCloseTimeout", func(cfg *Config) error {
		if d < 10*time.Millisecond || d > 30*time.Second {
			return errors.New("transport: close timeout out of range [10ms, 30s]")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithRecorder records every inbound and outbound frame.
func WithRecorder(r capture.Recorder) Option {
	return newOptFunc("WithRecorder", func(cfg *Config) error {
		cfg.recorder = r
		return nil
	})
}

// Name returns the configured label.
func (cfg *Config) Name() string { return cfg.name }

// ReadBufferSize returns the maximum number of bytes requested per read.
func (cfg *Config) ReadBufferSize() int { return cfg.readBufferSize }

// CloseTimeout returns the Close wait bound.
func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

// IgnoreErrors reports whether error-flagged events are dropped.
func (cfg *Config) IgnoreErrors() bool { return cfg.ignoreErrors }

// Logger returns the configured logger.
func (cfg *Config) Logger() logger.Logger { return cfg.logger }
