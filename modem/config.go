package modem

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-fax/logger"
)

// Default values.
const (
	DefaultDataTimeout  = 10 * time.Second       // max silence while reading page or frame data
	DefaultPollInterval = 500 * time.Millisecond // how often a blocking wait checks its context
	DefaultCommandPause = 0                      // delay before each command
	DefaultMaxLineLen   = 512
)

// Range limits.
const (
	MinDataTimeout = 1 * time.Second
	MaxDataTimeout = 120 * time.Second

	MinPollInterval = 10 * time.Millisecond
	MaxPollInterval = 5 * time.Second

	MaxCommandPause = 2 * time.Second
)

// Config holds the modem transaction settings.
type Config struct {
	dataTimeout  time.Duration
	pollInterval time.Duration
	commandPause time.Duration
	maxLineLen   int
	traceData    bool

	logger logger.Logger
}

// NewConfig returns the default configuration with opts applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		dataTimeout:  DefaultDataTimeout,
		pollInterval: DefaultPollInterval,
		commandPause: DefaultCommandPause,
		maxLineLen:   DefaultMaxLineLen,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// DataTimeout returns the longest silence tolerated inside a data phase.
func (cfg *Config) DataTimeout() time.Duration { return cfg.dataTimeout }

// PollInterval returns the context polling interval of blocking reads.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// CommandPause returns the delay inserted before each command.
func (cfg *Config) CommandPause() time.Duration { return cfg.commandPause }

// MaxLineLen returns the longest response line kept; longer lines are cut.
func (cfg *Config) MaxLineLen() int { return cfg.maxLineLen }

// TraceData reports whether raw data bytes are logged at debug level.
func (cfg *Config) TraceData() bool { return cfg.traceData }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Modem.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithDataTimeout sets the longest silence tolerated inside a data phase.
func WithDataTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinDataTimeout || d > MaxDataTimeout {
			return fmt.Errorf("modem: data timeout %v out of range [%v, %v]", d, MinDataTimeout, MaxDataTimeout)
		}
		cfg.dataTimeout = d

		return nil
	})
}

// WithPollInterval sets how often blocking reads check for cancellation.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("modem: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithCommandPause inserts a delay before every command. Some modems drop
// commands that follow a result code too closely.
func WithCommandPause(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxCommandPause {
			return fmt.Errorf("modem: command pause %v out of range [0, %v]", d, MaxCommandPause)
		}
		cfg.commandPause = d

		return nil
	})
}

// WithMaxLineLen sets the longest response line kept.
func WithMaxLineLen(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 16 {
			return fmt.Errorf("modem: max line length %d below 16", n)
		}
		cfg.maxLineLen = n

		return nil
	})
}

// WithTraceData enables debug logging of raw data bytes.
func WithTraceData(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.traceData = enabled
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("modem: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
