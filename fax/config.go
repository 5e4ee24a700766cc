package fax

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-fax/logger"
	"github.com/arloliu/go-fax/t30"
)

// Class selects the fax command set of the modem.
type Class int

const (
	Class1 Class = iota + 1
	Class2
	Class20
)

func (c Class) String() string {
	switch c {
	case Class1:
		return "1"
	case Class2:
		return "2"
	case Class20:
		return "2.0"
	default:
		return "?"
	}
}

// Default values.
const (
	DefaultClass         = Class1
	DefaultPageRetries   = 2  // NTXRETRY: resends of a page answered RTN/PIN before falling back
	DefaultMaxPageErrors = 10 // received lines in error before a page is answered RTN
	DefaultT1Timeout     = 35 * time.Second
	DefaultT2Timeout     = 6 * time.Second
	DefaultT4Timeout     = 3 * time.Second
	DefaultDialTimeout   = 90 * time.Second
	DefaultAnswerTimeout = 60 * time.Second
	DefaultPageTimeout   = 10 * time.Minute
	DefaultHeader        = "{date} {id}   P. {page}/{pages}"
)

// Range limits.
const (
	MaxPageRetries   = 10
	MaxMaxPageErrors = 1000

	MinT1Timeout = 100 * time.Millisecond
	MaxT1Timeout = 120 * time.Second
	MinT2Timeout = 100 * time.Millisecond
	MaxT2Timeout = 60 * time.Second
	MinT4Timeout = 100 * time.Millisecond
	MaxT4Timeout = 30 * time.Second

	MinCallTimeout = 1 * time.Second
	MaxCallTimeout = 300 * time.Second

	MinPageTimeout = 1 * time.Second
	MaxPageTimeout = 60 * time.Minute
)

// DefaultCapability is the local capability vector used unless
// WithLocalCapability is given: fine resolution, 14400 bit/s, A4 width and
// length, 1-D coding, no ECM, no scan time requirement.
var DefaultCapability = t30.Capability{1, 5, 0, 2, 0, 0, 0, 0}

// Config holds the settings of a fax Session.
type Config struct {
	class         Class
	local         t30.Capability
	localID       string
	header        string
	pageRetries   int
	maxPageErrors int
	t1Timeout     time.Duration
	t2Timeout     time.Duration
	t4Timeout     time.Duration
	dialTimeout   time.Duration
	answerTimeout time.Duration
	pageTimeout   time.Duration
	reverseBits   bool
	initCommands  []string
	capture       io.Writer

	logger logger.Logger
}

// NewConfig returns the default configuration with opts applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		class:         DefaultClass,
		local:         DefaultCapability,
		header:        DefaultHeader,
		pageRetries:   DefaultPageRetries,
		maxPageErrors: DefaultMaxPageErrors,
		t1Timeout:     DefaultT1Timeout,
		t2Timeout:     DefaultT2Timeout,
		t4Timeout:     DefaultT4Timeout,
		dialTimeout:   DefaultDialTimeout,
		answerTimeout: DefaultAnswerTimeout,
		pageTimeout:   DefaultPageTimeout,
		reverseBits:   true,
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	local, warns := cfg.local.Check()
	for _, w := range warns {
		cfg.logger.Warn("local capability", "warning", w)
	}
	cfg.local = local

	return cfg, nil
}

// --- Getters ---

// Class returns the modem command class.
func (cfg *Config) Class() Class { return cfg.class }

// LocalCapability returns the local capability vector.
func (cfg *Config) LocalCapability() t30.Capability { return cfg.local }

// LocalID returns the local station identification.
func (cfg *Config) LocalID() string { return cfg.localID }

// Header returns the page header template, empty when no header is sent.
func (cfg *Config) Header() string { return cfg.header }

// PageRetries returns how often a rejected page is resent before the bit
// rate falls back.
func (cfg *Config) PageRetries() int { return cfg.pageRetries }

// MaxPageErrors returns the number of bad lines a received page may have
// and still be confirmed.
func (cfg *Config) MaxPageErrors() int { return cfg.maxPageErrors }

// T1Timeout returns the T.30 T1 timer: time to identify the remote station.
func (cfg *Config) T1Timeout() time.Duration { return cfg.t1Timeout }

// T2Timeout returns the T.30 T2 timer: time to wait for a command.
func (cfg *Config) T2Timeout() time.Duration { return cfg.t2Timeout }

// T4Timeout returns the T.30 T4 timer: time to wait for a response.
func (cfg *Config) T4Timeout() time.Duration { return cfg.t4Timeout }

// DialTimeout returns how long dialing may take until the remote answers.
func (cfg *Config) DialTimeout() time.Duration { return cfg.dialTimeout }

// AnswerTimeout returns how long answering may take until the carrier is up.
func (cfg *Config) AnswerTimeout() time.Duration { return cfg.answerTimeout }

// PageTimeout bounds the transfer of a single page.
func (cfg *Config) PageTimeout() time.Duration { return cfg.pageTimeout }

// ReverseBits reports whether page data bytes are bit reversed between the
// modem and the T.4 codec.
func (cfg *Config) ReverseBits() bool { return cfg.reverseBits }

// InitCommands returns the extra commands sent during initialization.
func (cfg *Config) InitCommands() []string { return cfg.initCommands }

// Capture returns the writer that receives a copy of all page data, or nil.
func (cfg *Config) Capture() io.Writer { return cfg.capture }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Session.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithClass selects the modem command class.
func WithClass(c Class) Option {
	return optFunc(func(cfg *Config) error {
		if c < Class1 || c > Class20 {
			return fmt.Errorf("fax: unknown modem class %d", c)
		}
		cfg.class = c

		return nil
	})
}

// WithLocalCapability sets the local capability vector. Out-of-range fields
// are clamped by NewConfig, with a warning for each.
func WithLocalCapability(c t30.Capability) Option {
	return optFunc(func(cfg *Config) error {
		cfg.local = c
		return nil
	})
}

// WithLocalID sets the station identification sent as CSI/TSI/CIG. It is
// reduced to digits, '+' and spaces and cut to t30.IdentLen characters.
func WithLocalID(id string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.localID = t30.NormalizeIdent(id)
		return nil
	})
}

// WithHeader sets the page header template. The placeholders {page},
// {pages}, {id} and {date} are substituted per page; an empty template
// disables the header.
func WithHeader(text string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.header = text
		return nil
	})
}

// WithPageRetries sets how often a page answered RTN or PIN is resent
// before the bit rate falls back.
func WithPageRetries(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxPageRetries {
			return fmt.Errorf("fax: page retries %d out of range [0, %d]", n, MaxPageRetries)
		}
		cfg.pageRetries = n

		return nil
	})
}

// WithMaxPageErrors sets the number of bad lines a received page may have
// and still be confirmed with MCF.
func WithMaxPageErrors(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxMaxPageErrors {
			return fmt.Errorf("fax: max page errors %d out of range [0, %d]", n, MaxMaxPageErrors)
		}
		cfg.maxPageErrors = n

		return nil
	})
}

// WithT1Timeout sets the T.30 T1 timer.
func WithT1Timeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinT1Timeout || d > MaxT1Timeout {
			return fmt.Errorf("fax: T1 timeout %v out of range [%v, %v]", d, MinT1Timeout, MaxT1Timeout)
		}
		cfg.t1Timeout = d

		return nil
	})
}

// WithT2Timeout sets the T.30 T2 timer.
func WithT2Timeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinT2Timeout || d > MaxT2Timeout {
			return fmt.Errorf("fax: T2 timeout %v out of range [%v, %v]", d, MinT2Timeout, MaxT2Timeout)
		}
		cfg.t2Timeout = d

		return nil
	})
}

// WithT4Timeout sets the T.30 T4 timer.
func WithT4Timeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinT4Timeout || d > MaxT4Timeout {
			return fmt.Errorf("fax: T4 timeout %v out of range [%v, %v]", d, MinT4Timeout, MaxT4Timeout)
		}
		cfg.t4Timeout = d

		return nil
	})
}

// WithDialTimeout sets how long dialing may take.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinCallTimeout || d > MaxCallTimeout {
			return fmt.Errorf("fax: dial timeout %v out of range [%v, %v]", d, MinCallTimeout, MaxCallTimeout)
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithAnswerTimeout sets how long answering may take.
func WithAnswerTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinCallTimeout || d > MaxCallTimeout {
			return fmt.Errorf("fax: answer timeout %v out of range [%v, %v]", d, MinCallTimeout, MaxCallTimeout)
		}
		cfg.answerTimeout = d

		return nil
	})
}

// WithPageTimeout bounds the transfer of a single page.
func WithPageTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPageTimeout || d > MaxPageTimeout {
			return fmt.Errorf("fax: page timeout %v out of range [%v, %v]", d, MinPageTimeout, MaxPageTimeout)
		}
		cfg.pageTimeout = d

		return nil
	})
}

// WithReverseBits sets whether page data bytes are bit reversed between
// modem and codec. Class 1 modems and Class 2 modems in the default +FBOR=0
// mode send the first bit of the T.4 stream in the least significant bit,
// which needs reversal (the default).
func WithReverseBits(reverse bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.reverseBits = reverse
		return nil
	})
}

// WithInitCommands adds commands sent after the class is selected, e.g.
// "+FRBC=0" or "S7=60". The "AT" prefix is added automatically.
func WithInitCommands(cmds ...string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.initCommands = append(cfg.initCommands, cmds...)
		return nil
	})
}

// WithCapture copies all page data to w, in the bit order of the T.4
// codec.
func WithCapture(w io.Writer) Option {
	return optFunc(func(cfg *Config) error {
		cfg.capture = w
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("fax: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
