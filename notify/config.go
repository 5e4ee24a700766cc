package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-fax/fax"
	"github.com/arloliu/go-fax/logger"
)

// Default values.
const (
	DefaultClientID = "go-fax"
	DefaultTopic    = "fax/calls"
	DefaultQoS      = 1
	DefaultTimeout  = 10 * time.Second
	MinTimeout      = 10 * time.Millisecond
	MaxTimeout      = 5 * time.Minute
)

// Config holds the settings of a Publisher.
type Config struct {
	broker       string
	clientID     string
	username     string
	password     string
	topic        string
	resultTopics bool
	station      string
	qos          byte
	retained     bool
	timeout      time.Duration

	logger logger.Logger
}

// NewConfig returns the default configuration with opts applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		clientID: DefaultClientID,
		topic:    DefaultTopic,
		qos:      DefaultQoS,
		timeout:  DefaultTimeout,
		logger:   logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// Broker returns the broker URL.
func (cfg *Config) Broker() string { return cfg.broker }

// ClientID returns the MQTT client identifier.
func (cfg *Config) ClientID() string { return cfg.clientID }

// QoS returns the quality of service level of published reports.
func (cfg *Config) QoS() byte { return cfg.qos }

// Retained reports whether published reports are retained by the broker.
func (cfg *Config) Retained() bool { return cfg.retained }

// Timeout returns how long connect and publish wait for the broker.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// Topic returns the topic a call with result r is published on. With
// result topics enabled the result name is appended as a sub-topic, e.g.
// "fax/calls/no_response".
func (cfg *Config) Topic(r fax.Result) string {
	if !cfg.resultTopics {
		return cfg.topic
	}

	return cfg.topic + "/" + strings.ReplaceAll(r.String(), " ", "_")
}

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Publisher.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBroker sets the broker URL, e.g. "tcp://localhost:1883".
func WithBroker(url string) Option {
	return optFunc(func(cfg *Config) error {
		if url == "" {
			return errors.New("notify: broker URL must not be empty")
		}
		cfg.broker = url

		return nil
	})
}

// WithClientID sets the MQTT client identifier.
func WithClientID(id string) Option {
	return optFunc(func(cfg *Config) error {
		if id == "" {
			return errors.New("notify: client ID must not be empty")
		}
		cfg.clientID = id

		return nil
	})
}

// WithCredentials sets the user name and password sent on connect.
func WithCredentials(username, password string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.username = username
		cfg.password = password

		return nil
	})
}

// WithTopic sets the topic reports are published on. Wildcards are not
// allowed.
func WithTopic(topic string) Option {
	return optFunc(func(cfg *Config) error {
		if topic == "" || strings.ContainsAny(topic, "#+") {
			return fmt.Errorf("notify: invalid topic %q", topic)
		}
		cfg.topic = strings.TrimSuffix(topic, "/")

		return nil
	})
}

// WithResultTopics publishes each report on a sub-topic named after the
// call result.
func WithResultTopics(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.resultTopics = enabled
		return nil
	})
}

// WithStation sets the station name carried in every report.
func WithStation(name string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.station = name
		return nil
	})
}

// WithQoS sets the quality of service level, 0 to 2.
func WithQoS(qos int) Option {
	return optFunc(func(cfg *Config) error {
		if qos < 0 || qos > 2 {
			return fmt.Errorf("notify: QoS %d out of range [0, 2]", qos)
		}
		cfg.qos = byte(qos)

		return nil
	})
}

// WithRetained asks the broker to retain the last report.
func WithRetained(retained bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.retained = retained
		return nil
	})
}

// WithTimeout sets how long connect and publish wait for the broker.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("notify: timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("notify: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
