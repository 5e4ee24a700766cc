// Package notify publishes the outcome of fax calls to an MQTT broker.
//
// Every finished call is published as one JSON message:
//
//	{
//	  "time": "2024-03-05T14:07:00Z",
//	  "station": "+1 555 0199",
//	  "direction": "send",
//	  "number": "5551234",
//	  "result": "success",
//	  "pages": 2,
//	  "remote_id": "+1 555 0100",
//	  "session": [1, 3, 0, 2, 0, 0, 0, 0]
//	}
//
// A failed call carries the error text in "error".
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/arloliu/go-fax/fax"
	"github.com/arloliu/go-fax/internal/pool"
	"github.com/arloliu/go-fax/logger"
	"github.com/arloliu/go-fax/t30"
)

var (
	// ErrNotConnected is returned by Publish before Connect succeeded.
	ErrNotConnected = errors.New("notify: not connected")
	// ErrPublishTimeout reports a broker that didn't acknowledge in time.
	ErrPublishTimeout = errors.New("notify: publish timeout")
)

// Direction tells whether the local station sent or received.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
	DirectionPoll    Direction = "poll"
)

// Message is the JSON document published for a call.
type Message struct {
	Time      time.Time       `json:"time"`
	Station   string          `json:"station,omitempty"`
	Direction Direction       `json:"direction"`
	Number    string          `json:"number,omitempty"`
	Result    string          `json:"result"`
	Error     string          `json:"error,omitempty"`
	Pages     int             `json:"pages"`
	RemoteID  string          `json:"remote_id,omitempty"`
	Session   *t30.Capability `json:"session,omitempty"`
}

// NewMessage builds the message for report.
func NewMessage(dir Direction, number string, report *fax.Report) *Message {
	msg := &Message{
		Time:      time.Now().UTC(),
		Direction: dir,
		Number:    number,
		Result:    report.Result.String(),
		Pages:     report.Pages,
		RemoteID:  report.RemoteID,
	}
	if report.Err != nil {
		msg.Error = report.Err.Error()
	}
	if report.Session != (t30.Capability{}) {
		session := report.Session
		msg.Session = &session
	}

	return msg
}

// Publisher sends call reports to an MQTT topic.
type Publisher struct {
	client MQTT.Client
	cfg    *Config
	logger logger.Logger
}

// New returns a Publisher for the broker set with WithBroker. Call Connect
// before publishing.
func New(opts ...Option) (*Publisher, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if cfg.broker == "" {
		return nil, errors.New("notify: broker URL is required")
	}

	p := &Publisher{cfg: cfg, logger: cfg.GetLogger().With("component", "notify")}

	mqttOpts := MQTT.NewClientOptions()
	mqttOpts.AddBroker(cfg.broker)
	mqttOpts.SetClientID(cfg.clientID)
	mqttOpts.SetAutoReconnect(true)
	mqttOpts.SetConnectRetry(false)
	mqttOpts.SetConnectTimeout(cfg.timeout)
	if cfg.username != "" {
		mqttOpts.SetUsername(cfg.username)
		mqttOpts.SetPassword(cfg.password)
	}
	mqttOpts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		p.logger.Warn("broker connection lost", "broker", cfg.broker, "error", err)
	})
	mqttOpts.SetOnConnectHandler(func(_ MQTT.Client) {
		p.logger.Info("connected to broker", "broker", cfg.broker)
	})

	p.client = MQTT.NewClient(mqttOpts)

	return p, nil
}

// NewWithClient returns a Publisher on an existing client.
func NewWithClient(client MQTT.Client, opts ...Option) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("notify: client must not be nil")
	}
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		client: client,
		cfg:    cfg,
		logger: cfg.GetLogger().With("component", "notify"),
	}, nil
}

// Config returns the publisher configuration.
func (p *Publisher) Config() *Config {
	return p.cfg
}

// Connect connects to the broker.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}

	return p.wait(ctx, p.client.Connect(), "connect")
}

// Publish sends report on the configured topic. The fax call is already
// over, so the publication errors are only reported to the caller.
func (p *Publisher) Publish(ctx context.Context, dir Direction, number string, report *fax.Report) error {
	if report == nil {
		return errors.New("notify: nil report")
	}
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	msg := NewMessage(dir, number, report)
	msg.Station = p.cfg.station
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode report: %w", err)
	}

	topic := p.cfg.Topic(report.Result)
	p.logger.Debug("publish call report", "topic", topic, "result", msg.Result, "pages", msg.Pages)

	return p.wait(ctx, p.client.Publish(topic, p.cfg.qos, p.cfg.retained, payload), "publish")
}

// Close disconnects from the broker, waiting up to 250 ms for pending work.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func (p *Publisher) wait(ctx context.Context, token MQTT.Token, op string) error {
	timer := pool.GetTimer(p.cfg.timeout)
	defer pool.PutTimer(timer)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %s after %v", ErrPublishTimeout, op, p.cfg.timeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: %s: %w", op, err)
	}

	return nil
}
