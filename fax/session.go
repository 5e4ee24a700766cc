package fax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-fax/logger"
	"github.com/arloliu/go-fax/modem"
	"github.com/arloliu/go-fax/page"
)

const (
	// commandTimeout bounds plain configuration commands.
	commandTimeout = 5 * time.Second
	// ringPoll is how long WaitRing waits per read.
	ringPoll = 10 * time.Second
	// drainQuiet is the silence that ends discarding stale input on Init.
	drainQuiet = 100 * time.Millisecond
)

// Session runs fax calls on one modem, one call at a time.
type Session struct {
	line    Line
	cfg     *Config
	logger  logger.Logger
	metrics *SessionMetrics
	xfer    *PageTransfer
}

// NewSession returns a Session on modem m.
func NewSession(m *modem.Modem, opts ...Option) (*Session, error) {
	return NewLineSession(NewModemLine(m), opts...)
}

// NewLineSession returns a Session on line.
func NewLineSession(line Line, opts ...Option) (*Session, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		line:    line,
		cfg:     cfg,
		logger:  cfg.GetLogger().With("component", "fax", "class", cfg.Class().String()),
		metrics: newSessionMetrics(),
		xfer:    NewPageTransfer(cfg),
	}, nil
}

// Config returns the session configuration.
func (s *Session) Config() *Config {
	return s.cfg
}

// Metrics returns the session metrics.
func (s *Session) Metrics() *SessionMetrics {
	return s.metrics
}

// command sends cmd and requires OK.
func (s *Session) command(ctx context.Context, cmd string) error {
	resp, err := s.line.Command(ctx, cmd, commandTimeout)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: AT%s answered %s", ErrModem, cmd, resp)
	}

	return nil
}

// Init prepares the modem for a fax call: result codes on, echo off, the
// fax class selected and, for Class 2/2.0, the local ID, capabilities and
// bit order set. Send, Poll and Receive call it.
func (s *Session) Init(ctx context.Context) error {
	n, err := s.line.Drain(ctx, drainQuiet)
	if err != nil {
		return fmt.Errorf("fax: init: %w", err)
	}
	if n > 0 {
		s.logger.Debug("stale modem input discarded", "bytes", n)
	}

	cmds := []string{"E0", "V1", "Q0"}
	if s.cfg.Class() == Class1 {
		cmds = append(cmds, "+FCLASS=1")
	} else {
		cmds = append(cmds, commandsFor(s.cfg.Class()).initCommands(s.cfg)...)
	}
	cmds = append(cmds, s.cfg.InitCommands()...)

	for _, cmd := range cmds {
		if err := s.command(ctx, cmd); err != nil {
			return fmt.Errorf("fax: init: %w", err)
		}
	}

	return nil
}

func (s *Session) newCall(caller bool) *call {
	return &call{
		line:    s.line,
		cfg:     s.cfg,
		logger:  s.logger,
		metrics: s.metrics,
		xfer:    s.xfer,
		caller:  caller,
		started: time.Now(),
	}
}

// phaseAError maps the result code of a dial or answer command.
func phaseAError(cmd string, resp *modem.Response) error {
	switch resp.Code {
	case modem.CodeBusy:
		return ErrBusy
	case modem.CodeNoDialtone:
		return ErrNoDialtone
	case modem.CodeNoAnswer, modem.CodeNoCarrier, modem.CodeTimeout:
		return fmt.Errorf("%w: AT%s answered %s", ErrNoResponse, cmd, resp)
	default:
		return fmt.Errorf("%w: AT%s answered %s", ErrModem, cmd, resp)
	}
}

// Send dials number and transmits the document src.
func (s *Session) Send(ctx context.Context, number string, src page.Source) (*Report, error) {
	if src == nil {
		return nil, errors.New("fax: send without a document")
	}

	c := s.newCall(true)
	c.src = src

	return s.run(ctx, c, "D"+number, s.cfg.DialTimeout())
}

// Poll dials number and receives the documents the remote station holds
// for polling into sink. It needs a Class 1 modem.
func (s *Session) Poll(ctx context.Context, number string, sink page.Sink) (*Report, error) {
	if s.cfg.Class() != Class1 {
		return nil, fmt.Errorf("fax: polling needs a Class 1 modem, have class %s", s.cfg.Class())
	}

	c := s.newCall(true)
	c.sink = sink

	return s.run(ctx, c, "D"+number, s.cfg.DialTimeout())
}

// Receive answers an incoming call and stores the received pages in sink.
// Call WaitRing first to wait for the call.
func (s *Session) Receive(ctx context.Context, sink page.Sink) (*Report, error) {
	c := s.newCall(false)
	c.sink = sink

	return s.run(ctx, c, "A", s.cfg.AnswerTimeout())
}

func (s *Session) run(ctx context.Context, c *call, phaseA string, timeout time.Duration) (*Report, error) {
	s.metrics.incCallCount()
	s.logger.Info("call start", "command", "AT"+phaseA, "caller", c.caller)

	err := s.Init(ctx)
	if err == nil {
		err = s.connect(ctx, c, phaseA, timeout)
	}
	s.hangup(ctx)

	report := newReport(err)
	report.Pages = c.pages
	report.RemoteID = c.remoteID
	report.Session = c.session

	if err != nil {
		s.metrics.incCallFailCount()
		s.logger.Warn("call failed", "result", report.Result, "pages", report.Pages,
			"remote", report.RemoteID, "error", err)
	} else {
		s.logger.Info("call done", "result", report.Result, "pages", report.Pages,
			"remote", report.RemoteID, "duration", time.Since(c.started).Round(time.Second))
	}

	return report, err
}

// connect runs Phase A and hands the call to the class driver.
func (s *Session) connect(ctx context.Context, c *call, phaseA string, timeout time.Duration) error {
	resp, err := s.line.Command(ctx, phaseA, timeout)
	if err != nil {
		return err
	}

	if s.cfg.Class() == Class1 {
		if resp.Code != modem.CodeConnect {
			return phaseAError(phaseA, resp)
		}

		return newClass1Driver(c).run(ctx)
	}

	d := newClass2Driver(c)
	if !d.cmds.connected(resp) {
		if err := d.absorb(resp); err != nil {
			return err
		}

		return phaseAError(phaseA, resp)
	}
	if c.caller {
		return d.send(ctx, resp)
	}

	return d.receive(ctx, resp)
}

// hangup puts the modem on hook. Failures are logged only; the call
// outcome is already decided.
func (s *Session) hangup(ctx context.Context) {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	resp, err := s.line.Command(ctx, "H", commandTimeout)
	if err != nil {
		s.logger.Warn("hangup failed", "error", err)
		return
	}
	if !resp.OK() {
		s.logger.Debug("hangup answered", "response", resp.String())
	}
}

// WaitRing waits until the modem has reported rings RING lines.
func (s *Session) WaitRing(ctx context.Context, rings int) error {
	count := 0
	for count < max(rings, 1) {
		line, err := s.line.ReadLine(ctx, ringPoll)
		if errors.Is(err, modem.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		if line == "RING" {
			count++
			s.logger.Debug("ring", "count", count)
		}
	}

	return nil
}
