package fax

import (
	"fmt"

	"github.com/arloliu/go-fax/logger"
	"github.com/arloliu/go-fax/t30"
)

// State is a state of the Class 1 T.30 procedure.
type State int

const (
	// StateWaitDIS waits for the remote's DIS (or DTC) after the call is up.
	StateWaitDIS State = iota
	// StateDecideDirection picks sending or polling from the remote's
	// capabilities.
	StateDecideDirection
	// StateSendDCS sends TSI and DCS.
	StateSendDCS
	// StateSendTraining sends TCF and waits for CFR or FTT.
	StateSendTraining
	// StateSendPage sends the page data.
	StateSendPage
	// StatePostPage sends the post-page message and waits for the response.
	StatePostPage
	// StateInterruptIgnored continues after a procedure interrupt request.
	StateInterruptIgnored
	// StateWaitCommand waits for a command from the transmitter, announcing
	// CSI/DIS (or CIG/DTC) while none has arrived yet.
	StateWaitCommand
	// StateGotCommand sends the response to a command.
	StateGotCommand
	// StateReceiveTraining receives TCF.
	StateReceiveTraining
	// StateReceiveData receives the page data.
	StateReceiveData
	// StateTimeout gives up after exhausted retries.
	StateTimeout
	// StateDisconnect sends DCN.
	StateDisconnect
	// StateDone ends the call.
	StateDone
)

var stateNames = [...]string{
	StateWaitDIS:          "WaitDIS",
	StateDecideDirection:  "DecideDirection",
	StateSendDCS:          "SendDCS",
	StateSendTraining:     "SendTraining",
	StateSendPage:         "SendPage",
	StatePostPage:         "PostPage",
	StateInterruptIgnored: "InterruptIgnored",
	StateWaitCommand:      "WaitCommand",
	StateGotCommand:       "GotCommand",
	StateReceiveTraining:  "ReceiveTraining",
	StateReceiveData:      "ReceiveData",
	StateTimeout:          "Timeout",
	StateDisconnect:       "Disconnect",
	StateDone:             "Done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}

	return stateNames[s]
}

// EventKind is the outcome of an Action.
type EventKind int

const (
	// EventNone continues a state that needs no I/O.
	EventNone EventKind = iota
	// EventFrame carries the final frame of a received frame sequence.
	EventFrame
	// EventTimeout reports that no frame arrived in time.
	EventTimeout
	// EventT1 reports that T1 expired without identifying the remote.
	EventT1
	// EventSent reports that the frames of the action were sent.
	EventSent
	// EventPageSent reports a page sent; PPM holds the post-page message.
	EventPageSent
	// EventTraining reports the TCF check result in OK.
	EventTraining
	// EventPage reports a received page; Page holds the result.
	EventPage
	// EventError reports a failed action.
	EventError
)

// Event is the input of one machine step.
type Event struct {
	Kind  EventKind
	Frame *t30.Frame
	PPM   t30.FrameType
	OK    bool
	Page  PageResult
	Err   error
}

// ActionKind is the I/O the driver performs next.
type ActionKind int

const (
	// ActionNone: step again with EventNone.
	ActionNone ActionKind = iota
	// ActionWaitDIS: receive frames until DIS, DTC or DCN, at most T1.
	ActionWaitDIS
	// ActionSendDCS: send TSI and DCS.
	ActionSendDCS
	// ActionSendTraining: send TCF, then receive the response (T4).
	ActionSendTraining
	// ActionSendPage: send the current page, advancing first if NextPage.
	ActionSendPage
	// ActionSendPPM: send Frame, then receive the response (T4).
	ActionSendPPM
	// ActionAnnounce: send CSI/DIS (or CIG/DTC when polling) until a
	// command arrives, at most T1.
	ActionAnnounce
	// ActionWaitCommand: receive a command (T2).
	ActionWaitCommand
	// ActionSendResponse: send Frame.
	ActionSendResponse
	// ActionReceiveTraining: receive and check TCF.
	ActionReceiveTraining
	// ActionReceivePage: receive page data.
	ActionReceivePage
	// ActionSendDCN: send DCN.
	ActionSendDCN
	// ActionHangup: the procedure is over; Err holds its outcome.
	ActionHangup
)

var actionNames = [...]string{
	ActionNone:            "None",
	ActionWaitDIS:         "WaitDIS",
	ActionSendDCS:         "SendDCS",
	ActionSendTraining:    "SendTraining",
	ActionSendPage:        "SendPage",
	ActionSendPPM:         "SendPPM",
	ActionAnnounce:        "Announce",
	ActionWaitCommand:     "WaitCommand",
	ActionSendResponse:    "SendResponse",
	ActionReceiveTraining: "ReceiveTraining",
	ActionReceivePage:     "ReceivePage",
	ActionSendDCN:         "SendDCN",
	ActionHangup:          "Hangup",
}

func (k ActionKind) String() string {
	if k < 0 || int(k) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(k))
	}

	return actionNames[k]
}

// Action is the output of one machine step.
type Action struct {
	Kind     ActionKind
	Frame    *t30.Frame
	NextPage bool
	Err      error
}

// Retry limits of the Class 1 procedure.
const (
	maxDCSTries        = 3
	maxPPMTries        = 3
	maxCommandTimeouts = 3
	maxLowestTrainings = 2
	maxPageReceives    = 3
)

// class1Machine holds the T.30 procedure state of one Class 1 call. step is
// free of I/O; the driver performs the returned actions and feeds their
// outcome back as events.
type class1Machine struct {
	logger      logger.Logger
	pageRetries int
	// brLimit caps the session bit rate after a fallback, -1 when unset.
	brLimit int

	local   t30.Capability
	remote  t30.Capability
	session t30.Capability

	hasDocument bool
	polling     bool
	announce    bool
	// capsFrame is the last DIS or DTC received.
	capsFrame *t30.Frame

	dcsTries       int
	ppmTries       int
	pageTries      int
	lowestTrains   int
	cmdTimeouts    int
	pageReceives   int
	advance        bool
	ppm            t30.FrameType
	lastResponse   *t30.Frame
	afterResponse  State
	lastPageGood   bool
	eopAcked       bool
	pagesSent      int
	pagesReceived  int
	pageRetryCount int
	fallbacks      int
	trainFailures  int

	err error
}

func newClass1Machine(l logger.Logger, local t30.Capability, pageRetries int, hasDocument bool) *class1Machine {
	return &class1Machine{
		logger:      l,
		pageRetries: pageRetries,
		brLimit:     -1,
		local:       local,
		hasDocument: hasDocument,
	}
}

// start returns the initial state and action: callers wait for the
// answering station's DIS, answering stations announce themselves.
func (m *class1Machine) start(caller bool) (State, Action) {
	if caller {
		return m.goTo(StateWaitDIS)
	}
	m.announce = true

	return m.goTo(StateWaitCommand)
}

// fail ends the procedure with err, sending DCN first.
func (m *class1Machine) fail(err error) (State, Action) {
	if m.err == nil {
		m.err = err
	}
	m.logger.Warn("fax procedure failed", "error", err)

	return StateDisconnect, Action{Kind: ActionSendDCN}
}

// hangup ends the procedure without sending DCN.
func (m *class1Machine) hangup(err error) (State, Action) {
	if m.err == nil {
		m.err = err
	}

	return StateDone, Action{Kind: ActionHangup, Err: m.err}
}

func (m *class1Machine) respond(f *t30.Frame, next State) (State, Action) {
	m.lastResponse = f
	m.afterResponse = next

	return StateGotCommand, Action{Kind: ActionSendResponse, Frame: f}
}

// actionFor returns the action that enters state s. A pending page advance
// is handed out once, with the first DCS or page send.
func (m *class1Machine) actionFor(s State) Action {
	switch s {
	case StateWaitDIS:
		return Action{Kind: ActionWaitDIS}
	case StateSendDCS:
		a := Action{Kind: ActionSendDCS, NextPage: m.advance}
		m.advance = false

		return a
	case StateSendTraining:
		return Action{Kind: ActionSendTraining}
	case StateSendPage:
		a := Action{Kind: ActionSendPage, NextPage: m.advance}
		m.advance = false

		return a
	case StatePostPage:
		return Action{Kind: ActionSendPPM, Frame: &t30.Frame{Type: m.ppm, Final: true}}
	case StateWaitCommand:
		if m.announce {
			return Action{Kind: ActionAnnounce}
		}

		return Action{Kind: ActionWaitCommand}
	case StateReceiveTraining:
		return Action{Kind: ActionReceiveTraining}
	case StateReceiveData:
		return Action{Kind: ActionReceivePage}
	case StateDisconnect:
		return Action{Kind: ActionSendDCN}
	case StateDone:
		return Action{Kind: ActionHangup, Err: m.err}
	default:
		return Action{Kind: ActionNone}
	}
}

func (m *class1Machine) goTo(s State) (State, Action) {
	return s, m.actionFor(s)
}

// step advances the procedure from state s by event ev.
func (m *class1Machine) step(s State, ev Event) (State, Action) {
	if ev.Kind == EventError {
		if s == StateDisconnect {
			m.logger.Debug("DCN not sent", "error", ev.Err)
			return m.hangup(nil)
		}

		return m.fail(ev.Err)
	}

	switch s {
	case StateWaitDIS:
		return m.stepWaitDIS(ev)
	case StateDecideDirection:
		return m.decideDirection()
	case StateSendDCS:
		return m.goTo(StateSendTraining)
	case StateSendTraining:
		return m.stepSendTraining(ev)
	case StateSendPage:
		if ev.Kind != EventPageSent || !ev.PPM.IsPostPage() {
			return m.fail(fmt.Errorf("%w: page send ended with %v", ErrProtocol, ev.Kind))
		}
		m.ppm = ev.PPM
		m.ppmTries = 0

		return m.goTo(StatePostPage)
	case StatePostPage:
		return m.stepPostPage(ev)
	case StateInterruptIgnored:
		m.logger.Info("procedure interrupt requested by remote, ignored")
		return m.goTo(StateSendDCS)
	case StateWaitCommand:
		return m.stepWaitCommand(ev)
	case StateGotCommand:
		return m.goTo(m.afterResponse)
	case StateReceiveTraining:
		return m.stepReceiveTraining(ev)
	case StateReceiveData:
		return m.stepReceiveData(ev)
	case StateTimeout:
		return m.fail(ErrTimeout)
	case StateDisconnect:
		return m.hangup(nil)
	default:
		return m.hangup(nil)
	}
}

func (m *class1Machine) stepWaitDIS(ev Event) (State, Action) {
	switch ev.Kind {
	case EventT1, EventTimeout:
		return m.goTo(StateTimeout)
	case EventFrame:
	default:
		return m.fail(fmt.Errorf("%w: waiting for DIS got %v", ErrProtocol, ev.Kind))
	}

	switch ev.Frame.Type {
	case t30.DIS, t30.DTC:
		m.setRemote(ev.Frame)

		return StateDecideDirection, Action{Kind: ActionNone}
	case t30.DCN:
		return m.hangup(ErrRemoteDisconnect)
	default:
		m.logger.Debug("ignoring frame while waiting for DIS", "frame", ev.Frame)
		return m.goTo(StateWaitDIS)
	}
}

// setRemote takes the remote capabilities from a DIS or DTC and negotiates
// the session.
func (m *class1Machine) setRemote(f *t30.Frame) {
	remote, err := t30.FromFrame(f.FIF, true)
	if err != nil {
		m.logger.Warn("remote capabilities", "frame", f, "error", err)
	}
	m.remote = remote
	m.capsFrame = f
	m.negotiate()
}

// setLocal changes the local capabilities, e.g. for a page of another
// format, and renegotiates if the remote is known.
func (m *class1Machine) setLocal(local t30.Capability) {
	m.local = local
	if m.capsFrame != nil {
		m.negotiate()
	}
}

func (m *class1Machine) negotiate() {
	session, warns := t30.Negotiate(m.local, m.remote)
	for _, w := range warns {
		m.logger.Warn("negotiation", "warning", w)
	}
	if m.brLimit >= 0 && t30.BitRate(session[t30.BR]) > t30.BitRate(m.brLimit) {
		session[t30.BR] = m.brLimit
	}
	m.session = session
	m.logger.Info("session negotiated", "local", m.local.String(), "remote", m.remote.String(),
		"session", session.Describe())
}

func (m *class1Machine) decideDirection() (State, Action) {
	f := m.capsFrame
	switch {
	case f == nil:
		return m.fail(fmt.Errorf("%w: no remote capabilities", ErrProtocol))
	case m.hasDocument && (f.Type == t30.DTC || t30.CanReceive(f.FIF)):
		m.polling = false
		return m.goTo(StateSendDCS)
	case !m.hasDocument && f.Type == t30.DIS && t30.CanTransmit(f.FIF):
		m.polling = true
		m.announce = true
		return m.goTo(StateWaitCommand)
	default:
		return m.fail(ErrNoDirection)
	}
}

func (m *class1Machine) stepSendTraining(ev Event) (State, Action) {
	switch ev.Kind {
	case EventTimeout:
		return m.retryDCS("no response to DCS")
	case EventFrame:
	default:
		return m.fail(fmt.Errorf("%w: training ended with %v", ErrProtocol, ev.Kind))
	}

	switch ev.Frame.Type {
	case t30.CFR:
		m.dcsTries = 0
		m.lowestTrains = 0
		return m.goTo(StateSendPage)
	case t30.FTT:
		m.trainFailures++
		if br := t30.Fallback(m.session[t30.BR]); br >= 0 {
			m.fallBack(br)
			return m.goTo(StateSendDCS)
		}
		m.lowestTrains++
		if m.lowestTrains > maxLowestTrainings {
			return m.fail(ErrLowestSpeed)
		}

		return m.goTo(StateSendDCS)
	case t30.DIS, t30.DTC:
		// the remote didn't hear our DCS and repeats its capabilities
		m.setRemote(ev.Frame)

		return m.retryDCS("remote repeated " + ev.Frame.Type.String())
	case t30.CRP:
		return m.retryDCS("remote requested repeat")
	case t30.DCN:
		return m.hangup(ErrRemoteDisconnect)
	default:
		if m.dcsTries+1 >= maxDCSTries {
			return m.fail(fmt.Errorf("%w: %v answering DCS", ErrUnexpectedFrame, ev.Frame.Type))
		}

		return m.retryDCS("unexpected " + ev.Frame.Type.String())
	}
}

func (m *class1Machine) retryDCS(reason string) (State, Action) {
	m.dcsTries++
	if m.dcsTries >= maxDCSTries {
		m.logger.Warn("DCS not answered", "tries", m.dcsTries, "reason", reason)
		return m.goTo(StateTimeout)
	}
	m.logger.Debug("resending DCS", "try", m.dcsTries+1, "reason", reason)

	return m.goTo(StateSendDCS)
}

func (m *class1Machine) fallBack(br int) {
	m.logger.Info("falling back", "from", t30.BitRate(m.session[t30.BR]), "to", t30.BitRate(br))
	m.session[t30.BR] = br
	m.brLimit = br
	m.fallbacks++
}

func (m *class1Machine) stepPostPage(ev Event) (State, Action) {
	switch ev.Kind {
	case EventTimeout:
		return m.retryPPM("no response")
	case EventFrame:
	default:
		return m.fail(fmt.Errorf("%w: post-page ended with %v", ErrProtocol, ev.Kind))
	}

	switch ev.Frame.Type {
	case t30.MCF, t30.RTP, t30.PIP:
		m.pagesSent++
		m.pageTries = 0
		m.advance = true

		switch {
		case m.ppm == t30.EOP:
			return m.goTo(StateDisconnect)
		case m.ppm == t30.EOM:
			return m.goTo(StateWaitDIS)
		case ev.Frame.Type == t30.PIP:
			return m.goTo(StateInterruptIgnored)
		case ev.Frame.Type == t30.RTP:
			return m.goTo(StateSendDCS)
		default:
			return m.goTo(StateSendPage)
		}
	case t30.RTN, t30.PIN:
		m.advance = false
		m.pageTries++
		m.pageRetryCount++
		if m.pageTries > m.pageRetries {
			br := t30.Fallback(m.session[t30.BR])
			if br < 0 {
				return m.fail(ErrLowestSpeed)
			}
			m.fallBack(br)
			m.pageTries = 0
		}
		if ev.Frame.Type == t30.PIN {
			return m.goTo(StateInterruptIgnored)
		}

		return m.goTo(StateSendDCS)
	case t30.CRP:
		return m.retryPPM("remote requested repeat")
	case t30.DCN:
		return m.hangup(ErrRemoteDisconnect)
	default:
		if m.ppmTries+1 >= maxPPMTries {
			return m.fail(fmt.Errorf("%w: %v answering %v", ErrUnexpectedFrame, ev.Frame.Type, m.ppm))
		}

		return m.retryPPM("unexpected " + ev.Frame.Type.String())
	}
}

func (m *class1Machine) retryPPM(reason string) (State, Action) {
	m.ppmTries++
	if m.ppmTries >= maxPPMTries {
		m.logger.Warn("post-page message not answered", "ppm", m.ppm, "tries", m.ppmTries, "reason", reason)
		return m.goTo(StateTimeout)
	}
	m.logger.Debug("resending post-page message", "ppm", m.ppm, "try", m.ppmTries+1, "reason", reason)

	return m.goTo(StatePostPage)
}

func (m *class1Machine) stepWaitCommand(ev Event) (State, Action) {
	switch ev.Kind {
	case EventT1:
		return m.goTo(StateTimeout)
	case EventTimeout:
		if m.eopAcked {
			return m.hangup(nil)
		}
		m.cmdTimeouts++
		if m.cmdTimeouts >= maxCommandTimeouts {
			return m.goTo(StateTimeout)
		}
		if m.lastResponse != nil {
			return m.respond(m.lastResponse, StateWaitCommand)
		}

		return m.goTo(StateWaitCommand)
	case EventFrame:
	default:
		return m.fail(fmt.Errorf("%w: waiting for command got %v", ErrProtocol, ev.Kind))
	}
	m.cmdTimeouts = 0
	m.announce = false

	f := ev.Frame
	switch ft := f.Type.Plain(); ft {
	case t30.DCS:
		session, err := t30.FromFrame(f.FIF, false)
		if err != nil {
			m.logger.Warn("session capabilities", "frame", f, "error", err)
		}
		m.session = session
		m.eopAcked = false
		m.logger.Info("session set by remote", "session", session.Describe())

		return m.goTo(StateReceiveTraining)
	case t30.MPS, t30.EOM, t30.EOP:
		resp := t30.RTN
		if m.lastPageGood {
			resp = t30.MCF
		}
		next := StateWaitCommand
		if m.lastPageGood {
			switch ft {
			case t30.MPS:
				m.pageReceives = 0
				next = StateReceiveData
			case t30.EOM:
				m.announce = true
			case t30.EOP:
				m.eopAcked = true
			}
		}

		return m.respond(&t30.Frame{Type: resp, Final: true}, next)
	case t30.DTC:
		if !m.hasDocument {
			return m.fail(fmt.Errorf("%w: polled without a document", ErrNoDirection))
		}
		m.setRemote(f)

		return StateDecideDirection, Action{Kind: ActionNone}
	case t30.DIS:
		if m.hasDocument {
			m.setRemote(f)
			return StateDecideDirection, Action{Kind: ActionNone}
		}
		m.logger.Debug("ignoring DIS while receiving")

		return m.goTo(StateWaitCommand)
	case t30.CRP:
		if m.lastResponse != nil {
			return m.respond(m.lastResponse, m.afterResponse)
		}

		return m.goTo(StateWaitCommand)
	case t30.DCN:
		if m.eopAcked {
			return m.hangup(nil)
		}

		return m.hangup(ErrRemoteDisconnect)
	default:
		m.logger.Debug("ignoring command", "frame", f)
		return m.goTo(StateWaitCommand)
	}
}

func (m *class1Machine) stepReceiveTraining(ev Event) (State, Action) {
	if ev.Kind != EventTraining {
		return m.fail(fmt.Errorf("%w: training receive ended with %v", ErrProtocol, ev.Kind))
	}
	if !ev.OK {
		m.trainFailures++
		return m.respond(&t30.Frame{Type: t30.FTT, Final: true}, StateWaitCommand)
	}
	m.pageReceives = 0

	return m.respond(&t30.Frame{Type: t30.CFR, Final: true}, StateReceiveData)
}

func (m *class1Machine) stepReceiveData(ev Event) (State, Action) {
	if ev.Kind != EventPage {
		return m.fail(fmt.Errorf("%w: page receive ended with %v", ErrProtocol, ev.Kind))
	}

	res := ev.Page
	if !res.Complete {
		m.pageReceives++
		if m.pageReceives < maxPageReceives {
			m.logger.Debug("page incomplete, receiving again", "try", m.pageReceives+1, "lines", res.Lines)
			return m.goTo(StateReceiveData)
		}
	}
	m.lastPageGood = res.Good
	if res.Good {
		m.pagesReceived++
	}

	return m.goTo(StateWaitCommand)
}
