package t30

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-fax/internal/util"
)

// FrameType identifies a T.30 control frame by its facsimile control field.
type FrameType uint8

const (
	FrameUnknown FrameType = iota
	DIS
	CSI
	NSF
	CFR
	FTT
	MCF
	RTN
	RTP
	PIN
	PIP
	DCS
	TSI
	NSS
	CRP
	DCN
	EOM
	MPS
	EOP
	PRIEOM
	PRIMPS
	PRIEOP
	DTC
	CIG
	NSC
)

// HDLC framing octets.
const (
	AddressByte     byte = 0xFF
	ControlNonFinal byte = 0x03
	ControlFinal    byte = 0x13

	// MaxFrameLen bounds a whole frame: address, control, FCF and FIF.
	MaxFrameLen = 256

	frameHeaderLen = 3
	// senderBit is the T.30 "X" bit, set in frames sent by the calling
	// station.
	senderBit byte = 0x01
)

var (
	ErrFrameTooShort  = errors.New("t30: frame too short")
	ErrFrameTooLong   = errors.New("t30: frame exceeds maximum length")
	ErrFrameBadHeader = errors.New("t30: bad HDLC address or control byte")
)

type frameInfo struct {
	name string
	fcf  byte
	// fixed frames carry their X bit as part of the code (DIS vs DTC).
	fixed bool
}

var frameInfos = map[FrameType]frameInfo{
	DIS:    {"DIS", 0x80, true},
	CSI:    {"CSI", 0x40, true},
	NSF:    {"NSF", 0x20, true},
	DTC:    {"DTC", 0x81, true},
	CIG:    {"CIG", 0x41, true},
	NSC:    {"NSC", 0x21, true},
	CFR:    {"CFR", 0x84, false},
	FTT:    {"FTT", 0x44, false},
	MCF:    {"MCF", 0x8C, false},
	RTN:    {"RTN", 0x4C, false},
	RTP:    {"RTP", 0xCC, false},
	PIN:    {"PIN", 0x2C, false},
	PIP:    {"PIP", 0xAC, false},
	DCS:    {"DCS", 0x82, false},
	TSI:    {"TSI", 0x42, false},
	NSS:    {"NSS", 0x22, false},
	CRP:    {"CRP", 0x1A, false},
	DCN:    {"DCN", 0xFA, false},
	EOM:    {"EOM", 0x8E, false},
	MPS:    {"MPS", 0x4E, false},
	EOP:    {"EOP", 0x2E, false},
	PRIEOM: {"PRI-EOM", 0x9E, false},
	PRIMPS: {"PRI-MPS", 0x5E, false},
	PRIEOP: {"PRI-EOP", 0x3E, false},
}

var (
	fixedFCF  = map[byte]FrameType{}
	maskedFCF = map[byte]FrameType{}
)

func init() {
	for ft, info := range frameInfos {
		if info.fixed {
			fixedFCF[info.fcf] = ft
		} else {
			maskedFCF[info.fcf] = ft
		}
	}
}

// String returns the T.30 mnemonic of the frame type.
func (ft FrameType) String() string {
	if info, ok := frameInfos[ft]; ok {
		return info.name
	}

	return "UNKNOWN"
}

// FCF returns the facsimile control field of the frame type with the X bit
// cleared, and false for FrameUnknown.
func (ft FrameType) FCF() (byte, bool) {
	info, ok := frameInfos[ft]
	return info.fcf, ok
}

// IsPostPage reports whether ft is a post-page message (MPS, EOM, EOP or a
// procedure-interrupt variant).
func (ft FrameType) IsPostPage() bool {
	switch ft {
	case MPS, EOM, EOP, PRIMPS, PRIEOM, PRIEOP:
		return true
	default:
		return false
	}
}

// Plain maps a procedure-interrupt post-page message to its plain form.
func (ft FrameType) Plain() FrameType {
	switch ft {
	case PRIMPS:
		return MPS
	case PRIEOM:
		return EOM
	case PRIEOP:
		return EOP
	default:
		return ft
	}
}

// HasCapabilities reports whether the FIF of ft is a capability field.
func (ft FrameType) HasCapabilities() bool {
	return ft == DIS || ft == DTC || ft == DCS
}

// HasIdent reports whether the FIF of ft is a station identification.
func (ft FrameType) HasIdent() bool {
	return ft == CSI || ft == TSI || ft == CIG
}

// LookupFCF returns the frame type of a received facsimile control field.
func LookupFCF(fcf byte) FrameType {
	if ft, ok := fixedFCF[fcf]; ok {
		return ft
	}
	if ft, ok := maskedFCF[fcf&^senderBit]; ok {
		return ft
	}

	return FrameUnknown
}

// Frame is one HDLC control frame without the frame check sequence, which
// the modem generates and verifies.
type Frame struct {
	Type  FrameType
	Final bool
	FIF   []byte
}

// NewFrame returns a frame of type ft carrying a copy of fif.
func NewFrame(ft FrameType, fif []byte) *Frame {
	f := &Frame{Type: ft}
	if len(fif) > 0 {
		f.FIF = util.CloneSlice(fif, 0)
	}

	return f
}

// Pack serializes the frame as [address][control][FCF][FIF...].
// fromCaller sets the X bit on frame types that carry it.
func (f *Frame) Pack(fromCaller bool) ([]byte, error) {
	info, ok := frameInfos[f.Type]
	if !ok {
		return nil, fmt.Errorf("t30: can't pack frame type %d", f.Type)
	}
	if frameHeaderLen+len(f.FIF) > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d FIF octets", ErrFrameTooLong, len(f.FIF))
	}

	buf := make([]byte, frameHeaderLen+len(f.FIF))
	buf[0] = AddressByte
	buf[1] = ControlNonFinal
	if f.Final {
		buf[1] = ControlFinal
	}
	buf[2] = info.fcf
	if fromCaller && !info.fixed {
		buf[2] |= senderBit
	}
	copy(buf[frameHeaderLen:], f.FIF)

	return buf, nil
}

// ParseFrame decodes a frame received from the modem.
func ParseFrame(b []byte) (*Frame, error) {
	if len(b) < frameHeaderLen {
		return nil, fmt.Errorf("%w: %d octets", ErrFrameTooShort, len(b))
	}
	if len(b) > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d octets", ErrFrameTooLong, len(b))
	}
	if b[0] != AddressByte || b[1]&^0x10 != ControlNonFinal {
		return nil, fmt.Errorf("%w: 0x%02X 0x%02X", ErrFrameBadHeader, b[0], b[1])
	}

	f := NewFrame(LookupFCF(b[2]), b[frameHeaderLen:])
	f.Final = b[1]&0x10 != 0

	return f, nil
}

// String returns the mnemonic and FIF length, e.g. "DIS[3]".
func (f *Frame) String() string {
	return fmt.Sprintf("%s[%d]", f.Type, len(f.FIF))
}
