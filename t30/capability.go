// Package t30 implements the ITU-T T.30 capability model and frame layer.
//
// A Capability is the eight-field vector exchanged in DIS/DTC/DCS frames and
// used verbatim by Class 2/2.0 modems in +FIS/+FDCS responses. Three vectors
// exist per call: the local one, the one advertised by the remote station and
// the session vector produced by Negotiate. The session vector is always
// derived, never edited.
package t30

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Field indexes of a Capability vector.
const (
	VR = iota // vertical resolution: 0 = 98 lpi, 1 = 196 lpi
	BR        // bit rate, see BitRate
	WD        // page width, see PageWidth
	LN        // page length: 0 = A4, 1 = B4, 2 = unlimited
	DF        // data format: 0 = 1-D, 1 = 2-D
	EC        // error correction: 0 = none, 1 = ECM 64 octets, 2 = ECM 256 octets
	BF        // binary file transfer
	ST        // minimum scan time, see ScanTime

	NumFields
)

var (
	// ErrCapability reports an out-of-range or undecodable capability field.
	// It is always recovered locally by clamping or substituting a safe value.
	ErrCapability = errors.New("t30: capability error")

	// ErrIncompatible reports that the session vector can't carry the local
	// document as-is (width, length or format differ).
	ErrIncompatible = errors.New("t30: incompatible capabilities")
)

var fieldNames = [NumFields]string{"VR", "BR", "WD", "LN", "DF", "EC", "BF", "ST"}

var fieldMax = [NumFields]int{1, 5, 2, 2, 1, 2, 1, 7}

// bitRates ranks the BR values by line speed. Negotiation compares these,
// not the raw field values.
var bitRates = [...]int{2400, 4800, 7200, 9600, 12000, 14400}

// fallback gives the next slower BR after a failed training or an exhausted
// page retry; -1 means there is nothing slower.
var fallback = [...]int{-1, 0, 1, 2, 3, 4}

var pageWidths = [...]int{1728, 2048, 2432}

// scanTimes holds the minimum scan time in milliseconds by [VR][ST].
var scanTimes = [2][8]int{
	{0, 5, 10, 10, 20, 20, 40, 40},
	{0, 5, 5, 10, 10, 20, 20, 40},
}

// stTable maps [session VR][remote ST] to the ST value the session uses.
// The result is always one of the values that has a DCS encoding.
var stTable = [2][8]int{
	{0, 1, 3, 3, 5, 5, 7, 7},
	{0, 1, 1, 3, 3, 5, 5, 7},
}

// Capability is a T.30 capability vector indexed by VR, BR, WD, LN, DF, EC, BF
// and ST.
type Capability [NumFields]int

// FieldName returns the two-letter name of field f.
func FieldName(f int) string {
	if f < 0 || f >= NumFields {
		return "??"
	}

	return fieldNames[f]
}

// FieldMax returns the largest valid value of field f.
func FieldMax(f int) int {
	return fieldMax[f]
}

// BitRate returns the line speed in bit/s of BR value br.
func BitRate(br int) int {
	if br < 0 || br >= len(bitRates) {
		return bitRates[0]
	}

	return bitRates[br]
}

// Fallback returns the BR value to retry with after br failed, or -1 when br
// is already the slowest rate.
func Fallback(br int) int {
	if br < 0 || br >= len(fallback) {
		return -1
	}

	return fallback[br]
}

// PageWidth returns the scan line width in pixels of WD value wd.
func PageWidth(wd int) int {
	if wd < 0 || wd >= len(pageWidths) {
		return pageWidths[0]
	}

	return pageWidths[wd]
}

// ScanTime returns the minimum scan line time for resolution vr and ST value st.
func ScanTime(vr, st int) time.Duration {
	if vr < 0 || vr > 1 || st < 0 || st > 7 {
		return 0
	}

	return time.Duration(scanTimes[vr][st]) * time.Millisecond
}

// Check clamps every field exceeding its maximum to 0. It returns the
// corrected vector and one ErrCapability warning per clamped field.
func (c Capability) Check() (Capability, []error) {
	var warns []error

	for f := range NumFields {
		if c[f] < 0 || c[f] > fieldMax[f] {
			warns = append(warns, fmt.Errorf("%w: %s=%d out of range [0, %d], using 0",
				ErrCapability, fieldNames[f], c[f], fieldMax[f]))
			c[f] = 0
		}
	}

	return c, warns
}

// String formats the vector as "VR,BR,WD,LN,DF,EC,BF,ST".
func (c Capability) String() string {
	return FormatClass2(c)
}

// Describe returns a human readable summary, e.g. "fine 9600bps 1728px".
func (c Capability) Describe() string {
	var sb strings.Builder

	if c[VR] == 1 {
		sb.WriteString("fine")
	} else {
		sb.WriteString("normal")
	}
	fmt.Fprintf(&sb, " %dbps %dpx", BitRate(c[BR]), PageWidth(c[WD]))

	switch c[LN] {
	case 0:
		sb.WriteString(" A4")
	case 1:
		sb.WriteString(" B4")
	default:
		sb.WriteString(" unlimited")
	}
	if c[DF] == 1 {
		sb.WriteString(" 2-D")
	}
	if c[EC] != 0 {
		sb.WriteString(" ECM")
	}
	fmt.Fprintf(&sb, " %s", ScanTime(c[VR], c[ST]))

	return sb.String()
}

// Negotiate reconciles the local and remote vectors into the session vector.
//
// Every field except BR and ST is the smaller of the two. BR is the slower of
// the two by line speed. ST comes from the remote's requirement, resolved for
// the session resolution. The returned warnings wrap ErrIncompatible when the
// session can't carry the local document unchanged; negotiation still
// succeeds in that case.
func Negotiate(local, remote Capability) (Capability, []error) {
	var session Capability

	for f := range NumFields {
		session[f] = min(local[f], remote[f])
	}

	if BitRate(local[BR]) <= BitRate(remote[BR]) {
		session[BR] = local[BR]
	} else {
		session[BR] = remote[BR]
	}

	vr := session[VR]
	if vr < 0 || vr > 1 {
		vr = 0
	}
	st := remote[ST]
	if st < 0 || st > 7 {
		st = 7
	}
	session[ST] = stTable[vr][st]

	var warns []error
	if local[WD] != session[WD] {
		warns = append(warns, fmt.Errorf("%w: page width %d reduced to %d",
			ErrIncompatible, PageWidth(local[WD]), PageWidth(session[WD])))
	}
	if local[LN] > session[LN] {
		warns = append(warns, fmt.Errorf("%w: page length %d reduced to %d",
			ErrIncompatible, local[LN], session[LN]))
	}
	if local[DF] != session[DF] {
		warns = append(warns, fmt.Errorf("%w: data format %d changed to %d",
			ErrIncompatible, local[DF], session[DF]))
	}

	return session, warns
}
