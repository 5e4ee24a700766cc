package t30

import (
	"errors"
	"fmt"
)

// fieldConv locates one capability field inside a DIS/DTC/DCS FIF and maps
// field values to frame bits and back. Frame bytes are as delivered by a
// Class 1 modem: T.30 bit 1 of each octet is the least significant bit.
type fieldConv struct {
	byteIdx int
	shift   uint
	mask    byte
	safe    int

	disEnc map[int]byte
	disDec map[byte]int
	dcsEnc map[int]byte
	dcsDec map[byte]int
}

var (
	identityEnc = map[int]byte{0: 0, 1: 1}
	identityDec = map[byte]int{0: 0, 1: 1}

	// width and length share the "1 and 2 swapped" layout.
	swappedEnc = map[int]byte{0: 0, 1: 2, 2: 1}
	swappedDec = map[byte]int{0: 0, 2: 1, 1: 2}
)

var fieldConvs = [NumFields]fieldConv{
	VR: {
		byteIdx: 1, shift: 6, mask: 0x01,
		disEnc: identityEnc, disDec: identityDec,
		dcsEnc: identityEnc, dcsDec: identityDec,
	},
	BR: {
		byteIdx: 1, shift: 2, mask: 0x0F,
		disEnc: map[int]byte{0: 0, 1: 2, 2: 1, 3: 3, 4: 7, 5: 11},
		disDec: map[byte]int{0: 0, 2: 1, 1: 2, 3: 3, 7: 4, 11: 5, 15: 5},
		dcsEnc: map[int]byte{0: 0, 1: 2, 2: 3, 3: 1, 4: 10, 5: 8},
		dcsDec: map[byte]int{0: 0, 2: 1, 3: 2, 1: 3, 10: 4, 8: 5, 9: 3, 11: 2},
	},
	WD: {
		byteIdx: 2, shift: 0, mask: 0x03,
		disEnc: swappedEnc, disDec: swappedDec,
		dcsEnc: swappedEnc, dcsDec: swappedDec,
	},
	LN: {
		byteIdx: 2, shift: 2, mask: 0x03,
		disEnc: swappedEnc, disDec: swappedDec,
		dcsEnc: swappedEnc, dcsDec: swappedDec,
	},
	DF: {
		byteIdx: 1, shift: 7, mask: 0x01,
		disEnc: identityEnc, disDec: identityDec,
		dcsEnc: identityEnc, dcsDec: identityDec,
	},
	EC: {
		byteIdx: 3, shift: 2, mask: 0x03,
		disEnc: map[int]byte{0: 0, 1: 3, 2: 1},
		disDec: map[byte]int{0: 0, 3: 1, 1: 2},
		dcsEnc: map[int]byte{0: 0, 1: 3, 2: 1},
		dcsDec: map[byte]int{0: 0, 3: 1, 1: 2},
	},
	BF: {
		byteIdx: 6, shift: 4, mask: 0x01,
		disEnc: identityEnc, disDec: identityDec,
		dcsEnc: identityEnc, dcsDec: identityDec,
	},
	ST: {
		byteIdx: 2, shift: 4, mask: 0x07, safe: 7,
		disEnc: map[int]byte{0: 7, 1: 1, 2: 6, 3: 2, 4: 3, 5: 0, 6: 5, 7: 4},
		disDec: map[byte]int{7: 0, 1: 1, 6: 2, 2: 3, 3: 4, 0: 5, 5: 6, 4: 7},
		// DCS names the scan time actually used, so only the values that
		// Negotiate can produce have an encoding.
		dcsEnc: map[int]byte{0: 7, 1: 1, 3: 2, 5: 0, 7: 4},
		dcsDec: map[byte]int{7: 0, 1: 1, 2: 3, 0: 5, 4: 7},
	},
}

const (
	// minFIFLen is the shortest DIS/DCS FIF: bits 1-24.
	minFIFLen = 3

	extendBit = 0x80

	// receiverBit is T.30 bit 10: "receiver fax operation" in DIS/DTC and
	// "receive fax operation" in DCS.
	receiverBit = 0x02
	// transmitterBit is T.30 bit 9 in DIS: documents ready for polling.
	transmitterBit = 0x01
)

// ErrNoEncoding reports a field value that has no frame representation.
// It indicates an internal inconsistency; the field is encoded as 0.
var ErrNoEncoding = errors.New("t30: can't happen: no frame encoding")

func (fc *fieldConv) encode(v int, isDIS bool) (byte, bool) {
	if isDIS {
		b, ok := fc.disEnc[v]
		return b, ok
	}
	b, ok := fc.dcsEnc[v]

	return b, ok
}

func (fc *fieldConv) decode(b byte, isDIS bool) (int, bool) {
	if isDIS {
		v, ok := fc.disDec[b]
		return v, ok
	}
	v, ok := fc.dcsDec[b]

	return v, ok
}

// ToFrame encodes c as a DIS/DTC (isDIS) or DCS information field.
//
// The FIF is three octets unless EC or BF are set, which need the extended
// octets; the T.30 extend bit is set on every octet from the third on except
// the last. Bit 10 (receiver operation) is always set. A field value without
// an encoding is encoded as 0 and reported with ErrNoEncoding.
func ToFrame(c Capability, isDIS bool) ([]byte, error) {
	n := minFIFLen
	if c[EC] != 0 {
		n = fieldConvs[EC].byteIdx + 1
	}
	if c[BF] != 0 {
		n = fieldConvs[BF].byteIdx + 1
	}

	fif := make([]byte, n)
	fif[1] |= receiverBit

	var errs error
	for f := range NumFields {
		fc := &fieldConvs[f]
		if fc.byteIdx >= n {
			continue
		}

		bits, ok := fc.encode(c[f], isDIS)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("%w: %s=%d", ErrNoEncoding, fieldNames[f], c[f]))
			bits = 0
		}
		fif[fc.byteIdx] |= (bits & fc.mask) << fc.shift
	}

	for i := minFIFLen - 1; i < n-1; i++ {
		fif[i] |= extendBit
	}

	return fif, errs
}

// FromFrame decodes a DIS/DTC (isDIS) or DCS information field.
//
// Fields in octets the frame doesn't carry are 0. An undefined bit pattern is
// replaced by the field's safe value and reported with ErrCapability.
func FromFrame(fif []byte, isDIS bool) (Capability, error) {
	var c Capability
	var errs error

	n := fifLen(fif)
	for f := range NumFields {
		fc := &fieldConvs[f]
		if fc.byteIdx >= n {
			continue
		}

		bits := (fif[fc.byteIdx] >> fc.shift) & fc.mask
		v, ok := fc.decode(bits, isDIS)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("%w: %s frame bits 0x%X undefined, using %d",
				ErrCapability, fieldNames[f], bits, fc.safe))
			v = fc.safe
		}
		c[f] = v
	}

	return c, errs
}

// fifLen returns the number of octets that belong to the FIF according to
// the extend bits. Trailing octets after an octet without the extend bit are
// ignored; some modems pass the frame check sequence through.
func fifLen(fif []byte) int {
	for i := minFIFLen - 1; i < len(fif); i++ {
		if fif[i]&extendBit == 0 {
			return i + 1
		}
	}

	return len(fif)
}

// CanReceive reports whether a DIS/DTC announces receiver operation.
func CanReceive(fif []byte) bool {
	return len(fif) > 1 && fif[1]&receiverBit != 0
}

// CanTransmit reports whether a DIS announces documents ready for polling.
func CanTransmit(fif []byte) bool {
	return len(fif) > 1 && fif[1]&transmitterBit != 0
}

// SetCanTransmit marks a DIS as having documents ready for polling.
func SetCanTransmit(fif []byte) {
	if len(fif) > 1 {
		fif[1] |= transmitterBit
	}
}
