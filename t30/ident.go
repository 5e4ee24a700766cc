package t30

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// IdentLen is the length of a CSI/TSI/CIG information field.
const IdentLen = 20

// stripMarks removes combining marks so "Zürich" becomes "Zurich".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeIdent restricts a station identification to the T.30 repertoire:
// digits, '+' and space. Other characters are dropped and the result is cut
// to IdentLen characters.
func NormalizeIdent(id string) string {
	folded, _, err := transform.String(stripMarks, id)
	if err != nil {
		folded = id
	}

	var sb strings.Builder
	for _, r := range folded {
		if sb.Len() == IdentLen {
			break
		}
		if (r >= '0' && r <= '9') || r == '+' || r == ' ' {
			sb.WriteRune(r)
		}
	}

	return strings.TrimSpace(sb.String())
}

// EncodeIdent returns the FIF for a station identification: IdentLen octets,
// last character first, padded with spaces.
func EncodeIdent(id string) []byte {
	id = NormalizeIdent(id)

	fif := make([]byte, IdentLen)
	for i := range fif {
		fif[i] = ' '
	}
	for i := 0; i < len(id); i++ {
		fif[len(id)-1-i] = id[i]
	}

	return fif
}

// DecodeIdent returns the station identification carried by a CSI/TSI/CIG FIF.
func DecodeIdent(fif []byte) string {
	n := min(len(fif), IdentLen)
	out := make([]byte, 0, n)
	for i := n - 1; i >= 0; i-- {
		c := fif[i]
		if c < 0x20 || c > 0x7E {
			c = ' '
		}
		out = append(out, c)
	}

	return strings.TrimSpace(string(out))
}
