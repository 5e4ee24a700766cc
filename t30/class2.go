package t30

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatClass2 formats c in the comma separated syntax of the Class 2/2.0
// +FDIS/+FIS/+FDCC/+FCC commands.
func FormatClass2(c Capability) string {
	parts := make([]string, NumFields)
	for f := range NumFields {
		parts[f] = strconv.Itoa(c[f])
	}

	return strings.Join(parts, ",")
}

// ParseClass2 parses the value of a Class 2/2.0 capability report such as
// "+FDCS:0,3,0,2,0,0,0,7" or "+FCS: 1,5,0,2,0,0,0,0". The prefix up to the
// colon is optional; fields beyond ST are ignored and missing fields are 0.
func ParseClass2(s string) (Capability, error) {
	var c Capability

	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return c, fmt.Errorf("%w: empty capability report", ErrCapability)
	}

	for f, field := range strings.Split(s, ",") {
		if f >= NumFields {
			break
		}
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		v, err := strconv.ParseInt(field, 16, 16)
		if err != nil {
			return c, fmt.Errorf("%w: %s value %q: %w", ErrCapability, fieldNames[f], field, err)
		}
		c[f] = int(v)
	}

	return c, nil
}
