//go:build !linux

package modem

import (
	"errors"
	"os"
)

// OpenDevice is only implemented on Linux. Elsewhere connect the modem
// through a net.Conn or configure the device externally.
func OpenDevice(path string, baud int) (*os.File, error) {
	return nil, errors.New("modem: serial devices are only supported on linux")
}
