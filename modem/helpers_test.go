package modem

import (
	"io"
	"net"
	"testing"
	"time"
)

// newTestModem creates a Modem backed by the local end of net.Pipe().
// Returns the modem and the remote end for test simulation.
func newTestModem(t *testing.T, opts ...Option) (*Modem, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	defaults := []Option{
		WithPollInterval(MinPollInterval),
		WithDataTimeout(MinDataTimeout),
	}
	m, err := New(local, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestModem: %v", err)
	}

	return m, remote
}

// exchange is one step of a scripted modem: read expect, then write reply.
type exchange struct {
	expect string
	reply  string
}

// serve plays script on the remote end. The returned channel yields the
// first mismatch or I/O error, or nil once the script completed.
func serve(remote net.Conn, script ...exchange) <-chan error {
	done := make(chan error, 1)
	go func() {
		for _, ex := range script {
			if ex.expect != "" {
				buf := make([]byte, len(ex.expect))
				_ = remote.SetReadDeadline(time.Now().Add(2 * time.Second))
				if _, err := io.ReadFull(remote, buf); err != nil {
					done <- err
					return
				}
				if string(buf) != ex.expect {
					done <- &mismatchError{want: ex.expect, got: string(buf)}
					return
				}
			}
			if ex.reply != "" {
				if _, err := remote.Write([]byte(ex.reply)); err != nil {
					done <- err
					return
				}
			}
		}
		done <- nil
	}()

	return done
}

type mismatchError struct{ want, got string }

func (e *mismatchError) Error() string {
	return "remote expected " + quote(e.want) + ", got " + quote(e.got)
}

func quote(s string) string {
	return "\"" + s + "\""
}

// waitServe waits for the scripted remote to finish.
func waitServe(t *testing.T, done <-chan error) {
	t.Helper()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("remote: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("remote script did not finish")
	}
}
