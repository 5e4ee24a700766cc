package fax

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-fax/modem"
	"github.com/arloliu/go-fax/t30"
)

// class2Commands names the commands and reports that differ between Class 2
// and Class 2.0.
type class2Commands struct {
	class      string
	caps       string // set session capabilities
	modemCaps  string // set modem capabilities
	localID    string
	bitOrder   string
	pageStatus string
	hangup     string // hangup report prefix
	connect    string
	session    string // negotiated session report prefix
	remoteTSI  string
	remoteCSI  string
	hangupBase int
	// startData is sent after CONNECT to +FDR.
	startData []byte
}

var (
	class2Cmds = &class2Commands{
		class:      "2",
		caps:       "+FDIS",
		modemCaps:  "+FDCC",
		localID:    "+FLID",
		bitOrder:   "+FBOR",
		pageStatus: "+FPTS",
		hangup:     "+FHNG:",
		connect:    "+FCON",
		session:    "+FDCS:",
		remoteTSI:  "+FTSI:",
		remoteCSI:  "+FCSI:",
		hangupBase: 10,
		startData:  []byte{modem.DC2},
	}
	class20Cmds = &class2Commands{
		class:      "2.0",
		caps:       "+FIS",
		modemCaps:  "+FCC",
		localID:    "+FLI",
		bitOrder:   "+FBO",
		pageStatus: "+FPS",
		hangup:     "+FHS:",
		connect:    "+FCO",
		session:    "+FCS:",
		remoteTSI:  "+FTI:",
		remoteCSI:  "+FCI:",
		hangupBase: 16,
	}
)

func commandsFor(c Class) *class2Commands {
	if c == Class20 {
		return class20Cmds
	}

	return class2Cmds
}

// Post-page message codes of +FET.
const (
	fetMPS = 0
	fetEOM = 1
	fetEOP = 2
)

// Page status codes of +FPTS/+FPS.
const (
	statusMCF = 1
	statusRTN = 2
	statusRTP = 3
	statusPIN = 4
	statusPIP = 5
)

func fetCode(ppm t30.FrameType) int {
	switch ppm {
	case t30.MPS:
		return fetMPS
	case t30.EOM:
		return fetEOM
	default:
		return fetEOP
	}
}

// initCommands returns the commands that prepare a Class 2/2.0 modem.
func (cmds *class2Commands) initCommands(cfg *Config) []string {
	out := []string{"+FCLASS=" + cmds.class}
	if id := cfg.LocalID(); id != "" {
		out = append(out, fmt.Sprintf("%s=%q", cmds.localID, id))
	}
	out = append(out, cmds.modemCaps+"="+t30.FormatClass2(cfg.LocalCapability()))

	// bit order 0 sends the first bit of each byte in its least
	// significant bit, which the codec undoes by reversing
	order := "1"
	if cfg.ReverseBits() {
		order = "0"
	}
	out = append(out, cmds.bitOrder+"="+order, "+FCR=1")
	if cmds.class == "2.0" {
		// report negotiation results
		out = append(out, "+FNR=1,1,1,0")
	}

	return out
}

// class2Driver sequences the commands of a Class 2/2.0 modem, which runs
// the T.30 procedure itself.
type class2Driver struct {
	*call
	cmds *class2Commands
}

func newClass2Driver(c *call) *class2Driver {
	return &class2Driver{call: c, cmds: commandsFor(c.cfg.Class())}
}

// absorb takes remote identification, session parameters and hangup
// status from the information lines of resp.
func (d *class2Driver) absorb(resp *modem.Response) error {
	for _, prefix := range []string{d.cmds.remoteTSI, d.cmds.remoteCSI} {
		if v, ok := resp.Find(prefix); ok {
			d.setRemoteIDText(v)
		}
	}
	if v, ok := resp.Find(d.cmds.session); ok {
		session, err := t30.ParseClass2(v)
		if err != nil {
			d.logger.Warn("session report", "value", v, "error", err)
		} else {
			session, warns := session.Check()
			for _, w := range warns {
				d.logger.Warn("session report", "warning", w)
			}
			if session != d.session {
				d.logger.Info("session negotiated", "session", session.Describe())
			}
			d.session = session
		}
	}
	if v, ok := resp.Find(d.cmds.hangup); ok {
		code, err := ParseHangup(v, d.cmds.hangupBase)
		if err != nil {
			return err
		}
		d.logger.Info("modem hangup", "code", code, "description", HangupDescription(code))

		return hangupError(code)
	}

	return nil
}

func (d *class2Driver) setRemoteIDText(v string) {
	id := strings.TrimSpace(strings.Trim(strings.TrimSpace(v), `"`))
	if id != d.remoteID {
		d.remoteID = id
		d.logger.Info("remote station", "id", id)
	}
}

// responseError returns the hangup error carried by resp, or a generic
// error naming cmd.
func (d *class2Driver) responseError(cmd string, resp *modem.Response) error {
	if err := d.absorb(resp); err != nil {
		return err
	}

	return fmt.Errorf("%w: AT%s answered %s", ErrModem, cmd, resp)
}

// send transmits all pages of the source. dialed is the response to the
// dial command.
func (d *class2Driver) send(ctx context.Context, dialed *modem.Response) error {
	if err := d.absorb(dialed); err != nil {
		return err
	}

	info, err := d.src.Open()
	if err != nil {
		return fmt.Errorf("fax: open first page: %w", err)
	}

	var lastLocal t30.Capability
	tries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		local := d.localFor(info)
		if local != lastLocal {
			cmd := d.cmds.caps + "=" + t30.FormatClass2(local)
			resp, err := d.line.Command(ctx, cmd, d.cfg.T4Timeout())
			if err != nil {
				return err
			}
			if !resp.OK() {
				return d.responseError(cmd, resp)
			}
			lastLocal = local
		}

		resp, err := d.line.Command(ctx, "+FDT", d.cfg.T1Timeout())
		if err != nil {
			return err
		}
		if resp.Code != modem.CodeConnect {
			return d.responseError("+FDT", resp)
		}
		if err := d.absorb(resp); err != nil {
			return err
		}

		w := d.line.DataWriter(d.cfg.ReverseBits())
		stats, err := d.xfer.SendPage(w, d.src, local, d.session, d.header())
		if err != nil {
			_ = w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		resp, err = d.line.Wait(ctx, d.cfg.PageTimeout())
		if err != nil {
			return err
		}
		if !resp.OK() {
			return d.responseError("+FDT data", resp)
		}

		ppm := d.nextPPM(info)
		cmd := "+FET=" + strconv.Itoa(fetCode(ppm))
		resp, err = d.line.Command(ctx, cmd, d.cfg.T1Timeout())
		if err != nil {
			return err
		}
		if err := d.absorb(resp); err != nil {
			return err
		}
		if !resp.OK() {
			return d.responseError(cmd, resp)
		}

		status, ok, err := d.pageStatus(resp)
		if err != nil {
			return err
		}
		if !ok {
			// absorb already failed on a nonzero hangup code
			d.logger.Debug("no page status, page taken as confirmed", "page", d.srcPage+1)
			status = statusMCF
		}
		d.logger.Info("page sent", "page", d.srcPage+1, "lines", stats.Lines, "bytes", stats.Bytes,
			"ppm", ppm, "status", status)

		switch status {
		case statusMCF, statusRTP, statusPIP:
			d.pages++
			d.metrics.incPageSendCount()
			tries = 0
			if ppm == t30.EOP {
				return d.waitHangup(ctx, resp)
			}
			if info, err = d.advance(); err != nil {
				return fmt.Errorf("fax: next page: %w", err)
			}
		case statusRTN, statusPIN:
			tries++
			d.metrics.incPageRetryCount()
			if tries > d.cfg.PageRetries() {
				return fmt.Errorf("%w: page %d rejected %d times", ErrLowestSpeed, d.srcPage+1, tries)
			}
			if _, err := d.src.Open(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown page status %d", ErrProtocol, status)
		}
	}
}

// pageStatus returns the page transfer status reported in resp; ok is
// false when the modem sent no report.
func (d *class2Driver) pageStatus(resp *modem.Response) (status int, ok bool, err error) {
	v, found := resp.Find(d.cmds.pageStatus + ":")
	if !found {
		return 0, false, nil
	}
	field, _, _ := strings.Cut(v, ",")
	status, err = strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0, false, fmt.Errorf("%w: bad page status %q", ErrProtocol, v)
	}

	return status, true, nil
}

// waitHangup collects the hangup report that ends a call, unless resp
// already had it.
func (d *class2Driver) waitHangup(ctx context.Context, resp *modem.Response) error {
	if _, ok := resp.Find(d.cmds.hangup); ok {
		return nil
	}

	resp, err := d.line.Wait(ctx, d.cfg.T2Timeout())
	if err != nil {
		return err
	}
	if resp.Code == modem.CodeTimeout {
		d.logger.Debug("no hangup report after last page")
		return nil
	}

	return d.absorb(resp)
}

// receive accepts pages until the remote ends the call. answered is the
// response to the answer command.
func (d *class2Driver) receive(ctx context.Context, answered *modem.Response) error {
	if err := d.absorb(answered); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := d.line.Command(ctx, "+FDR", d.cfg.T1Timeout())
		if err != nil {
			return err
		}
		switch resp.Code {
		case modem.CodeConnect:
		case modem.CodeOK:
			// the remote ended the call
			if err := d.absorb(resp); err != nil {
				return err
			}
			if _, ok := resp.Find(d.cmds.hangup); !ok {
				if err := d.waitHangup(ctx, resp); err != nil {
					return err
				}
			}

			return nil
		default:
			if d.pages > 0 {
				if err := d.absorb(resp); err != nil {
					return err
				}

				return ErrRemoteDisconnect
			}

			return d.responseError("+FDR", resp)
		}
		if err := d.absorb(resp); err != nil {
			return err
		}

		if len(d.cmds.startData) > 0 {
			if err := d.line.WriteRaw(d.cmds.startData); err != nil {
				return err
			}
		}

		res, err := d.xfer.ReceivePage(d.line.DataReader(ctx, d.cfg.ReverseBits()), d.sink, d.pages, d.session)
		if err != nil {
			return err
		}
		d.metrics.addLineErrorCount(res.Errors)

		resp, err = d.line.Wait(ctx, d.cfg.T2Timeout())
		if err != nil {
			return err
		}
		if err := d.absorb(resp); err != nil {
			return err
		}

		status := statusRTN
		if res.Good {
			status = statusMCF
			d.pages++
			d.metrics.incPageRecvCount()
		}
		ppm := "?"
		if v, ok := resp.Find("+FET:"); ok {
			ppm = v
		}
		d.logger.Info("page status", "page", d.pages, "ppm", ppm, "status", status)

		cmd := d.cmds.pageStatus + "=" + strconv.Itoa(status)
		resp, err = d.line.Command(ctx, cmd, d.cfg.T4Timeout())
		if err != nil {
			return err
		}
		if !resp.OK() {
			return d.responseError(cmd, resp)
		}
	}
}

// connected reports whether a dial or answer response carries the
// connection report of a fax call.
func (cmds *class2Commands) connected(resp *modem.Response) bool {
	if !resp.OK() && resp.Code != modem.CodeConnect {
		return false
	}
	for _, l := range resp.Lines {
		if strings.HasPrefix(l, cmds.connect) {
			return true
		}
	}

	return false
}
