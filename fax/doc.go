// Package fax drives facsimile calls over a fax modem.
//
// A Session runs one call at a time on a modem: it initializes the modem,
// dials or answers (T.30 Phase A), then hands the line to the driver for the
// modem's command class.
//
// With Class 1 modems the host implements the T.30 procedure itself: the
// exchange of HDLC control frames (capability negotiation, training, page
// acknowledgement, disconnect) runs as an explicit state machine, see
// class1Machine. With Class 2 and Class 2.0 modems the modem performs T.30
// and the driver sequences AT commands around the page data.
//
// In all classes the page data is a T.4 one-dimensional bit stream produced
// and consumed by PageTransfer.
//
// Errors are reported with the sentinels in errors.go; Classify maps the
// error of a call to the single Result a user sees.
package fax
