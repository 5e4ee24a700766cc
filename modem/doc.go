// Package modem implements the transaction layer between a fax driver and a
// Hayes-compatible fax modem.
//
// A Modem sends AT commands and collects the response lines up to the final
// result code, each transaction bounded by a timeout. Once the modem answers
// CONNECT to a data command, DataReader and DataWriter carry the raw data
// stream with DLE escaping removed or inserted and, optionally, the bit order
// of every byte reversed.
//
// The port underneath is anything that reads, writes and supports read
// deadlines: the *os.File returned by OpenDevice for a serial device, or a
// net.Conn for a modem behind a terminal server or in tests.
//
// A Modem is NOT goroutine-safe; one call owns it at a time.
package modem
