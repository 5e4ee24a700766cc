// Package logger provides the logging facade used by every go-fax package.
//
// A fax call is a long, strictly ordered exchange of modem commands and T.30
// frames, and the log is the only trail of what happened on the line. The
// Logger interface keeps that trail structured (key-value pairs) while letting
// applications plug in their own logging framework.
//
// Log Levels:
//
//   - DebugLevel:  Every command, response and frame exchanged with the modem.
//   - InfoLevel:  Call progress (connected, page sent, page received).
//   - WarnLevel:  Recovered anomalies (clamped capabilities, soft page success).
//   - ErrorLevel:  Call failures and internal inconsistencies.
//   - FatalLevel:  Unrecoverable errors that terminate the program.
package logger

// Level indicates the logging severity level.
type Level = int8

const (
	// DebugLevel logs are voluminous: one entry per modem command and per frame.
	DebugLevel Level = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel
	// ErrorLevel logs are high-priority. A call that completes normally
	// shouldn't generate any error-level logs.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// Logger defines a common interface for logging.
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel, then calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
	// With creates a child logger and adds structured context to it.
	// Key-values added to the child don't affect the parent, and vice versa.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() Level
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level Level)
}
