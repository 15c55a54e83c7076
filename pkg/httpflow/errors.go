// Package httpflow implements a permissive, streaming HTTP/1.x message
// parser for passive network inspection. It reconstructs request/response
// transactions from arbitrary byte chunks belonging to a single TCP
// connection, without ever blocking on I/O itself — callers push bytes in
// and the parser tells them whether it needs more.
package httpflow

import (
	"errors"
	"fmt"
)

// Result is the three-valued outcome of a single parsing step, replacing
// the teacher's single (*Request, error) return with something a
// suspend/resume state machine can act on (spec §9 REDESIGN FLAGS:
// "macro-driven cursor re-architect as inline helpers returning a
// three-valued result").
type Result int

const (
	// Ok means the step completed; the state machine already advanced to
	// whatever comes next and may be stepped again immediately.
	Ok Result = iota

	// NeedMore means the current chunk was exhausted before the step
	// could complete. The caller should supply more bytes (or signal
	// close) and re-invoke the same state.
	NeedMore

	// Fatal means the direction hit a protocol violation it cannot
	// recover from. The direction latches: further non-empty feeds are
	// rejected, but a zero-length close is still honored.
	Fatal
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case NeedMore:
		return "need-more"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrorCode enumerates the fatal categories a ParseError can carry. Soft
// anomalies never produce a ParseError — they set a Flag and fire the Log
// hook instead (see transaction.go and hooks.go).
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeFieldTooLong
	ErrCodeInvalidChunking
	ErrCodeDuplicate100Continue
	ErrCodeDesyncedResponse
	ErrCodeMemory
	ErrCodeAlreadyOpen
	ErrCodeConfigIncompatible
	ErrCodeDirectionLatched
	ErrCodeUnsupportedMultipartByteranges
	ErrCodeInvalidPath
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNone:
		return "none"
	case ErrCodeFieldTooLong:
		return "field-too-long"
	case ErrCodeInvalidChunking:
		return "invalid-chunking"
	case ErrCodeDuplicate100Continue:
		return "duplicate-100-continue"
	case ErrCodeDesyncedResponse:
		return "desynced-response"
	case ErrCodeMemory:
		return "memory"
	case ErrCodeAlreadyOpen:
		return "already-open"
	case ErrCodeConfigIncompatible:
		return "config-incompatible"
	case ErrCodeDirectionLatched:
		return "direction-latched"
	case ErrCodeUnsupportedMultipartByteranges:
		return "unsupported-multipart-byteranges"
	case ErrCodeInvalidPath:
		return "invalid-path"
	default:
		return "unknown"
	}
}

// ParseError is a fatal diagnostic record. It doubles as the connection's
// retained last_error (spec §7 "Visibility").
type ParseError struct {
	Code    ErrorCode
	Offset  int64 // absolute stream offset where the fatal was detected
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("httpflow: %s at offset %d: %s", e.Code, e.Offset, e.Message)
}

func newFatal(code ErrorCode, offset int64, format string, args ...any) *ParseError {
	return &ParseError{
		Code:    code,
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	}
}

// Input-level fatals: raised synchronously by exported entry points,
// never latched on a direction (spec §7 "Input fatals").
var (
	// ErrAlreadyOpen indicates Open was called twice on the same Connection.
	ErrAlreadyOpen = errors.New("httpflow: connection already open")

	// ErrNotOpen indicates a feed/close call arrived before Open.
	ErrNotOpen = errors.New("httpflow: connection not open")

	// ErrDirectionLatched indicates a non-empty feed arrived on a
	// direction that already latched a fatal.
	ErrDirectionLatched = errors.New("httpflow: direction latched by a prior fatal")

	// ErrClosed indicates a feed call arrived after Close.
	ErrClosed = errors.New("httpflow: connection already closed")
)

// LogLevel mirrors the severity spec §7's last_error record carries, and
// doubles as the level on entries in Connection's retained log (spec §3
// "Connection ... a list of log records").
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelWarning
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelInfo:
		return "info"
	case LogLevelWarning:
		return "warning"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// LogRecord is one entry in a Connection's retained log (spec §3, §7
// "Visibility"): a soft anomaly, a latched fatal, or a non-latching
// fatal-level event, tagged with the transaction and byte offset it
// occurred at.
type LogRecord struct {
	Level            LogLevel
	Flag             Flags
	TransactionIndex int
	Offset           int64
	Message          string
}
