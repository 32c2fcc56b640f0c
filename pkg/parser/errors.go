package parser

import "errors"

// Errors returned by Parse. Every one of them leaves the parser in a
// consistent state, so the caller can keep feeding bytes.
var (
	// ErrUnexpectedDataByte is a data byte with no status and no running status
	ErrUnexpectedDataByte = errors.New("unexpected data byte")

	// ErrInvalidStatusByte is one of the undefined status values 0xF4, 0xF5, 0xF9, 0xFD
	ErrInvalidStatusByte = errors.New("invalid status byte")

	// ErrSysExBufferOverflow means a SysEx capture did not fit the buffer and was dropped
	ErrSysExBufferOverflow = errors.New("sysex buffer overflow")

	// ErrUnterminatedSysEx means a status byte other than 0xF7 interrupted a SysEx capture
	ErrUnterminatedSysEx = errors.New("unterminated sysex")
)

// ErrorName returns a short stable name for a parser error, used as a stats
// key and in monitor events. Unknown errors map to "Other". An error matching
// several sentinels is named after the first of UnterminatedSysEx,
// UnexpectedDataByte, InvalidStatusByte, SysExBufferOverflow.
func ErrorName(err error) string {
	switch {
	case errors.Is(err, ErrUnterminatedSysEx):
		return "UnterminatedSysEx"
	case errors.Is(err, ErrUnexpectedDataByte):
		return "UnexpectedDataByte"
	case errors.Is(err, ErrInvalidStatusByte):
		return "InvalidStatusByte"
	case errors.Is(err, ErrSysExBufferOverflow):
		return "SysExBufferOverflow"
	default:
		return "Other"
	}
}
