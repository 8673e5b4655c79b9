// Package wire implements the DNS wire format codec: decoding raw
// UDP/QUIC-stream payloads into domain.Message and encoding domain.Message
// back into wire bytes, including name compression and
// EDNS(0) OPT handling.
package wire

import "fmt"

// ParseError reports a wire-format decode failure located at a byte offset
// within the input. HeaderParsed and ID are set when at least the 12-byte
// header decoded successfully, so a caller can still answer FORMERR with the
// original query ID.
type ParseError struct {
	Offset       int
	HeaderParsed bool
	ID           uint16
	Err          error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("wire: parse error at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(offset int, format string, args ...any) *ParseError {
	return &ParseError{Offset: offset, Err: fmt.Errorf(format, args...)}
}

// EncodeError reports a wire-format encode failure.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("wire: encode error: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

func newEncodeError(format string, args ...any) *EncodeError {
	return &EncodeError{Err: fmt.Errorf(format, args...)}
}
