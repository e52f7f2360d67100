// Package errs defines the error taxonomy shared by the MCPK/MCS codec
// packages: a small set of kinds, each with a documented recovery policy.
package errs

import "fmt"

// Kind identifies one row of the error taxonomy.
type Kind string

const (
	InvalidMagic         Kind = "InvalidMagic"
	InvalidTag           Kind = "InvalidTag"
	ShortRead            Kind = "ShortRead"
	UnrecognizedEnvelope Kind = "UnrecognizedEnvelope"
	ZlibError            Kind = "ZlibError"
	MissingEntry         Kind = "MissingEntry"
	DecodeFailure        Kind = "DecodeFailure"
)

// Error is the concrete error type returned by this module. Path/Offset/Tag
// are filled in where they apply; zero values are omitted from the message.
type Error struct {
	Kind   Kind
	Path   string
	Offset int
	Tag    byte
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += fmt.Sprintf(" %q", e.Path)
	}
	if e.Offset != 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Tag != 0 {
		msg += fmt.Sprintf(" (tag 0x%02x)", e.Tag)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same Kind, so callers can write
// errors.Is(err, &errs.Error{Kind: errs.InvalidTag}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) WithPath(p string) *Error {
	n := *e
	n.Path = p
	return &n
}

func (e *Error) WithOffset(o int) *Error {
	n := *e
	n.Offset = o
	return &n
}

func (e *Error) WithTag(t byte) *Error {
	n := *e
	n.Tag = t
	return &n
}

// InvalidTagAt builds the error for an unknown marshal tag byte.
func InvalidTagAt(offset int, tag byte) *Error {
	return &Error{Kind: InvalidTag, Offset: offset, Tag: tag}
}

// Warning is a non-fatal diagnostic surfaced by clamp/skip-and-continue
// policies (ShortRead, UnrecognizedEnvelope, ZlibError, MissingEntry,
// DecodeFailure). The codec packages never log directly; they hand
// Warnings to a caller-supplied sink.
type Warning struct {
	Kind Kind
	Path string
	Err  error
}

func (w Warning) String() string {
	if w.Err == nil {
		return fmt.Sprintf("%s: %s", w.Kind, w.Path)
	}
	return fmt.Sprintf("%s: %s: %v", w.Kind, w.Path, w.Err)
}

// Sink receives Warnings as they occur. A nil Sink discards them.
type Sink func(Warning)

func (s Sink) emit(w Warning) {
	if s != nil {
		s(w)
	}
}

// Emit is a nil-safe helper so callers can do errs.Sink(nil).Emit(...).
func (s Sink) Emit(kind Kind, path string, err error) {
	s.emit(Warning{Kind: kind, Path: path, Err: err})
}
