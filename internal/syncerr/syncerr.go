// Package syncerr classifies pipeline failures so the CLI can name the failing
// class and callers can decide whether a failure is worth retrying.
package syncerr

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind is the failure class of an Error.
type Kind uint8

const (
	Unknown Kind = iota
	Config
	Fetch
	Extraction
	IO
	Mapping
	Auth
	Upsert
	MissingInput
)

// String returns the class name used in logs and CLI output.
func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case Fetch:
		return "FetchError"
	case Extraction:
		return "ExtractionError"
	case IO:
		return "IOError"
	case Mapping:
		return "MappingError"
	case Auth:
		return "AuthError"
	case Upsert:
		return "UpsertError"
	case MissingInput:
		return "MissingInputError"
	default:
		return "Error"
	}
}

// Transient reports whether failures of this class get a bounded local retry.
func (k Kind) Transient() bool {
	return k == Fetch || k == Upsert
}

// Error tags an underlying error with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E tags err with kind. A nil err yields nil.
func E(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// New creates a tagged error from a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: eris.New(msg)}
}

// Errorf creates a tagged error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: eris.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost tagged error in err's chain,
// or Unknown if none is tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
