package errs

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors into the buckets callers react to.
type Kind int

const (
	// KindInternal is an unclassified failure.
	KindInternal Kind = iota
	// KindNotFound means the vault file or a record is absent.
	KindNotFound
	// KindAuthentication covers a wrong password and tampered ciphertext alike.
	KindAuthentication
	// KindIncorrectPassword is the KeePass adapter's disambiguated password failure.
	KindIncorrectPassword
	// KindValidation is a malformed entry or interchange record.
	KindValidation
	// KindStructural means an expected container structure is missing.
	KindStructural
	// KindCorrupt means container bytes could not be decoded.
	KindCorrupt
	// KindIO is a disk access failure.
	KindIO
	// KindLocked means the operation needs an unlocked vault.
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAuthentication:
		return "authentication_failure"
	case KindIncorrectPassword:
		return "incorrect_password"
	case KindValidation:
		return "validation_error"
	case KindStructural:
		return "structural_error"
	case KindCorrupt:
		return "corrupt_data"
	case KindIO:
		return "io_error"
	case KindLocked:
		return "locked"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrInternal          = &Error{kind: KindInternal}
	ErrNotFound          = &Error{kind: KindNotFound}
	ErrAuthentication    = &Error{kind: KindAuthentication}
	ErrIncorrectPassword = &Error{kind: KindIncorrectPassword}
	ErrValidation        = &Error{kind: KindValidation}
	ErrStructural        = &Error{kind: KindStructural}
	ErrCorrupt           = &Error{kind: KindCorrupt}
	ErrIO                = &Error{kind: KindIO}
	ErrLocked            = &Error{kind: KindLocked}
)

// Error is a categorized engine error. The message is short context for a human
// and never contains secret material.
type Error struct {
	kind   Kind
	msg    string
	err    error
	fields map[string]string
}

// New creates an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Wrap attaches a kind and context message to err.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{kind: kind, msg: msg, err: err}
}

// Validation creates a validation error with a field to message map.
func Validation(msg string, fields map[string]string) error {
	return &Error{kind: KindValidation, msg: msg, fields: fields}
}

func (e *Error) Error() string {
	msg := e.msg
	if msg == "" {
		msg = e.kind.String()
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Msg() string { return e.msg }

// Fields returns per-field validation messages, if any.
func (e *Error) Fields() map[string]string { return e.fields }

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}
