package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP mapping and retry policy.
type Kind int

const (
	KindValidation Kind = iota // bad input, safe to retry after correcting it
	KindConflict               // illegal state transition, do not retry
	KindNotFound
	KindTransient // infra failure, safe to retry with backoff
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Fields carries structured context surfaced to the caller,
	// e.g. a fraud risk score and its reasons.
	Fields map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

func (e *Error) WithField(key string, val any) *Error {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	e.Fields[key] = val
	return e
}

func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

func IsValidation(err error) bool { k, ok := KindOf(err); return ok && k == KindValidation }
func IsConflict(err error) bool   { k, ok := KindOf(err); return ok && k == KindConflict }
func IsNotFound(err error) bool   { k, ok := KindOf(err); return ok && k == KindNotFound }
func IsTransient(err error) bool  { k, ok := KindOf(err); return ok && k == KindTransient }
