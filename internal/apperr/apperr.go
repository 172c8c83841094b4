// Package apperr defines the error kinds returned by the services.
//
// The HTTP adapter maps a Kind to a status code; everything else only
// inspects Kind and Reason.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindInvalid         Kind = "INVALID"
	KindConflict        Kind = "CONFLICT"
	KindInternal        Kind = "INTERNAL"
)

// Причины (reason): машинные коды внутри Kind.
const (
	ReasonName        = "name"
	ReasonParent      = "parent"
	ReasonAnchor      = "anchor"
	ReasonAnchorType  = "anchor_type"
	ReasonCycle       = "cycle"
	ReasonSelfMove    = "self_move"
	ReasonHasChildren = "has_children"
	ReasonHasFiles    = "has_files"
	ReasonUsername    = "username"
	ReasonEmail       = "email"
	ReasonDisabled    = "disabled"
	ReasonToken       = "token"
	ReasonValidation  = "validation"
)

type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ":" + e.Reason
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по Kind и Reason, чтобы работал errors.Is(err, apperr.Conflict(ReasonName, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == "" || e.Reason == t.Reason)
}

// WithDetail добавляет деталь по полю и возвращает ту же ошибку.
func (e *Error) WithDetail(field, msg string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[field] = msg
	return e
}

func newf(kind Kind, reason, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Reason: reason, Message: msg}
}

func Unauthenticated(reason, format string, args ...any) *Error {
	return newf(KindUnauthenticated, reason, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, "", format, args...)
}

func NotFound(reason, format string, args ...any) *Error {
	return newf(KindNotFound, reason, format, args...)
}

func Invalid(reason, format string, args ...any) *Error {
	return newf(KindInvalid, reason, format, args...)
}

func Conflict(reason, format string, args ...any) *Error {
	return newf(KindConflict, reason, format, args...)
}

// Internal оборачивает неожиданную ошибку; сообщение наружу не отдаётся.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// As достаёт *Error из цепочки; иные ошибки считаются INTERNAL.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return As(err).Kind
}

// ReasonOf возвращает reason или пустую строку.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	return As(err).Reason
}
