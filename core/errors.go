package core

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Kind classifies an error the way it is reported to callers.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindPermissionDenied   Kind = "permission-denied"
	KindInvalidArgument    Kind = "invalid-argument"
	KindProfileMissing     Kind = "profile-missing"
	KindInternal           Kind = "internal"
	KindConfigurationFault Kind = "configuration-fault" // a subset of KindInternal
)

// CredentialsMessage is the only message shown for a failed sign-in.
const CredentialsMessage = "invalid email or password, please check your credentials and try again"

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func NewError(kind Kind, msg string, err ...error) error {
	e := &Error{Kind: kind, Message: msg}
	if len(err) > 0 {
		e.Err = err[0]
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error found in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ve *ValidationError
	var fe validator.ValidationErrors
	if errors.As(err, &ve) || errors.As(err, &fe) {
		return KindInvalidArgument
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsInternal(err error) bool {
	kind := KindOf(err)
	return kind == KindInternal || kind == KindConfigurationFault
}

func IsConfigurationFault(err error) bool {
	return IsKind(err, KindConfigurationFault)
}

var backendPrefixRegex = regexp.MustCompile(`(?i:\b(pq|firebase|firestore)\s*:\s*)|rpc error: code = \w+ desc = `)

// StripBackendPrefix removes storage and identity backend prefixes from a message.
// e.g. "Firebase: Error (auth/user-not-found)." -> "Error (auth/user-not-found)."
func StripBackendPrefix(msg string) string {
	return strings.TrimSpace(backendPrefixRegex.ReplaceAllString(msg, ""))
}

// UserMessage renders the message shown to end users for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the request timed out, please try again"
	}

	var e *Error
	if !errors.As(err, &e) {
		return "an internal error occurred"
	}
	switch e.Kind {
	case KindUnauthenticated:
		if e.Message != "" {
			return e.Message
		}
		return CredentialsMessage
	case KindInternal, KindConfigurationFault:
		return StripBackendPrefix(e.Error())
	}
	if e.Message != "" {
		return e.Message
	}
	return StripBackendPrefix(e.Error())
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
