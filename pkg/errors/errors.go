package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindInvalidState
	KindProvider
	KindTimeout
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindProvider:
		return "provider"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by kind so sentinel-style errors.Is checks
// keep working across wrapping.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if !errors.As(target, &appErr) {
		return false
	}
	return e.Kind == appErr.Kind
}

// Error constructors
func NewValidation(message string, err error) *AppError {
	return &AppError{Kind: KindValidation, Message: message, Err: err}
}

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewInvalidState(message string, err error) *AppError {
	return &AppError{Kind: KindInvalidState, Message: message, Err: err}
}

func NewProvider(message string, err error) *AppError {
	return &AppError{Kind: KindProvider, Message: message, Err: err}
}

func NewTimeout(message string, err error) *AppError {
	return &AppError{Kind: KindTimeout, Message: message, Err: err}
}

func NewInternal(err error) *AppError {
	return &AppError{Kind: KindInternal, Message: "internal error", Err: err}
}

func kindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}

func IsValidation(err error) bool   { return kindOf(err) == KindValidation }
func IsNotFound(err error) bool     { return kindOf(err) == KindNotFound }
func IsInvalidState(err error) bool { return kindOf(err) == KindInvalidState }
func IsProvider(err error) bool     { return kindOf(err) == KindProvider }
func IsTimeout(err error) bool      { return kindOf(err) == KindTimeout }

// Retryable reports whether a dispatch failure should consume a retry
// slot instead of aborting processing. Only provider and timeout
// failures drive the retry ladder.
func Retryable(err error) bool {
	k := kindOf(err)
	return k == KindProvider || k == KindTimeout
}
