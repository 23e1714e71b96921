package wyvern

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParam represents an invalid parameter error
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrAPI represents a failed API call
	ErrAPI = errors.New("api error")

	// ErrJournalDisabled is returned by event queries when no journal is configured
	ErrJournalDisabled = errors.New("event journal disabled")

	// ErrClientClosed is returned after Close
	ErrClientClosed = errors.New("client closed")

	// ErrActionSignature is returned when no signer can be recovered for an action
	ErrActionSignature = errors.New("invalid action signature")

	// ErrActionDomain is returned for actions signed for another exchange
	ErrActionDomain = errors.New("action signed for another exchange")

	// ErrActionExpired is returned for actions past their expiry
	ErrActionExpired = errors.New("action expired")

	// ErrActionReplayed is returned for actions that already ran
	ErrActionReplayed = errors.New("action already executed")
)

// InvalidParamError represents an invalid parameter error with context
type InvalidParamError struct {
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}

func (e *InvalidParamError) Unwrap() error {
	return ErrInvalidParam
}

func invalidParam(format string, args ...any) error {
	return &InvalidParamError{Message: fmt.Sprintf(format, args...)}
}

// APIError is a non-2xx answer from the wyvernd API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}
