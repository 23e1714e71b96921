package ledger

import "errors"

var (
	// ErrWriteProtection is returned when a static call tries to modify state
	ErrWriteProtection = errors.New("write protection")

	// ErrDepth is returned when the call stack exceeds its limit
	ErrDepth = errors.New("max call depth exceeded")

	// ErrNoCode is returned when a transaction targets an account without code
	ErrNoCode = errors.New("no contract code at address")

	// ErrContractExists is returned when a deployment collides with existing code
	ErrContractExists = errors.New("contract address collision")

	// ErrNoSelector is returned for calldata shorter than a method selector
	ErrNoSelector = errors.New("calldata too short for selector")

	// ErrUnknownSelector is returned when no method matches the selector
	ErrUnknownSelector = errors.New("unknown method selector")
)
