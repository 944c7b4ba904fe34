/*

Registered errors for the pool. Every handler failure wraps one of these so callers can
classify it with errors.Is regardless of the message attached.

*/

package types

import (
	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace used for every registered pool error.
const ModuleName = "dpool"

var (
	// authorization: wrong caller for a privileged or self-only operation
	ErrUnauthorized = errorsmod.Register(ModuleName, 2, "unauthorized")
	// malformed request: missing or undecodable payload
	ErrMalformedRequest = errorsmod.Register(ModuleName, 3, "malformed request")
	// precondition: zero or missing deposit of the stable denom
	ErrInvalidDeposit = errorsmod.Register(ModuleName, 4, "invalid deposit")
	// precondition: more than one coin attached
	ErrUnsupportedAsset = errorsmod.Register(ModuleName, 5, "unsupported asset")
	// arithmetic: negative intermediate, division by zero
	ErrArithmetic = errorsmod.Register(ModuleName, 6, "arithmetic error")
	// precondition: dp token has not registered yet
	ErrTokenNotRegistered = errorsmod.Register(ModuleName, 7, "deposit token not registered")
	ErrInvalidConfig      = errorsmod.Register(ModuleName, 8, "invalid config")
	ErrQueryFailed        = errorsmod.Register(ModuleName, 9, "collaborator query failed")
	ErrUnknownVariant     = errorsmod.Register(ModuleName, 10, "unknown message variant")
	ErrInvalidAddress     = errorsmod.Register(ModuleName, 11, "invalid address")
)
