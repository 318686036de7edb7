// Package apierr defines the error taxonomy shared by all three services.
// Each kind maps to exactly one HTTP status and one gRPC code, and carries a
// stable machine-readable discriminator so clients can branch without
// parsing message text.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind classifies a failure independent of transport.
type Kind string

const (
	KindInputInvalid          Kind = "input_invalid"
	KindAuthMissing           Kind = "auth_missing"
	KindAuthInvalid           Kind = "auth_invalid"
	KindAuthExpired           Kind = "auth_expired"
	KindTwoFactorRequired     Kind = "two_factor_required"
	KindTwoFactorInvalid      Kind = "two_factor_invalid"
	KindNotFound              Kind = "not_found"
	KindConflictState         Kind = "conflict_state"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindInternal              Kind = "internal"
)

// Error is the concrete error value handlers inspect and surface.
type Error struct {
	Kind    Kind
	Message string

	// ProductID and Available are set for product-scoped failures
	// (unknown product, inventory shortfall).
	ProductID int64
	Available int32

	cause error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause while classifying it under kind.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// ForProduct builds a product-scoped error (unknown product or shortfall).
func ForProduct(kind Kind, productID int64, available int32, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		ProductID: productID,
		Available: available,
	}
}

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError returns the *Error inside err, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatus maps a kind to its single transport status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInputInvalid, KindTwoFactorRequired, KindInsufficientInventory:
		return http.StatusBadRequest
	case KindAuthMissing, KindAuthInvalid, KindAuthExpired, KindTwoFactorInvalid:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflictState:
		return http.StatusConflict
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a kind to its gRPC status code.
func GRPCCode(kind Kind) codes.Code {
	switch kind {
	case KindInputInvalid:
		return codes.InvalidArgument
	case KindAuthMissing, KindAuthInvalid, KindAuthExpired, KindTwoFactorRequired, KindTwoFactorInvalid:
		return codes.Unauthenticated
	case KindNotFound:
		return codes.NotFound
	case KindConflictState, KindInsufficientInventory:
		return codes.FailedPrecondition
	case KindDependencyUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
