package artisan

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeNotFound             = "ARTISAN_NOT_FOUND"
	TextCodePreconditionFailed   = "ARTISAN_PRECONDITION_FAILED"
	TextCodeInvalidTransition    = "INVALID_ARTISAN_STATE_TRANSITION"
	TextCodeActionInProgress     = "ARTISAN_ACTION_IN_PROGRESS"
	TextCodeVerificationTimeout  = "ARTISAN_VERIFICATION_TIMEOUT"
	TextCodeInvalidVerifyOutcome = "ARTISAN_INVALID_VERIFICATION_OUTCOME"
)

// ErrNotFound is returned when an artisan id has no backing record.
var ErrNotFound = goerrors.New("artisan not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrPreconditionFailed is returned when an action is invoked while its status
// precondition is unmet, e.g. approving an artisan without a verified ID.
var ErrPreconditionFailed = goerrors.New("artisan action precondition failed", goerrors.CategoryValidation).
	WithTextCode(TextCodePreconditionFailed).
	WithCode(412)

// ErrInvalidTransition is returned when a requested status change is not in the
// lifecycle graph.
var ErrInvalidTransition = goerrors.New("invalid artisan state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrActionInProgress is returned when an action is triggered on a record that
// still has an outstanding action.
var ErrActionInProgress = goerrors.New("artisan action already in progress", goerrors.CategoryConflict).
	WithTextCode(TextCodeActionInProgress).
	WithCode(goerrors.CodeConflict)

// ErrVerificationTimeout is reported to the logger when an identity check runs
// past its deadline. The outcome itself resolves as failed.
var ErrVerificationTimeout = goerrors.New("identity verification timed out", goerrors.CategoryOperation).
	WithTextCode(TextCodeVerificationTimeout)

// ErrInvalidOutcome is returned by oracles that produce anything other than
// verified or failed.
var ErrInvalidOutcome = goerrors.New("invalid verification outcome", goerrors.CategoryInternal).
	WithTextCode(TextCodeInvalidVerifyOutcome)

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPreconditionFailed reports whether err is, or wraps, ErrPreconditionFailed.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}
