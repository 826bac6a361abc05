package service

import (
	"errors"
	"fmt"
)

// ReasonInternalError is reported when the rules engine faults
const ReasonInternalError = "internal-error"

var (
	ErrValidation    = errors.New("validation error")
	ErrOutOfTurn     = errors.New("out of turn")
	ErrInvalidState  = errors.New("invalid state")
	ErrRulesRejected = errors.New("rejected by rules")
)

// RejectedError reports a move the rules engine refused
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRulesRejected, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrRulesRejected
}

// Code maps an error to its wire code
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrOutOfTurn):
		return "out_of_turn"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrRulesRejected):
		return "rules_rejected"
	}
	return "internal"
}

// Reason extracts a client-facing reason from err
func Reason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
