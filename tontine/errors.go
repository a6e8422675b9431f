/*
errors.go - Error taxonomy of the accounting engine

PURPOSE:
  Every rejected operation returns a *Error. Its Kind is one of the sentinel
  categories below so callers can branch with errors.Is; its Code names the
  exact violated precondition; Entity, Expected and Actual carry enough state
  to diagnose the failure without reloading records.

ERROR CATEGORIES:
  ErrUnauthorized - caller lacks the role the action requires
  ErrNotFound     - member, round, or config record absent
  ErrConflict     - duplicate, or wrong lifecycle state for the transition
  ErrValidation   - malformed amount or address, invalid configuration
  ErrTiming       - deadline not reached or already passed
  ErrArithmetic   - checked arithmetic failed

  None of these is retryable by the engine. The caller must fix its input or
  wait for a state change.

USAGE:
  _, err := engine.Deposit(ctx, call)
  if errors.Is(err, tontine.ErrConflict) {
      if tontine.CodeOf(err) == tontine.CodeMemberAlreadyContributed { ... }
  }

SEE ALSO:
  - generic/errors.go: Store and amount errors wrapped here
  - api/handlers.go: Kind to HTTP status mapping
*/
package tontine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/tontine-engine/generic"
)

// =============================================================================
// SENTINEL KINDS - Use with errors.Is()
// =============================================================================

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrTiming       = errors.New("timing violation")
	ErrArithmetic   = errors.New("arithmetic error")
)

// Code names the violated precondition.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"

	CodeConfigNotFound Code = "config_not_found"
	CodeMemberNotFound Code = "member_not_found"
	CodeRoundNotFound  Code = "round_not_found"

	CodeAlreadyInstantiated            Code = "already_instantiated"
	CodeMemberAlreadyExists            Code = "member_already_exists"
	CodeTontineNotStarted              Code = "tontine_not_started"
	CodeTontineAlreadyStarted          Code = "tontine_already_started"
	CodeTontineAlreadyFinished         Code = "tontine_already_finished"
	CodeTontinePaused                  Code = "tontine_paused"
	CodeTontineNotPaused               Code = "tontine_not_paused"
	CodeNoActiveRound                  Code = "no_active_round"
	CodeRoundNotActive                 Code = "round_not_active"
	CodeRoundAlreadyDistributed        Code = "round_already_distributed"
	CodeRoundNotDistributed            Code = "round_not_distributed"
	CodeRoundsRemaining                Code = "rounds_remaining"
	CodeNoRemainingRounds              Code = "no_remaining_rounds"
	CodeMemberAlreadyContributed       Code = "member_already_contributed"
	CodeMemberHasPenalties             Code = "member_has_penalties"
	CodeInvalidMemberState             Code = "invalid_member_state"
	CodeCannotReplaceDuringActiveRound Code = "cannot_replace_during_active_round"
	CodeInvalidMemberManagement        Code = "invalid_member_management"

	CodeInvalidAmount             Code = "invalid_amount"
	CodeInvalidAddress            Code = "invalid_address"
	CodeInvalidDenom              Code = "invalid_token_denom"
	CodeInvalidContributionAmount Code = "invalid_contribution_amount"
	CodeInvalidRoundFrequency     Code = "invalid_round_frequency"
	CodeInvalidBeneficiariesList  Code = "invalid_beneficiaries_list"
	CodeInvalidLatePenaltyAmount  Code = "invalid_late_penalty_amount"
	CodeInvalidProtocolFeesAmount Code = "invalid_protocol_fees_amount"
	CodeInvalidTimeGuards         Code = "invalid_time_guards"
	CodeInvalidDiscount           Code = "invalid_discount"
	CodeInvalidMigration          Code = "invalid_migration"
	CodeInvalidEscrowState        Code = "invalid_escrow_state"

	CodeRoundDeadlineNotReached Code = "round_deadline_not_reached"

	CodeFeeUnderflow Code = "fee_underflow"
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

type Error struct {
	Kind     error
	Code     Code
	Message  string
	Entity   string
	Expected string
	Actual   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Entity != "" {
		fmt.Fprintf(&b, " [%s]", e.Entity)
	}
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&b, " (expected %s, got %s)", e.Expected, e.Actual)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func (e *Error) withEntity(entity string) *Error {
	e.Entity = entity
	return e
}

func (e *Error) withState(expected, actual string) *Error {
	e.Expected = expected
	e.Actual = actual
	return e
}

func (e *Error) wrap(err error) *Error {
	e.Err = err
	return e
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

func unauthorized(action Action, sender Address, roles RoleSet) *Error {
	return newError(ErrUnauthorized, CodeUnauthorized,
		fmt.Sprintf("%s requires %s", action, roles)).
		withEntity(string(sender))
}

func memberNotFound(addr Address) *Error {
	return newError(ErrNotFound, CodeMemberNotFound, "member is not registered").withEntity(string(addr))
}

func memberAlreadyExists(addr Address) *Error {
	return newError(ErrConflict, CodeMemberAlreadyExists, "member is already registered").withEntity(string(addr))
}

func roundNotFound(n uint64) *Error {
	return newError(ErrNotFound, CodeRoundNotFound, "round does not exist").withEntity(fmt.Sprintf("round %d", n))
}

func configNotFound() *Error {
	return newError(ErrNotFound, CodeConfigNotFound, "tontine has not been instantiated")
}

func memberHasPenalties(m *Member) *Error {
	return newError(ErrConflict, CodeMemberHasPenalties, "member has outstanding penalties").
		withEntity(string(m.Address)).
		withState("0", m.Penalties.String())
}

func cannotReplaceDuringActiveRound(s *State) *Error {
	return newError(ErrConflict, CodeCannotReplaceDuringActiveRound, "a round is in progress").
		withState("no round in progress", fmt.Sprintf("round %d", s.CurrentRound))
}

func invalidMemberManagement(msg string) *Error {
	return newError(ErrConflict, CodeInvalidMemberManagement, msg)
}

func validationError(code Code, msg string) *Error {
	return newError(ErrValidation, code, msg)
}

func invalidAmount(field string, err error) *Error {
	return newError(ErrValidation, CodeInvalidAmount, field).wrap(err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsClientError returns true if the caller can fix the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTiming)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable is false for every domain error; only store conflicts qualify.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return false
	}
	return generic.IsRetryable(err)
}
