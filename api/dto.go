/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Entity views reuse the
  tontine types directly (they already carry JSON tags); this file holds
  request bodies and the composite responses the handlers assemble.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO:     Composite response types

TYPES:
  Members:     RegisterMemberRequest, ReplaceMemberRequest, MemberPenaltiesDTO
  Lifecycle:   CloseRequest, MigrateRequest, StateDTO
  Stubs:       MemberRequest, ApplyPenaltyRequest, WithdrawFeesRequest,
               DisputeDecisionRequest, AdvancePaymentRequest
  Aggregates:  BalanceDTO, BeneficiariesDTO, EngineDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
  - tontine/types.go: Entity JSON shapes
*/
package api

import (
	"github.com/warp/tontine-engine/generic"
	"github.com/warp/tontine-engine/tontine"
)

// =============================================================================
// MEMBERS
// =============================================================================

type RegisterMemberRequest struct {
	Address string `json:"address"`
}

type ReplaceMemberRequest struct {
	OldMember string `json:"old_member"`
	NewMember string `json:"new_member"`
}

// MemberPenaltiesDTO is the unpaid total plus every penalty record.
type MemberPenaltiesDTO struct {
	Member  tontine.Address   `json:"member"`
	Total   generic.Amount    `json:"total"`
	Records []tontine.Penalty `json:"records"`
}

// =============================================================================
// LIFECYCLE
// =============================================================================

type CloseRequest struct {
	Reason string `json:"reason"`
}

type MigrateRequest struct {
	NewCodeID uint64 `json:"new_code_id"`
	Note      string `json:"note"`
}

// StateDTO adds the derived phase to the stored flags.
type StateDTO struct {
	tontine.State
	Phase tontine.Phase `json:"phase"`
}

// =============================================================================
// PENALTIES, FEES, DISPUTES, ADVANCE PAYMENT
// =============================================================================

type MemberRequest struct {
	Member string `json:"member"`
}

type ApplyPenaltyRequest struct {
	Member string `json:"member"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type WithdrawFeesRequest struct {
	Amount string `json:"amount"`
}

// DisputeDecisionRequest serves both resolve and arbitrate.
type DisputeDecisionRequest struct {
	Member   string `json:"member"`
	Decision string `json:"decision"`
}

type AdvancePaymentRequest struct {
	Beneficiary string `json:"beneficiary"`
	Discount    string `json:"discount"`
}

// =============================================================================
// AGGREGATES
// =============================================================================

// EngineDTO reports the engine options a client needs to predict behavior.
type EngineDTO struct {
	AddressPrefix string                `json:"address_prefix"`
	AdvancePolicy tontine.AdvancePolicy `json:"advance_policy"`
}

type BalanceDTO struct {
	TontineBalance   generic.Amount `json:"tontine_balance"`
	AccumulatedFees  generic.Amount `json:"accumulated_fees"`
	PendingPenalties generic.Amount `json:"pending_penalties"`
	Denom            string         `json:"denom"`
}

type BeneficiariesDTO struct {
	Current       tontine.Address   `json:"current,omitempty"`
	Next          tontine.Address   `json:"next,omitempty"`
	Beneficiaries []tontine.Address `json:"beneficiaries"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Code    tontine.Code `json:"code,omitempty"`
	Details string       `json:"details,omitempty"`
}
