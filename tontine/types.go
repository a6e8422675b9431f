// Package tontine implements the rotating-savings accounting engine: member
// lifecycle, round progression, deposits, fee computation, and payouts,
// gated by a role-based access policy and persisted through a generic.TxStore.
package tontine

import (
	"time"

	"github.com/warp/tontine-engine/generic"
)

// Address identifies an account on the host chain.
type Address string

func (a Address) String() string { return string(a) }

// =============================================================================
// CONFIG - Immutable after creation
// =============================================================================

type Config struct {
	Admin          Address        `json:"admin"`
	Arbitrator     Address        `json:"arbitrator"`
	Denom          string         `json:"token_denom"`
	Contribution   generic.Amount `json:"contribution_amount"`
	RoundFrequency time.Duration  `json:"round_frequency"`
	Beneficiaries  []Address      `json:"beneficiaries"`
	LatePenalty    generic.Amount `json:"late_penalty"`
	ProtocolFee    generic.Amount `json:"protocol_fees"`
	TimeGuards     time.Duration  `json:"time_guards"`
}

// IsBeneficiary reports whether addr is in the configured list.
func (c *Config) IsBeneficiary(addr Address) bool {
	for _, b := range c.Beneficiaries {
		if b == addr {
			return true
		}
	}
	return false
}

// =============================================================================
// STATE - Lifecycle flags and round counters
// =============================================================================

type State struct {
	IsActive      bool      `json:"is_active"`
	IsPaused      bool      `json:"is_paused"`
	IsFinished    bool      `json:"is_finished"`
	CurrentRound  uint64    `json:"current_round"`
	TotalRounds   uint64    `json:"total_rounds"`
	StartTime     time.Time `json:"start_time,omitempty"`
	LastRoundTime time.Time `json:"last_round_time,omitempty"`
	// Schedule is the beneficiary order frozen at Start.
	Schedule    []Address `json:"schedule,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
}

// Phase derives the lifecycle phase from the persisted flags.
func (s *State) Phase() Phase {
	switch {
	case s.IsFinished:
		return PhaseFinished
	case s.IsActive && s.IsPaused:
		return PhasePaused
	case s.IsActive:
		return PhaseActive
	default:
		return PhaseNotStarted
	}
}

// RoundInProgress is the guard used by Remove and Replace.
func (s *State) RoundInProgress() bool {
	return s.IsActive && s.CurrentRound > 0
}

// BeneficiaryFor returns the scheduled beneficiary of round n (1-based).
func (s *State) BeneficiaryFor(n uint64) (Address, bool) {
	if n == 0 || n > uint64(len(s.Schedule)) {
		return "", false
	}
	return s.Schedule[n-1], true
}

// =============================================================================
// MEMBER
// =============================================================================

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInactive  MemberStatus = "inactive"
	MemberSuspended MemberStatus = "suspended"
	MemberReplaced  MemberStatus = "replaced"
	MemberExcluded  MemberStatus = "excluded"
)

func (s MemberStatus) IsValid() bool {
	switch s {
	case MemberActive, MemberInactive, MemberSuspended, MemberReplaced, MemberExcluded:
		return true
	}
	return false
}

type Member struct {
	Address          Address        `json:"address"`
	Status           MemberStatus   `json:"status"`
	Balance          generic.Amount `json:"balance"`
	Penalties        generic.Amount `json:"penalties"`
	LastContribution *time.Time     `json:"last_contribution,omitempty"`
	IsLate           bool           `json:"is_late"`
	RegisteredAt     time.Time      `json:"registration_time"`
	ReplacedBy       Address        `json:"replaced_by,omitempty"`
}

// =============================================================================
// ROUND
// =============================================================================

type RoundState string

const (
	RoundPending     RoundState = "pending"
	RoundActive      RoundState = "active"
	RoundCompleted   RoundState = "completed"
	RoundDistributed RoundState = "distributed"
	RoundFailed      RoundState = "failed"
)

func (s RoundState) IsValid() bool {
	switch s {
	case RoundPending, RoundActive, RoundCompleted, RoundDistributed, RoundFailed:
		return true
	}
	return false
}

type Round struct {
	Number           uint64         `json:"round_number"`
	State            RoundState     `json:"state"`
	Balance          generic.Amount `json:"balance"`
	Beneficiary      Address        `json:"beneficiary"`
	Deadline         time.Time      `json:"deadline"`
	Deposits         []Deposit      `json:"deposits"`
	IsDistributed    bool           `json:"is_distributed"`
	DistributionTime *time.Time     `json:"distribution_time,omitempty"`
}

// HasDeposit reports whether addr already contributed to this round.
func (r *Round) HasDeposit(addr Address) bool {
	for _, d := range r.Deposits {
		if d.Member == addr {
			return true
		}
	}
	return false
}

// DepositTotal sums the deposit amounts. Equals Balance for every stored round.
func (r *Round) DepositTotal() generic.Amount {
	total := generic.Amount{}
	for _, d := range r.Deposits {
		total = total.Add(d.Amount)
	}
	return total
}

type Deposit struct {
	Member    Address        `json:"member"`
	Amount    generic.Amount `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
	IsLate    bool           `json:"is_late"`
}

// =============================================================================
// PENALTY / DISTRIBUTION / ESCROW / FEES / DISPUTE
// =============================================================================

type Penalty struct {
	Member    Address        `json:"member"`
	Amount    generic.Amount `json:"amount"`
	Reason    string         `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
	IsPaid    bool           `json:"is_paid"`
	PaidAt    *time.Time     `json:"payment_time,omitempty"`
}

type Distribution struct {
	Round       uint64         `json:"round_number"`
	Beneficiary Address        `json:"beneficiary"`
	Amount      generic.Amount `json:"amount"`
	Fees        generic.Amount `json:"fees"`
	Timestamp   time.Time      `json:"timestamp"`
}

type EscrowState struct {
	IsLocked      bool           `json:"is_locked"`
	LockedAmount  generic.Amount `json:"locked_amount"`
	LockReason    string         `json:"lock_reason,omitempty"`
	LockTimestamp *time.Time     `json:"lock_timestamp,omitempty"`
}

// Fees is the running total of protocol fees retained at distribution.
type Fees struct {
	Total generic.Amount `json:"total"`
}

type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeClosed      DisputeStatus = "closed"
)

type Dispute struct {
	Member     Address       `json:"member"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	OpenedAt   time.Time     `json:"opened_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	Resolution string        `json:"resolution,omitempty"`
}

// IsPending reports whether the dispute still needs a decision.
func (d *Dispute) IsPending() bool {
	return d.Status == DisputeOpen || d.Status == DisputeUnderReview
}

// =============================================================================
// RECEIPT - Result of a mutating operation
// =============================================================================

// Effect tells the caller whether the business effect was applied.
type Effect string

const (
	EffectApplied  Effect = "applied"
	EffectDeferred Effect = "deferred"
)

// Transfer is a payment instruction for the host. The engine never moves funds.
type Transfer struct {
	To     Address        `json:"to"`
	Denom  string         `json:"denom"`
	Amount generic.Amount `json:"amount"`
}

type Receipt struct {
	Action    Action        `json:"action"`
	Effect    Effect        `json:"effect"`
	Event     generic.Event `json:"event"`
	Transfers []Transfer    `json:"transfers,omitempty"`
}

// Call carries the caller identity and the host-supplied time.
type Call struct {
	Sender Address
	Now    time.Time
}
