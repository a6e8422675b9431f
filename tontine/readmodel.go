/*
readmodel.go - Read-only views over the entity store

PURPOSE:
  Reader answers every query of the command surface: configuration,
  per-member and per-round views, aggregate balances, fee and penalty
  totals, history, and statistics. It never writes.

DERIVED VALUES:
  TontineBalance     = balances of rounds not yet distributed + accumulated fees
  TotalContributions = sum of every round balance
  TotalDistributions = sum of distribution amounts
  PendingPenalties   = sum of unpaid penalty records
  CompletedRounds    = rounds in state Distributed

SEE ALSO:
  - repository.go: Namespaces and keys
  - api/handlers.go: HTTP exposure
*/
package tontine

import (
	"context"
	"time"

	"github.com/warp/tontine-engine/generic"
)

type Reader struct {
	repo *repository
}

func NewReader(store generic.EntityStore) *Reader {
	return &Reader{repo: newRepository(store)}
}

// =============================================================================
// CONFIG & STATE
// =============================================================================

func (r *Reader) Config(ctx context.Context) (*Config, error) {
	return r.repo.config(ctx)
}

func (r *Reader) Admin(ctx context.Context) (Address, error) {
	cfg, err := r.repo.config(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Admin, nil
}

func (r *Reader) Arbitrator(ctx context.Context) (Address, error) {
	cfg, err := r.repo.config(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Arbitrator, nil
}

func (r *Reader) State(ctx context.Context) (*State, error) {
	return r.repo.state(ctx)
}

func (r *Reader) TimeGuards(ctx context.Context) (time.Duration, error) {
	cfg, err := r.repo.config(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.TimeGuards, nil
}

func (r *Reader) RoundFrequency(ctx context.Context) (time.Duration, error) {
	cfg, err := r.repo.config(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.RoundFrequency, nil
}

// EscrowState returns the escrow lock. A lock over zero is reported as invalid.
func (r *Reader) EscrowState(ctx context.Context) (*EscrowState, error) {
	es, err := r.repo.escrow(ctx)
	if err != nil {
		return nil, err
	}
	if es.IsLocked && !es.LockedAmount.IsPositive() {
		return nil, newError(ErrConflict, CodeInvalidEscrowState, "escrow locked without an amount").
			withState("> 0", es.LockedAmount.String())
	}
	return es, nil
}

func (r *Reader) Events(ctx context.Context) ([]generic.Event, error) {
	return r.repo.events(ctx)
}

// =============================================================================
// MEMBERS
// =============================================================================

func (r *Reader) Members(ctx context.Context) ([]Member, error) {
	return r.repo.members(ctx)
}

func (r *Reader) Member(ctx context.Context, addr Address) (*Member, error) {
	return r.repo.member(ctx, addr)
}

func (r *Reader) MemberStatus(ctx context.Context, addr Address) (MemberStatus, error) {
	m, err := r.repo.member(ctx, addr)
	if err != nil {
		return "", err
	}
	return m.Status, nil
}

func (r *Reader) MemberBalance(ctx context.Context, addr Address) (generic.Amount, error) {
	m, err := r.repo.member(ctx, addr)
	if err != nil {
		return generic.Amount{}, err
	}
	return m.Balance, nil
}

func (r *Reader) MemberPenalties(ctx context.Context, addr Address) (generic.Amount, []Penalty, error) {
	m, err := r.repo.member(ctx, addr)
	if err != nil {
		return generic.Amount{}, nil, err
	}
	records, err := r.repo.penaltiesOf(ctx, addr)
	if err != nil {
		return generic.Amount{}, nil, err
	}
	return m.Penalties, records, nil
}

func (r *Reader) MemberCount(ctx context.Context) (int, error) {
	members, err := r.repo.members(ctx)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// =============================================================================
// ROUNDS
// =============================================================================

// CurrentRound returns the round the tontine points at, or NoActiveRound
// before Start.
func (r *Reader) CurrentRound(ctx context.Context) (*Round, error) {
	st, err := r.repo.state(ctx)
	if err != nil {
		return nil, err
	}
	if st.CurrentRound == 0 {
		return nil, newError(ErrNotFound, CodeNoActiveRound, "no round has been opened")
	}
	return r.repo.round(ctx, st.CurrentRound)
}

func (r *Reader) Round(ctx context.Context, n uint64) (*Round, error) {
	return r.repo.round(ctx, n)
}

func (r *Reader) Rounds(ctx context.Context) ([]Round, error) {
	return r.repo.rounds(ctx)
}

func (r *Reader) RoundDeposits(ctx context.Context, n uint64) ([]Deposit, error) {
	rd, err := r.repo.round(ctx, n)
	if err != nil {
		return nil, err
	}
	return rd.Deposits, nil
}

func (r *Reader) RoundState(ctx context.Context, n uint64) (RoundState, error) {
	rd, err := r.repo.round(ctx, n)
	if err != nil {
		return "", err
	}
	return rd.State, nil
}

func (r *Reader) RoundDeadline(ctx context.Context, n uint64) (time.Time, error) {
	rd, err := r.repo.round(ctx, n)
	if err != nil {
		return time.Time{}, err
	}
	return rd.Deadline, nil
}

func (r *Reader) RoundBalance(ctx context.Context, n uint64) (generic.Amount, error) {
	rd, err := r.repo.round(ctx, n)
	if err != nil {
		return generic.Amount{}, err
	}
	return rd.Balance, nil
}

// =============================================================================
// BENEFICIARIES
// =============================================================================

func (r *Reader) Beneficiaries(ctx context.Context) ([]Address, error) {
	cfg, err := r.repo.config(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Beneficiaries, nil
}

// ScheduleEntry pairs a round number with its beneficiary.
type ScheduleEntry struct {
	Round       uint64  `json:"round"`
	Beneficiary Address `json:"beneficiary"`
}

// BeneficiarySchedule returns the frozen schedule after Start, or the
// configured order before it.
func (r *Reader) BeneficiarySchedule(ctx context.Context) ([]ScheduleEntry, error) {
	st, err := r.repo.state(ctx)
	if err != nil {
		return nil, err
	}
	order := st.Schedule
	if len(order) == 0 {
		cfg, err := r.repo.config(ctx)
		if err != nil {
			return nil, err
		}
		order = cfg.Beneficiaries
	}
	out := make([]ScheduleEntry, len(order))
	for i, b := range order {
		out[i] = ScheduleEntry{Round: uint64(i + 1), Beneficiary: b}
	}
	return out, nil
}

func (r *Reader) CurrentBeneficiary(ctx context.Context) (Address, error) {
	rd, err := r.CurrentRound(ctx)
	if err != nil {
		return "", err
	}
	return rd.Beneficiary, nil
}

// NextBeneficiary returns the beneficiary of round CurrentRound+1, or ""
// when no round remains.
func (r *Reader) NextBeneficiary(ctx context.Context) (Address, error) {
	st, err := r.repo.state(ctx)
	if err != nil {
		return "", err
	}
	next, _ := st.BeneficiaryFor(st.CurrentRound + 1)
	return next, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (r *Reader) DistributionHistory(ctx context.Context) ([]Distribution, error) {
	return r.repo.distributions(ctx)
}

func (r *Reader) Distribution(ctx context.Context, n uint64) (*Distribution, error) {
	return r.repo.distribution(ctx, n)
}

func (r *Reader) PenaltyHistory(ctx context.Context) ([]Penalty, error) {
	return r.repo.penalties(ctx)
}

// DepositRecord is a deposit tagged with its round.
type DepositRecord struct {
	Round uint64 `json:"round"`
	Deposit
}

func (r *Reader) DepositHistory(ctx context.Context) ([]DepositRecord, error) {
	rounds, err := r.repo.rounds(ctx)
	if err != nil {
		return nil, err
	}
	var out []DepositRecord
	for _, rd := range rounds {
		for _, d := range rd.Deposits {
			out = append(out, DepositRecord{Round: rd.Number, Deposit: d})
		}
	}
	return out, nil
}

// Disputes lists disputes still awaiting a decision.
func (r *Reader) Disputes(ctx context.Context) ([]Dispute, error) {
	all, err := r.repo.disputes(ctx)
	if err != nil {
		return nil, err
	}
	var out []Dispute
	for _, d := range all {
		if d.IsPending() {
			out = append(out, d)
		}
	}
	return out, nil
}

// =============================================================================
// AGGREGATES
// =============================================================================

func (r *Reader) AccumulatedFees(ctx context.Context) (generic.Amount, error) {
	f, err := r.repo.fees(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	return f.Total, nil
}

// TotalFees is the fee total as recorded on distributions.
func (r *Reader) TotalFees(ctx context.Context) (generic.Amount, error) {
	dists, err := r.repo.distributions(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	total := generic.Amount{}
	for _, d := range dists {
		total = total.Add(d.Fees)
	}
	return total, nil
}

func (r *Reader) TontineBalance(ctx context.Context) (generic.Amount, error) {
	rounds, err := r.repo.rounds(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	fees, err := r.repo.fees(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	held := fees.Total
	for _, rd := range rounds {
		if !rd.IsDistributed {
			held = held.Add(rd.Balance)
		}
	}
	return held, nil
}

func (r *Reader) TotalContributions(ctx context.Context) (generic.Amount, error) {
	rounds, err := r.repo.rounds(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	total := generic.Amount{}
	for _, rd := range rounds {
		total = total.Add(rd.Balance)
	}
	return total, nil
}

func (r *Reader) TotalDistributions(ctx context.Context) (generic.Amount, error) {
	dists, err := r.repo.distributions(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	total := generic.Amount{}
	for _, d := range dists {
		total = total.Add(d.Amount)
	}
	return total, nil
}

func (r *Reader) TotalPenalties(ctx context.Context) (generic.Amount, error) {
	penalties, err := r.repo.penalties(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	total := generic.Amount{}
	for _, p := range penalties {
		total = total.Add(p.Amount)
	}
	return total, nil
}

func (r *Reader) PendingPenalties(ctx context.Context) (generic.Amount, error) {
	penalties, err := r.repo.penalties(ctx)
	if err != nil {
		return generic.Amount{}, err
	}
	total := generic.Amount{}
	for _, p := range penalties {
		if !p.IsPaid {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

type Statistics struct {
	MemberCount        int            `json:"member_count"`
	TotalContributions generic.Amount `json:"total_contributions"`
	TotalDistributions generic.Amount `json:"total_distributions"`
	TotalPenalties     generic.Amount `json:"total_penalties"`
	TotalFees          generic.Amount `json:"total_fees"`
	ActiveRounds       int            `json:"active_rounds"`
	CompletedRounds    int            `json:"completed_rounds"`
}

func (r *Reader) Statistics(ctx context.Context) (*Statistics, error) {
	members, err := r.repo.members(ctx)
	if err != nil {
		return nil, err
	}
	rounds, err := r.repo.rounds(ctx)
	if err != nil {
		return nil, err
	}
	distributed, err := r.TotalDistributions(ctx)
	if err != nil {
		return nil, err
	}
	penalties, err := r.TotalPenalties(ctx)
	if err != nil {
		return nil, err
	}
	fees, err := r.AccumulatedFees(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		MemberCount:        len(members),
		TotalDistributions: distributed,
		TotalPenalties:     penalties,
		TotalFees:          fees,
	}
	for _, rd := range rounds {
		stats.TotalContributions = stats.TotalContributions.Add(rd.Balance)
		switch rd.State {
		case RoundActive:
			stats.ActiveRounds++
		case RoundDistributed:
			stats.CompletedRounds++
		}
	}
	return stats, nil
}
