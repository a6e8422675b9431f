package tontine

import (
	"context"
	"strconv"
)

// =============================================================================
// ROUND OPERATIONS
// =============================================================================

// currentRound loads the round the state points at.
func (o *op) currentRound() (*Round, error) {
	if o.state.CurrentRound == 0 {
		return nil, newError(ErrConflict, CodeNoActiveRound, "no round has been opened")
	}
	return o.repo.round(o.ctx, o.state.CurrentRound)
}

func roundNotActive(r *Round) *Error {
	return newError(ErrConflict, CodeRoundNotActive, "round is not accepting operations").
		withEntity("round " + formatRound(r.Number)).
		withState(string(RoundActive), string(r.State))
}

// Deposit records the sender's contribution to the current round. The amount
// is always Config.Contribution.
func (e *Engine) Deposit(ctx context.Context, call Call) (*Receipt, error) {
	return e.execute(ctx, call, ActionDepositContribution, "", func(o *op) (*Receipt, error) {
		if err := requireRunning(o.state); err != nil {
			return nil, err
		}
		round, err := o.currentRound()
		if err != nil {
			return nil, err
		}
		if round.State != RoundActive {
			return nil, roundNotActive(round)
		}
		m, err := o.repo.member(o.ctx, call.Sender)
		if err != nil {
			return nil, err
		}
		if m.Status != MemberActive {
			return nil, newError(ErrConflict, CodeInvalidMemberState, "member is not active").
				withEntity(string(m.Address)).
				withState(string(MemberActive), string(m.Status))
		}
		if round.HasDeposit(m.Address) {
			return nil, newError(ErrConflict, CodeMemberAlreadyContributed, "member already contributed this round").
				withEntity(string(m.Address))
		}
		if m.Penalties.IsPositive() {
			return nil, memberHasPenalties(m)
		}

		now := o.call.Now
		late := now.After(round.Deadline)
		amount := o.cfg.Contribution

		round.Deposits = append(round.Deposits, Deposit{
			Member:    m.Address,
			Amount:    amount,
			Timestamp: now,
			IsLate:    late,
		})
		round.Balance = round.Balance.Add(amount)

		m.IsLate = late
		m.LastContribution = &now
		m.Balance = m.Balance.Add(amount)

		if err := o.repo.saveRound(o.ctx, round); err != nil {
			return nil, err
		}
		if err := o.repo.saveMember(o.ctx, m); err != nil {
			return nil, err
		}

		return applied(ActionDepositContribution, map[string]string{
			"member":  string(m.Address),
			"round":   formatRound(round.Number),
			"amount":  amount.String(),
			"is_late": strconv.FormatBool(late),
		}), nil
	})
}

// Distribute pays the current round's balance, minus protocol fees, to its
// beneficiary. Requires the deadline to have passed.
func (e *Engine) Distribute(ctx context.Context, call Call) (*Receipt, error) {
	return e.execute(ctx, call, ActionDistribute, "", func(o *op) (*Receipt, error) {
		if err := requireRunning(o.state); err != nil {
			return nil, err
		}
		round, err := o.currentRound()
		if err != nil {
			return nil, err
		}
		if round.IsDistributed || round.State == RoundDistributed {
			return nil, newError(ErrConflict, CodeRoundAlreadyDistributed, "round already distributed").
				withEntity("round " + formatRound(round.Number))
		}
		if round.State != RoundActive {
			return nil, roundNotActive(round)
		}
		now := o.call.Now
		if !now.After(round.Deadline) {
			return nil, newError(ErrTiming, CodeRoundDeadlineNotReached, "round deadline not reached").
				withEntity("round "+formatRound(round.Number)).
				withState("after "+formatTime(round.Deadline), formatTime(now))
		}
		recorded, err := o.repo.hasDistribution(o.ctx, round.Number)
		if err != nil {
			return nil, err
		}
		if recorded {
			return nil, newError(ErrConflict, CodeRoundAlreadyDistributed, "distribution already recorded").
				withEntity("round " + formatRound(round.Number))
		}
		fees, err := o.repo.fees(o.ctx)
		if err != nil {
			return nil, err
		}

		totalFees := o.cfg.ProtocolFee.MulInt(len(round.Deposits))
		payout, err := round.Balance.Sub(totalFees)
		if err != nil {
			return nil, newError(ErrArithmetic, CodeFeeUnderflow, "protocol fees exceed round balance").
				withEntity("round "+formatRound(round.Number)).
				withState("<= "+round.Balance.String(), totalFees.String()).
				wrap(err)
		}

		round.State = RoundDistributed
		round.IsDistributed = true
		round.DistributionTime = &now

		dist := &Distribution{
			Round:       round.Number,
			Beneficiary: round.Beneficiary,
			Amount:      payout,
			Fees:        totalFees,
			Timestamp:   now,
		}
		fees.Total = fees.Total.Add(totalFees)

		if err := o.repo.saveRound(o.ctx, round); err != nil {
			return nil, err
		}
		if err := o.repo.saveDistribution(o.ctx, dist); err != nil {
			return nil, err
		}
		if err := o.repo.saveFees(o.ctx, fees); err != nil {
			return nil, err
		}

		r := applied(ActionDistribute, map[string]string{
			"round":       formatRound(round.Number),
			"beneficiary": string(round.Beneficiary),
			"amount":      payout.String(),
			"fees":        totalFees.String(),
			"deposits":    strconv.Itoa(len(round.Deposits)),
		})
		if payout.IsPositive() {
			r.Transfers = []Transfer{{To: round.Beneficiary, Denom: o.cfg.Denom, Amount: payout}}
		}

		if e.opts.AdvancePolicy == AdvanceOnDistribution && o.state.CurrentRound < o.state.TotalRounds {
			next, err := o.openNextRound()
			if err != nil {
				return nil, err
			}
			r.Event.Attributes["next_round"] = formatRound(next.Number)
			r.Event.Attributes["next_beneficiary"] = string(next.Beneficiary)
		}

		o.afterCommit(func() { e.opts.Observer.Distributed(*dist) })
		return r, nil
	})
}

// AdvanceRound opens round N+1 once round N has been distributed.
func (e *Engine) AdvanceRound(ctx context.Context, call Call) (*Receipt, error) {
	return e.execute(ctx, call, ActionAdvanceRound, "", func(o *op) (*Receipt, error) {
		if err := requireRunning(o.state); err != nil {
			return nil, err
		}
		round, err := o.currentRound()
		if err != nil {
			return nil, err
		}
		if !round.IsDistributed {
			return nil, newError(ErrConflict, CodeRoundNotDistributed, "current round has not been distributed").
				withEntity("round "+formatRound(round.Number)).
				withState(string(RoundDistributed), string(round.State))
		}
		next, err := o.openNextRound()
		if err != nil {
			return nil, err
		}
		return applied(ActionAdvanceRound, map[string]string{
			"round":       formatRound(next.Number),
			"beneficiary": string(next.Beneficiary),
			"deadline":    formatTime(next.Deadline),
		}), nil
	})
}

// openNextRound creates round CurrentRound+1 for the next scheduled
// beneficiary and saves the state.
func (o *op) openNextRound() (*Round, error) {
	n := o.state.CurrentRound + 1
	if o.state.CurrentRound >= o.state.TotalRounds {
		return nil, newError(ErrConflict, CodeNoRemainingRounds, "every scheduled round has been opened").
			withState("< "+formatRound(o.state.TotalRounds), formatRound(o.state.CurrentRound))
	}
	beneficiary, ok := o.state.BeneficiaryFor(n)
	if !ok {
		return nil, newError(ErrConflict, CodeNoRemainingRounds, "no scheduled beneficiary").
			withEntity("round " + formatRound(n))
	}

	round := &Round{
		Number:      n,
		State:       RoundActive,
		Beneficiary: beneficiary,
		Deadline:    o.call.Now.Add(o.cfg.RoundFrequency),
		Deposits:    []Deposit{},
	}
	o.state.CurrentRound = n
	o.state.LastRoundTime = o.call.Now

	if err := o.repo.saveRound(o.ctx, round); err != nil {
		return nil, err
	}
	if err := o.repo.saveState(o.ctx, o.state); err != nil {
		return nil, err
	}
	return round, nil
}
