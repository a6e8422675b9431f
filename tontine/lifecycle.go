package tontine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// PHASES AND TRANSITIONS
// =============================================================================

// Phase is the tontine lifecycle state derived from State's flags.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseActive     Phase = "active"
	PhasePaused     Phase = "paused"
	PhaseFinished   Phase = "finished"
)

type Transition string

const (
	TransitionStart      Transition = "start"
	TransitionPause      Transition = "pause"
	TransitionResume     Transition = "resume"
	TransitionCloseEarly Transition = "close_early"
	TransitionFinalize   Transition = "finalize"
)

// transitions is the complete set of legal lifecycle moves.
var transitions = map[Phase]map[Transition]Phase{
	PhaseNotStarted: {
		TransitionStart: PhaseActive,
	},
	PhaseActive: {
		TransitionPause:      PhasePaused,
		TransitionCloseEarly: PhaseFinished,
		TransitionFinalize:   PhaseFinished,
	},
	PhasePaused: {
		TransitionResume:     PhaseActive,
		TransitionCloseEarly: PhaseFinished,
		TransitionFinalize:   PhaseFinished,
	},
	PhaseFinished: {},
}

// NextPhase returns the target phase, or a Conflict error when t is illegal from.
func NextPhase(from Phase, t Transition) (Phase, error) {
	if to, ok := transitions[from][t]; ok {
		return to, nil
	}
	return "", transitionError(from, t)
}

// LegalFrom lists the phases from which t is legal, in a stable order.
func LegalFrom(t Transition) []Phase {
	var out []Phase
	for _, p := range []Phase{PhaseNotStarted, PhaseActive, PhasePaused, PhaseFinished} {
		if _, ok := transitions[p][t]; ok {
			out = append(out, p)
		}
	}
	return out
}

func transitionError(from Phase, t Transition) *Error {
	code := CodeTontineNotStarted
	switch {
	case from == PhaseFinished:
		code = CodeTontineAlreadyFinished
	case t == TransitionStart:
		code = CodeTontineAlreadyStarted
	case t == TransitionPause && from == PhasePaused:
		code = CodeTontinePaused
	case t == TransitionResume:
		code = CodeTontineNotPaused
	}

	legal := LegalFrom(t)
	names := make([]string, len(legal))
	for i, p := range legal {
		names[i] = string(p)
	}
	return newError(ErrConflict, code, fmt.Sprintf("cannot %s tontine", t)).
		withState(strings.Join(names, "|"), string(from))
}

// setPhase writes the flags that encode p.
func (s *State) setPhase(p Phase) {
	switch p {
	case PhaseActive:
		s.IsActive, s.IsPaused = true, false
	case PhasePaused:
		s.IsActive, s.IsPaused = true, true
	case PhaseFinished:
		s.IsActive, s.IsPaused, s.IsFinished = false, false, true
	}
}

// requireRunning gates round operations: active and not paused.
func requireRunning(s *State) error {
	switch p := s.Phase(); p {
	case PhaseActive:
		return nil
	case PhasePaused:
		return newError(ErrConflict, CodeTontinePaused, "tontine is paused").
			withState(string(PhaseActive), string(p))
	case PhaseFinished:
		return newError(ErrConflict, CodeTontineAlreadyFinished, "tontine is finished").
			withState(string(PhaseActive), string(p))
	default:
		return newError(ErrConflict, CodeTontineNotStarted, "tontine has not started").
			withState(string(PhaseActive), string(p))
	}
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

// Start freezes the beneficiary schedule and opens round 1.
func (e *Engine) Start(ctx context.Context, call Call) (*Receipt, error) {
	return e.execute(ctx, call, ActionStartTontine, "", func(o *op) (*Receipt, error) {
		next, err := NextPhase(o.state.Phase(), TransitionStart)
		if err != nil {
			return nil, err
		}

		var schedule []Address
		for _, b := range o.cfg.Beneficiaries {
			ok, err := o.repo.hasMember(o.ctx, b)
			if err != nil {
				return nil, err
			}
			if ok {
				schedule = append(schedule, b)
			}
		}
		if len(schedule) == 0 {
			return nil, invalidMemberManagement("no configured beneficiary is registered")
		}
		first := o.cfg.Beneficiaries[0]
		if schedule[0] != first {
			return nil, invalidMemberManagement("first beneficiary is not registered").withEntity(string(first))
		}

		round := &Round{
			Number:      1,
			State:       RoundActive,
			Beneficiary: first,
			Deadline:    o.call.Now.Add(o.cfg.RoundFrequency),
			Deposits:    []Deposit{},
		}

		o.state.setPhase(next)
		o.state.Schedule = schedule
		o.state.TotalRounds = uint64(len(schedule))
		o.state.CurrentRound = 1
		o.state.StartTime = o.call.Now
		o.state.LastRoundTime = o.call.Now

		if err := o.repo.saveRound(o.ctx, round); err != nil {
			return nil, err
		}
		if err := o.repo.saveState(o.ctx, o.state); err != nil {
			return nil, err
		}

		return applied(ActionStartTontine, map[string]string{
			"total_rounds": strconv.Itoa(len(schedule)),
			"beneficiary":  string(first),
			"deadline":     formatTime(round.Deadline),
		}), nil
	})
}

func (e *Engine) Pause(ctx context.Context, call Call) (*Receipt, error) {
	return e.transition(ctx, call, ActionPauseTontine, TransitionPause, nil)
}

func (e *Engine) Resume(ctx context.Context, call Call) (*Receipt, error) {
	return e.transition(ctx, call, ActionResumeTontine, TransitionResume, nil)
}

// CloseEarly finishes the tontine immediately. Funds are not reconciled.
func (e *Engine) CloseEarly(ctx context.Context, call Call, reason string) (*Receipt, error) {
	return e.transition(ctx, call, ActionCloseEarly, TransitionCloseEarly, func(o *op) error {
		o.state.CloseReason = reason
		return nil
	})
}

// Finalize finishes the tontine once every scheduled round has been opened.
func (e *Engine) Finalize(ctx context.Context, call Call) (*Receipt, error) {
	return e.transition(ctx, call, ActionFinalizeTontine, TransitionFinalize, func(o *op) error {
		if o.state.CurrentRound < o.state.TotalRounds {
			return newError(ErrConflict, CodeRoundsRemaining, "not all rounds completed").
				withState(
					fmt.Sprintf("round %d", o.state.TotalRounds),
					fmt.Sprintf("round %d", o.state.CurrentRound),
				)
		}
		return nil
	})
}

// transition applies a flag-only lifecycle move. guard runs after the table
// check and before any write.
func (e *Engine) transition(ctx context.Context, call Call, action Action, t Transition, guard func(*op) error) (*Receipt, error) {
	return e.execute(ctx, call, action, "", func(o *op) (*Receipt, error) {
		from := o.state.Phase()
		next, err := NextPhase(from, t)
		if err != nil {
			return nil, err
		}
		if guard != nil {
			if err := guard(o); err != nil {
				return nil, err
			}
		}

		o.state.setPhase(next)
		if err := o.repo.saveState(o.ctx, o.state); err != nil {
			return nil, err
		}

		attrs := map[string]string{"from": string(from), "to": string(next)}
		if o.state.CloseReason != "" && t == TransitionCloseEarly {
			attrs["reason"] = o.state.CloseReason
		}
		return applied(action, attrs), nil
	})
}
