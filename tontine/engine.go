/*
engine.go - Accounting engine entry point

PURPOSE:
  Engine owns no state. Every operation opens one store transaction, loads
  the records it needs, checks authorization and preconditions, mutates,
  saves, and appends one audit event. A failed check returns before any
  write, and the transaction rollback covers everything else.

OPERATION SKELETON (execute):
  1. Load Config (NotFound if not instantiated)
  2. AccessPolicy.Authorize(action, sender, target)
  3. Load State
  4. Operation body: reads, checks, then writes
  5. Append Event, commit
  6. Observer + log after commit

ROUND ADVANCEMENT:
  AdvancePolicy decides whether a distribution opens the next round
  (AdvanceOnDistribution) or leaves it to an explicit AdvanceRound call
  (AdvanceManual, the default).

FILES:
  lifecycle.go - Start, Pause, Resume, CloseEarly, Finalize
  members.go   - Register, Remove, Replace
  rounds.go    - Deposit, Distribute, AdvanceRound
  stubs.go     - Penalty, fee, dispute, advance payment, migrate
  readmodel.go - Reader (queries)

SEE ALSO:
  - access.go: Role table
  - generic/store.go: TxStore contract
*/
package tontine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/warp/tontine-engine/generic"
)

// =============================================================================
// OPTIONS
// =============================================================================

// AdvancePolicy controls how round N+1 is opened.
type AdvancePolicy string

const (
	AdvanceManual         AdvancePolicy = "manual"
	AdvanceOnDistribution AdvancePolicy = "on-distribution"
)

func ParseAdvancePolicy(s string) (AdvancePolicy, error) {
	switch AdvancePolicy(s) {
	case AdvanceManual, AdvanceOnDistribution:
		return AdvancePolicy(s), nil
	case "":
		return AdvanceManual, nil
	}
	return "", fmt.Errorf("unknown advance policy %q (want %q or %q)", s, AdvanceManual, AdvanceOnDistribution)
}

// Observer receives committed outcomes. metrics.Collector implements it.
type Observer interface {
	OperationApplied(action Action, effect Effect)
	OperationRejected(action Action, code Code)
	Distributed(d Distribution)
}

type nopObserver struct{}

func (nopObserver) OperationApplied(Action, Effect) {}
func (nopObserver) OperationRejected(Action, Code)  {}
func (nopObserver) Distributed(Distribution)        {}

type Options struct {
	AddressPrefix string
	AdvancePolicy AdvancePolicy
	Access        AccessPolicy
	Observer      Observer
}

func (o *Options) withDefaults() {
	if o.AddressPrefix == "" {
		o.AddressPrefix = DefaultAddressPrefix
	}
	if o.AdvancePolicy == "" {
		o.AdvancePolicy = AdvanceManual
	}
	if o.Access == nil {
		o.Access = DefaultAccessPolicy
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store generic.TxStore
	opts  Options
}

func NewEngine(store generic.TxStore, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{store: store, opts: opts}
}

// Options returns the effective options, for inspection.
func (e *Engine) Options() Options {
	return e.opts
}

// op is the per-call working set handed to operation bodies.
type op struct {
	ctx    context.Context
	repo   *repository
	call   Call
	cfg    *Config
	state  *State
	action Action

	hooks []func()
}

// afterCommit registers fn to run once the transaction has committed.
func (o *op) afterCommit(fn func()) {
	o.hooks = append(o.hooks, fn)
}

func applied(action Action, attrs map[string]string) *Receipt {
	return &Receipt{
		Action: action,
		Effect: EffectApplied,
		Event:  generic.Event{Attributes: attrs},
	}
}

// deferred marks an operation whose business effect is not implemented yet.
func deferred(action Action, attrs map[string]string) *Receipt {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["effect"] = string(EffectDeferred)
	return &Receipt{
		Action: action,
		Effect: EffectDeferred,
		Event:  generic.Event{Attributes: attrs},
	}
}

func (e *Engine) execute(ctx context.Context, call Call, action Action, target Address, body func(*op) (*Receipt, error)) (*Receipt, error) {
	var (
		receipt *Receipt
		hooks   []func()
	)
	err := e.store.WithTx(ctx, func(s generic.EntityStore) error {
		repo := newRepository(s)

		cfg, err := repo.config(ctx)
		if err != nil {
			return err
		}
		if err := e.opts.Access.Authorize(cfg, action, call.Sender, target); err != nil {
			return err
		}
		st, err := repo.state(ctx)
		if err != nil {
			return err
		}

		o := &op{ctx: ctx, repo: repo, call: call, cfg: cfg, state: st, action: action}
		r, err := body(o)
		if err != nil {
			return err
		}
		r, err = e.record(ctx, repo, call, r)
		if err != nil {
			return err
		}
		receipt = r
		hooks = o.hooks
		return nil
	})
	if err != nil {
		e.rejected(call, action, err)
		return nil, err
	}

	for _, h := range hooks {
		h()
	}
	e.accepted(call, receipt)
	return receipt, nil
}

func (e *Engine) record(ctx context.Context, repo *repository, call Call, r *Receipt) (*Receipt, error) {
	ev := r.Event
	ev.Timestamp = call.Now
	ev.Actor = string(call.Sender)
	ev.Action = string(r.Action)
	ev, err := repo.appendEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	r.Event = ev
	return r, nil
}

func (e *Engine) accepted(call Call, r *Receipt) {
	e.opts.Observer.OperationApplied(r.Action, r.Effect)

	entry := log.WithFields(log.Fields{
		"action": r.Action,
		"sender": call.Sender,
		"seq":    r.Event.Sequence,
	})
	if r.Effect == EffectDeferred {
		entry.Warn("business effect deferred")
		return
	}
	entry.Info("operation applied")
}

func (e *Engine) rejected(call Call, action Action, err error) {
	e.opts.Observer.OperationRejected(action, CodeOf(err))
	log.WithFields(log.Fields{
		"action": action,
		"sender": call.Sender,
	}).WithError(err).Debug("operation rejected")
}

// =============================================================================
// INSTANTIATE
// =============================================================================

// Instantiate creates the tontine. Anyone may call it, once.
func (e *Engine) Instantiate(ctx context.Context, call Call, msg InstantiateMsg) (*Receipt, error) {
	var receipt *Receipt
	err := e.store.WithTx(ctx, func(s generic.EntityStore) error {
		repo := newRepository(s)

		exists, err := repo.hasConfig(ctx)
		if err != nil {
			return err
		}
		if exists {
			return newError(ErrConflict, CodeAlreadyInstantiated, "tontine already instantiated")
		}

		cfg, err := msg.Config()
		if err != nil {
			return err
		}
		if err := cfg.ValidateAddresses(e.opts.AddressPrefix); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := repo.saveConfig(ctx, &cfg); err != nil {
			return err
		}
		if err := repo.saveState(ctx, &State{}); err != nil {
			return err
		}
		if err := repo.saveEscrow(ctx, &EscrowState{}); err != nil {
			return err
		}
		if err := repo.saveFees(ctx, &Fees{}); err != nil {
			return err
		}

		r := applied(ActionInstantiate, map[string]string{
			"admin":         string(cfg.Admin),
			"arbitrator":    string(cfg.Arbitrator),
			"denom":         cfg.Denom,
			"contribution":  cfg.Contribution.String(),
			"beneficiaries": strconv.Itoa(len(cfg.Beneficiaries)),
		})
		receipt, err = e.record(ctx, repo, call, r)
		return err
	})
	if err != nil {
		e.rejected(call, ActionInstantiate, err)
		return nil, err
	}
	e.accepted(call, receipt)
	return receipt, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatRound(n uint64) string {
	return strconv.FormatUint(n, 10)
}
