package tontine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/tontine-engine/generic"
)

// =============================================================================
// NAMESPACES
// =============================================================================

const (
	NamespaceConfig        generic.Namespace = "config"
	NamespaceState         generic.Namespace = "state"
	NamespaceMembers       generic.Namespace = "members"
	NamespaceRounds        generic.Namespace = "rounds"
	NamespacePenalties     generic.Namespace = "penalties"
	NamespaceDistributions generic.Namespace = "distributions"
	NamespaceEscrow        generic.Namespace = "escrow"
	NamespaceFees          generic.Namespace = "fees"
	NamespaceDisputes      generic.Namespace = "disputes"

	// SingletonKey holds config, state, escrow and fees.
	SingletonKey = "singleton"
)

// =============================================================================
// REPOSITORY - Typed access to one EntityStore (usually a transaction view)
// =============================================================================

type repository struct {
	s   generic.EntityStore
	log *generic.EventLog
}

func newRepository(s generic.EntityStore) *repository {
	return &repository{s: s, log: generic.NewEventLog(s)}
}

func load[T any](ctx context.Context, s generic.EntityStore, ns generic.Namespace, key string) (*T, error) {
	var v T
	if err := s.Load(ctx, ns, key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func save(ctx context.Context, s generic.EntityStore, ns generic.Namespace, key string, v any) error {
	if err := s.Save(ctx, ns, key, v); err != nil {
		return fmt.Errorf("save %s/%s: %w", ns, key, err)
	}
	return nil
}

// RoundKey is the store key of round n in rounds and distributions.
func RoundKey(n uint64) string { return generic.SequenceKey(n) }

// PenaltyKey is the store key of a member's seq-th penalty record.
func PenaltyKey(addr Address, seq uint64) string {
	return string(addr) + "/" + generic.SequenceKey(seq)
}

// ----- config / state / escrow / fees -----

func (r *repository) hasConfig(ctx context.Context) (bool, error) {
	return r.s.Has(ctx, NamespaceConfig, SingletonKey)
}

func (r *repository) config(ctx context.Context) (*Config, error) {
	cfg, err := load[Config](ctx, r.s, NamespaceConfig, SingletonKey)
	if errors.Is(err, generic.ErrNotFound) {
		return nil, configNotFound()
	}
	return cfg, err
}

func (r *repository) saveConfig(ctx context.Context, cfg *Config) error {
	return save(ctx, r.s, NamespaceConfig, SingletonKey, cfg)
}

func (r *repository) state(ctx context.Context) (*State, error) {
	st, err := load[State](ctx, r.s, NamespaceState, SingletonKey)
	if errors.Is(err, generic.ErrNotFound) {
		return nil, configNotFound()
	}
	return st, err
}

func (r *repository) saveState(ctx context.Context, st *State) error {
	return save(ctx, r.s, NamespaceState, SingletonKey, st)
}

func (r *repository) escrow(ctx context.Context) (*EscrowState, error) {
	es, err := load[EscrowState](ctx, r.s, NamespaceEscrow, SingletonKey)
	if errors.Is(err, generic.ErrNotFound) {
		return nil, configNotFound()
	}
	return es, err
}

func (r *repository) saveEscrow(ctx context.Context, es *EscrowState) error {
	return save(ctx, r.s, NamespaceEscrow, SingletonKey, es)
}

func (r *repository) fees(ctx context.Context) (*Fees, error) {
	f, err := load[Fees](ctx, r.s, NamespaceFees, SingletonKey)
	if errors.Is(err, generic.ErrNotFound) {
		return &Fees{}, nil
	}
	return f, err
}

func (r *repository) saveFees(ctx context.Context, f *Fees) error {
	return save(ctx, r.s, NamespaceFees, SingletonKey, f)
}

// ----- members -----

func (r *repository) hasMember(ctx context.Context, addr Address) (bool, error) {
	return r.s.Has(ctx, NamespaceMembers, string(addr))
}

func (r *repository) member(ctx context.Context, addr Address) (*Member, error) {
	m, err := load[Member](ctx, r.s, NamespaceMembers, string(addr))
	if errors.Is(err, generic.ErrNotFound) {
		return nil, memberNotFound(addr)
	}
	return m, err
}

func (r *repository) saveMember(ctx context.Context, m *Member) error {
	return save(ctx, r.s, NamespaceMembers, string(m.Address), m)
}

func (r *repository) removeMember(ctx context.Context, addr Address) error {
	return r.s.Remove(ctx, NamespaceMembers, string(addr))
}

func (r *repository) members(ctx context.Context) ([]Member, error) {
	return generic.RangeAll[Member](ctx, r.s, NamespaceMembers)
}

// ----- rounds / distributions -----

func (r *repository) round(ctx context.Context, n uint64) (*Round, error) {
	rd, err := load[Round](ctx, r.s, NamespaceRounds, RoundKey(n))
	if errors.Is(err, generic.ErrNotFound) {
		return nil, roundNotFound(n)
	}
	return rd, err
}

func (r *repository) saveRound(ctx context.Context, rd *Round) error {
	return save(ctx, r.s, NamespaceRounds, RoundKey(rd.Number), rd)
}

func (r *repository) rounds(ctx context.Context) ([]Round, error) {
	return generic.RangeAll[Round](ctx, r.s, NamespaceRounds)
}

func (r *repository) hasDistribution(ctx context.Context, n uint64) (bool, error) {
	return r.s.Has(ctx, NamespaceDistributions, RoundKey(n))
}

func (r *repository) distribution(ctx context.Context, n uint64) (*Distribution, error) {
	d, err := load[Distribution](ctx, r.s, NamespaceDistributions, RoundKey(n))
	if errors.Is(err, generic.ErrNotFound) {
		return nil, roundNotFound(n)
	}
	return d, err
}

func (r *repository) saveDistribution(ctx context.Context, d *Distribution) error {
	return save(ctx, r.s, NamespaceDistributions, RoundKey(d.Round), d)
}

func (r *repository) distributions(ctx context.Context) ([]Distribution, error) {
	return generic.RangeAll[Distribution](ctx, r.s, NamespaceDistributions)
}

// ----- penalties / disputes -----

func (r *repository) penalties(ctx context.Context) ([]Penalty, error) {
	return generic.RangeAll[Penalty](ctx, r.s, NamespacePenalties)
}

func (r *repository) penaltiesOf(ctx context.Context, addr Address) ([]Penalty, error) {
	var out []Penalty
	prefix := string(addr) + "/"
	err := r.s.Range(ctx, NamespacePenalties, func(key string, decode func(any) error) error {
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		var p Penalty
		if err := decode(&p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func (r *repository) disputes(ctx context.Context) ([]Dispute, error) {
	return generic.RangeAll[Dispute](ctx, r.s, NamespaceDisputes)
}

// ----- events -----

func (r *repository) appendEvent(ctx context.Context, ev generic.Event) (generic.Event, error) {
	return r.log.Append(ctx, ev)
}

func (r *repository) events(ctx context.Context) ([]generic.Event, error) {
	return r.log.List(ctx)
}
