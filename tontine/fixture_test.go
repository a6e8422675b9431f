package tontine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/tontine-engine/generic"
	memstore "github.com/warp/tontine-engine/generic/store"
	"github.com/warp/tontine-engine/tontine"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	admin      tontine.Address = "addr_safro1admin000000000"
	arbitrator tontine.Address = "addr_safro1arbiter00000000"
	b1         tontine.Address = "addr_safro1member1000000000"
	b2         tontine.Address = "addr_safro1member2000000000"
	b3         tontine.Address = "addr_safro1member3000000000"
	outsider   tontine.Address = "addr_safro1outsider0000000"
)

var (
	t0           = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	roundLength  = 86400 * time.Second
	pastDeadline = t0.Add(roundLength + time.Second)
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memstore.TxMemory
	engine *tontine.Engine
	reader *tontine.Reader
}

func newFixture(t *testing.T, opts ...func(*tontine.Options)) *fixture {
	t.Helper()
	var o tontine.Options
	for _, fn := range opts {
		fn(&o)
	}
	s := memstore.NewTxMemory()
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  s,
		engine: tontine.NewEngine(s, o),
		reader: tontine.NewReader(s),
	}
}

func withAutoAdvance(o *tontine.Options) {
	o.AdvancePolicy = tontine.AdvanceOnDistribution
}

func call(sender tontine.Address, at time.Time) tontine.Call {
	return tontine.Call{Sender: sender, Now: at}
}

// scenarioMsg is the two-beneficiary configuration used across tests:
// contribution 1000, one-day rounds, penalty 50, fee 10, one-hour guard.
func scenarioMsg(beneficiaries ...tontine.Address) tontine.InstantiateMsg {
	if len(beneficiaries) == 0 {
		beneficiaries = []tontine.Address{b1, b2}
	}
	names := make([]string, len(beneficiaries))
	for i, b := range beneficiaries {
		names[i] = string(b)
	}
	return tontine.InstantiateMsg{
		Admin:              string(admin),
		TokenDenom:         "usafro",
		ContributionAmount: "1000",
		RoundFrequency:     86400,
		Beneficiaries:      names,
		LatePenalty:        "50",
		ProtocolFees:       "10",
		Arbitrator:         string(arbitrator),
		TimeGuards:         3600,
	}
}

func (f *fixture) instantiate(beneficiaries ...tontine.Address) {
	f.t.Helper()
	_, err := f.engine.Instantiate(f.ctx, call(admin, t0), scenarioMsg(beneficiaries...))
	require.NoError(f.t, err)
}

func (f *fixture) register(addrs ...tontine.Address) {
	f.t.Helper()
	for _, a := range addrs {
		_, err := f.engine.RegisterMember(f.ctx, call(admin, t0), a)
		require.NoError(f.t, err)
	}
}

// started returns a fixture with B1 and B2 registered and round 1 open at t0.
func (f *fixture) started() *fixture {
	f.t.Helper()
	f.instantiate()
	f.register(b1, b2)
	_, err := f.engine.Start(f.ctx, call(admin, t0))
	require.NoError(f.t, err)
	return f
}

func (f *fixture) deposit(sender tontine.Address, at time.Time) {
	f.t.Helper()
	_, err := f.engine.Deposit(f.ctx, call(sender, at))
	require.NoError(f.t, err)
}

// setPenalties writes a penalty balance directly, since no engine operation
// creates penalties yet.
func (f *fixture) setPenalties(addr tontine.Address, amount int64) {
	f.t.Helper()
	m, err := f.reader.Member(f.ctx, addr)
	require.NoError(f.t, err)
	m.Penalties = generic.NewAmount(amount)
	require.NoError(f.t, f.store.Save(f.ctx, tontine.NamespaceMembers, string(addr), m))
}

func (f *fixture) state() *tontine.State {
	f.t.Helper()
	st, err := f.reader.State(f.ctx)
	require.NoError(f.t, err)
	return st
}

func (f *fixture) round(n uint64) *tontine.Round {
	f.t.Helper()
	r, err := f.reader.Round(f.ctx, n)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) eventCount() int {
	f.t.Helper()
	evs, err := f.reader.Events(f.ctx)
	require.NoError(f.t, err)
	return len(evs)
}
