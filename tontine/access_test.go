package tontine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tontine-engine/tontine"
)

func TestAccessPolicy_RoleTable(t *testing.T) {
	cfg := validConfig()
	policy := tontine.DefaultAccessPolicy

	cases := []struct {
		action  tontine.Action
		allowed []tontine.Address
		denied  []tontine.Address
	}{
		{tontine.ActionRegisterMember, []tontine.Address{admin}, []tontine.Address{arbitrator, b1, outsider}},
		{tontine.ActionStartTontine, []tontine.Address{admin}, []tontine.Address{arbitrator, b1}},
		{tontine.ActionPauseTontine, []tontine.Address{admin}, []tontine.Address{arbitrator, b1}},
		{tontine.ActionDistribute, []tontine.Address{admin, arbitrator}, []tontine.Address{b1, outsider}},
		{tontine.ActionApplyPenalty, []tontine.Address{admin, arbitrator}, []tontine.Address{b1}},
		{tontine.ActionArbitrateDispute, []tontine.Address{arbitrator}, []tontine.Address{admin, b1}},
		{tontine.ActionWithdrawFees, []tontine.Address{admin}, []tontine.Address{arbitrator}},
		{tontine.ActionDepositContribution, []tontine.Address{b1, outsider, admin}, nil},
	}
	for _, tc := range cases {
		t.Run(string(tc.action), func(t *testing.T) {
			for _, a := range tc.allowed {
				assert.NoError(t, policy.Authorize(&cfg, tc.action, a, ""), "%s should be allowed", a)
			}
			for _, a := range tc.denied {
				err := policy.Authorize(&cfg, tc.action, a, "")
				assert.ErrorIs(t, err, tontine.ErrUnauthorized, "%s should be denied", a)
			}
		})
	}
}

func TestAccessPolicy_SelfRole(t *testing.T) {
	// GIVEN: PayPenalty requires the caller to be the named member
	// WHEN: B1 pays for B1, admin pays for B1, B2 pays for B1
	// THEN: Only the first is allowed

	cfg := validConfig()
	policy := tontine.DefaultAccessPolicy

	assert.NoError(t, policy.Authorize(&cfg, tontine.ActionPayPenalty, b1, b1))
	assert.ErrorIs(t, policy.Authorize(&cfg, tontine.ActionPayPenalty, admin, b1), tontine.ErrUnauthorized)
	assert.ErrorIs(t, policy.Authorize(&cfg, tontine.ActionPayPenalty, b2, b1), tontine.ErrUnauthorized)
}

func TestAccessPolicy_DenialCarriesReason(t *testing.T) {
	cfg := validConfig()
	err := tontine.DefaultAccessPolicy.Authorize(&cfg, tontine.ActionDistribute, b1, "")
	require.Error(t, err)

	var terr *tontine.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, tontine.CodeUnauthorized, terr.Code)
	assert.Equal(t, string(b1), terr.Entity)
	assert.Contains(t, terr.Error(), "admin or arbitrator")
}

func TestAccessPolicy_UnknownActionDenied(t *testing.T) {
	cfg := validConfig()
	err := tontine.DefaultAccessPolicy.Authorize(&cfg, tontine.Action("self_destruct"), admin, "")
	assert.ErrorIs(t, err, tontine.ErrUnauthorized)
}

func TestAccessPolicy_EveryActionDeclared(t *testing.T) {
	actions := tontine.DefaultAccessPolicy.Actions()
	assert.Len(t, actions, 21)
	for _, a := range actions {
		assert.NotEmpty(t, tontine.DefaultAccessPolicy[a], "action %s has no roles", a)
	}
}

func TestUnauthorizedCallers_LeaveStateUnchanged(t *testing.T) {
	// GIVEN: A started tontine past its first deadline
	// WHEN: Non-admins try to register, start, pause, and distribute
	// THEN: Every call fails with an authorization error and nothing is written

	f := newFixture(t).started()
	f.deposit(b1, t0.Add(time.Hour))

	beforeState := f.state()
	beforeRound := f.round(1)
	beforeEvents := f.eventCount()

	_, err := f.engine.RegisterMember(f.ctx, call(b1, pastDeadline), b3)
	assert.ErrorIs(t, err, tontine.ErrUnauthorized)

	_, err = f.engine.Start(f.ctx, call(arbitrator, pastDeadline))
	assert.ErrorIs(t, err, tontine.ErrUnauthorized)

	_, err = f.engine.Pause(f.ctx, call(b2, pastDeadline))
	assert.ErrorIs(t, err, tontine.ErrUnauthorized)

	_, err = f.engine.Distribute(f.ctx, call(b1, pastDeadline))
	assert.ErrorIs(t, err, tontine.ErrUnauthorized)

	_, err = f.engine.Distribute(f.ctx, call(outsider, pastDeadline))
	assert.ErrorIs(t, err, tontine.ErrUnauthorized)

	assert.Equal(t, beforeState, f.state())
	assert.Equal(t, beforeRound, f.round(1))
	assert.Equal(t, beforeEvents, f.eventCount())

	has, err := f.store.Has(f.ctx, tontine.NamespaceMembers, string(b3))
	require.NoError(t, err)
	assert.False(t, has)

	dists, err := f.reader.DistributionHistory(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, dists)
}
