package tontine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tontine-engine/generic"
	"github.com/warp/tontine-engine/tontine"
)

func TestRegisterMember(t *testing.T) {
	f := newFixture(t)
	f.instantiate()

	receipt, err := f.engine.RegisterMember(f.ctx, call(admin, t0), b1)
	require.NoError(t, err)
	assert.Equal(t, tontine.ActionRegisterMember, receipt.Action)
	assert.Equal(t, string(b1), receipt.Event.Attr("member"))

	m, err := f.reader.Member(f.ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, tontine.MemberActive, m.Status)
	assert.True(t, m.Balance.IsZero())
	assert.True(t, m.Penalties.IsZero())
	assert.Nil(t, m.LastContribution)
	assert.False(t, m.IsLate)
	assert.True(t, m.RegisteredAt.Equal(t0))
}

func TestRegisterMember_DuplicateRejected(t *testing.T) {
	// GIVEN: B1 already registered
	// WHEN: Registering B1 again, several times
	// THEN: Every attempt fails with MemberAlreadyExists and B1 appears once

	f := newFixture(t)
	f.instantiate()
	f.register(b1)

	for i := 0; i < 3; i++ {
		_, err := f.engine.RegisterMember(f.ctx, call(admin, t0), b1)
		assert.ErrorIs(t, err, tontine.ErrConflict)
		assert.Equal(t, tontine.CodeMemberAlreadyExists, tontine.CodeOf(err))
	}

	count, err := f.reader.MemberCount(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterMember_InvalidAddress(t *testing.T) {
	f := newFixture(t)
	f.instantiate()

	_, err := f.engine.RegisterMember(f.ctx, call(admin, t0), "cosmos1notours0000000000")
	assert.ErrorIs(t, err, tontine.ErrValidation)
	assert.Equal(t, tontine.CodeInvalidAddress, tontine.CodeOf(err))
}

func TestRegisterMember_CustomPrefix(t *testing.T) {
	f := newFixture(t, func(o *tontine.Options) { o.AddressPrefix = "addr_safro1member" })
	_, err := f.engine.Instantiate(f.ctx, call(admin, t0), scenarioMsg())
	assert.Equal(t, tontine.CodeInvalidAddress, tontine.CodeOf(err), "admin lacks the narrower prefix")
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	f.instantiate()
	f.register(b1, b2)

	_, err := f.engine.RemoveMember(f.ctx, call(admin, t0), b2)
	require.NoError(t, err)

	_, err = f.reader.Member(f.ctx, b2)
	assert.Equal(t, tontine.CodeMemberNotFound, tontine.CodeOf(err))

	_, err = f.engine.RemoveMember(f.ctx, call(admin, t0), b2)
	assert.ErrorIs(t, err, tontine.ErrNotFound)
}

func TestRemoveAndReplace_RejectedWithPenalties(t *testing.T) {
	// GIVEN: B1 owes penalties (any nonzero value)
	// WHEN: Removing or replacing B1
	// THEN: Always rejected with MemberHasPenalties

	for _, owed := range []int64{1, 50, 999999} {
		f := newFixture(t)
		f.instantiate()
		f.register(b1)
		f.setPenalties(b1, owed)

		_, err := f.engine.RemoveMember(f.ctx, call(admin, t0), b1)
		assert.Equal(t, tontine.CodeMemberHasPenalties, tontine.CodeOf(err))

		_, err = f.engine.ReplaceMember(f.ctx, call(admin, t0), b1, b3)
		assert.Equal(t, tontine.CodeMemberHasPenalties, tontine.CodeOf(err))

		var terr *tontine.Error
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "0", terr.Expected)

		_, err = f.reader.Member(f.ctx, b3)
		assert.ErrorIs(t, err, tontine.ErrNotFound, "replacement must not be created")
	}
}

func TestRemoveAndReplace_BlockedDuringRound(t *testing.T) {
	f := newFixture(t).started()

	_, err := f.engine.RemoveMember(f.ctx, call(admin, t0), b2)
	assert.Equal(t, tontine.CodeCannotReplaceDuringActiveRound, tontine.CodeOf(err))

	_, err = f.engine.ReplaceMember(f.ctx, call(admin, t0), b2, b3)
	assert.Equal(t, tontine.CodeCannotReplaceDuringActiveRound, tontine.CodeOf(err))
}

func TestRemove_AllowedAfterClose(t *testing.T) {
	// GIVEN: A tontine closed early (no longer active)
	// WHEN: Removing a member
	// THEN: The round guard no longer applies

	f := newFixture(t).started()
	_, err := f.engine.CloseEarly(f.ctx, call(admin, t0), "")
	require.NoError(t, err)

	_, err = f.engine.RemoveMember(f.ctx, call(admin, t0), b2)
	assert.NoError(t, err)
}

func TestReplaceMember(t *testing.T) {
	// GIVEN: B1 with a contribution history, before the tontine starts
	// WHEN: Replacing B1 with B3
	// THEN: B1 is kept as Replaced; B3 is Active with B1's balance and last
	//       contribution and zero penalties

	f := newFixture(t)
	f.instantiate()
	f.register(b1)

	m, err := f.reader.Member(f.ctx, b1)
	require.NoError(t, err)
	paid := t0.Add(-48 * time.Hour)
	m.LastContribution = &paid
	m.Balance = m.Balance.Add(generic.MustParseAmount("2000"))
	require.NoError(t, f.store.Save(f.ctx, tontine.NamespaceMembers, string(b1), m))

	receipt, err := f.engine.ReplaceMember(f.ctx, call(admin, t0), b1, b3)
	require.NoError(t, err)
	assert.Equal(t, "2000", receipt.Event.Attr("balance"))

	old, err := f.reader.Member(f.ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, tontine.MemberReplaced, old.Status)
	assert.Equal(t, b3, old.ReplacedBy)

	successor, err := f.reader.Member(f.ctx, b3)
	require.NoError(t, err)
	assert.Equal(t, tontine.MemberActive, successor.Status)
	assert.Equal(t, "2000", successor.Balance.String())
	assert.True(t, successor.Penalties.IsZero())
	require.NotNil(t, successor.LastContribution)
	assert.True(t, successor.LastContribution.Equal(paid))
}

func TestReplaceMember_Preconditions(t *testing.T) {
	f := newFixture(t)
	f.instantiate()
	f.register(b1, b2)

	_, err := f.engine.ReplaceMember(f.ctx, call(admin, t0), b3, outsider)
	assert.Equal(t, tontine.CodeMemberNotFound, tontine.CodeOf(err), "old must exist")

	_, err = f.engine.ReplaceMember(f.ctx, call(admin, t0), b1, b2)
	assert.Equal(t, tontine.CodeMemberAlreadyExists, tontine.CodeOf(err), "new must be fresh")

	_, err = f.engine.ReplaceMember(f.ctx, call(admin, t0), b1, "bad")
	assert.Equal(t, tontine.CodeInvalidAddress, tontine.CodeOf(err))
}
