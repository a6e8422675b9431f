// Package storetest is the shared conformance suite for generic.TxStore
// implementations.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tontine-engine/generic"
)

type record struct {
	Name   string         `json:"name"`
	Amount generic.Amount `json:"amount"`
}

const (
	nsA generic.Namespace = "alpha"
	nsB generic.Namespace = "beta"
)

// Run exercises every EntityStore and TxStore guarantee against stores built
// by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) generic.TxStore) {
	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		var out record
		err := s.Load(context.Background(), nsA, "missing", &out)
		assert.ErrorIs(t, err, generic.ErrNotFound)

		var kerr *generic.KeyError
		require.ErrorAs(t, err, &kerr)
		assert.Equal(t, nsA, kerr.Namespace)
		assert.Equal(t, "missing", kerr.Key)
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Save(ctx, nsA, "k", record{Name: "one", Amount: generic.NewAmount(1)}))
		require.NoError(t, s.Save(ctx, nsA, "k", record{Name: "two", Amount: generic.NewAmount(2)}))

		var out record
		require.NoError(t, s.Load(ctx, nsA, "k", &out))
		assert.Equal(t, "two", out.Name)
		assert.Equal(t, "2", out.Amount.String())
	})

	t.Run("NamespacesAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Save(ctx, nsA, "k", record{Name: "a"}))

		has, err := s.Has(ctx, nsB, "k")
		require.NoError(t, err)
		assert.False(t, has)

		all, err := generic.RangeAll[record](ctx, s, nsB)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("RemoveIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Save(ctx, nsA, "k", record{}))
		require.NoError(t, s.Remove(ctx, nsA, "k"))
		require.NoError(t, s.Remove(ctx, nsA, "k"))

		has, err := s.Has(ctx, nsA, "k")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("RangeIsKeyOrdered", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for _, n := range []uint64{12, 3, 100, 1} {
			require.NoError(t, s.Save(ctx, nsA, generic.SequenceKey(n), record{Name: generic.SequenceKey(n)}))
		}

		var keys []string
		err := s.Range(ctx, nsA, func(key string, decode func(any) error) error {
			var r record
			if err := decode(&r); err != nil {
				return err
			}
			assert.Equal(t, key, r.Name)
			keys = append(keys, key)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			generic.SequenceKey(1), generic.SequenceKey(3), generic.SequenceKey(12), generic.SequenceKey(100),
		}, keys)
	})

	t.Run("TxCommits", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		err := s.WithTx(ctx, func(tx generic.EntityStore) error {
			if err := tx.Save(ctx, nsA, "k", record{Name: "committed"}); err != nil {
				return err
			}
			var out record
			if err := tx.Load(ctx, nsA, "k", &out); err != nil {
				return err
			}
			if out.Name != "committed" {
				return errors.New("transaction cannot read its own write")
			}
			return nil
		})
		require.NoError(t, err)

		var out record
		require.NoError(t, s.Load(ctx, nsA, "k", &out))
		assert.Equal(t, "committed", out.Name)
	})

	t.Run("TxRollsBack", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Save(ctx, nsA, "keep", record{Name: "before"}))

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx generic.EntityStore) error {
			if err := tx.Save(ctx, nsA, "keep", record{Name: "after"}); err != nil {
				return err
			}
			if err := tx.Save(ctx, nsB, "new", record{Name: "new"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var out record
		require.NoError(t, s.Load(ctx, nsA, "keep", &out))
		assert.Equal(t, "before", out.Name)

		has, err := s.Has(ctx, nsB, "new")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("EventLogInTx", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i := 0; i < 3; i++ {
			err := s.WithTx(ctx, func(tx generic.EntityStore) error {
				_, err := generic.NewEventLog(tx).Append(ctx, generic.Event{Action: "deposit_contribution"})
				return err
			})
			require.NoError(t, err)
		}

		events, err := generic.NewEventLog(s).List(ctx)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, uint64(3), events[2].Sequence)
	})
}
