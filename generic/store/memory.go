// Package store provides EntityStore implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/tontine-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[generic.Namespace]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[generic.Namespace]map[string][]byte),
	}
}

func (m *Memory) Load(_ context.Context, ns generic.Namespace, key string, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(ns, key, out)
}

func (m *Memory) Save(_ context.Context, ns generic.Namespace, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ns, key, value)
}

func (m *Memory) Has(_ context.Context, ns generic.Namespace, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[ns][key]
	return ok, nil
}

func (m *Memory) Remove(_ context.Context, ns generic.Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[ns], key)
	return nil
}

// Range copies the namespace under the read lock, then iterates unlocked so
// fn may call back into the store.
func (m *Memory) Range(_ context.Context, ns generic.Namespace, fn generic.RangeFunc) error {
	m.mu.RLock()
	entries := m.sortedLocked(ns)
	m.mu.RUnlock()
	return rangeEntries(ns, entries, fn)
}

// Reset deletes every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[generic.Namespace]map[string][]byte)
	return nil
}

func (m *Memory) loadLocked(ns generic.Namespace, key string, out any) error {
	raw, ok := m.records[ns][key]
	if !ok {
		return &generic.KeyError{Namespace: ns, Key: key, Err: generic.ErrNotFound}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrEncoding, err)}
	}
	return nil
}

func (m *Memory) saveLocked(ns generic.Namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrEncoding, err)}
	}
	bucket, ok := m.records[ns]
	if !ok {
		bucket = make(map[string][]byte)
		m.records[ns] = bucket
	}
	bucket[key] = raw
	return nil
}

type entry struct {
	key string
	raw []byte
}

func (m *Memory) sortedLocked(ns generic.Namespace) []entry {
	bucket := m.records[ns]
	entries := make([]entry, 0, len(bucket))
	for k, v := range bucket {
		entries = append(entries, entry{key: k, raw: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries
}

func rangeEntries(ns generic.Namespace, entries []entry, fn generic.RangeFunc) error {
	for _, e := range entries {
		raw := e.raw
		key := e.key
		decode := func(out any) error {
			if err := json.Unmarshal(raw, out); err != nil {
				return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrEncoding, err)}
			}
			return nil
		}
		if err := fn(key, decode); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.EntityStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	txStore := &txMemoryView{parent: tm}

	if err := fn(txStore); err != nil {
		tm.restore(snapshot)
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

func (tm *TxMemory) snapshot() map[generic.Namespace]map[string][]byte {
	cp := make(map[generic.Namespace]map[string][]byte, len(tm.records))
	for ns, bucket := range tm.records {
		b := make(map[string][]byte, len(bucket))
		for k, v := range bucket {
			b[k] = v
		}
		cp[ns] = b
	}
	return cp
}

func (tm *TxMemory) restore(s map[generic.Namespace]map[string][]byte) {
	tm.records = s
}

// txMemoryView runs with the parent's write lock already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Load(_ context.Context, ns generic.Namespace, key string, out any) error {
	return tv.parent.loadLocked(ns, key, out)
}

func (tv *txMemoryView) Save(_ context.Context, ns generic.Namespace, key string, value any) error {
	return tv.parent.saveLocked(ns, key, value)
}

func (tv *txMemoryView) Has(_ context.Context, ns generic.Namespace, key string) (bool, error) {
	_, ok := tv.parent.records[ns][key]
	return ok, nil
}

func (tv *txMemoryView) Remove(_ context.Context, ns generic.Namespace, key string) error {
	delete(tv.parent.records[ns], key)
	return nil
}

func (tv *txMemoryView) Range(_ context.Context, ns generic.Namespace, fn generic.RangeFunc) error {
	return rangeEntries(ns, tv.parent.sortedLocked(ns), fn)
}
