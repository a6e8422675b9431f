/*
eventlog.go - Append-only audit log of applied operations

PURPOSE:
  Every successful engine operation records one Event: who did what, when,
  and the attributes it produced. The log is the audit trail behind the
  read model's history views and the receipts returned to callers.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Events are never updated or removed
  2. ORDERED: Sequence numbers are gap-free and strictly increasing
  3. ATOMIC: Events are appended through the same EntityStore as the
     mutation they describe, so a rolled-back call leaves no event behind

STORAGE:
  Namespace "events", key SequenceKey(seq). The last sequence number lives in
  namespace "meta" under key "event_seq".

SEE ALSO:
  - store.go: EntityStore contract
  - tontine/engine.go: Records one event per operation
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	NamespaceEvents Namespace = "events"
	NamespaceMeta   Namespace = "meta"

	eventSeqKey = "event_seq"
)

// =============================================================================
// EVENT - One applied operation
// =============================================================================

// Event is an immutable audit record.
type Event struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Timestamp  time.Time         `json:"timestamp"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attr returns the attribute value or "".
func (e Event) Attr(key string) string {
	return e.Attributes[key]
}

// =============================================================================
// EVENT LOG
// =============================================================================

// EventLog appends and lists events over any EntityStore.
type EventLog struct {
	Store EntityStore
}

func NewEventLog(store EntityStore) *EventLog {
	return &EventLog{Store: store}
}

// Append assigns ID and Sequence and persists the event.
func (l *EventLog) Append(ctx context.Context, ev Event) (Event, error) {
	var seq uint64
	err := l.Store.Load(ctx, NamespaceMeta, eventSeqKey, &seq)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Event{}, fmt.Errorf("load event sequence: %w", err)
	}
	seq++

	ev.Sequence = seq
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if err := l.Store.Save(ctx, NamespaceEvents, SequenceKey(seq), ev); err != nil {
		return Event{}, fmt.Errorf("save event: %w", err)
	}
	if err := l.Store.Save(ctx, NamespaceMeta, eventSeqKey, seq); err != nil {
		return Event{}, fmt.Errorf("save event sequence: %w", err)
	}
	return ev, nil
}

// List returns all events in sequence order.
func (l *EventLog) List(ctx context.Context) ([]Event, error) {
	return RangeAll[Event](ctx, l.Store, NamespaceEvents)
}

// ListByAction returns events whose Action matches one of actions.
func (l *EventLog) ListByAction(ctx context.Context, actions ...string) ([]Event, error) {
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(actions))
	for _, a := range actions {
		want[a] = true
	}
	var out []Event
	for _, ev := range all {
		if want[ev.Action] {
			out = append(out, ev)
		}
	}
	return out, nil
}
