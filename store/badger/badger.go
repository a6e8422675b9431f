// Package badgerdb provides a generic.TxStore on an embedded Badger database
// via badgerhold. An empty directory opens an in-memory instance.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/warp/tontine-engine/generic"
)

const maxRetries = 5

// record is the badgerhold row for one namespaced entity.
type record struct {
	Namespace string `badgerhold:"index"`
	Key       string
	Value     []byte
}

func recordKey(ns generic.Namespace, key string) string {
	return string(ns) + "\x00" + key
}

type Store struct {
	db     *badgerhold.Store
	done   chan struct{}
	logger badger.Logger
}

// New opens the store in dir, or in memory when dir is empty.
func New(dir string) (*Store, error) {
	logger := log.WithField("store", "badger")
	db, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	s := &Store{db: db, done: make(chan struct{}), logger: logger}
	if len(dir) > 0 {
		go s.collectGarbage(30 * time.Minute)
	}
	return s, nil
}

func createDB(dir string, logger badger.Logger) (*badgerhold.Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = logger
	if len(dir) == 0 {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}

func (s *Store) collectGarbage(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.db.Badger().RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Errorf("value log gc: %s", err)
			}
		}
	}
}

func (s *Store) Close() error {
	close(s.done)
	return s.db.Close()
}

// =============================================================================
// ENTITY STORE
// =============================================================================

func (s *Store) Load(ctx context.Context, ns generic.Namespace, key string, out any) error {
	return s.view(func(txn *badger.Txn) error { return s.load(txn, ns, key, out) })
}

func (s *Store) Save(ctx context.Context, ns generic.Namespace, key string, value any) error {
	return s.update(func(txn *badger.Txn) error { return s.save(txn, ns, key, value) })
}

func (s *Store) Has(ctx context.Context, ns generic.Namespace, key string) (bool, error) {
	var ok bool
	err := s.view(func(txn *badger.Txn) error {
		var err error
		ok, err = s.has(txn, ns, key)
		return err
	})
	return ok, err
}

func (s *Store) Remove(ctx context.Context, ns generic.Namespace, key string) error {
	return s.update(func(txn *badger.Txn) error { return s.remove(txn, ns, key) })
}

func (s *Store) Range(ctx context.Context, ns generic.Namespace, fn generic.RangeFunc) error {
	var rows []record
	if err := s.view(func(txn *badger.Txn) error {
		var err error
		rows, err = s.find(txn, ns)
		return err
	}); err != nil {
		return err
	}
	return visit(ns, rows, fn)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in one read-write badger transaction. Commit conflicts are
// retried, then reported as generic.ErrConcurrentModification.
func (s *Store) WithTx(ctx context.Context, fn func(generic.EntityStore) error) error {
	return s.update(func(txn *badger.Txn) error {
		return fn(&txView{store: s, txn: txn})
	})
}

type txView struct {
	store *Store
	txn   *badger.Txn
}

func (v *txView) Load(_ context.Context, ns generic.Namespace, key string, out any) error {
	return v.store.load(v.txn, ns, key, out)
}

func (v *txView) Save(_ context.Context, ns generic.Namespace, key string, value any) error {
	return v.store.save(v.txn, ns, key, value)
}

func (v *txView) Has(_ context.Context, ns generic.Namespace, key string) (bool, error) {
	return v.store.has(v.txn, ns, key)
}

func (v *txView) Remove(_ context.Context, ns generic.Namespace, key string) error {
	return v.store.remove(v.txn, ns, key)
}

func (v *txView) Range(_ context.Context, ns generic.Namespace, fn generic.RangeFunc) error {
	rows, err := v.store.find(v.txn, ns)
	if err != nil {
		return err
	}
	return visit(ns, rows, fn)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) view(fn func(*badger.Txn) error) error {
	return s.db.Badger().View(fn)
}

func (s *Store) update(fn func(*badger.Txn) error) error {
	err := s.db.Badger().Update(fn)
	for attempts := 1; errors.Is(err, badger.ErrConflict) && attempts <= maxRetries; attempts++ {
		time.Sleep(10 * time.Millisecond)
		err = s.db.Badger().Update(fn)
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", generic.ErrConcurrentModification, err)
	}
	return err
}

func (s *Store) load(txn *badger.Txn, ns generic.Namespace, key string, out any) error {
	var r record
	err := s.db.TxGet(txn, recordKey(ns, key), &r)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return &generic.KeyError{Namespace: ns, Key: key, Err: generic.ErrNotFound}
	}
	if err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return decode(ns, key, r.Value, out)
}

func (s *Store) save(txn *badger.Txn, ns generic.Namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrEncoding, err)}
	}
	r := record{Namespace: string(ns), Key: key, Value: raw}
	if err := s.db.TxUpsert(txn, recordKey(ns, key), r); err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return nil
}

func (s *Store) has(txn *badger.Txn, ns generic.Namespace, key string) (bool, error) {
	var r record
	err := s.db.TxGet(txn, recordKey(ns, key), &r)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return true, nil
}

func (s *Store) remove(txn *badger.Txn, ns generic.Namespace, key string) error {
	err := s.db.TxDelete(txn, recordKey(ns, key), &record{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return nil
}

func (s *Store) find(txn *badger.Txn, ns generic.Namespace) ([]record, error) {
	var rows []record
	query := badgerhold.Where("Namespace").Eq(string(ns)).Index("Namespace").SortBy("Key")
	if err := s.db.TxFind(txn, &rows, query); err != nil {
		return nil, fmt.Errorf("range %s: %w: %v", ns, generic.ErrStoreFailure, err)
	}
	return rows, nil
}

func visit(ns generic.Namespace, rows []record, fn generic.RangeFunc) error {
	for _, r := range rows {
		if err := fn(r.Key, func(out any) error { return decode(ns, r.Key, r.Value, out) }); err != nil {
			return err
		}
	}
	return nil
}

func decode(ns generic.Namespace, key string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrEncoding, err)}
	}
	return nil
}

// Reset deletes every record.
func (s *Store) Reset(ctx context.Context) error {
	return s.update(func(txn *badger.Txn) error {
		return s.db.TxDeleteMatching(txn, &record{}, nil)
	})
}
