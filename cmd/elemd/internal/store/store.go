// Package store persists shared resources and a journal of applied
// instruction batches in BadgerDB so that elemd can restore a session on
// restart. Resource values are MessagePack encoded.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cwbudde/algo-elem/internal/ids"
)

const (
	resourcePrefix = "resource/"
	batchPrefix    = "batch/"
)

// Resource is a persisted shared resource.
type Resource struct {
	Name       string    `msgpack:"name"`
	Channels   int       `msgpack:"channels"`
	Frames     int       `msgpack:"frames"`
	SampleRate float64   `msgpack:"sampleRate"`
	Data       []float64 `msgpack:"data"`
}

// Options configures Open.
type Options struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
	Logger   *slog.Logger
}

// Store is a BadgerDB-backed resource store.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(dbOpts.WithLogger(badgerLogger{log: log}))
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutResource stores r under its name, replacing any previous value.
func (s *Store) PutResource(_ context.Context, r Resource) error {
	val, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", r.Name, err)
	}

	return s.set([]byte(resourcePrefix+r.Name), val)
}

// DeleteResource removes name. Deleting a missing name is not an error.
func (s *Store) DeleteResource(_ context.Context, name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(resourcePrefix + name))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("store: delete %q: %w", name, err)
	}

	return nil
}

// Resources returns every stored resource in key order.
func (s *Store) Resources(ctx context.Context) ([]Resource, error) {
	var out []Resource

	err := s.scan(ctx, []byte(resourcePrefix), func(key, val []byte) error {
		var r Resource
		if err := msgpack.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}

		out = append(out, r)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list resources: %w", err)
	}

	return out, nil
}

// AppendBatch adds an applied instruction batch to the journal. Keys are
// ULIDs, so iteration order is append order.
func (s *Store) AppendBatch(_ context.Context, batch []byte) error {
	return s.set([]byte(batchPrefix+ids.NewBatchID()), batch)
}

// Batches returns the journal in append order.
func (s *Store) Batches(ctx context.Context) ([][]byte, error) {
	var out [][]byte

	err := s.scan(ctx, []byte(batchPrefix), func(_, val []byte) error {
		out = append(out, val)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list batches: %w", err)
	}

	return out, nil
}

// ClearBatches empties the journal.
func (s *Store) ClearBatches(ctx context.Context) error {
	var keys [][]byte

	err := s.scan(ctx, []byte(batchPrefix), func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: clear batches: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("store: clear batches: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store: clear batches: %w", err)
	}

	return nil
}

// scan calls fn with copies of every key and value under prefix.
func (s *Store) scan(ctx context.Context, prefix []byte, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Store) set(key, val []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}

	return nil
}

// badgerLogger routes badger output through slog. Info and debug messages
// are dropped.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	l.log.Error("store: badger: " + fmt.Sprintf(f, v...))
}

func (l badgerLogger) Warningf(f string, v ...any) {
	l.log.Warn("store: badger: " + fmt.Sprintf(f, v...))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
