// Package badger stores content in an embedded Badger key-value database.
// Suited to small and medium files; every blob is held in memory while it
// is written or read.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	badgerdb "github.com/dgraph-io/badger/v4"

	"filevault/pkg/content"
)

// Store is a Badger backed content.Store.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) a Badger database in dir. An empty dir keeps the
// database in memory.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger content store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	if err := content.ValidateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, content.ErrContentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read badger content: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return fmt.Errorf("%s: %w", key, content.ErrContentNotFound)
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badgerdb.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check badger content: %w", err)
	}
}
