package store

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"framesync/pkg/logger"
	"framesync/pkg/models"
)

// Store is the pebble-backed local cache of record. It holds asset
// descriptors, users, threads, interactions, E2EE details, the
// share-history queue, the download blacklist and the share graph, each
// under its own key namespace.
//
// Multi-key mutations go through pebble batches, which are all-or-nothing
// from the store's perspective. A reconciliation pass as a whole is not
// transactional: several batches may land independently and the next
// pass's idempotent re-computation repairs any partially-applied diff.
type Store struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) the pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, errors.Wrapf(err, "opening store at %s", path)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the on-disk location of the store.
func (s *Store) Path() string { return s.path }

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return models.ErrNotReady
	}
	return nil
}

// getJSON reads and decodes one record. The second return is false when
// the key is absent.
func (s *Store) getJSON(key string, out any) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "reading %s", key)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, out); err != nil {
		return false, errors.Wrapf(err, "decoding %s", key)
	}
	return true, nil
}

// setJSON encodes and writes one record synchronously.
func (s *Store) setJSON(key string, v any) error {
	if err := s.ready(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	return s.db.Set([]byte(key), b, pebble.Sync)
}

// setRaw writes pre-encoded bytes synchronously.
func (s *Store) setRaw(key string, b []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.db.Set([]byte(key), b, pebble.Sync)
}

// exists reports whether the key is present.
func (s *Store) exists(key string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	_, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

// scanPrefix iterates all records under prefix, honoring ctx cancellation
// between entries.
func (s *Store) scanPrefix(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		v := append([]byte(nil), iter.Value()...)
		if err := fn(string(iter.Key()), v); err != nil {
			return err
		}
	}
	return iter.Error()
}

// deletePrefix removes every key under prefix in one batch and returns the
// deleted keys.
func (s *Store) deletePrefix(ctx context.Context, prefix string) ([]string, error) {
	var found []string
	err := s.scanPrefix(ctx, prefix, func(key string, _ []byte) error {
		found = append(found, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range found {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, errors.Wrapf(err, "deleting prefix %s", prefix)
	}
	return found, nil
}

// applyBatch commits a set of JSON puts and deletes atomically.
func (s *Store) applyBatch(puts map[string]any, deletes []string) error {
	if err := s.ready(); err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for k, v := range puts {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encoding %s", k)
		}
		if err := batch.Set([]byte(k), b, nil); err != nil {
			return err
		}
	}
	for _, k := range deletes {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}
