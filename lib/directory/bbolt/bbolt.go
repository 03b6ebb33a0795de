// Package bbolt implements a directory backend on top of bbolt[1]. Client
// records live in a single bucket keyed by tenant code, encoded as JSON.
// Use cmd/clients2bolt to load a flat clients document into the database.
//
// bbolt is not suitable for environments where multiple formgate instances
// need to share one directory. For that, use the valkey backend.
//
// [1]: https://github.com/etcd-io/bbolt
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uvensys/formgate/lib/directory"
	"go.etcd.io/bbolt"
)

var (
	ErrBucketDoesNotExist = errors.New("bbolt: clients bucket does not exist")
)

var bucketName = []byte("clients")

// Store implements directory.Interface backed by bbolt.
type Store struct {
	bdb *bbolt.DB
}

// New wraps an open database handle. The bucket is created lazily on the
// first Put.
func New(bdb *bbolt.DB) *Store {
	return &Store{bdb: bdb}
}

// Lookup reads a client record by code.
func (s *Store) Lookup(ctx context.Context, code string) (directory.Client, error) {
	var client directory.Client

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt == nil {
			return fmt.Errorf("%w: %q", directory.ErrNotFound, code)
		}

		raw := bkt.Get([]byte(code))
		if raw == nil {
			return fmt.Errorf("%w: %q", directory.ErrNotFound, code)
		}

		if err := json.Unmarshal(raw, &client); err != nil {
			return fmt.Errorf("%w: %q: %w", directory.ErrCantDecode, code, err)
		}

		return nil
	}); err != nil {
		return directory.Client{}, err
	}

	return client, nil
}

// Put writes a client record, replacing any existing record for its code.
func (s *Store) Put(ctx context.Context, client directory.Client) error {
	if err := client.Valid(); err != nil {
		return err
	}

	raw, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("bbolt: can't encode client %q: %w", client.Code, err)
	}

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("bbolt: can't create bucket: %w", err)
		}

		return bkt.Put([]byte(client.Code), raw)
	})
}

// Delete removes a client record by code.
func (s *Store) Delete(ctx context.Context, code string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt == nil {
			return ErrBucketDoesNotExist
		}

		return bkt.Delete([]byte(code))
	})
}
