// Package valkey implements a directory backend on a valkey (or redis)
// server, for deployments where several formgate instances share one client
// directory. Records are JSON strings under formgate:clients:<code>.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uvensys/formgate/lib/directory"
	valkey "github.com/redis/go-redis/v9"
)

const keyPrefix = "formgate:clients:"

// Store implements directory.Interface backed by valkey.
type Store struct {
	rdb *valkey.Client
}

func (s *Store) Lookup(ctx context.Context, code string) (directory.Client, error) {
	result, err := s.rdb.Get(ctx, keyPrefix+code).Result()
	if err != nil {
		if valkey.HasErrorPrefix(err, "redis: nil") {
			return directory.Client{}, fmt.Errorf("%w: %q", directory.ErrNotFound, code)
		}

		return directory.Client{}, fmt.Errorf("can't fetch from valkey: %w", err)
	}

	var client directory.Client
	if err := json.Unmarshal([]byte(result), &client); err != nil {
		return directory.Client{}, fmt.Errorf("%w: %q: %w", directory.ErrCantDecode, code, err)
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
		return fmt.Errorf("valkey: can't encode client %q: %w", client.Code, err)
	}

	if _, err := s.rdb.Set(ctx, keyPrefix+client.Code, string(raw), 0).Result(); err != nil {
		return fmt.Errorf("can't set %q in valkey: %w", client.Code, err)
	}

	return nil
}
