package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/uvensys/formgate/lib/directory"
	dbbolt "github.com/uvensys/formgate/lib/directory/bbolt"
	"go.etcd.io/bbolt"
)

const validDocument = `[
  {
    "client": "acme",
    "name": "ACME Corp",
    "mail": "info@acme.test",
    "form": {
      "receivers": ["ops@acme.test"],
      "subject": "Contact",
      "return_url": "https://acme.test/thanks"
    }
  }
]`

const validYAMLDocument = `- client: acme
  name: ACME Corp
  mail: info@acme.test
  form:
    receivers:
      - ops@acme.test
    return_url: https://acme.test/thanks
`

func TestLoadClients(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		err   error
		count int
	}{
		{
			name:  "json document",
			input: validDocument,
			count: 1,
		},
		{
			name:  "yaml document",
			input: validYAMLDocument,
			count: 1,
		},
		{
			name:  "not a document",
			input: `{{{`,
			err:   directory.ErrCantDecode,
		},
		{
			name:  "empty list",
			input: `[]`,
		},
		{
			name:  "missing receivers",
			input: `[{"client": "acme", "form": {"return_url": "https://acme.test/thanks"}}]`,
			err:   directory.ErrNoReceivers,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clients, err := loadClients([]byte(tt.input))

			switch {
			case tt.err != nil:
				if !errors.Is(err, tt.err) {
					t.Fatalf("wanted error %v, got: %v", tt.err, err)
				}
				return
			case tt.count == 0:
				if err == nil {
					t.Fatal("wanted an error for an empty document, got none")
				}
				return
			case err != nil:
				t.Fatalf("can't load clients: %v", err)
			}

			if len(clients) != tt.count {
				t.Errorf("wanted %d client(s), got %d", tt.count, len(clients))
			}
		})
	}
}

func TestSyncToBolt(t *testing.T) {
	clients, err := loadClients([]byte(validDocument))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "clients.bdb")

	bdb, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer bdb.Close()

	store := dbbolt.New(bdb)

	for _, client := range clients {
		if err := store.Put(t.Context(), client); err != nil {
			t.Fatalf("can't store client %q: %v", client.Code, err)
		}
	}

	found, err := store.Lookup(t.Context(), "acme")
	if err != nil {
		t.Fatal(err)
	}

	if found.Form.Receivers[0] != "ops@acme.test" {
		t.Errorf("round trip mangled the client: %+v", found)
	}
}
