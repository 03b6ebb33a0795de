// Package directorytest is a conformance suite for directory backends.
package directorytest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/uvensys/formgate/data"
	"github.com/uvensys/formgate/lib/directory"
)

// ExampleClients parses the embedded example directory, which doubles as
// seed data for backend tests.
func ExampleClients(t *testing.T) []directory.Client {
	t.Helper()

	raw, err := fs.ReadFile(data.Clients, "clients.json")
	if err != nil {
		t.Fatal(err)
	}

	var clients []directory.Client
	if err := json.Unmarshal(raw, &clients); err != nil {
		t.Fatal(err)
	}

	if len(clients) == 0 {
		t.Fatal("embedded example directory is empty")
	}

	return clients
}

// Common runs the lookup conformance checks against a backend built from
// the given factory and config. seed loads the example clients into the
// backend; pass nil when the backend is pre-seeded (the file backend reads
// its document directly).
func Common(t *testing.T, f directory.Factory, config json.RawMessage, seed func(t *testing.T, d directory.Interface)) {
	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	d, err := f.Build(t.Context(), config)
	if err != nil {
		t.Fatal(err)
	}

	if seed != nil {
		seed(t, d)
	}

	clients := ExampleClients(t)

	t.Run("lookup hit", func(t *testing.T) {
		for _, want := range clients {
			got, err := d.Lookup(t.Context(), want.Code)
			if err != nil {
				t.Fatalf("can't look up %q: %v", want.Code, err)
			}

			if got.Name != want.Name {
				t.Errorf("wanted name %q, got %q", want.Name, got.Name)
			}

			if len(got.Form.Receivers) != len(want.Form.Receivers) {
				t.Errorf("wanted %d receivers, got %d", len(want.Form.Receivers), len(got.Form.Receivers))
			}

			if got.Form.ReturnURL != want.Form.ReturnURL {
				t.Errorf("wanted return_url %q, got %q", want.Form.ReturnURL, got.Form.ReturnURL)
			}
		}
	})

	t.Run("lookup miss", func(t *testing.T) {
		if _, err := d.Lookup(t.Context(), "no-such-client"); !errors.Is(err, directory.ErrNotFound) {
			t.Errorf("wanted %v, got: %v", directory.ErrNotFound, err)
		}
	})
}
