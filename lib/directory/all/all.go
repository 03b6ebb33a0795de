// Package all imports every directory backend so importers get the full
// registry with one blank import.
package all

import (
	_ "github.com/uvensys/formgate/lib/directory/bbolt"
	_ "github.com/uvensys/formgate/lib/directory/file"
	_ "github.com/uvensys/formgate/lib/directory/valkey"
)
