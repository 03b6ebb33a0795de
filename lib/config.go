// Package lib implements the formgate server: challenge issuance and
// submission relay endpoints scoped per tenant, plus static asset hosting.
package lib

import (
	"errors"
	"net/http"
	"time"

	"github.com/uvensys/formgate"
	"github.com/uvensys/formgate/internal"
	"github.com/uvensys/formgate/lib/directory"
	"github.com/uvensys/formgate/lib/mailer"
)

var (
	ErrNoHMACKey   = errors.New("lib: no HMAC key configured")
	ErrNoDirectory = errors.New("lib: no client directory configured")
	ErrNoMailer    = errors.New("lib: no mailer configured")
)

// Options configure a Server. They are constructed once at process start
// and never mutated afterwards; there is no other process-wide state.
type Options struct {
	// Directory resolves tenant codes. Required.
	Directory directory.Interface

	// Mailer delivers validated submissions. Required.
	Mailer mailer.Interface

	// HMACKey is the base challenge secret. The per-tenant key is this
	// value with the tenant code appended. Required.
	HMACKey string

	// MaxNumber bounds the proof-of-work search space. Zero means
	// formgate.DefaultMaxNumber.
	MaxNumber int64

	// ChallengeTTL is how long an issued challenge stays solvable. Zero
	// means formgate.DefaultChallengeTTL.
	ChallengeTTL time.Duration

	// AssetsDir is served read-only under /assets. Empty disables the
	// mount.
	AssetsDir string
}

func New(opts Options) (*Server, error) {
	var errs []error

	if opts.HMACKey == "" {
		errs = append(errs, ErrNoHMACKey)
	}
	if opts.Directory == nil {
		errs = append(errs, ErrNoDirectory)
	}
	if opts.Mailer == nil {
		errs = append(errs, ErrNoMailer)
	}
	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	if opts.MaxNumber <= 0 {
		opts.MaxNumber = formgate.DefaultMaxNumber
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = formgate.DefaultChallengeTTL
	}

	result := &Server{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", result.healthCheck)
	mux.HandleFunc("GET /{code}/mail", result.mailRedirect)
	mux.Handle("GET /{code}/altcha", internal.NoStoreCache(http.HandlerFunc(result.newChallenge)))
	mux.HandleFunc("POST /{code}/submit", result.submit)
	result.mux = mux

	// The assets mount lives outside the mux: a prefix pattern under a
	// wildcard {code} segment would make route registration ambiguous.
	if opts.AssetsDir != "" {
		result.assets = internal.UnchangingCache(internal.NoBrowsing(
			http.StripPrefix(formgate.AssetsPath, http.FileServer(http.Dir(opts.AssetsDir)))))
	}

	return result, nil
}
