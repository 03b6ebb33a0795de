// Package formgate contains the process-wide constants for formgate, a
// tenant-scoped contact form relay gated behind altcha-compatible
// proof-of-work challenges.
package formgate

import "time"

var (
	// Version is the version of formgate, filled in at build time.
	Version = "devel"
)

const (
	// DefaultMaxNumber is the upper bound of the proof-of-work search space.
	// Smaller means faster solves and weaker spam deterrence.
	DefaultMaxNumber int64 = 50000

	// DefaultChallengeTTL is how long an issued challenge stays solvable.
	DefaultChallengeTTL = 10 * time.Minute

	// Algorithm is the only challenge algorithm formgate issues.
	Algorithm = "SHA-256"

	// AssetsPath is where static assets get mounted on the main listener.
	AssetsPath = "/assets/"
)

// Reserved control fields stripped from submissions before they become
// template parameters.
const (
	FieldChallenge = "altcha"
	FieldAgreed    = "_agreed"
	FieldReturnURL = "_returnurl"
	FieldSubject   = "_subject"
	FieldReply     = "_reply"
)
