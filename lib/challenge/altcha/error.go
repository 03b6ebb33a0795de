package altcha

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFailed means the work was not actually performed: the submitted
	// number does not reproduce the committed challenge hash, or the
	// signature does not match the tenant key.
	ErrFailed = errors.New("altcha: solution failed verification")

	// ErrInvalidFormat means the payload could not be decoded into a
	// solution at all.
	ErrInvalidFormat = errors.New("altcha: payload has invalid format")

	// ErrExpired means the challenge's embedded expiry has passed.
	ErrExpired = errors.New("altcha: challenge expired")

	// ErrOutOfBounds means the submitted number lies outside the signed
	// search space.
	ErrOutOfBounds = errors.New("altcha: number out of bounds")

	// ErrCreateChallenge means challenge issuance itself failed. The only
	// cause is a broken random source.
	ErrCreateChallenge = errors.New("altcha: can't create challenge")
)

func NewError(verb, publicReason string, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: privateReason,
		StatusCode:    http.StatusBadRequest,
	}
}

// Error carries a detailed private reason for logs and an opaque public
// reason for the HTTP response. Submissions that fail for any reason are
// reported to the client identically, denying attackers signal about which
// check tripped.
type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("altcha: error when processing challenge: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}
