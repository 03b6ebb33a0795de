// Package altcha implements the altcha proof-of-work challenge protocol:
// challenge issuance, solution verification, and the optional signed-fields
// integrity check. Challenges carry no server-side state; everything needed
// for verification is committed to by an HMAC over the challenge hash, keyed
// per tenant.
package altcha

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"time"

	"github.com/uvensys/formgate"
	"github.com/uvensys/formgate/internal"
)

const saltLength = 12

// Challenge is the wire format consumed by the altcha widget.
type Challenge struct {
	Algorithm string `json:"algorithm"`
	Challenge string `json:"challenge"`
	MaxNumber int64  `json:"maxnumber"`
	Salt      string `json:"salt"`
	Signature string `json:"signature"`
}

// Options control challenge issuance. HMACKey must already include the
// tenant suffix; deriving it is the caller's job.
type Options struct {
	HMACKey   string
	MaxNumber int64
	Expires   time.Time
}

// NewChallenge issues a fresh challenge. The secret number is uniformly
// random in [0, MaxNumber]. Expiry and the search bound are embedded in the
// salt's query parameters; the salt is committed to by the challenge hash,
// which the signature covers, so neither can be tampered with.
func NewChallenge(opts Options) (*Challenge, error) {
	maxNumber := opts.MaxNumber
	if maxNumber <= 0 {
		maxNumber = formgate.DefaultMaxNumber
	}

	saltBytes := make([]byte, saltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateChallenge, err)
	}

	params := url.Values{}
	if !opts.Expires.IsZero() {
		params.Set("expires", strconv.FormatInt(opts.Expires.Unix(), 10))
	}
	params.Set("maxnumber", strconv.FormatInt(maxNumber, 10))
	salt := hex.EncodeToString(saltBytes) + "?" + params.Encode()

	number, err := rand.Int(rand.Reader, big.NewInt(maxNumber+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateChallenge, err)
	}

	challenge := internal.SHA256sum(salt + number.String())

	return &Challenge{
		Algorithm: formgate.Algorithm,
		Challenge: challenge,
		MaxNumber: maxNumber,
		Salt:      salt,
		Signature: hmacHex(opts.HMACKey, []byte(challenge)),
	}, nil
}

// Solve brute-forces a challenge the way the widget does. Only useful for
// tests and the smoke-test client, the server never calls this.
func Solve(c *Challenge) (int64, bool) {
	for n := int64(0); n <= c.MaxNumber; n++ {
		if internal.SHA256sum(c.Salt+strconv.FormatInt(n, 10)) == c.Challenge {
			return n, true
		}
	}
	return 0, false
}

func hmacHex(key string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func sha256Raw(data string) []byte {
	sum := sha256.Sum256([]byte(data))
	return sum[:]
}
