package altcha

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/uvensys/formgate/internal"
)

// Payload is the solved challenge the widget submits in the reserved
// challenge form field, base64 over JSON.
type Payload struct {
	Algorithm string `json:"algorithm"`
	Challenge string `json:"challenge"`
	Number    int64  `json:"number"`
	Salt      string `json:"salt"`
	Signature string `json:"signature"`
}

func decodePayload[T any](payload string) (T, error) {
	var result T

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return result, fmt.Errorf("%w: base64: %w", ErrInvalidFormat, err)
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("%w: json: %w", ErrInvalidFormat, err)
	}

	return result, nil
}

func saltParams(salt string) (url.Values, error) {
	idx := strings.IndexByte(salt, '?')
	if idx < 0 {
		return url.Values{}, nil
	}

	params, err := url.ParseQuery(salt[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: salt params: %w", ErrInvalidFormat, err)
	}

	return params, nil
}

// VerifySolution checks a submitted solution against the tenant key. The
// returned error is always an *Error wrapping one of the package sentinels;
// callers log it and respond with the opaque public reason only.
//
// Verification re-derives everything from the payload itself: the embedded
// expiry and search bound ride along in the salt, which the challenge hash
// commits to, so a valid signature proves the server issued exactly these
// parameters for this tenant.
func VerifySolution(payload string, hmacKey string, checkExpires bool) error {
	sol, err := decodePayload[Payload](payload)
	if err != nil {
		return NewError("verify", "invalid payload", err)
	}

	if sol.Algorithm != "SHA-256" {
		return NewError("verify", "invalid payload", fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidFormat, sol.Algorithm))
	}

	params, err := saltParams(sol.Salt)
	if err != nil {
		return NewError("verify", "invalid payload", err)
	}

	if checkExpires {
		if expiresStr := params.Get("expires"); expiresStr != "" {
			expires, err := strconv.ParseInt(expiresStr, 10, 64)
			if err != nil {
				return NewError("verify", "invalid payload", fmt.Errorf("%w: expires: %w", ErrInvalidFormat, err))
			}
			if time.Now().Unix() > expires {
				return NewError("verify", "challenge expired", fmt.Errorf("%w: expired at %d", ErrExpired, expires))
			}
		}
	}

	if sol.Number < 0 {
		return NewError("verify", "invalid solution", fmt.Errorf("%w: number %d is negative", ErrOutOfBounds, sol.Number))
	}

	if maxStr := params.Get("maxnumber"); maxStr != "" {
		maxNumber, err := strconv.ParseInt(maxStr, 10, 64)
		if err != nil {
			return NewError("verify", "invalid payload", fmt.Errorf("%w: maxnumber: %w", ErrInvalidFormat, err))
		}
		if sol.Number > maxNumber {
			return NewError("verify", "invalid solution", fmt.Errorf("%w: number %d > maxnumber %d", ErrOutOfBounds, sol.Number, maxNumber))
		}
	}

	expectedChallenge := challengeHash(sol.Salt, sol.Number)
	if subtle.ConstantTimeCompare([]byte(sol.Challenge), []byte(expectedChallenge)) != 1 {
		return NewError("verify", "invalid solution", fmt.Errorf("%w: challenge hash mismatch", ErrFailed))
	}

	expectedSignature := hmacHex(hmacKey, []byte(expectedChallenge))
	if subtle.ConstantTimeCompare([]byte(sol.Signature), []byte(expectedSignature)) != 1 {
		return NewError("verify", "invalid solution", fmt.Errorf("%w: signature mismatch", ErrFailed))
	}

	return nil
}

// ServerSignaturePayload is the alternative payload the widget submits when
// a verification server pre-validated the solution. The signature covers the
// SHA-256 digest of the verification data.
type ServerSignaturePayload struct {
	Algorithm        string `json:"algorithm"`
	VerificationData string `json:"verificationData"`
	Signature        string `json:"signature"`
	Verified         bool   `json:"verified"`
}

// VerificationData is the parsed form of the URL-encoded verification data.
type VerificationData struct {
	Fields     []string
	FieldsHash string
	Expire     int64
	Verified   bool
}

// IsServerSignature reports whether the payload decodes as a
// server-signature payload rather than a plain solution.
func IsServerSignature(payload string) bool {
	p, err := decodePayload[ServerSignaturePayload](payload)
	return err == nil && p.VerificationData != ""
}

// VerifyServerSignature checks a server-signature payload against the tenant
// key and returns the parsed verification data for the follow-up fields-hash
// check.
func VerifyServerSignature(payload string, hmacKey string) (*VerificationData, error) {
	p, err := decodePayload[ServerSignaturePayload](payload)
	if err != nil {
		return nil, NewError("verify-server-signature", "invalid payload", err)
	}

	if p.Algorithm != "SHA-256" {
		return nil, NewError("verify-server-signature", "invalid payload", fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidFormat, p.Algorithm))
	}

	expected := hmacHex(hmacKey, sha256Raw(p.VerificationData))
	if subtle.ConstantTimeCompare([]byte(p.Signature), []byte(expected)) != 1 {
		return nil, NewError("verify-server-signature", "invalid solution", fmt.Errorf("%w: server signature mismatch", ErrFailed))
	}

	params, err := url.ParseQuery(p.VerificationData)
	if err != nil {
		return nil, NewError("verify-server-signature", "invalid payload", fmt.Errorf("%w: verification data: %w", ErrInvalidFormat, err))
	}

	data := &VerificationData{
		FieldsHash: params.Get("fieldsHash"),
		Verified:   params.Get("verified") == "true",
	}

	if fields := params.Get("fields"); fields != "" {
		data.Fields = strings.Split(fields, ",")
	}

	if expireStr := params.Get("expire"); expireStr != "" {
		expire, err := strconv.ParseInt(expireStr, 10, 64)
		if err != nil {
			return nil, NewError("verify-server-signature", "invalid payload", fmt.Errorf("%w: expire: %w", ErrInvalidFormat, err))
		}
		data.Expire = expire

		if time.Now().Unix() > expire {
			return nil, NewError("verify-server-signature", "challenge expired", fmt.Errorf("%w: expired at %d", ErrExpired, expire))
		}
	}

	if !p.Verified || !data.Verified {
		return nil, NewError("verify-server-signature", "invalid solution", fmt.Errorf("%w: payload not marked verified", ErrFailed))
	}

	return data, nil
}

// VerifyFieldsHash checks that the posted field set still matches what was
// present when the challenge was verified. Fields are only read, never
// consumed: the caller keeps them for templating.
func VerifyFieldsHash(form url.Values, fields []string, fieldsHash string) error {
	lines := make([]string, len(fields))
	for i, field := range fields {
		lines[i] = form.Get(field)
	}

	expected := internal.SHA256sum(strings.Join(lines, "\n"))
	if subtle.ConstantTimeCompare([]byte(fieldsHash), []byte(expected)) != 1 {
		return NewError("verify-fields-hash", "invalid solution", fmt.Errorf("%w: fields hash mismatch", ErrFailed))
	}

	return nil
}

func challengeHash(salt string, number int64) string {
	return internal.SHA256sum(salt + strconv.FormatInt(number, 10))
}
