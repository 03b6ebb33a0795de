package lib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uvensys/formgate"
	"github.com/uvensys/formgate/lib/challenge/altcha"
	"github.com/uvensys/formgate/lib/directory"
	"github.com/uvensys/formgate/lib/mailer"
)

var (
	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formgate_challenges_issued",
		Help: "The total number of challenges issued",
	}, []string{"client"})

	submissionsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formgate_submissions_accepted",
		Help: "The total number of submissions relayed to mail",
	}, []string{"client"})

	submissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formgate_submissions_rejected",
		Help: "The total number of submissions rejected as spam",
	}, []string{"client", "reason"})

	mailtoRedirects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formgate_mailto_redirects_total",
		Help: "The total number of mailto redirects served",
	})
)

var (
	// ErrMissingPayload means the form carried no solved challenge at all.
	ErrMissingPayload = errors.New("lib: submission has no challenge payload")

	// ErrMailDispatch wraps delivery failures. Reported to the submitter
	// exactly like a spam rejection.
	ErrMailDispatch = errors.New("lib: mail dispatch failed")
)

// Server is the HTTP surface of the relay.
type Server struct {
	mux    *http.ServeMux
	assets http.Handler
	opts   Options
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.assets != nil && strings.HasPrefix(r.URL.Path, formgate.AssetsPath) {
		s.assets.ServeHTTP(w, r)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) keyFor(code string) string {
	return s.opts.HMACKey + code
}

// processSubmission runs a submission through challenge verification, field
// extraction, and mail dispatch, returning the redirect target. Any error
// means rejection; the caller collapses all of them into one opaque
// response and only logs the detail.
func (s *Server) processSubmission(ctx context.Context, lg *slog.Logger, client directory.Client, form url.Values) (string, error) {
	payload := form.Get(formgate.FieldChallenge)
	form.Del(formgate.FieldChallenge)
	if payload == "" {
		return "", ErrMissingPayload
	}

	key := s.keyFor(client.Code)

	if altcha.IsServerSignature(payload) {
		vd, err := altcha.VerifyServerSignature(payload, key)
		if err != nil {
			return "", err
		}

		if vd.FieldsHash != "" {
			if err := altcha.VerifyFieldsHash(form, vd.Fields, vd.FieldsHash); err != nil {
				return "", err
			}
		}
	} else if err := altcha.VerifySolution(payload, key, true); err != nil {
		return "", err
	}

	form.Del(formgate.FieldAgreed)

	returnURL := popField(form, formgate.FieldReturnURL, client.Form.ReturnURL)
	subject := popField(form, formgate.FieldSubject, client.Form.Subject)

	// _reply names another field whose value becomes the reply-to address.
	// The named field is read, not removed: it stays in the mail body.
	var replyTo string
	if replyField := popField(form, formgate.FieldReply, ""); replyField != "" {
		replyTo = form.Get(replyField)
	}

	values := make(map[string]string, len(form))
	for field := range form {
		values[field] = form.Get(field)
	}

	lg.Debug("dispatching submission",
		"client", client.Code,
		"recipients", len(client.Form.Receivers),
		"fields", len(values),
		"has_reply_to", replyTo != "",
	)

	msg := mailer.Message{
		Recipients: client.Form.Receivers,
		Subject:    subject,
		ReplyTo:    replyTo,
		ClientName: client.Name,
		Values:     values,
	}

	if err := s.opts.Mailer.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMailDispatch, err)
	}

	return returnURL, nil
}

// popField removes a control field from the form and returns its value, or
// the fallback when the field is absent or empty.
func popField(form url.Values, name, fallback string) string {
	value := form.Get(name)
	form.Del(name)
	if value == "" {
		return fallback
	}
	return value
}

// rejectReason buckets a rejection into a coarse metric label. The detailed
// error never leaves the process.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingPayload):
		return "missing_payload"
	case errors.Is(err, altcha.ErrExpired):
		return "expired"
	case errors.Is(err, altcha.ErrOutOfBounds):
		return "bounds"
	case errors.Is(err, altcha.ErrInvalidFormat):
		return "decode"
	case errors.Is(err, altcha.ErrFailed):
		return "failed"
	case errors.Is(err, ErrMailDispatch):
		return "mail"
	default:
		return "other"
	}
}
