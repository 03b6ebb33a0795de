package lib

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/uvensys/formgate/internal"
	"github.com/uvensys/formgate/lib/challenge/altcha"
	"github.com/uvensys/formgate/lib/directory"
)

// spamMessage is the one error message every rejected submission gets,
// regardless of which check tripped.
const spamMessage = "Classified as spam"

const maxMultipartMemory = 1 << 20

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// resolveClient looks up the {code} path segment. A failed lookup writes
// the response itself and reports done.
func (s *Server) resolveClient(w http.ResponseWriter, r *http.Request) (directory.Client, bool) {
	code := r.PathValue("code")

	client, err := s.opts.Directory.Lookup(r.Context(), code)
	switch {
	case err == nil:
		return client, true
	case errors.Is(err, directory.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not Found")
	default:
		internal.GetRequestLogger(r).Error("directory lookup failed", "code", code, "err", err)
		respondError(w, http.StatusInternalServerError, "Internal Server Error")
	}

	return directory.Client{}, false
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "working"})
}

func (s *Server) mailRedirect(w http.ResponseWriter, r *http.Request) {
	client, ok := s.resolveClient(w, r)
	if !ok {
		return
	}

	mailtoRedirects.Inc()
	http.Redirect(w, r, "mailto:"+client.Mail, http.StatusFound)
}

func (s *Server) newChallenge(w http.ResponseWriter, r *http.Request) {
	client, ok := s.resolveClient(w, r)
	if !ok {
		return
	}

	chall, err := altcha.NewChallenge(altcha.Options{
		HMACKey:   s.keyFor(client.Code),
		MaxNumber: s.opts.MaxNumber,
		Expires:   time.Now().Add(s.opts.ChallengeTTL),
	})
	if err != nil {
		internal.GetRequestLogger(r).Error("can't create challenge", "client", client.Code, "err", err)
		respondError(w, http.StatusInternalServerError, "Failed to create challenge")
		return
	}

	challengesIssued.WithLabelValues(client.Code).Inc()
	respondJSON(w, http.StatusOK, chall)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	client, ok := s.resolveClient(w, r)
	if !ok {
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			lg.Warn("submission rejected", "client", client.Code, "reason", "decode", "err", err)
			submissionsRejected.WithLabelValues(client.Code, "decode").Inc()
			respondError(w, http.StatusBadRequest, spamMessage)
			return
		}
	} else if err := r.ParseForm(); err != nil {
		lg.Warn("submission rejected", "client", client.Code, "reason", "decode", "err", err)
		submissionsRejected.WithLabelValues(client.Code, "decode").Inc()
		respondError(w, http.StatusBadRequest, spamMessage)
		return
	}

	returnURL, err := s.processSubmission(r.Context(), lg, client, r.PostForm)
	if err != nil {
		reason := rejectReason(err)
		lg.Warn("submission rejected", "client", client.Code, "reason", reason, "err", err)
		submissionsRejected.WithLabelValues(client.Code, reason).Inc()
		respondError(w, http.StatusBadRequest, spamMessage)
		return
	}

	submissionsAccepted.WithLabelValues(client.Code).Inc()
	http.Redirect(w, r, returnURL, http.StatusFound)
}
