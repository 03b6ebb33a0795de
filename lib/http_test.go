package lib

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/uvensys/formgate/internal"
	"github.com/uvensys/formgate/lib/challenge/altcha"
	"github.com/uvensys/formgate/lib/directory"
	_ "github.com/uvensys/formgate/lib/directory/file"
	"github.com/uvensys/formgate/lib/mailer"
)

func init() {
	internal.InitSlog("debug")
}

type recordingMailer struct {
	lock sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) mailer.Message {
	t.Helper()

	m.lock.Lock()
	defer m.lock.Unlock()

	if len(m.sent) == 0 {
		t.Fatal("no mail was dispatched")
	}

	return m.sent[len(m.sent)-1]
}

func embeddedDirectory(t *testing.T) directory.Interface {
	t.Helper()

	f, ok := directory.Get("file")
	if !ok {
		t.Fatal("file directory backend is not registered")
	}

	d, err := f.Build(t.Context(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	return d
}

func spawnServer(t *testing.T, opts Options) (*httptest.Server, *recordingMailer) {
	t.Helper()

	rec := &recordingMailer{}

	if opts.Directory == nil {
		opts.Directory = embeddedDirectory(t)
	}
	if opts.Mailer == nil {
		opts.Mailer = rec
	}
	if opts.HMACKey == "" {
		opts.HMACKey = "hunter2"
	}
	if opts.MaxNumber == 0 {
		opts.MaxNumber = 64
	}
	if opts.ChallengeTTL == 0 {
		opts.ChallengeTTL = time.Minute
	}

	s, err := New(opts)
	if err != nil {
		t.Fatalf("can't construct lib.Server: %v", err)
	}

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return ts, rec
}

// noRedirect stops the client from following redirects so tests can assert
// on Location headers, including mailto targets the client can't follow.
func noRedirect(ts *httptest.Server) *http.Client {
	cli := *ts.Client()
	cli.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &cli
}

func solveChallenge(t *testing.T, ts *httptest.Server, code string) string {
	t.Helper()

	resp, err := ts.Client().Get(ts.URL + "/" + code + "/altcha")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("can't fetch challenge: status %d", resp.StatusCode)
	}

	var chall altcha.Challenge
	if err := json.NewDecoder(resp.Body).Decode(&chall); err != nil {
		t.Fatal(err)
	}

	number, ok := altcha.Solve(&chall)
	if !ok {
		t.Fatal("challenge has no solution within its own bound")
	}

	raw, err := json.Marshal(altcha.Payload{
		Algorithm: chall.Algorithm,
		Challenge: chall.Challenge,
		Number:    number,
		Salt:      chall.Salt,
		Signature: chall.Signature,
	})
	if err != nil {
		t.Fatal(err)
	}

	return base64.StdEncoding.EncodeToString(raw)
}

func postSubmit(t *testing.T, ts *httptest.Server, code string, form url.Values) *http.Response {
	t.Helper()

	resp, err := noRedirect(ts).PostForm(ts.URL+"/"+code+"/submit", form)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestHealthCheck(t *testing.T) {
	ts, _ := spawnServer(t, Options{})

	resp, err := ts.Client().Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("wanted status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}

	if body["status"] != "working" {
		t.Errorf("wanted status working, got %q", body["status"])
	}
}

func TestUnknownClient(t *testing.T) {
	ts, _ := spawnServer(t, Options{})

	for _, tt := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/unknown-code/altcha"},
		{http.MethodGet, "/unknown-code/mail"},
		{http.MethodPost, "/unknown-code/submit"},
	} {
		req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
		if err != nil {
			t.Fatal(err)
		}

		resp, err := noRedirect(ts).Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: wanted status %d, got %d", tt.method, tt.path, http.StatusNotFound, resp.StatusCode)
		}
	}
}

func TestMailRedirect(t *testing.T) {
	ts, _ := spawnServer(t, Options{})

	resp, err := noRedirect(ts).Get(ts.URL + "/acme/mail")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("wanted status %d, got %d", http.StatusFound, resp.StatusCode)
	}

	if loc := resp.Header.Get("Location"); loc != "mailto:info@acme.test" {
		t.Errorf("wanted mailto:info@acme.test, got %q", loc)
	}
}

func TestChallengeEndpoint(t *testing.T) {
	ts, _ := spawnServer(t, Options{})

	resp, err := ts.Client().Get(ts.URL + "/acme/altcha")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wanted status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("wanted Cache-Control no-store, got %q", cc)
	}

	var chall altcha.Challenge
	if err := json.NewDecoder(resp.Body).Decode(&chall); err != nil {
		t.Fatal(err)
	}

	if chall.Algorithm != "SHA-256" {
		t.Errorf("wanted algorithm SHA-256, got %q", chall.Algorithm)
	}

	if chall.MaxNumber != 64 {
		t.Errorf("wanted maxnumber 64, got %d", chall.MaxNumber)
	}

	if chall.Salt == "" || chall.Challenge == "" || chall.Signature == "" {
		t.Errorf("challenge is missing fields: %+v", chall)
	}
}

func TestSubmit(t *testing.T) {
	ts, rec := spawnServer(t, Options{})

	t.Run("happy path with reply indirection", func(t *testing.T) {
		form := url.Values{}
		form.Set("altcha", solveChallenge(t, ts, "acme"))
		form.Set("_agreed", "on")
		form.Set("_reply", "email_field")
		form.Set("email_field", "test@example.com")
		form.Set("message", "hello there")

		resp := postSubmit(t, ts, "acme", form)

		if resp.StatusCode != http.StatusFound {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("wanted status %d, got %d: %s", http.StatusFound, resp.StatusCode, body)
		}

		if loc := resp.Header.Get("Location"); loc != "https://acme.test/thanks" {
			t.Errorf("wanted redirect to https://acme.test/thanks, got %q", loc)
		}

		msg := rec.last(t)

		if len(msg.Recipients) != 1 || msg.Recipients[0] != "ops@acme.test" {
			t.Errorf("wanted recipients [ops@acme.test], got %v", msg.Recipients)
		}

		if msg.Subject != "Contact" {
			t.Errorf("wanted default subject Contact, got %q", msg.Subject)
		}

		if msg.ReplyTo != "test@example.com" {
			t.Errorf("wanted reply-to test@example.com, got %q", msg.ReplyTo)
		}

		// reply indirection reads the named field without consuming it
		if msg.Values["email_field"] != "test@example.com" {
			t.Errorf("email_field is missing from template values: %v", msg.Values)
		}

		if msg.Values["message"] != "hello there" {
			t.Errorf("message is missing from template values: %v", msg.Values)
		}

		for _, control := range []string{"altcha", "_agreed", "_reply", "_subject", "_returnurl"} {
			if _, ok := msg.Values[control]; ok {
				t.Errorf("control field %q leaked into template values", control)
			}
		}
	})

	t.Run("subject and returnurl overrides", func(t *testing.T) {
		form := url.Values{}
		form.Set("altcha", solveChallenge(t, ts, "acme"))
		form.Set("_subject", "Custom")
		form.Set("_returnurl", "https://acme.test/custom-thanks")
		form.Set("message", "hi")

		resp := postSubmit(t, ts, "acme", form)

		if resp.StatusCode != http.StatusFound {
			t.Fatalf("wanted status %d, got %d", http.StatusFound, resp.StatusCode)
		}

		if loc := resp.Header.Get("Location"); loc != "https://acme.test/custom-thanks" {
			t.Errorf("wanted custom return URL, got %q", loc)
		}

		if msg := rec.last(t); msg.Subject != "Custom" {
			t.Errorf("wanted subject Custom, got %q", msg.Subject)
		}
	})

	t.Run("missing challenge payload", func(t *testing.T) {
		form := url.Values{}
		form.Set("message", "hi")

		assertSpamRejected(t, postSubmit(t, ts, "acme", form))
	})

	t.Run("garbage payload", func(t *testing.T) {
		form := url.Values{}
		form.Set("altcha", "not a real payload")
		form.Set("message", "hi")

		assertSpamRejected(t, postSubmit(t, ts, "acme", form))
	})

	t.Run("cross tenant solution", func(t *testing.T) {
		// honestly solved for globex, replayed against acme
		form := url.Values{}
		form.Set("altcha", solveChallenge(t, ts, "globex"))
		form.Set("message", "hi")

		assertSpamRejected(t, postSubmit(t, ts, "acme", form))
	})
}

func TestSubmitMailFailure(t *testing.T) {
	ts, rec := spawnServer(t, Options{})
	rec.err = errors.New("smtp: connection refused")

	form := url.Values{}
	form.Set("altcha", solveChallenge(t, ts, "acme"))
	form.Set("message", "hi")

	// delivery failures look exactly like spam rejections
	assertSpamRejected(t, postSubmit(t, ts, "acme", form))
}

func assertSpamRejected(t *testing.T, resp *http.Response) {
	t.Helper()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wanted status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(body), spamMessage) {
		t.Errorf("wanted body to contain %q, got: %s", spamMessage, body)
	}
}

func TestAssets(t *testing.T) {
	assetsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(assetsDir, "style.css"), []byte("body { margin: 0 }"), 0600); err != nil {
		t.Fatal(err)
	}

	ts, _ := spawnServer(t, Options{AssetsDir: assetsDir})

	resp, err := ts.Client().Get(ts.URL + "/assets/style.css")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("wanted status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("wanted immutable cache headers, got %q", cc)
	}

	listing, err := ts.Client().Get(ts.URL + "/assets/")
	if err != nil {
		t.Fatal(err)
	}
	defer listing.Body.Close()

	if listing.StatusCode != http.StatusNotFound {
		t.Errorf("wanted directory listing to 404, got %d", listing.StatusCode)
	}
}
