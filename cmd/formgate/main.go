package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/uvensys/formgate"
	"github.com/uvensys/formgate/internal"
	libformgate "github.com/uvensys/formgate/lib"
	"github.com/uvensys/formgate/lib/directory"
	_ "github.com/uvensys/formgate/lib/directory/all"
	"github.com/uvensys/formgate/lib/mailer"
)

var (
	bind               = flag.String("bind", ":3001", "network address to bind HTTP to")
	bindNetwork        = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	assetsDir          = flag.String("assets-dir", "", "directory with static assets served under /assets/, unset disables the assets route")
	challengeTTL       = flag.Duration("challenge-ttl", formgate.DefaultChallengeTTL, "how long an issued challenge stays solvable")
	directoryBackend   = flag.String("directory-backend", "file", fmt.Sprintf("client directory backend, one of: %s", strings.Join(directory.Methods(), ", ")))
	clientsFile        = flag.String("clients-file", "", "path to the clients document for the file backend (defaults to a built-in example directory)")
	bboltPath          = flag.String("bbolt-path", "", "path to the bbolt database for the bbolt backend")
	valkeyURL          = flag.String("valkey-url", "", "URL of the Valkey server for the valkey backend")
	hmacKey            = flag.String("altcha-hmac-key", "", "base secret for challenge signing, the per-client key appends the client code")
	hmacKeyFile        = flag.String("altcha-hmac-key-file", "", "file name containing value for altcha-hmac-key")
	maxNumber          = flag.Int64("max-number", formgate.DefaultMaxNumber, "upper bound of the proof-of-work search space")
	mailServer         = flag.String("mail-server", "", "SMTP server to deliver submissions through")
	mailPort           = flag.Int("mail-port", 587, "SMTP server port")
	mailUsername       = flag.String("mail-username", "", "SMTP username, unset disables authentication")
	mailPassword       = flag.String("mail-password", "", "SMTP password")
	mailFrom           = flag.String("mail-from", "", "sender address for dispatched submissions")
	mailFromName       = flag.String("mail-from-name", "", "sender display name for dispatched submissions")
	mailStartTLS       = flag.Bool("mail-starttls", true, "if true, require STARTTLS when talking to the SMTP server")
	mailSSL            = flag.Bool("mail-ssl", false, "if true, use implicit TLS when talking to the SMTP server")
	metricsBind        = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	metricsBindNetwork = flag.String("metrics-bind-network", "tcp", "network family for the metrics server to bind to")
	socketMode         = flag.String("socket-mode", "0770", "socket mode (permissions) for unix domain sockets.")
	slogLevel          = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	healthcheck        = flag.Bool("healthcheck", false, "run a health check against formgate")
	useRemoteAddress   = flag.Bool("use-remote-address", false, "read the client's IP address from the network request, useful for debugging and running formgate on bare metal")
	versionFlag        = flag.Bool("version", false, "print formgate version")
	xffStripPrivate    = flag.Bool("xff-strip-private", true, "if set, strip private addresses from X-Forwarded-For")
)

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *metricsBind + "/metrics")
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// parseBindNetFromAddr determine bind network and address based on the given network and address.
func parseBindNetFromAddr(address string) (string, string) {
	defaultScheme := "http://"
	if !strings.Contains(address, "://") {
		if strings.HasPrefix(address, ":") {
			address = defaultScheme + "localhost" + address
		} else {
			address = defaultScheme + address
		}
	}

	bindUri, err := url.Parse(address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to parse bind URL: %w", err))
	}

	switch bindUri.Scheme {
	case "unix":
		return "unix", bindUri.Path
	case "tcp", "http", "https":
		return "tcp", bindUri.Host
	default:
		log.Fatal(fmt.Errorf("unsupported network scheme %s in address %s", bindUri.Scheme, address))
	}
	return "", address
}

func setupListener(network string, address string) (net.Listener, string) {
	formattedAddress := ""

	if network == "" {
		// keep compatibility
		network, address = parseBindNetFromAddr(address)
	}

	switch network {
	case "unix":
		formattedAddress = "unix:" + address
	case "tcp":
		if strings.HasPrefix(address, ":") { // assume it's just a port e.g. :3001
			formattedAddress = "http://localhost" + address
		} else {
			formattedAddress = "http://" + address
		}
	default:
		formattedAddress = fmt.Sprintf(`(%s) %s`, network, address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to bind to %s: %w", formattedAddress, err))
	}

	// additional permission handling for unix sockets
	if network == "unix" {
		mode, err := strconv.ParseUint(*socketMode, 8, 0)
		if err != nil {
			listener.Close()
			log.Fatal(fmt.Errorf("could not parse socket mode %s: %w", *socketMode, err))
		}

		err = os.Chmod(address, os.FileMode(mode))
		if err != nil {
			err := listener.Close()
			if err != nil {
				log.Printf("failed to close listener: %v", err)
			}
			log.Fatal(fmt.Errorf("could not change socket mode: %w", err))
		}
	}

	return listener, formattedAddress
}

func directoryConfig() json.RawMessage {
	var cfg any

	switch *directoryBackend {
	case "file":
		cfg = struct {
			Path string `json:"path"`
		}{Path: *clientsFile}
	case "bbolt":
		cfg = struct {
			Path string `json:"path"`
		}{Path: *bboltPath}
	case "valkey":
		cfg = struct {
			URL string `json:"url"`
		}{URL: *valkeyURL}
	default:
		log.Fatalf("[misconfiguration] unknown directory backend %q, pick one of: %s", *directoryBackend, strings.Join(directory.Methods(), ", "))
	}

	result, err := json.Marshal(cfg)
	if err != nil {
		log.Fatalf("can't marshal %s backend config: %v", *directoryBackend, err)
	}

	return result
}

func buildDirectory(ctx context.Context) directory.Interface {
	factory, ok := directory.Get(*directoryBackend)
	if !ok {
		log.Fatalf("[misconfiguration] unknown directory backend %q, pick one of: %s", *directoryBackend, strings.Join(directory.Methods(), ", "))
	}

	cfg := directoryConfig()

	if err := factory.Valid(cfg); err != nil {
		log.Fatalf("[misconfiguration] invalid %s backend config: %v", *directoryBackend, err)
	}

	dir, err := factory.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("can't build %s directory backend: %v", *directoryBackend, err)
	}

	return dir
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("formgate", formgate.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	key := *hmacKey
	if *hmacKey != "" && *hmacKeyFile != "" {
		log.Fatal("do not specify both ALTCHA_HMAC_KEY and ALTCHA_HMAC_KEY_FILE")
	} else if *hmacKeyFile != "" {
		keyFile, err := os.ReadFile(*hmacKeyFile)
		if err != nil {
			log.Fatalf("failed to read ALTCHA_HMAC_KEY_FILE %s: %v", *hmacKeyFile, err)
		}

		key = string(bytes.TrimSpace(keyFile))
	}

	if key == "" {
		log.Fatal("[misconfiguration] set ALTCHA_HMAC_KEY or ALTCHA_HMAC_KEY_FILE, every deployment needs its own secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := buildDirectory(ctx)

	smtp, err := mailer.NewSMTP(mailer.Config{
		Server:   *mailServer,
		Port:     *mailPort,
		Username: *mailUsername,
		Password: *mailPassword,
		From:     *mailFrom,
		FromName: *mailFromName,
		StartTLS: *mailStartTLS,
		SSL:      *mailSSL,
	})
	if err != nil {
		log.Fatalf("[misconfiguration] can't configure SMTP delivery: %v", err)
	}

	s, err := libformgate.New(libformgate.Options{
		Directory:    dir,
		Mailer:       smtp,
		HMACKey:      key,
		MaxNumber:    *maxNumber,
		ChallengeTTL: *challengeTTL,
		AssetsDir:    *assetsDir,
	})
	if err != nil {
		log.Fatalf("can't construct libformgate.Server: %v", err)
	}

	wg := new(sync.WaitGroup)

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	var h http.Handler
	h = s
	h = cors.AllowAll().Handler(h)
	h = internal.RemoteXRealIP(*useRemoteAddress, *bindNetwork, h)
	h = internal.XForwardedForToXRealIP(h)
	h = internal.XForwardedForUpdate(*xffStripPrivate, h)

	srv := http.Server{Handler: h, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, listenerUrl := setupListener(*bindNetwork, *bind)
	slog.Info(
		"listening",
		"url", listenerUrl,
		"version", formgate.Version,
		"directory-backend", *directoryBackend,
		"max-number", *maxNumber,
		"challenge-ttl", *challengeTTL,
		"mail-server", *mailServer,
		"use-remote-address", *useRemoteAddress,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, metricsUrl := setupListener(*metricsBindNetwork, *metricsBind)
	slog.Debug("listening for metrics", "url", metricsUrl)

	if *healthcheck {
		log.Println("running healthcheck")
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
