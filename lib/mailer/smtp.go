package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

var (
	ErrNoServer = errors.New("mailer: no mail server configured")
	ErrNoFrom   = errors.New("mailer: no sender address configured")
)

// Config is the SMTP transport configuration. STARTTLS and implicit TLS are
// mutually exclusive; STARTTLS wins when both are set.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	StartTLS bool
	SSL      bool
}

func (c Config) Valid() error {
	var errs []error

	if c.Server == "" {
		errs = append(errs, ErrNoServer)
	}

	if c.From == "" {
		errs = append(errs, ErrNoFrom)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// SMTP implements Interface over a single SMTP transport.
type SMTP struct {
	cfg    Config
	client *mail.Client
}

// NewSMTP validates the config and dials nothing yet; the connection is
// established per send.
func NewSMTP(cfg Config) (*SMTP, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	switch {
	case cfg.StartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case cfg.SSL:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: can't construct smtp client: %w", err)
	}

	return &SMTP{cfg: cfg, client: client}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	body, err := RenderBody(msg)
	if err != nil {
		return err
	}

	m := mail.NewMsg()

	if s.cfg.FromName != "" {
		err = m.FromFormat(s.cfg.FromName, s.cfg.From)
	} else {
		err = m.From(s.cfg.From)
	}
	if err != nil {
		return fmt.Errorf("mailer: bad sender address %q: %w", s.cfg.From, err)
	}

	if err := m.To(msg.Recipients...); err != nil {
		return fmt.Errorf("mailer: bad recipient list: %w", err)
	}

	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return fmt.Errorf("mailer: bad reply-to address %q: %w", msg.ReplyTo, err)
		}
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, body)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mailer: can't send message: %w", err)
	}

	return nil
}
