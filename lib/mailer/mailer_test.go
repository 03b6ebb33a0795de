package mailer

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderBody(t *testing.T) {
	body, err := RenderBody(Message{
		Subject:    "Contact",
		ClientName: "ACME Corp",
		Values: map[string]string{
			"email":   "test@example.com",
			"message": "hello <script>alert(1)</script>",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"Contact", "ACME Corp", "email", "test@example.com"} {
		if !strings.Contains(body, want) {
			t.Errorf("body is missing %q:\n%s", want, body)
		}
	}

	if strings.Contains(body, "<script>") {
		t.Errorf("body contains unescaped HTML:\n%s", body)
	}
}

func TestConfigValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		cfg  Config
		err  error
	}{
		{
			name: "complete",
			cfg:  Config{Server: "smtp.example.com", Port: 587, From: "relay@example.com", StartTLS: true},
		},
		{
			name: "no server",
			cfg:  Config{From: "relay@example.com"},
			err:  ErrNoServer,
		},
		{
			name: "no sender",
			cfg:  Config{Server: "smtp.example.com"},
			err:  ErrNoFrom,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Valid()

			if tt.err == nil {
				if err != nil {
					t.Errorf("wanted config to be valid, got: %v", err)
				}
				return
			}

			if !errors.Is(err, tt.err) {
				t.Errorf("wanted %v, got: %v", tt.err, err)
			}
		})
	}
}
