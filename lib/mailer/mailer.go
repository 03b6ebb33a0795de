// Package mailer delivers validated submissions as templated HTML email.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/submit.html
var templates embed.FS

var submitTemplate = template.Must(template.ParseFS(templates, "templates/submit.html"))

// Message is one outbound submission mail.
type Message struct {
	Recipients []string
	Subject    string
	ReplyTo    string
	ClientName string
	Values     map[string]string
}

// Interface is the dispatch contract the submission pipeline depends on.
type Interface interface {
	// Send renders and delivers the message. Delivery is single-shot; a
	// transient failure is still a failure.
	Send(ctx context.Context, msg Message) error
}

// RenderBody renders the HTML body for a message. Values are escaped by the
// template engine.
func RenderBody(msg Message) (string, error) {
	var buf bytes.Buffer

	err := submitTemplate.Execute(&buf, struct {
		Subject string
		Name    string
		Values  map[string]string
	}{
		Subject: msg.Subject,
		Name:    msg.ClientName,
		Values:  msg.Values,
	})
	if err != nil {
		return "", fmt.Errorf("mailer: can't render body: %w", err)
	}

	return buf.String(), nil
}
