package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const TemplateInvitation = "invitation"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// Render executes an embedded template by name.
func Render(name string, data any) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return body.String(), nil
}

type NoOpProvider struct {
	log *zap.Logger
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if p.log != nil {
		p.log.Info("smtp not configured, dropping email", zap.Int("recipients", len(to)), zap.String("subject", subject))
	}
	return nil
}
