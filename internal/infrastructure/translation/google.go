package translation

import (
	"context"
	"fmt"
	"html"

	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"

	"AffineNews/internal/config"
	"AffineNews/internal/ports"
)

// GoogleTranslator implements ports.Translator with the Cloud Translation v2 API.
type GoogleTranslator struct {
	svc *translate.Service
}

var _ ports.Translator = (*GoogleTranslator)(nil)

// NewGoogleTranslator builds a client authenticated with an API key.
func NewGoogleTranslator(ctx context.Context, cfg config.TranslationConfig) (*GoogleTranslator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google translator misconfigured: api key is empty")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create translate service: %w", err)
	}
	return &GoogleTranslator{svc: svc}, nil
}

// Translate returns one translation per input text, in input order.
func (g *GoogleTranslator) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	call := g.svc.Translations.List(texts, target).Format("text").Context(ctx)
	if source != "" {
		call = call.Source(source)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("translate %d texts from %s: %w", len(texts), source, err)
	}
	if len(resp.Translations) != len(texts) {
		return nil, fmt.Errorf("translation count mismatch: sent %d, got %d", len(texts), len(resp.Translations))
	}

	out := make([]string, len(resp.Translations))
	for i, tr := range resp.Translations {
		out[i] = html.UnescapeString(tr.TranslatedText)
	}
	return out, nil
}
