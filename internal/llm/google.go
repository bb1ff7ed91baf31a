package llm

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/doctrans/doctrans/internal/placeholder"
)

// GoogleTranslateClient is a promptless machine-translation fallback behind
// the same Client interface. It ignores the prompt entirely, useful when no
// LLM endpoint is available but a plain translation is still wanted.
type GoogleTranslateClient struct {
	credentialsFile string
	sourceLang      string
	targetLang      string
}

// NewGoogleTranslateClient creates a fallback client translating from
// sourceLang ("" or "auto" lets the API detect) to targetLang.
func NewGoogleTranslateClient(credentialsFile, sourceLang, targetLang string) *GoogleTranslateClient {
	return &GoogleTranslateClient{
		credentialsFile: credentialsFile,
		sourceLang:      sourceLang,
		targetLang:      targetLang,
	}
}

func (c *GoogleTranslateClient) Name() string { return "google-translate" }

// Complete machine-translates content; prompt is ignored. Code spans, HTML
// tags, and URLs are shielded with placeholders around the call, since plain
// MT would otherwise translate them.
func (c *GoogleTranslateClient) Complete(ctx context.Context, _ string, content string) (string, error) {
	target, err := language.Parse(c.targetLang)
	if err != nil {
		return "", fmt.Errorf("invalid target language %q: %w", c.targetLang, err)
	}

	var opts []option.ClientOption
	if c.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.credentialsFile))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create translate client: %w", err)
	}
	defer client.Close()

	var translateOpts *translate.Options
	if c.sourceLang != "" && c.sourceLang != "auto" {
		source, err := language.Parse(c.sourceLang)
		if err != nil {
			return "", fmt.Errorf("invalid source language %q: %w", c.sourceLang, err)
		}
		translateOpts = &translate.Options{Source: source, Format: translate.Text}
	} else {
		translateOpts = &translate.Options{Format: translate.Text}
	}

	protected, captured := placeholder.Protect(content)

	translations, err := client.Translate(ctx, []string{protected}, target, translateOpts)
	if err != nil {
		return "", &Error{Provider: c.Name(), Message: err.Error()}
	}
	if len(translations) == 0 {
		return "", &Error{Provider: c.Name(), Message: "no translation returned"}
	}

	out := translations[0].Text
	if missing := placeholder.Missing(out, captured); len(missing) > 0 {
		return "", &Error{Provider: c.Name(), Message: fmt.Sprintf("translation dropped %d protected spans", len(missing))}
	}
	return placeholder.Restore(out, captured), nil
}
