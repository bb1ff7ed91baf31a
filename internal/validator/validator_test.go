package validator_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/doctrans/doctrans/internal/validator"
)

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	return validator.New(validator.DefaultConfig(), zerolog.Nop())
}

func TestValidate_EmptyTranslationFatal(t *testing.T) {
	v := newValidator(t)
	for _, translated := range []string{"", "   ", "\n\t\n"} {
		_, err := v.Validate("# Title\nHello", translated)
		if !errors.Is(err, validator.ErrEmptyTranslation) {
			t.Errorf("translated %q: expected ErrEmptyTranslation, got %v", translated, err)
		}
	}
}

func TestValidate_TotalHeadingLossFatal(t *testing.T) {
	v := newValidator(t)
	source := "# One\n\ntext\n\n## Two\n\nmore\n\n### Three\n\nend"
	translated := "Tudo virou texto corrido sem nenhum título."

	_, err := v.Validate(source, translated)
	if !errors.Is(err, validator.ErrHeadingLoss) {
		t.Fatalf("expected ErrHeadingLoss, got %v", err)
	}
}

func TestValidate_HeadingFreeSourcePasses(t *testing.T) {
	v := newValidator(t)
	r, err := v.Validate("just a plain snippet of text", "apenas um trecho simples de texto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_CodeBlockLossIsWarning(t *testing.T) {
	v := newValidator(t)
	block := "```go\nfmt.Println()\n```\n\n"
	source := "# Doc\n\n" + strings.Repeat(block, 5)
	translated := "# Doc\n\n" + strings.Repeat(block, 3)

	r, err := v.Validate(source, translated)
	if err != nil {
		t.Fatalf("code block loss must not be fatal: %v", err)
	}
	if r.SourceCodeBlocks != 5 || r.TranslatedCodeBlocks != 3 {
		t.Errorf("counted %d/%d code blocks, want 5/3", r.SourceCodeBlocks, r.TranslatedCodeBlocks)
	}
	if len(r.Warnings) == 0 {
		t.Error("expected a code block ratio warning")
	}
}

func TestValidate_SizeRatioWarning(t *testing.T) {
	v := newValidator(t)
	source := strings.Repeat("word ", 100)
	translated := "tiny"

	r, err := v.Validate(source, translated)
	if err != nil {
		t.Fatalf("size deviation must not be fatal: %v", err)
	}
	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w, "size ratio") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected size ratio warning, got %v", r.Warnings)
	}
}

func TestValidate_LinkCounting(t *testing.T) {
	v := newValidator(t)
	source := "# T\n\nSee [docs](https://example.com/docs) and [api](https://example.com/api \"API\")."
	translated := "# T\n\nVeja [documentação](https://example.com/docs) e [api](https://example.com/api \"API\")."

	r, err := v.Validate(source, translated)
	if err != nil {
		t.Fatal(err)
	}
	if r.SourceLinks != 2 || r.TranslatedLinks != 2 {
		t.Errorf("counted %d/%d links, want 2/2", r.SourceLinks, r.TranslatedLinks)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_RequiredFrontmatterKeyLoss(t *testing.T) {
	v := newValidator(t)
	source := "---\ntitle: Hello\ndate: 2024-01-01\n---\n\n# Hello\n\nBody."
	translated := "---\ndate: 2024-01-01\n---\n\n# Olá\n\nCorpo."

	r, err := v.Validate(source, translated)
	if err != nil {
		t.Fatalf("front-matter loss must not be fatal: %v", err)
	}
	if len(r.MissingRequiredKeys) != 1 || r.MissingRequiredKeys[0] != "title" {
		t.Errorf("expected missing required key title, got %v", r.MissingRequiredKeys)
	}
	foundRequired := false
	for _, w := range r.Warnings {
		if strings.Contains(w, "required front-matter") {
			foundRequired = true
		}
	}
	if !foundRequired {
		t.Errorf("expected a required-key warning, got %v", r.Warnings)
	}
}

func TestValidate_IncidentalFrontmatterKeyLoss(t *testing.T) {
	v := newValidator(t)
	source := "---\ntitle: Hello\ndraft: true\n---\n\n# Hello"
	translated := "---\ntitle: Olá\n---\n\n# Olá"

	r, err := v.Validate(source, translated)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.MissingRequiredKeys) != 0 {
		t.Errorf("draft is not required, got %v", r.MissingRequiredKeys)
	}
	if len(r.MissingKeys) != 1 || r.MissingKeys[0] != "draft" {
		t.Errorf("expected missing key draft, got %v", r.MissingKeys)
	}
}

func TestValidate_CleanTranslationNoWarnings(t *testing.T) {
	v := newValidator(t)
	source := "---\ntitle: Guide\n---\n\n# Guide\n\nWelcome to [home](https://x.io).\n\n```sh\nmake\n```\n"
	translated := "---\ntitle: Guia\n---\n\n# Guia\n\nBem-vindo à [início](https://x.io).\n\n```sh\nmake\n```\n"

	r, err := v.Validate(source, translated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected zero warnings, got %v", r.Warnings)
	}
	if r.HeadingRatio != 1 || r.CodeBlockRatio != 1 || r.LinkRatio != 1 {
		t.Errorf("expected unit ratios, got heading=%v code=%v link=%v", r.HeadingRatio, r.CodeBlockRatio, r.LinkRatio)
	}
}

func TestValidate_HeadingsBecomeFewerButNotZero(t *testing.T) {
	v := newValidator(t)
	source := "# A\n\n## B\n\n## C\n\n## D\n\n## E\n\ntext"
	translated := "# A\n\ntexto corrido no lugar das seções"

	r, err := v.Validate(source, translated)
	if err != nil {
		t.Fatalf("partial heading loss must not be fatal: %v", err)
	}
	if len(r.Warnings) == 0 {
		t.Error("expected heading ratio warning")
	}
}
