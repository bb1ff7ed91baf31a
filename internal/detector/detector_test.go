package detector_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/doctrans/doctrans/internal/detector"
)

func TestDetectISO(t *testing.T) {
	d := detector.New(zerolog.Nop())

	tests := []struct {
		name string
		text string
		want string
	}{
		{"english", "The quick brown fox jumps over the lazy dog near the river bank.", "en"},
		{"portuguese", "A rápida raposa marrom salta sobre o cão preguiçoso perto da margem do rio.", "pt"},
		{"ukrainian", "Швидка коричнева лисиця стрибає через ледачого собаку біля берега річки.", "uk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.DetectISO(tt.text)
			if !ok {
				t.Fatal("detection failed")
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetect_EmptyText(t *testing.T) {
	d := detector.New(zerolog.Nop())
	if _, ok := d.Detect("   \n "); ok {
		t.Error("expected detection failure for whitespace-only text")
	}
}

func TestAlreadyTranslated(t *testing.T) {
	d := detector.New(zerolog.Nop())

	doc := "# Guia de instalação\n\nEste documento descreve como instalar e configurar o serviço.\n\n```sh\nmake install\n```\n"
	if !d.AlreadyTranslated(doc, "pt") {
		t.Error("portuguese document should read as already translated to pt")
	}
	if d.AlreadyTranslated(doc, "de") {
		t.Error("portuguese document is not german")
	}
	// Detection failure means "not translated".
	if d.AlreadyTranslated("12345 67890", "en") {
		t.Error("undetectable text should never count as translated")
	}
}

func TestHumanName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"en", "English"},
		{"pt", "Portuguese"},
		{"uk", "Ukrainian"},
		{"zz", "zz"},
	}
	for _, tt := range tests {
		if got := detector.HumanName(tt.code); got != tt.want {
			t.Errorf("HumanName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
