// Package detector wraps lingua-go language detection for translation
// routing: detecting the source language of a document and advising when a
// document already appears to be in the target language.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/rs/zerolog"

	"github.com/doctrans/doctrans/internal/markdown"
)

// Detector identifies the natural language of document text. Construction is
// expensive (the builder loads language models), so share one instance.
type Detector struct {
	detector lingua.LanguageDetector
	log      zerolog.Logger
}

// New builds a detector across all languages lingua supports.
func New(log zerolog.Logger) *Detector {
	d := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{
		detector: d,
		log:      log.With().Str("component", "detector").Logger(),
	}
}

// Detect returns the most likely language of text, or ok=false when the text
// is empty or no language reaches lingua's confidence floor.
func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the ISO 639-1 code (lowercase) of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// AlreadyTranslated reports whether text already reads as targetLang (an ISO
// 639-1 code). Markdown markup and code blocks are stripped before detection
// because they bias lingua toward English. Detection failure reports false:
// when in doubt, translate.
func (d *Detector) AlreadyTranslated(text, targetLang string) bool {
	prose := markdown.PlainText(text)
	code, ok := d.DetectISO(prose)
	if !ok {
		return false
	}
	match := code == strings.ToLower(targetLang)
	if match {
		d.log.Debug().Str("language", code).Msg("document already in target language")
	}
	return match
}

// HumanName returns the English name of an ISO 639-1 code ("pt" returns
// "Portuguese"), or the code itself when lingua does not know it. Prompts
// read better with language names than with codes.
func HumanName(isoCode string) string {
	upper := strings.ToUpper(isoCode)
	for _, lang := range lingua.AllLanguages() {
		if lang.IsoCode639_1().String() == upper {
			return lang.String()
		}
	}
	return isoCode
}
