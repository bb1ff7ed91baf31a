// Package validator compares structural markers between a source document
// and its translation: headings, fenced code blocks, markdown links, size,
// and front-matter keys. Only total content loss (empty output or complete
// heading loss) is fatal; everything else is a logged warning, because
// legitimate translations may reshape structure.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrEmptyTranslation marks an empty or whitespace-only translation.
	ErrEmptyTranslation = errors.New("translated text is empty")

	// ErrHeadingLoss marks a translation that lost every heading the
	// source had.
	ErrHeadingLoss = errors.New("all headings lost in translation")
)

// Structural marker regexes. These are deliberate heuristics, not a
// markdown parser: pathological nesting can under- or over-count.
var (
	reHeading   = regexp.MustCompile(`(?m)^#{1,6}\s`)
	reFenceLine = regexp.MustCompile("(?m)^[ \t]*(```|~~~)")
	reLink      = regexp.MustCompile(`\[[^\]]*\]\([^)]+\)`)
	reFrontKey  = regexp.MustCompile(`(?m)^([A-Za-z0-9_-]+)\s*:`)
)

// Thresholds are the acceptable ratio bands (translated/source). Values
// outside a band produce warnings, never errors. The defaults have no
// stated empirical basis: they are tunable, not structural.
type Thresholds struct {
	SizeMin      float64 `mapstructure:"size_min"`
	SizeMax      float64 `mapstructure:"size_max"`
	HeadingMin   float64 `mapstructure:"heading_min"`
	HeadingMax   float64 `mapstructure:"heading_max"`
	CodeBlockMin float64 `mapstructure:"code_block_min"`
	CodeBlockMax float64 `mapstructure:"code_block_max"`
	LinkMin      float64 `mapstructure:"link_min"`
	LinkMax      float64 `mapstructure:"link_max"`
}

// DefaultThresholds returns the default acceptance bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SizeMin: 0.5, SizeMax: 2.0,
		HeadingMin: 0.8, HeadingMax: 1.2,
		CodeBlockMin: 0.8, CodeBlockMax: 1.2,
		LinkMin: 0.8, LinkMax: 1.2,
	}
}

// Config configures a Validator.
type Config struct {
	Thresholds Thresholds
	// RequiredFrontmatterKeys missing from the translation are flagged
	// distinctly from incidental key loss.
	RequiredFrontmatterKeys []string
}

// DefaultConfig returns the default validation configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:              DefaultThresholds(),
		RequiredFrontmatterKeys: []string{"title"},
	}
}

// Report holds the ratios and front-matter differences of one validation
// call. It is ephemeral: computed once, logged, never persisted.
type Report struct {
	SizeRatio      float64
	HeadingRatio   float64
	CodeBlockRatio float64
	LinkRatio      float64

	SourceHeadings       int
	TranslatedHeadings   int
	SourceCodeBlocks     int
	TranslatedCodeBlocks int
	SourceLinks          int
	TranslatedLinks      int

	// MissingKeys are source front-matter keys absent from the translation.
	MissingKeys []string
	// MissingRequiredKeys is the subset of MissingKeys that is required.
	MissingRequiredKeys []string

	Warnings []string
}

// Validator checks translated output against its source.
type Validator struct {
	cfg Config
	log zerolog.Logger
}

// New creates a Validator. Zero thresholds fall back to the defaults.
func New(cfg Config, log zerolog.Logger) *Validator {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Validator{cfg: cfg, log: log.With().Str("component", "validator").Logger()}
}

// Validate compares translated against source. It returns an error only for
// the two fatal outcomes: empty output, or total heading loss when the
// source had headings. All other deviations are recorded as warnings on the
// report, logged, and do not block the translation.
func (v *Validator) Validate(source, translated string) (*Report, error) {
	if strings.TrimSpace(translated) == "" {
		return nil, ErrEmptyTranslation
	}

	r := &Report{
		SourceHeadings:       len(reHeading.FindAllString(source, -1)),
		TranslatedHeadings:   len(reHeading.FindAllString(translated, -1)),
		SourceCodeBlocks:     len(reFenceLine.FindAllString(source, -1)) / 2,
		TranslatedCodeBlocks: len(reFenceLine.FindAllString(translated, -1)) / 2,
		SourceLinks:          len(reLink.FindAllString(source, -1)),
		TranslatedLinks:      len(reLink.FindAllString(translated, -1)),
	}

	if r.SourceHeadings > 0 && r.TranslatedHeadings == 0 {
		return nil, fmt.Errorf("source has %d headings, translation has none: %w", r.SourceHeadings, ErrHeadingLoss)
	}

	t := v.cfg.Thresholds
	r.SizeRatio = ratio(len(translated), len(source))
	r.HeadingRatio = ratio(r.TranslatedHeadings, r.SourceHeadings)
	r.CodeBlockRatio = ratio(r.TranslatedCodeBlocks, r.SourceCodeBlocks)
	r.LinkRatio = ratio(r.TranslatedLinks, r.SourceLinks)

	v.checkBand(r, "size", r.SizeRatio, t.SizeMin, t.SizeMax, len(source) > 0)
	v.checkBand(r, "heading", r.HeadingRatio, t.HeadingMin, t.HeadingMax, r.SourceHeadings > 0)
	v.checkBand(r, "code block", r.CodeBlockRatio, t.CodeBlockMin, t.CodeBlockMax, r.SourceCodeBlocks > 0)
	v.checkBand(r, "link", r.LinkRatio, t.LinkMin, t.LinkMax, r.SourceLinks > 0)

	v.checkFrontmatter(r, source, translated)

	for _, w := range r.Warnings {
		v.log.Warn().
			Int("source_headings", r.SourceHeadings).
			Int("translated_headings", r.TranslatedHeadings).
			Int("source_code_blocks", r.SourceCodeBlocks).
			Int("translated_code_blocks", r.TranslatedCodeBlocks).
			Int("source_links", r.SourceLinks).
			Int("translated_links", r.TranslatedLinks).
			Msg(w)
	}
	return r, nil
}

// ratio returns translated/source, or 1 when the source count is zero (no
// basis for comparison).
func ratio(translated, source int) float64 {
	if source == 0 {
		return 1
	}
	return float64(translated) / float64(source)
}

// checkBand records a warning when value falls outside [min, max]. applies
// suppresses the check when the source had nothing to compare against.
func (v *Validator) checkBand(r *Report, name string, value, min, max float64, applies bool) {
	if !applies {
		return
	}
	if value < min || value > max {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("%s ratio %.2f outside acceptable band [%.2f, %.2f]", name, value, min, max))
	}
}

// checkFrontmatter compares top-level front-matter key sets when the source
// has a front-matter block. Missing required keys are flagged distinctly.
func (v *Validator) checkFrontmatter(r *Report, source, translated string) {
	srcKeys := frontmatterKeys(source)
	if len(srcKeys) == 0 {
		return
	}
	dstKeys := frontmatterKeys(translated)

	dstSet := make(map[string]bool, len(dstKeys))
	for _, k := range dstKeys {
		dstSet[k] = true
	}
	required := make(map[string]bool, len(v.cfg.RequiredFrontmatterKeys))
	for _, k := range v.cfg.RequiredFrontmatterKeys {
		required[k] = true
	}

	for _, k := range srcKeys {
		if dstSet[k] {
			continue
		}
		r.MissingKeys = append(r.MissingKeys, k)
		if required[k] {
			r.MissingRequiredKeys = append(r.MissingRequiredKeys, k)
		}
	}

	if len(r.MissingRequiredKeys) > 0 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("required front-matter keys lost in translation: %s", strings.Join(r.MissingRequiredKeys, ", ")))
	} else if len(r.MissingKeys) > 0 {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("front-matter keys lost in translation: %s", strings.Join(r.MissingKeys, ", ")))
	}
}

// frontmatterKeys returns the top-level key names of a leading ---
// delimited front-matter block, or nil when no block is present.
func frontmatterKeys(text string) []string {
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "---" {
		return nil
	}
	rest := lines[1]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil
	}
	blockText := rest[:end]

	var keys []string
	for _, match := range reFrontKey.FindAllStringSubmatch(blockText, -1) {
		keys = append(keys, match[1])
	}
	return keys
}
