// Package orchestrator drives one document through the translation pipeline:
// language detection, translation memory lookup, chunking, governed and
// retried LLM calls, reassembly, post-processing, and validation. A failure
// anywhere returns an error and never partial output.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/doctrans/doctrans/internal"
	"github.com/doctrans/doctrans/internal/chunker"
	"github.com/doctrans/doctrans/internal/detector"
	"github.com/doctrans/doctrans/internal/governor"
	"github.com/doctrans/doctrans/internal/llm"
	"github.com/doctrans/doctrans/internal/markdown"
	"github.com/doctrans/doctrans/internal/postprocess"
	"github.com/doctrans/doctrans/internal/retry"
	"github.com/doctrans/doctrans/internal/store"
	"github.com/doctrans/doctrans/internal/validator"
)

// Config holds the per-run translation settings.
type Config struct {
	// SourceLang is the ISO 639-1 source language. Empty means detect.
	SourceLang string `mapstructure:"source_lang"`
	// TargetLang is the ISO 639-1 target language.
	TargetLang string `mapstructure:"target_lang"`
	// Service is the governor service name LLM calls are admitted under.
	Service string `mapstructure:"service"`
	// Model keys the translation memory. Defaults to the client name.
	Model string `mapstructure:"model"`
	// Priority orders this run's calls in the governor queue.
	Priority int `mapstructure:"priority"`
	// SkipAlreadyTranslated returns documents that already read as the
	// target language unchanged.
	SkipAlreadyTranslated bool `mapstructure:"skip_already_translated"`
}

// Deps are the pipeline components the orchestrator coordinates. Store is
// optional; everything else is required.
type Deps struct {
	Client    llm.Client
	Chunks    *chunker.Manager
	Detector  *detector.Detector
	Governor  *governor.Governor
	Retry     retry.Policy
	Validator *validator.Validator
	Store     *store.Store
	Log       zerolog.Logger
}

// Orchestrator translates documents. Safe for concurrent use: all mutable
// state lives in the components it coordinates.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
}

func New(cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.With().Str("component", "orchestrator").Logger(),
	}
}

// Translate runs unit through the full pipeline and returns the translated
// document. The unit's content is never modified.
func (o *Orchestrator) Translate(ctx context.Context, unit internal.TranslationUnit) (string, error) {
	if strings.TrimSpace(unit.Content) == "" {
		return "", fmt.Errorf("document %s is empty", unit.Path)
	}
	log := unit.Log

	sourceLang := o.cfg.SourceLang
	if sourceLang == "" {
		code, ok := o.deps.Detector.DetectISO(markdown.PlainText(unit.Content))
		if !ok {
			return "", fmt.Errorf("could not detect source language of %s", unit.Path)
		}
		sourceLang = code
		log.Debug().Str("source_lang", sourceLang).Msg("source language detected")
	}

	if o.cfg.SkipAlreadyTranslated && o.deps.Detector.AlreadyTranslated(unit.Content, o.cfg.TargetLang) {
		log.Info().Str("target_lang", o.cfg.TargetLang).Msg("document already in target language, skipping")
		return unit.Content, nil
	}

	model := o.cfg.Model
	if model == "" {
		model = o.deps.Client.Name()
	}

	if o.deps.Store != nil {
		cached, hit, err := o.deps.Store.GetCachedTranslation(ctx, unit.Content, sourceLang, o.cfg.TargetLang, model)
		if err != nil {
			log.Warn().Err(err).Msg("translation memory lookup failed")
		} else if hit {
			log.Info().Msg("translation memory hit")
			return cached, nil
		}
	}

	glossary := o.glossaryTerms(ctx, log, sourceLang)

	params := promptParams{
		SourceLang: sourceLang,
		TargetLang: o.cfg.TargetLang,
		Title:      unit.Title,
		Glossary:   glossary,
	}

	var translated string
	if !o.deps.Chunks.NeedsChunking(unit.Content) {
		out, err := o.complete(ctx, log, buildPrompt(params), unit.Content)
		if err != nil {
			return "", err
		}
		translated = postprocess.Clean(out)
	} else {
		out, err := o.translateChunked(ctx, log, unit.Content, params)
		if err != nil {
			return "", err
		}
		translated = out
	}

	translated = postprocess.NormalizeLineEndings(unit.Content, translated)

	if _, err := o.deps.Validator.Validate(unit.Content, translated); err != nil {
		return "", fmt.Errorf("validation of %s failed: %w", unit.Path, err)
	}

	if o.deps.Store != nil {
		if err := o.deps.Store.SaveToMemory(ctx, unit.Content, sourceLang, o.cfg.TargetLang, model, translated); err != nil {
			log.Warn().Err(err).Msg("failed to save translation to memory")
		}
	}

	log.Info().
		Str("source_lang", sourceLang).
		Str("target_lang", o.cfg.TargetLang).
		Int("source_bytes", len(unit.Content)).
		Int("translated_bytes", len(translated)).
		Msg("document translated")
	return translated, nil
}

// translateChunked splits the document, translates every segment
// concurrently under the governor, and reassembles with the original
// separators. Any segment failure fails the whole document.
func (o *Orchestrator) translateChunked(ctx context.Context, log zerolog.Logger, content string, params promptParams) (string, error) {
	cs, err := o.deps.Chunks.Chunk(content)
	if err != nil {
		return "", err
	}
	total := len(cs.Segments)
	log.Info().Int("segments", total).Msg("document exceeds model window, translating in segments")

	type segResult struct {
		index int
		text  string
		err   error
	}
	results := make(chan segResult, total)

	var wg sync.WaitGroup
	for i, seg := range cs.Segments {
		wg.Add(1)
		go func(index int, segment, prior string) {
			defer wg.Done()

			p := params
			p.Part = index + 1
			p.Total = total
			p.Context = prior

			out, err := o.complete(ctx, log, buildPrompt(p), segment)
			if err == nil {
				out = postprocess.Clean(out)
				if out == "" {
					err = validator.ErrEmptyTranslation
				}
			}
			results <- segResult{index: index, text: out, err: err}
		}(i, seg, cs.Contexts[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	translated := make([]string, total)
	var errs []error
	for r := range results {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("segment %d/%d: %w", r.index+1, total, r.err))
			continue
		}
		translated[r.index] = r.text
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}

	cs.Translated = translated
	return cs.Reassemble()
}

// complete runs one LLM call under the retry schedule; each attempt is
// separately admitted by the governor so backoff never holds a slot.
func (o *Orchestrator) complete(ctx context.Context, log zerolog.Logger, prompt, content string) (string, error) {
	var out string
	err := retry.Do(ctx, log, o.deps.Retry, func(ctx context.Context) error {
		return o.deps.Governor.Do(ctx, o.cfg.Service, o.cfg.Priority, func(ctx context.Context) error {
			res, err := o.deps.Client.Complete(ctx, prompt, content)
			if err != nil {
				return err
			}
			out = res
			return nil
		})
	}, nil)
	return out, err
}

// glossaryTerms loads the glossary for the language pair. Lookup failures
// degrade to an empty glossary rather than blocking the translation.
func (o *Orchestrator) glossaryTerms(ctx context.Context, log zerolog.Logger, sourceLang string) map[string]string {
	if o.deps.Store == nil {
		return nil
	}
	terms, err := o.deps.Store.GetGlossaryTerms(ctx, sourceLang, o.cfg.TargetLang)
	if err != nil {
		log.Warn().Err(err).Msg("glossary lookup failed")
		return nil
	}
	return terms
}
