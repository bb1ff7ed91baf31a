package internal

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TranslationUnit is one source document plus its identity metadata, the
// unit of work for the translation pipeline. A unit is owned exclusively by
// the orchestration call that processes it and is never mutated after
// construction: Content is read-only and every transform produces a new
// string.
type TranslationUnit struct {
	// Path is the repository-relative location of the document.
	Path string
	// Filename is the base name of Path.
	Filename string
	// Revision is an opaque content-addressing tag (commit SHA, blob hash).
	Revision string
	// Content is the immutable source text.
	Content string
	// Title is parsed once at construction from the front-matter "title:"
	// key or the first ATX heading. Empty when neither is present.
	Title string
	// ID is an opaque correlation identifier, stable for the unit's lifetime.
	ID string
	// Log is a child logger carrying the unit's identity fields.
	Log zerolog.Logger
}

// NewTranslationUnit builds a unit for the document at path with the given
// content. The returned unit carries a fresh correlation ID and a child
// logger derived from parent.
func NewTranslationUnit(path, revision, content string, parent zerolog.Logger) TranslationUnit {
	id := uuid.New().String()
	u := TranslationUnit{
		Path:     path,
		Filename: filepath.Base(path),
		Revision: revision,
		Content:  content,
		Title:    parseTitle(content),
		ID:       id,
	}
	u.Log = parent.With().
		Str("unit", u.Filename).
		Str("correlation_id", id).
		Logger()
	return u
}

// parseTitle extracts the document title: the front-matter "title:" value
// when a leading --- block is present, otherwise the first "# " heading.
func parseTitle(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		for _, line := range lines[1:] {
			trimmed := strings.TrimSpace(line)
			if trimmed == "---" {
				break
			}
			if rest, ok := strings.CutPrefix(trimmed, "title:"); ok {
				return strings.Trim(strings.TrimSpace(rest), `"'`)
			}
		}
	}
	for _, line := range lines {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
