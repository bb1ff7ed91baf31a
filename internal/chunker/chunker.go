// Package chunker splits oversized documents into token-bounded segments
// while preserving markdown structure, and records the verbatim separator
// text between adjacent segments so reassembly reproduces the source
// exactly. It also extracts a sliding-window context snippet per segment for
// cross-boundary continuity with LLM translators.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

const (
	// DefaultSeparator is substituted when separator recovery cannot locate
	// a segment in the original text.
	DefaultSeparator = "\n\n"

	// DefaultOverlapWords is the default sliding-window context size.
	DefaultOverlapWords = 25
)

// ChunkSet holds the ordered segments of one document, the verbatim
// separators between them, and the translated segments filled in
// incrementally. len(Separators) is always len(Segments)-1.
type ChunkSet struct {
	Segments   []string
	Separators []string
	Translated []string
	// Contexts[i] is the tail of segment i-1, handed to the prompt for
	// continuity. Contexts[0] is empty. Never part of reassembly.
	Contexts []string

	// prefix and suffix hold the whitespace before the first and after the
	// last segment, so round-trips keep trailing newlines intact.
	prefix string
	suffix string
}

// Reassemble substitutes translated segments 1:1 for originals and rejoins
// them with the recorded separators. A count mismatch is fatal; partial
// output is never produced.
func (cs *ChunkSet) Reassemble() (string, error) {
	if len(cs.Translated) != len(cs.Segments) {
		return "", fmt.Errorf("chunk count mismatch: %d segments, %d translations", len(cs.Segments), len(cs.Translated))
	}
	var b strings.Builder
	b.WriteString(cs.prefix)
	for i, seg := range cs.Translated {
		if i > 0 {
			b.WriteString(cs.Separators[i-1])
		}
		b.WriteString(seg)
	}
	b.WriteString(cs.suffix)
	return b.String(), nil
}

// Config controls chunking decisions.
type Config struct {
	// ModelMaxTokens is the model's input budget.
	ModelMaxTokens int `mapstructure:"model_max_tokens"`
	// SystemPromptReserve is subtracted from the budget for the prompt.
	SystemPromptReserve int `mapstructure:"system_prompt_reserve"`
	// MaxTokensPerSegment bounds each produced segment.
	MaxTokensPerSegment int `mapstructure:"max_tokens_per_segment"`
	// OverlapWords is the sliding-window context size between segments.
	OverlapWords int `mapstructure:"overlap_words"`
}

// DefaultConfig returns chunking limits suitable for GPT-4-class models.
func DefaultConfig() Config {
	return Config{
		ModelMaxTokens:      8192,
		SystemPromptReserve: 1024,
		MaxTokensPerSegment: 3000,
		OverlapWords:        DefaultOverlapWords,
	}
}

// Manager decides whether a document needs chunking and performs the split.
type Manager struct {
	est *Estimator
	cfg Config
	log zerolog.Logger
}

// NewManager creates a chunk manager using est for token estimates.
func NewManager(est *Estimator, cfg Config, log zerolog.Logger) *Manager {
	if cfg.MaxTokensPerSegment <= 0 {
		cfg.MaxTokensPerSegment = DefaultConfig().MaxTokensPerSegment
	}
	if cfg.OverlapWords <= 0 {
		cfg.OverlapWords = DefaultOverlapWords
	}
	return &Manager{est: est, cfg: cfg, log: log.With().Str("component", "chunker").Logger()}
}

// EstimateTokens returns the token estimate for text.
func (m *Manager) EstimateTokens(text string) int {
	return m.est.Estimate(text)
}

// NeedsChunking reports whether text exceeds the model budget minus the
// system-prompt reserve.
func (m *Manager) NeedsChunking(text string) bool {
	return m.est.Estimate(text) > m.cfg.ModelMaxTokens-m.cfg.SystemPromptReserve
}

// Chunk splits text into segments of at most MaxTokensPerSegment tokens,
// preferring paragraph and section boundaries and never splitting inside a
// fenced code block, then recovers the verbatim separators between them.
func (m *Manager) Chunk(text string) (*ChunkSet, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot chunk empty text")
	}

	segments := m.split(text)
	cs := &ChunkSet{
		Segments:   segments,
		Separators: m.recoverSeparators(text, segments),
		Contexts:   make([]string, len(segments)),
		prefix:     text[:len(text)-len(strings.TrimLeft(text, " \t\r\n"))],
		suffix:     text[len(strings.TrimRight(text, " \t\r\n")):],
	}
	for i := 1; i < len(segments); i++ {
		cs.Contexts[i] = ExtractContext(segments[i-1], m.cfg.OverlapWords)
	}

	m.log.Debug().
		Int("segments", len(cs.Segments)).
		Int("max_tokens_per_segment", m.cfg.MaxTokensPerSegment).
		Msg("document chunked")
	return cs, nil
}

// block is one blank-line-delimited run of text; start and end are the
// trimmed byte bounds within the original document, so every segment built
// from blocks is a verbatim substring.
type block struct {
	text  string
	start int
	end   int
}

// split packs blocks into segments under the token budget. Fenced code
// blocks are atomic. A single prose block over the budget is split at
// sentence/word boundaries; an oversized fence is kept whole and logged.
func (m *Manager) split(text string) []string {
	budget := m.cfg.MaxTokensPerSegment
	blocks := splitBlocks(text)

	var segments []string
	groupStart := -1 // index into blocks of the current group's first block
	groupEnd := -1
	currentTokens := 0

	flush := func() {
		if groupStart >= 0 {
			segments = append(segments, text[blocks[groupStart].start:blocks[groupEnd].end])
			groupStart, groupEnd = -1, -1
			currentTokens = 0
		}
	}

	for i, blk := range blocks {
		blockTokens := m.est.Estimate(blk.text)

		if blockTokens > budget {
			flush()
			if isFenced(blk.text) {
				// Never split inside a fence, even an oversized one.
				m.log.Warn().Int("tokens", blockTokens).Msg("fenced code block exceeds segment budget, kept whole")
				segments = append(segments, blk.text)
				continue
			}
			segments = append(segments, m.splitOversized(blk.text, budget)...)
			continue
		}

		// Account for the verbatim gap joining this block to the group.
		gapTokens := 0
		if groupEnd >= 0 {
			gapTokens = m.est.Estimate(text[blocks[groupEnd].end:blk.start])
		}
		if groupStart >= 0 && currentTokens+gapTokens+blockTokens > budget {
			flush()
			gapTokens = 0
		}
		if groupStart < 0 {
			groupStart = i
		}
		groupEnd = i
		currentTokens += gapTokens + blockTokens
	}
	flush()

	return segments
}

// splitOversized cuts one prose block into budget-sized pieces at sentence
// or word boundaries, shrinking the candidate window until the token
// estimate fits. Pieces are trimmed substrings of the block, so separator
// recovery still locates them verbatim.
func (m *Manager) splitOversized(blockText string, budget int) []string {
	var pieces []string
	remaining := blockText
	for strings.TrimSpace(remaining) != "" {
		if m.est.Estimate(remaining) <= budget {
			pieces = append(pieces, strings.TrimSpace(remaining))
			break
		}
		// Proportional guess of how many runes fit, refined downward until
		// the estimate agrees.
		runes := []rune(remaining)
		guess := len(runes) * budget / m.est.Estimate(remaining)
		if guess < 1 {
			guess = 1
		}
		for {
			cut := findSplit(remaining, guess)
			piece := strings.TrimSpace(remaining[:cut])
			if piece == "" || m.est.Estimate(piece) <= budget {
				if piece != "" {
					pieces = append(pieces, piece)
				}
				remaining = remaining[cut:]
				break
			}
			guess = guess * 4 / 5
			if guess < 1 {
				pieces = append(pieces, piece)
				remaining = remaining[cut:]
				break
			}
		}
	}
	return pieces
}

// splitBlocks splits text into blank-line-delimited blocks with their byte
// offsets, treating a fenced code block (fence lines included) as one block.
func splitBlocks(text string) []block {
	var blocks []block
	inFence := false
	blockStart := -1
	lineStart := 0
	pos := 0

	endBlock := func(end int) {
		if blockStart < 0 {
			return
		}
		raw := text[blockStart:end]
		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
		trail := len(raw) - len(strings.TrimRight(raw, " \t\r\n"))
		if lead+trail >= len(raw) {
			blockStart = -1
			return // whitespace only
		}
		blocks = append(blocks, block{
			text:  text[blockStart+lead : end-trail],
			start: blockStart + lead,
			end:   end - trail,
		})
		blockStart = -1
	}

	flushLine := func(line string, end int) {
		switch {
		case isFenceLine(line):
			inFence = !inFence
			if blockStart < 0 {
				blockStart = lineStart
			}
		case !inFence && strings.TrimSpace(line) == "":
			endBlock(lineStart)
		default:
			if blockStart < 0 {
				blockStart = lineStart
			}
		}
		lineStart = end
	}

	for pos < len(text) {
		nl := strings.IndexByte(text[pos:], '\n')
		if nl < 0 {
			flushLine(text[pos:], len(text))
			pos = len(text)
			break
		}
		flushLine(text[pos:pos+nl], pos+nl+1)
		pos += nl + 1
	}
	endBlock(len(text))
	return blocks
}

// isFenceLine reports whether line opens or closes a fenced code block.
func isFenceLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// isFenced reports whether blockText starts with a code fence.
func isFenced(blockText string) bool {
	return isFenceLine(strings.TrimSpace(blockText))
}

// findSplit returns the byte index within text at which to split, aiming
// for at most maxRunes runes. Boundaries are tried in order of preference:
// paragraph break, sentence-ending punctuation, whitespace, hard cut.
func findSplit(text string, maxRunes int) int {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return len(text)
	}

	candidate := string(runes[:maxRunes])

	if idx := strings.LastIndex(candidate, "\n\n"); idx > 0 {
		return idx + 2
	}

	cr := []rune(candidate)
	for i := len(cr) - 1; i > 0; i-- {
		r := cr[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(cr) && unicode.IsSpace(cr[i+1]) {
			return len(string(cr[:i+1]))
		}
	}

	for i := len(cr) - 1; i > 0; i-- {
		if unicode.IsSpace(cr[i]) {
			return len(string(cr[:i]))
		}
	}

	return len(candidate)
}

// recoverSeparators reconstructs the verbatim text between each adjacent
// pair of segments by locating the trimmed segments in the original string,
// scanning left to right. When a segment cannot be located (the splitter
// normalized whitespace), the default two-newline separator is substituted
// and the degradation is logged: a best-effort heuristic, not a guaranteed
// exact match.
func (m *Manager) recoverSeparators(original string, segments []string) []string {
	if len(segments) < 2 {
		return nil
	}
	separators := make([]string, 0, len(segments)-1)
	offset := 0
	for i := 0; i < len(segments)-1; i++ {
		cur := strings.TrimSpace(segments[i])
		next := strings.TrimSpace(segments[i+1])
		if cur == "" || next == "" {
			separators = append(separators, DefaultSeparator)
			continue
		}

		ci := strings.Index(original[offset:], cur)
		if ci < 0 {
			m.log.Warn().Int("segment", i).Msg("separator recovery failed, using default separator")
			separators = append(separators, DefaultSeparator)
			continue
		}
		endCur := offset + ci + len(cur)

		ni := strings.Index(original[endCur:], next)
		if ni < 0 {
			m.log.Warn().Int("segment", i+1).Msg("separator recovery failed, using default separator")
			separators = append(separators, DefaultSeparator)
			offset = endCur
			continue
		}

		separators = append(separators, original[endCur:endCur+ni])
		offset = endCur + ni
	}
	return separators
}

// ExtractContext returns the last wordCount words of text, joined by a
// single space, for use as a sliding-window context snippet so LLM calls
// keep continuity across segment boundaries.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultOverlapWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
