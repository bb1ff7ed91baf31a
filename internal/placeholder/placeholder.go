// Package placeholder shields non-translatable spans (fenced code, inline
// code, HTML tags, bare URLs) from machine translation by swapping them for
// numbered markers before the call and swapping them back after. LLM
// providers preserve such spans via prompt rules; plain MT services do not,
// so they need this mechanically.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Spans are protected longest-match first so an inline code span inside an
// already-captured fence is never double-captured.
var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```|(?s)~~~.*?~~~")
	reInlineCode = regexp.MustCompile("`[^`\n]+`")
	reHTMLTag    = regexp.MustCompile(`<[^>\s][^>]*>`)
	reBareURL    = regexp.MustCompile(`https?://[^\s)\]]+`)

	reMarker = regexp.MustCompile(`\[PH(\d+)\]`)
)

// Protect replaces protected spans with [PH0], [PH1], ... markers in
// appearance order and returns the rewritten text plus the captured
// originals for Restore.
func Protect(text string) (string, []string) {
	var captured []string

	swap := func(match string) string {
		marker := fmt.Sprintf("[PH%d]", len(captured))
		captured = append(captured, match)
		return marker
	}

	text = reFencedCode.ReplaceAllStringFunc(text, swap)
	text = reInlineCode.ReplaceAllStringFunc(text, swap)
	text = reHTMLTag.ReplaceAllStringFunc(text, swap)
	text = reBareURL.ReplaceAllStringFunc(text, swap)

	return text, captured
}

// Restore substitutes markers back with the captured originals. Markers with
// indices Protect never issued are left untouched.
func Restore(text string, captured []string) string {
	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		sub := reMarker.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx < 0 || idx >= len(captured) {
			return match
		}
		return captured[idx]
	})
}

// Missing returns the indices of captured spans whose markers no longer
// appear in text. A non-empty result means the translation dropped protected
// content and cannot be restored completely.
func Missing(text string, captured []string) []int {
	var missing []int
	for i := range captured {
		if !strings.Contains(text, fmt.Sprintf("[PH%d]", i)) {
			missing = append(missing, i)
		}
	}
	return missing
}
