// Package postprocess strips LLM artifacts from raw model output and
// normalizes line endings so the translated document matches the source
// convention.
package postprocess

import (
	"regexp"
	"strings"
)

// reasoningBlockRe matches complete reasoning blocks. Tag variants are
// listed explicitly because RE2 has no backreferences.
var reasoningBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// openReasoningRe matches a reasoning tag that was never closed, which
// happens when the model hits its output limit mid-thought.
var openReasoningRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

// preamblePatterns match conversational lead-ins models prepend even when
// told not to. Anchored to the start and requiring a colon to avoid eating
// legitimate content.
var preamblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:translated |full )?(?:translation|text|document)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:translated )?(?:translation|translated text|document)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:translated )?(?:translation|text|document)\s*:`),
}

// Clean strips LLM artifacts from raw model output: reasoning blocks,
// conversational preambles, and whole-output quote wrapping.
func Clean(text string) string {
	text = stripReasoning(text)
	text = stripPreamble(text)
	text = unwrapQuotes(text)
	return strings.TrimSpace(text)
}

func stripReasoning(text string) string {
	text = reasoningBlockRe.ReplaceAllString(text, "")
	text = openReasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func stripPreamble(text string) string {
	for _, re := range preamblePatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// unwrapQuotes removes a matching outer quote pair when the whole output is
// wrapped in one. Models do this to short inputs in particular.
func unwrapQuotes(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	switch {
	case first == '"' && last == '"',
		first == '\'' && last == '\'',
		first == '«' && last == '»',
		first == '“' && last == '”',
		first == '‘' && last == '’':
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}

// NormalizeLineEndings rewrites translated to use the line-ending convention
// of source. Models normalize everything to LF, which breaks diffs against
// CRLF documents.
func NormalizeLineEndings(source, translated string) string {
	sourceCRLF := strings.Contains(source, "\r\n")
	normalized := strings.ReplaceAll(translated, "\r\n", "\n")
	if sourceCRLF {
		return strings.ReplaceAll(normalized, "\n", "\r\n")
	}
	return normalized
}
