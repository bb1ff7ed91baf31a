package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/doctrans/doctrans/internal/detector"
)

type promptParams struct {
	SourceLang string
	TargetLang string
	Title      string
	Glossary   map[string]string
	// Context is the tail of the preceding segment, for continuity only.
	Context string
	// Part and Total are set when translating one segment of a larger
	// document. Zero means the whole document fits one call.
	Part  int
	Total int
}

// buildPrompt assembles the system prompt for one translation call. Glossary
// terms are emitted in sorted order so identical inputs produce identical
// prompts (and identical cache keys upstream of the provider).
func buildPrompt(p promptParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional technical translator. Translate the following markdown document from %s to %s.\n",
		detector.HumanName(p.SourceLang), detector.HumanName(p.TargetLang))
	b.WriteString("Rules:\n")
	b.WriteString("- Preserve all markdown structure: headings, lists, links, tables, and front matter.\n")
	b.WriteString("- Do not translate code blocks, inline code, URLs, or front-matter keys. Front-matter values may be translated.\n")
	b.WriteString("- Output only the translated document, with no commentary or explanation.\n")

	if p.Title != "" {
		fmt.Fprintf(&b, "The document is titled %q.\n", p.Title)
	}

	if len(p.Glossary) > 0 {
		b.WriteString("Use this terminology exactly:\n")
		terms := make([]string, 0, len(p.Glossary))
		for src := range p.Glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)
		for _, src := range terms {
			fmt.Fprintf(&b, "- %q must be translated as %q\n", src, p.Glossary[src])
		}
	}

	if p.Total > 1 {
		fmt.Fprintf(&b, "This is part %d of %d of a larger document. Translate only this part.\n", p.Part, p.Total)
	}
	if p.Context != "" {
		fmt.Fprintf(&b, "For continuity, the preceding part ends with: %q. Do not include it in your output.\n", p.Context)
	}

	return b.String()
}
