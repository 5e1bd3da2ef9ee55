// Package match finds keyword occurrences in extracted page text.
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// DefaultContextChars is the context window used when none is configured.
const DefaultContextChars = 150

// Hit is one keyword occurrence.
type Hit struct {
	Keyword minutes.Keyword
	Page    int
	// Offset is the byte offset of the match within the page text.
	Offset  int
	Match   string
	Context string
}

// Matcher compiles keyword terms into case-insensitive patterns.
type Matcher struct {
	contextChars int
}

// New returns a Matcher that keeps contextChars runes on each side of a hit.
func New(contextChars int) *Matcher {
	if contextChars <= 0 {
		contextChars = DefaultContextChars
	}
	return &Matcher{contextChars: contextChars}
}

type compiled struct {
	keyword minutes.Keyword
	pattern *Pattern
}

// Find returns every occurrence of every keyword on every page, ordered by
// page, offset, then term. Blank terms are ignored.
func (m *Matcher) Find(pages []minutes.Page, keywords []minutes.Keyword) []Hit {
	patterns := make([]compiled, 0, len(keywords))
	for _, kw := range keywords {
		pattern := Compile(kw.Term)
		if pattern == nil {
			continue
		}
		patterns = append(patterns, compiled{keyword: kw, pattern: pattern})
	}
	if len(patterns) == 0 {
		return nil
	}

	var hits []Hit
	for _, page := range pages {
		if page.Text == "" {
			continue
		}
		for _, p := range patterns {
			for _, loc := range p.pattern.FindAll(page.Text) {
				hits = append(hits, Hit{
					Keyword: p.keyword,
					Page:    page.Number,
					Offset:  loc[0],
					Match:   page.Text[loc[0]:loc[1]],
					Context: Context(page.Text, loc[0], loc[1], m.contextChars),
				})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return strings.ToLower(a.Keyword.Term) < strings.ToLower(b.Keyword.Term)
	})
	return hits
}

// Pattern is a compiled keyword term.
type Pattern struct {
	re *regexp.Regexp
	// lead and trail are set when the term starts or ends with a word rune,
	// so the neighbouring text rune must not be one.
	lead, trail bool
}

// Compile builds the pattern for a term, or nil for a blank term. Words are
// joined by any whitespace run and word-rune edges require a boundary.
func Compile(term string) *Pattern {
	words := strings.Fields(term)
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}

	first, _ := utf8.DecodeRuneInString(words[0])
	last, _ := utf8.DecodeLastRuneInString(words[len(words)-1])
	return &Pattern{
		re:    regexp.MustCompile(`(?i)` + strings.Join(quoted, `\s+`)),
		lead:  isWordRune(first),
		trail: isWordRune(last),
	}
}

// FindAll returns the [start, end) byte ranges of every bounded,
// non-overlapping occurrence in text.
func (p *Pattern) FindAll(text string) [][2]int {
	var out [][2]int
	for pos := 0; pos < len(text); {
		loc := p.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if p.bounded(text, start, end) {
			out = append(out, [2]int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

func (p *Pattern) bounded(text string, start, end int) bool {
	if p.lead && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if p.trail && end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

// isWordRune treats letters, combining marks, digits, and '_' in any script
// as word characters.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r)
}

// Context returns up to n runes either side of text[start:end], widened to
// the nearest whitespace so words are not cut, and trimmed.
func Context(text string, start, end, n int) string {
	left := start
	for i := 0; i < n && left > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:left])
		left -= size
	}
	for left > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:left])
		if unicode.IsSpace(r) {
			break
		}
		left -= size
	}

	right := end
	for i := 0; i < n && right < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[right:])
		right += size
	}
	for right < len(text) {
		r, size := utf8.DecodeRuneInString(text[right:])
		if unicode.IsSpace(r) {
			break
		}
		right += size
	}
	return strings.TrimSpace(text[left:right])
}
