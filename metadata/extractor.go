// Package metadata classifies documents from their filename and text using an
// ordered list of pattern rules. The first matching rule wins; when none
// matches the document is classified as type other, category other.
package metadata

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/normdoc/core"
)

// DefaultContentPrefix is how many runes of text content rules inspect.
const DefaultContentPrefix = 4000

// maxTitleRunes bounds the title taken from the first line of text.
const maxTitleRunes = 200

// Extractor applies rules in order. It is immutable and safe for concurrent use.
type Extractor struct {
	rules         []Rule
	contentPrefix int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRules replaces the rule list.
func WithRules(rules ...Rule) Option {
	return func(e *Extractor) {
		e.rules = rules
	}
}

// WithContentPrefix sets how many runes of content are scanned.
func WithContentPrefix(runes int) Option {
	return func(e *Extractor) {
		if runes > 0 {
			e.contentPrefix = runes
		}
	}
}

// NewExtractor creates an Extractor with DefaultRules unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		rules:         DefaultRules(),
		contentPrefix: DefaultContentPrefix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract classifies a document. Filename rules run before content rules
// because the list is ordered that way; Extract itself only walks the list.
// It never fails: unmatched input yields the default classification.
func (e *Extractor) Extract(filename, text string) core.Classification {
	name := normalizeFilename(filename)
	content := prefix(text, e.contentPrefix)

	result := core.Classification{Type: core.TypeOther, Category: core.CategoryOther}
	for _, rule := range e.rules {
		input := content
		if rule.Source == FromFilename {
			input = name
		}
		if input == "" {
			continue
		}
		if c, ok := rule.Match(input); ok {
			result = c
			break
		}
	}
	result.Title = title(content)
	return result
}

func normalizeFilename(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}

func prefix(s string, runes int) string {
	if utf8.RuneCountInString(s) <= runes {
		return s
	}
	i := 0
	for n := 0; n < runes; n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}

// title returns the first non-empty line of text, truncated.
func title(text string) string {
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleRunes {
			line = prefix(line, maxTitleRunes)
		}
		return line
	}
	return ""
}
