package search

import (
	"strings"
	"unicode"
)

// Stop words to filter out before lexical scoring
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "shall": true, "what": true, "which": true,
	"и": true, "в": true, "во": true, "на": true, "с": true, "со": true, "по": true,
	"для": true, "не": true, "к": true, "о": true, "об": true, "от": true, "из": true,
	"что": true, "как": true, "или": true, "а": true, "же": true, "ли": true,
}

func trimToken(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.TrimFunc(word, trimToken))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}
	return filtered
}

// queryTerms returns the distinct filtered terms of a query in first-seen order.
func queryTerms(query string) []string {
	words := tokenizeAndFilter(query)
	seen := make(map[string]bool, len(words))
	terms := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

// coverage returns the share of terms present in any of the texts.
func coverage(terms []string, texts ...string) float32 {
	if len(terms) == 0 {
		return 0
	}
	vocabulary := make(map[string]bool)
	for _, text := range texts {
		for _, w := range tokenizeAndFilter(text) {
			vocabulary[w] = true
		}
	}
	hits := 0
	for _, term := range terms {
		if vocabulary[term] {
			hits++
		}
	}
	return float32(hits) / float32(len(terms))
}
