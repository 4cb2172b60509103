package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// splitSentences breaks a line after terminal punctuation followed by
// whitespace and an upper-case letter, digit, quote or bracket. Lower-case
// continuations ("т. е. ...", "i.e. the") stay in the same sentence.
func splitSentences(line string) []string {
	var out []string
	start := 0
	for i, r := range line {
		if r != '.' && r != '!' && r != '?' && r != '…' {
			continue
		}
		end := i + utf8.RuneLen(r)
		rest := line[end:]
		trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
		if len(trimmed) == len(rest) || trimmed == "" {
			continue
		}
		next, _ := utf8.DecodeRuneInString(trimmed)
		if unicode.IsUpper(next) || unicode.IsDigit(next) || strings.ContainsRune("\"«“([", next) {
			out = append(out, line[start:end])
			start = end
		}
	}
	if tail := line[start:]; strings.TrimSpace(tail) != "" {
		out = append(out, tail)
	}
	return out
}

// paragraphs splits page text on blank lines.
func paragraphs(text string) []string {
	var out []string
	var cur []string
	for line := range strings.Lines(text) {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n"))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}
