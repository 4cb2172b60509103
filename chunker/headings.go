package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxHeadingRunes = 120

var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	numberedHeading = regexp.MustCompile(`^(\d{1,2}(?:\.\d{1,3}){0,3})\.?\s+(\p{Lu}[^.;:]*)$`)
	keywordHeading  = regexp.MustCompile(`(?i)^(?:section|chapter|annex|appendix|раздел|глава|приложение)\s+[\p{L}\d]+`)
)

type heading struct {
	level int
	text  string
}

// detectHeading reports whether line is a heading and at what level. Level 1
// headings are sections; deeper levels are subsections.
func detectHeading(line string) (heading, bool) {
	if line == "" || utf8.RuneCountInString(line) > maxHeadingRunes {
		return heading{}, false
	}
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return heading{level: len(m[1]), text: m[2]}, true
	}
	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		return heading{level: strings.Count(m[1], ".") + 1, text: line}, true
	}
	if keywordHeading.MatchString(line) {
		return heading{level: 1, text: line}, true
	}
	return heading{}, false
}

// outline is the stack of open headings, outermost first.
type outline []heading

func (o outline) push(h heading) outline {
	for len(o) > 0 && o[len(o)-1].level >= h.level {
		o = o[:len(o)-1]
	}
	return append(o, h)
}

func (o outline) section() string {
	if len(o) == 0 {
		return ""
	}
	return o[0].text
}

func (o outline) subsection() string {
	if len(o) < 2 {
		return ""
	}
	return o[len(o)-1].text
}

func (o outline) path() []string {
	if len(o) == 0 {
		return nil
	}
	p := make([]string, len(o))
	for i, h := range o {
		p[i] = h.text
	}
	return p
}
