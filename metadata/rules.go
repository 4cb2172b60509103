package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/normdoc/core"
)

// Source selects which input a Rule inspects.
type Source int

const (
	// FromFilename matches against the filename with underscores turned into
	// spaces and the extension removed.
	FromFilename Source = iota
	// FromContent matches against a bounded prefix of the extracted text.
	FromContent
)

func (s Source) String() string {
	if s == FromFilename {
		return "filename"
	}
	return "content"
}

// Rule is one typed classification rule. Pattern may capture the named groups
// "number" and "year"; both are optional.
type Rule struct {
	Name     string
	Source   Source
	Pattern  *regexp.Regexp
	Type     core.DocumentType
	Category string

	// YearPattern, when set, is searched in the same input for a "year" group
	// if Pattern did not capture one.
	YearPattern *regexp.Regexp
}

// Match applies the rule to input.
func (r Rule) Match(input string) (core.Classification, bool) {
	m := r.Pattern.FindStringSubmatch(input)
	if m == nil {
		return core.Classification{}, false
	}
	c := core.Classification{Type: r.Type, Category: r.Category, Rule: r.Name}
	if i := r.Pattern.SubexpIndex("number"); i > 0 {
		c.Number = strings.TrimSpace(m[i])
	}
	if i := r.Pattern.SubexpIndex("year"); i > 0 {
		c.Year = parseYear(m[i])
	}
	if c.Year == 0 && r.YearPattern != nil {
		if ym := r.YearPattern.FindStringSubmatch(input); ym != nil {
			if i := r.YearPattern.SubexpIndex("year"); i > 0 {
				c.Year = parseYear(ym[i])
			}
		}
	}
	return c, true
}

// parseYear expands two-digit years: 30-99 are 19xx, 00-29 are 20xx.
func parseYear(s string) int {
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	switch {
	case len(s) == 2 && y >= 30:
		return 1900 + y
	case len(s) == 2:
		return 2000 + y
	case y < 1900 || y > 2100:
		return 0
	}
	return y
}

// RE2 \b only knows ASCII word characters, so Cyrillic prefixes are anchored
// with an explicit non-letter class instead.
const lead = `(?:^|[^\p{L}\d])`

// Designation patterns shared by filename and content rules.
var (
	gostR   = regexp.MustCompile(`(?i)` + lead + `(?:GOST|ГОСТ)\s*(?:R|Р)\s+(?P<number>\d+(?:\.\d+)*)\s*[-–—]\s*(?P<year>\d{2,4})\b`)
	gost    = regexp.MustCompile(`(?i)` + lead + `(?:GOST|ГОСТ)\s+(?P<number>\d+(?:\.\d+)*)\s*[-–—]\s*(?P<year>\d{2,4})\b`)
	iso     = regexp.MustCompile(`(?i)` + lead + `(?:ISO|IEC|EN)(?:/IEC)?\s+(?P<number>\d+(?:[-.]\d+)*)\s*:\s*(?P<year>\d{4})\b`)
	sp      = regexp.MustCompile(`(?i)` + lead + `(?:SP|СП)\s+(?P<number>\d+(?:\.\d+)*)\.(?P<year>\d{4})\b`)
	snip    = regexp.MustCompile(`(?i)` + lead + `(?:SNiP|СНиП)\s+(?P<number>\d+(?:[.-]\d+)*?)\s*-\s*(?P<year>\d{2,4})\b`)
	sto     = regexp.MustCompile(`(?i)` + lead + `(?:STO|СТО)\s+(?P<number>[\d.\-]+?)\s*[-–]\s*(?P<year>\d{4})\b`)
	law     = regexp.MustCompile(`(?i)(?:federal\s+law|федеральн\S*\s+закон\S*)[^\n]{0,80}?(?:№|N|No\.?)\s*(?P<number>\d+(?:\s*-\s*(?:ФЗ|FZ))?)`)
	decree  = regexp.MustCompile(`(?i)(?:government\s+decree|постановлени\S*\s+правительств\S*)[^\n]{0,80}?(?:№|N|No\.?)\s*(?P<number>\d+)`)
	lawDate = regexp.MustCompile(`(?:от|dated)\s+\d{1,2}[./]\d{1,2}[./](?P<year>\d{4})`)
)

// DefaultRules returns the built-in rule list: every filename rule, then the
// same designations in content, then content-only regulatory rules.
func DefaultRules() []Rule {
	designations := []struct {
		name     string
		pattern  *regexp.Regexp
		docType  core.DocumentType
		category string
	}{
		{"gost-r", gostR, core.TypeStandard, "standard"},
		{"gost", gost, core.TypeStandard, "standard"},
		{"iso", iso, core.TypeStandard, "standard"},
		{"sp", sp, core.TypeCode, "code"},
		{"snip", snip, core.TypeCode, "code"},
		{"sto", sto, core.TypeCorporate, "corporate"},
	}

	var rules []Rule
	for _, src := range []Source{FromFilename, FromContent} {
		for _, d := range designations {
			rules = append(rules, Rule{
				Name:     src.String() + ":" + d.name,
				Source:   src,
				Pattern:  d.pattern,
				Type:     d.docType,
				Category: d.category,
			})
		}
	}
	return append(rules,
		Rule{Name: "content:federal-law", Source: FromContent, Pattern: law, Type: core.TypeRegulation, Category: "regulation", YearPattern: lawDate},
		Rule{Name: "content:decree", Source: FromContent, Pattern: decree, Type: core.TypeRegulation, Category: "regulation", YearPattern: lawDate},
	)
}
