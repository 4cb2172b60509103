package metadata

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/normdoc/core"
)

func TestExtract_Designations(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		text     string
		docType  core.DocumentType
		category string
		number   string
		year     int
		rule     string
	}{
		{"gost in filename", "GOST_12345-2020.pdf", "", core.TypeStandard, "standard", "12345", 2020, "filename:gost"},
		{"gost in content", "upload.txt", "Межгосударственный стандарт\nГОСТ 12345-2020\nБетоны", core.TypeStandard, "standard", "12345", 2020, "content:gost"},
		{"gost r", "ГОСТ Р 21.101-2020.docx", "", core.TypeStandard, "standard", "21.101", 2020, "filename:gost-r"},
		{"iso", "scan.pdf", "This is ISO 9001:2015 quality management.", core.TypeStandard, "standard", "9001", 2015, "content:iso"},
		{"sp", "СП 2.13130.2020.pdf", "", core.TypeCode, "code", "2.13130", 2020, "filename:sp"},
		{"snip two-digit year", "doc.txt", "СНиП 2.01.07-85 Нагрузки и воздействия", core.TypeCode, "code", "2.01.07", 1985, "content:snip"},
		{"sto", "СТО 56947007-29.240.10.248-2017.pdf", "", core.TypeCorporate, "corporate", "56947007-29.240.10.248", 2017, "filename:sto"},
		{"federal law", "law.txt", "Федеральный закон от 22.07.2008 № 123-ФЗ\nТехнический регламент", core.TypeRegulation, "regulation", "123-ФЗ", 2008, "content:federal-law"},
		{"decree", "decree.txt", "Government Decree dated 16.02.2008 No. 87", core.TypeRegulation, "regulation", "87", 2008, "content:decree"},
	}

	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.Extract(tt.filename, tt.text)
			assert.Equal(t, tt.docType, c.Type)
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.number, c.Number)
			assert.Equal(t, tt.year, c.Year)
			assert.Equal(t, tt.rule, c.Rule)
		})
	}
}

func TestExtract_FilenameBeforeContent(t *testing.T) {
	c := NewExtractor().Extract("ISO 9001:2015.pdf", "ГОСТ 12345-2020")
	assert.Equal(t, "9001", c.Number)
	assert.Equal(t, "filename:iso", c.Rule)
}

func TestExtract_Default(t *testing.T) {
	c := NewExtractor().Extract("notes.txt", "Meeting notes\nNothing normative here.")
	assert.Equal(t, core.TypeOther, c.Type)
	assert.Equal(t, core.CategoryOther, c.Category)
	assert.Empty(t, c.Number)
	assert.Zero(t, c.Year)
	assert.Empty(t, c.Rule)
	assert.Equal(t, "Meeting notes", c.Title)

	empty := NewExtractor().Extract("", "")
	assert.Equal(t, core.TypeOther, empty.Type)
}

func TestExtract_Deterministic(t *testing.T) {
	e := NewExtractor()
	text := "ГОСТ 12345-2020\n" + strings.Repeat("текст ", 100)
	first := e.Extract("a.txt", text)
	for range 5 {
		assert.Equal(t, first, e.Extract("a.txt", text))
	}
}

func TestExtract_ContentPrefix(t *testing.T) {
	text := strings.Repeat("x", 50) + " GOST 12345-2020"
	assert.Equal(t, core.TypeOther, NewExtractor(WithContentPrefix(20)).Extract("", text).Type)
	assert.Equal(t, core.TypeStandard, NewExtractor(WithContentPrefix(100)).Extract("", text).Type)
}

func TestExtract_CustomRules(t *testing.T) {
	rule := Rule{
		Name:     "internal",
		Source:   FromContent,
		Pattern:  regexp.MustCompile(`INT-(?P<number>\d+)`),
		Type:     core.TypeCorporate,
		Category: "internal",
	}
	c := NewExtractor(WithRules(rule)).Extract("GOST 1-2000.pdf", "see INT-42")
	assert.Equal(t, "internal", c.Category)
	assert.Equal(t, "42", c.Number)
}

func TestParseYear(t *testing.T) {
	assert.Equal(t, 1985, parseYear("85"))
	assert.Equal(t, 2003, parseYear("03"))
	assert.Equal(t, 2020, parseYear("2020"))
	assert.Equal(t, 0, parseYear("0123"))
	assert.Equal(t, 0, parseYear("x"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "First", title("\n\n  First  \nSecond"))
	assert.Len(t, []rune(title(strings.Repeat("я", 500))), maxTitleRunes)
}
