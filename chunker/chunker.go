package chunker

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/poiesic/normdoc/core"
)

const (
	DefaultChunkSize = 300
	DefaultOverlap   = 40
)

// ErrInvalidBounds is returned for a non-positive size or an overlap that is
// negative or not smaller than the size.
var ErrInvalidBounds = errors.New("invalid chunk bounds")

// Chunker splits pages into chunks. Sizes are measured in whitespace-separated
// words. A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum words per chunk.
func WithChunkSize(words int) Option {
	return func(c *Chunker) {
		c.size = words
	}
}

// WithOverlap sets the maximum words repeated from the end of one chunk at the
// start of the next.
func WithOverlap(words int) Option {
	return func(c *Chunker) {
		c.overlap = words
	}
}

// New creates a Chunker.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.size < 1 || c.overlap < 0 || c.overlap >= c.size {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidBounds, c.size, c.overlap)
	}
	return c, nil
}

// Size returns the configured chunk size in words.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in words.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns the lazy chunk sequence for a document's pages. Chunk IDs
// are derived from documentID and the sequence index.
func (c *Chunker) Chunks(documentID core.ID, pages []core.Page) iter.Seq[core.Chunk] {
	return func(yield func(core.Chunk) bool) {
		b := &builder{Chunker: c, documentID: documentID, yield: yield}
		for _, page := range pages {
			if !b.page(page) {
				return
			}
		}
		b.flush(false)
	}
}

// Split collects Chunks into a slice.
func (c *Chunker) Split(documentID core.ID, pages []core.Page) []core.Chunk {
	return slices.Collect(c.Chunks(documentID, pages))
}

// segment is a sentence, or a piece of one, with whitespace collapsed.
type segment struct {
	text  string
	sep   string // Placed before the segment unless it opens a chunk
	words int
	page  int
}

func newSegment(raw, sep string, page int) segment {
	fields := strings.Fields(raw)
	return segment{text: strings.Join(fields, " "), sep: sep, words: len(fields), page: page}
}

type builder struct {
	*Chunker
	documentID core.ID
	yield      func(core.Chunk) bool

	segs    []segment
	words   int
	fresh   int // Index of the first segment not carried over as overlap
	index   int
	outline outline
	stopped bool
}

// page feeds one page. It returns false once the consumer stops iterating.
func (b *builder) page(p core.Page) bool {
	for _, para := range paragraphs(p.Text) {
		sep := "\n\n"
		for _, line := range strings.Split(para, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if h, ok := detectHeading(line); ok {
				if !b.flush(false) {
					return false
				}
				b.outline = b.outline.push(h)
				if !b.add(newSegment(line, sep, p.Number)) {
					return false
				}
				sep = "\n"
				continue
			}
			for _, sentence := range splitSentences(line) {
				if !b.add(newSegment(sentence, sep, p.Number)) {
					return false
				}
				sep = " "
			}
			sep = "\n"
		}
	}
	return b.flush(true)
}

// add appends a segment, emitting the current chunk first if it would
// overflow. Segments longer than the chunk size are cut at word boundaries.
func (b *builder) add(s segment) bool {
	if s.words == 0 {
		return true
	}
	if s.words > b.size {
		fields := strings.Fields(s.text)
		for start := 0; start < len(fields); start += b.size {
			piece := fields[start:min(start+b.size, len(fields))]
			sep := " "
			if start == 0 {
				sep = s.sep
			}
			part := segment{text: strings.Join(piece, " "), sep: sep, words: len(piece), page: s.page}
			if !b.add(part) {
				return false
			}
		}
		return true
	}

	if b.words+s.words > b.size && b.fresh < len(b.segs) {
		if !b.flush(true) {
			return false
		}
	}
	// Only carried overlap can be buffered here; shrink it to what still fits.
	if b.words+s.words > b.size {
		b.trimCarry(b.size - s.words)
	}
	b.segs = append(b.segs, s)
	b.words += s.words
	return true
}

// flush emits the buffered segments as a chunk if any of them are new. With
// carry set, the overlap tail stays buffered for the next chunk.
func (b *builder) flush(carry bool) bool {
	if b.stopped {
		return false
	}
	if b.fresh >= len(b.segs) {
		if !carry {
			b.reset(nil)
		}
		return true
	}

	var content strings.Builder
	for i, s := range b.segs {
		if i > 0 {
			content.WriteString(s.sep)
		}
		content.WriteString(s.text)
	}
	chunk := core.Chunk{
		Id:            core.ChunkID(b.documentID, b.index),
		DocumentId:    b.documentID,
		Index:         b.index,
		Page:          b.segs[b.fresh].page,
		Section:       b.outline.section(),
		Subsection:    b.outline.subsection(),
		Content:       content.String(),
		TokenCount:    b.words,
		HierarchyPath: b.outline.path(),
	}
	b.index++
	if !b.yield(chunk) {
		b.stopped = true
		return false
	}

	if carry {
		b.reset(b.tail())
	} else {
		b.reset(nil)
	}
	return true
}

// tail returns the trailing segments that fit in the overlap budget. If the
// last segment alone is too long, its last overlap words are returned.
func (b *builder) tail() []segment {
	if b.overlap == 0 || len(b.segs) == 0 {
		return nil
	}
	last := b.segs[len(b.segs)-1]
	if last.words > b.overlap {
		fields := strings.Fields(last.text)
		return []segment{{
			text:  strings.Join(fields[len(fields)-b.overlap:], " "),
			words: b.overlap,
			page:  last.page,
		}}
	}

	words := 0
	i := len(b.segs)
	for i > 0 && words+b.segs[i-1].words <= b.overlap {
		i--
		words += b.segs[i].words
	}
	return slices.Clone(b.segs[i:])
}

// trimCarry keeps the last budget words of the carried overlap. Whole
// trailing segments are kept where they fit and the one before them is cut.
func (b *builder) trimCarry(budget int) {
	if budget <= 0 {
		b.reset(nil)
		return
	}
	words := 0
	i := len(b.segs)
	for i > 0 && words+b.segs[i-1].words <= budget {
		i--
		words += b.segs[i].words
	}
	kept := slices.Clone(b.segs[i:])
	if rest := budget - words; rest > 0 && i > 0 {
		cut := b.segs[i-1]
		fields := strings.Fields(cut.text)
		kept = slices.Insert(kept, 0, segment{
			text:  strings.Join(fields[len(fields)-rest:], " "),
			words: rest,
			page:  cut.page,
		})
	}
	b.reset(kept)
}

func (b *builder) reset(carried []segment) {
	b.segs = carried
	b.words = 0
	for _, s := range carried {
		b.words += s.words
	}
	b.fresh = len(carried)
}
