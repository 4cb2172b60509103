package reindex

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
)

// ProgressReporter renders a reindex run as one updating terminal line and,
// when the run ends, a list of the documents that failed.
type ProgressReporter struct {
	mu sync.Mutex
	w  io.Writer

	total int
	every int
	now   func() time.Time
	start time.Time

	done     int
	reported int
	chunks   int
	tokens   int
	last     core.ID
	failures []core.DocumentError
	finished bool
}

// NewProgressReporter starts the clock for a run over total documents. A line
// is written after every `every` documents; values below 1 mean every one.
func NewProgressReporter(w io.Writer, total, every int) *ProgressReporter {
	return &ProgressReporter{
		w:     w,
		total: total,
		every: max(every, 1),
		now:   time.Now,
		start: time.Now(),
	}
}

// Observe folds one finished document into the report. doc may be nil when
// the document could not be loaded.
func (p *ProgressReporter) Observe(id core.ID, doc *core.Document, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}

	p.done = min(p.done+1, p.total)
	p.last = id
	if err != nil {
		de := core.DocumentError{DocumentId: id, Stage: ingestion.Stage(err), Error: err.Error()}
		if doc != nil {
			de.Filename = doc.Filename
		}
		p.failures = append(p.failures, de)
	} else if doc != nil {
		p.chunks += doc.ChunkCount
		p.tokens += doc.TokenCount
	}

	if p.done-p.reported >= p.every {
		p.line()
		p.reported = p.done
	}
}

// Finish writes the final line and the failed documents. A cancelled run
// keeps its real count rather than jumping to the total.
func (p *ProgressReporter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true

	p.line()
	fmt.Fprintln(p.w)
	for _, f := range p.failures {
		name := string(f.DocumentId)
		if f.Filename != "" {
			name += " (" + f.Filename + ")"
		}
		stage := f.Stage
		if stage == "" {
			stage = "unknown stage"
		}
		fmt.Fprintf(p.w, "  failed %s at %s: %s\n", name, stage, f.Error)
	}
}

// Failed returns the number of failed documents seen so far.
func (p *ProgressReporter) Failed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failures)
}

// line writes the current state. The caller holds the lock.
func (p *ProgressReporter) line() {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	rate := 0.0
	if secs := p.now().Sub(p.start).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}

	fmt.Fprintf(p.w, "\rReindex: %d/%d documents (%.1f%%), %d failed, %d chunks, %d tokens - %.1f docs/s",
		p.done, p.total, pct, len(p.failures), p.chunks, p.tokens, rate)
	if p.last != "" {
		fmt.Fprintf(p.w, " [%s]", p.last)
	}
}
