package reindex

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
)

// fixedClock makes the reported rate deterministic.
func fixedClock(p *ProgressReporter, elapsed time.Duration) {
	p.now = func() time.Time { return p.start.Add(elapsed) }
}

func completed(id core.ID, chunks, tokens int) *core.Document {
	return &core.Document{Id: id, Filename: string(id) + ".pdf", Status: core.StatusCompleted, ChunkCount: chunks, TokenCount: tokens}
}

func TestProgressReporter_Totals(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, 4, 1)
	fixedClock(p, 2*time.Second)

	p.Observe("gost-1", completed("gost-1", 3, 120), nil)
	p.Observe("gost-2", completed("gost-2", 5, 200), nil)

	out := buf.String()
	assert.Contains(t, out, "2/4 documents (50.0%), 0 failed, 8 chunks, 320 tokens - 1.0 docs/s [gost-2]")
	assert.Zero(t, p.Failed())
}

func TestProgressReporter_Failures(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, 3, 1)

	parseErr := &ingestion.StageError{Stage: ingestion.StageParse, Err: errors.New("no stored pages")}
	failed := &core.Document{Id: "sp-7", Filename: "sp-7.docx", Status: core.StatusFailed}

	p.Observe("gost-1", completed("gost-1", 2, 40), nil)
	p.Observe("sp-7", failed, parseErr)
	p.Observe("ghost", nil, core.ErrDocumentNotFound)
	p.Finish()

	out := buf.String()
	assert.Equal(t, 2, p.Failed())
	assert.Contains(t, out, "3/3 documents (100.0%), 2 failed, 2 chunks, 40 tokens")
	assert.Contains(t, out, "  failed sp-7 (sp-7.docx) at parse: parse: no stored pages\n")
	assert.Contains(t, out, "  failed ghost at unknown stage: "+core.ErrDocumentNotFound.Error()+"\n")
}

func TestProgressReporter_FailedDocumentAddsNoChunks(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, 1, 1)

	doc := completed("gost-1", 9, 900)
	p.Observe("gost-1", doc, fmt.Errorf("index: %w", core.ErrVectorIndexUnavailable))

	assert.Contains(t, buf.String(), "1 failed, 0 chunks, 0 tokens")
}

func TestProgressReporter_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, 10, 5)

	for i := range 4 {
		p.Observe(core.ID(fmt.Sprintf("doc-%d", i)), completed("x", 1, 1), nil)
	}
	assert.Empty(t, buf.String(), "nothing before the interval is reached")

	p.Observe("doc-4", completed("x", 1, 1), nil)
	assert.Equal(t, 1, strings.Count(buf.String(), "\r"))
	assert.Contains(t, buf.String(), "5/10 documents")
}

func TestProgressReporter_CancelledRunKeepsRealCount(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, 10, 100)

	p.Observe("a", completed("a", 1, 1), nil)
	p.Observe("b", completed("b", 1, 1), nil)
	p.Finish()

	out := buf.String()
	assert.Contains(t, out, "2/10 documents (20.0%)")
	assert.True(t, strings.HasSuffix(out, "\n"))

	// Finished reporters ignore late outcomes and a second Finish.
	p.Observe("c", completed("c", 1, 1), nil)
	p.Finish()
	assert.Equal(t, out, buf.String())
}

func TestProgressReporter_EmptyRun(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, 0, 0)
	fixedClock(p, 0)
	p.Finish()

	assert.Equal(t, "\rReindex: 0/0 documents (100.0%), 0 failed, 0 chunks, 0 tokens - 0.0 docs/s\n", buf.String())
}
