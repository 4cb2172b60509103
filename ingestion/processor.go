// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/storage"
)

// process runs every stage for an uploaded document.
func (p *Pipeline) process(ctx context.Context, doc *core.Document, content []byte) error {
	unlock := p.coordinator.Lock(doc.Id)
	defer unlock()

	start := time.Now()
	if err := p.coordinator.MarkProcessing(ctx, doc.Id); err != nil {
		return p.fail(ctx, doc, nil, stageError(StagePersist, err))
	}
	doc.Status = core.StatusProcessing

	parsed, err := p.parser.Parse(ctx, content, doc.FileType)
	if err != nil {
		return p.fail(ctx, doc, nil, stageError(StageParse, err))
	}
	return p.run(ctx, doc, parsed.Pages, true, start)
}

// ReprocessDocument re-runs chunk, embed, persist and index for a stored
// document from its stored pages. The returned document reflects the final
// state even when an error is returned.
func (p *Pipeline) ReprocessDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	doc, err := p.docs.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	unlock := p.coordinator.Lock(doc.Id)
	defer unlock()

	start := time.Now()
	if err := p.coordinator.MarkProcessing(ctx, doc.Id); err != nil {
		return doc, p.fail(ctx, doc, nil, stageError(StagePersist, err))
	}
	doc.Status = core.StatusProcessing

	pages, err := p.docs.ListPages(ctx, doc.Id)
	if err != nil {
		return doc, p.fail(ctx, doc, nil, stageError(StagePersist, err))
	}
	if len(pages) == 0 {
		return doc, p.fail(ctx, doc, nil, stageError(StageParse, fmt.Errorf("%w: no stored pages", core.ErrCorruptDocument)))
	}
	return doc, p.run(ctx, doc, pages, false, start)
}

// run executes the stages after parsing. The caller holds the document lock.
func (p *Pipeline) run(ctx context.Context, doc *core.Document, pages []core.Page, newPages bool, start time.Time) error {
	var fresh []core.Page
	if newPages {
		fresh = pages
	}

	p.classify(doc, pages)

	chunks := p.chunker.Split(doc.Id, pages)
	if len(chunks) == 0 {
		return p.fail(ctx, doc, fresh, stageError(StageChunk, fmt.Errorf("%w: no text to chunk", core.ErrCorruptDocument)))
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := p.generator.Embed(ctx, texts)
	if err != nil {
		return p.fail(ctx, doc, fresh, stageError(StageEmbed, err))
	}

	// Persist marks the document failed on its own.
	if err := p.coordinator.Persist(ctx, doc, fresh, chunks); err != nil {
		return stageError(StagePersist, err)
	}

	if err := p.indexer.Index(ctx, doc, chunks, vectors); err != nil {
		return stageError(StageIndex, err)
	}

	p.logger.Info("document processed",
		"document_id", doc.Id,
		"type", doc.Type,
		"chunks", doc.ChunkCount,
		"tokens", doc.TokenCount,
		"elapsed", time.Since(start))
	return nil
}

// classify fills the document's metadata. A declared category wins over the
// extracted one.
func (p *Pipeline) classify(doc *core.Document, pages []core.Page) {
	parsed := core.ParsedDocument{Pages: pages}
	cls := p.extractor.Extract(doc.Filename, parsed.Text())
	doc.Type = cls.Type
	doc.Number = cls.Number
	doc.Year = cls.Year
	doc.Title = cls.Title
	if doc.Category == "" || doc.Category == core.CategoryOther {
		doc.Category = cls.Category
	}
	p.logger.Debug("document classified", "document_id", doc.Id, "type", cls.Type, "number", cls.Number, "year", cls.Year, "rule", cls.Rule)
}

// fail commits the failed status and returns err.
func (p *Pipeline) fail(ctx context.Context, doc *core.Document, pages []core.Page, err error) error {
	p.logger.Error("document processing failed", "document_id", doc.Id, "stage", Stage(err), "err", err)
	if markErr := p.coordinator.MarkFailedWithPages(ctx, doc.Id, pages, err); markErr != nil {
		p.logger.Warn("could not mark document failed", "document_id", doc.Id, "err", markErr)
	}
	doc.Status = core.StatusFailed
	doc.StatusError = err.Error()
	return err
}
