package parser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/normdoc/core"
)

const (
	DefaultTimeout     = 2 * time.Minute
	DefaultMaxFileSize = 100 << 20
)

// extractFunc turns raw bytes into pages. It returns core.ErrCorruptDocument
// (possibly wrapped) for malformed input.
type extractFunc func(data []byte) ([]core.Page, error)

var extractors = map[string]extractFunc{
	"txt":  extractText,
	"text": extractText,
	"md":   extractText,
	"html": extractHTML,
	"htm":  extractHTML,
	"docx": extractDOCX,
	"pdf":  extractFitz,
	"epub": extractFitz,
}

// Supported reports whether fileType has an extractor.
func Supported(fileType string) bool {
	_, ok := extractors[normalizeType(fileType)]
	return ok
}

// FileType derives the file type from a filename extension.
func FileType(filename string) string {
	return normalizeType(filepath.Ext(filename))
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
}

// Parser extracts text from documents. It holds no per-call state and is safe
// for concurrent use.
type Parser struct {
	timeout     time.Duration
	maxFileSize int64
	logger      *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser) error

// WithTimeout bounds a single extraction.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Parser) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		p.timeout = timeout
		return nil
	}
}

// WithMaxFileSize rejects inputs larger than size bytes.
func WithMaxFileSize(size int64) Option {
	return func(p *Parser) error {
		if size <= 0 {
			return fmt.Errorf("max file size must be positive, got %d", size)
		}
		p.maxFileSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates a Parser.
func New(opts ...Option) (*Parser, error) {
	p := &Parser{
		timeout:     DefaultTimeout,
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "parser")
	return p, nil
}

// MaxFileSize returns the configured size limit in bytes.
func (p *Parser) MaxFileSize() int64 {
	return p.maxFileSize
}

// Parse extracts pages from data. fileType is an extension with or without
// the leading dot. Errors are core.ErrUnsupportedFormat, core.ErrFileTooLarge,
// core.ErrEmptyContent, core.ErrCorruptDocument or core.ErrExtractionTimeout.
//
// Extraction runs on its own goroutine. On timeout Parse returns immediately;
// the goroutine finishes in the background since the C extractors cannot be
// interrupted.
func (p *Parser) Parse(ctx context.Context, data []byte, fileType string) (*core.ParsedDocument, error) {
	fileType = normalizeType(fileType)
	extract, ok := extractors[fileType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, fileType)
	}
	if len(data) == 0 {
		return nil, core.ErrEmptyContent
	}
	if int64(len(data)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, len(data), p.maxFileSize)
	}

	type result struct {
		pages []core.Page
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: extractor panic: %v", core.ErrCorruptDocument, r)}
			}
		}()
		pages, err := extract(data)
		done <- result{pages: pages, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	start := time.Now()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		p.logger.Warn("extraction timed out", "type", fileType, "size", len(data), "timeout", p.timeout)
		return nil, fmt.Errorf("%w: after %s", core.ErrExtractionTimeout, p.timeout)
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		pages := cleanPages(r.pages)
		if len(pages) == 0 {
			return nil, fmt.Errorf("%w: %w", core.ErrCorruptDocument, ErrNoPages)
		}
		p.logger.Debug("document parsed", "type", fileType, "pages", len(pages), "elapsed", time.Since(start))
		return &core.ParsedDocument{FileType: fileType, Pages: pages}, nil
	}
}

// cleanPages normalizes whitespace and drops pages without text. Page numbers
// are kept so provenance matches the source layout.
func cleanPages(pages []core.Page) []core.Page {
	out := pages[:0]
	for _, page := range pages {
		page.Text = normalizeWhitespace(page.Text)
		if page.Text != "" {
			out = append(out, page)
		}
	}
	return out
}

// normalizeWhitespace converts line endings, trims trailing blanks on each
// line and collapses runs of blank lines to one.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}
