package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/normdoc"
	"github.com/poiesic/normdoc/api"
	"github.com/poiesic/normdoc/config"
	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/ingestion"
	"github.com/poiesic/normdoc/parser"
	"github.com/poiesic/normdoc/reindex"
)

// loadConfig reads the global --config and --env-file flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.StringSlice("env-file")...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openKnowledgeBase(ctx context.Context, cfg *config.Config, opts ...normdoc.Option) (*normdoc.KnowledgeBase, error) {
	kb, err := normdoc.Open(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	return kb, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Address = addr
	}
	if mode := c.String("mode"); mode != "" {
		cfg.Server.Mode = mode
	}

	ctx, stop := signalContext()
	defer stop()

	kb, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	router := api.NewRouter(kb, cfg.Server.Mode,
		api.WithMaxUploadSize(cfg.Parser.MaxFileSize),
		api.WithSearchLimit(cfg.Search.DefaultLimit),
	)
	return api.Serve(ctx, cfg.Server.Address, router, nil)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file or directory is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	files, err := collectFiles(c.Args().Slice(), c.Bool("recursive"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no supported files found")
	}

	ctx, stop := signalContext()
	defer stop()

	kb, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	out := c.App.Writer
	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}
		res, err := kb.Ingest(ctx, ingestion.UploadRequest{
			Filename:    filepath.Base(path),
			Content:     content,
			Category:    c.String("category"),
			ProjectCode: c.String("project-code"),
		})
		switch {
		case err != nil:
			fmt.Fprintf(out, "%s: failed: %v\n", path, err)
			failed++
		case res.Duplicate:
			fmt.Fprintf(out, "%s: duplicate of %s (%s)\n", path, res.Document.Id, res.Document.Status)
		default:
			d := res.Document
			fmt.Fprintf(out, "%s: %s %s, %d chunks, %d tokens\n", path, d.Id, d.Status, d.ChunkCount, d.TokenCount)
		}
	}

	fmt.Fprintf(out, "Ingested %d of %d files\n", len(files)-failed, len(files))
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d files failed", failed), 1)
	}
	return nil
}

// collectFiles expands directories into the supported files they contain.
func collectFiles(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && (!recursive || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasPrefix(d.Name(), ".") && parser.Supported(parser.FileType(path)) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("query is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	kb, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	results, err := kb.Search(ctx, query, core.SearchFilter{
		Category:     c.String("category"),
		DocumentType: core.DocumentType(c.String("type")),
		ProjectCode:  c.String("project-code"),
	}, c.Int("limit"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.Bool("json") {
		return printJSON(out, results)
	}
	fmt.Fprintf(out, "Found %d hits\n", len(results))
	for i, hit := range results {
		where := fmt.Sprintf("p.%d", hit.Chunk.Page)
		if hit.Chunk.Section != "" {
			where += ", " + hit.Chunk.Section
		}
		name := ""
		if hit.Document != nil {
			name = hit.Document.Filename
		}
		fmt.Fprintf(out, "%d: %s (%s) [%0.3f]\n   %s\n", i+1, name, where, hit.Score, preview(hit.Chunk.Content, 200))
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func reindexCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if n := c.Int("workers"); n > 0 {
		cfg.Reindex.Workers = n
	}
	if c.Bool("stop-on-error") {
		cfg.Reindex.ContinueOnError = false
	}

	ctx, stop := signalContext()
	defer stop()

	kb, err := openKnowledgeBase(ctx, cfg, normdoc.WithReindexProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}
	defer kb.Close()

	req := reindex.Request{Filter: core.DocumentFilter{Status: core.DocumentStatus(c.String("status"))}}
	for _, id := range c.StringSlice("id") {
		req.DocumentIds = append(req.DocumentIds, core.ID(id))
	}

	summary, runErr := kb.Reindex(ctx, req)
	if summary == nil {
		return runErr
	}

	out := c.App.Writer
	if c.Bool("json") {
		if err := printJSON(out, summary); err != nil {
			return err
		}
		return runErr
	}
	fmt.Fprintf(out, "Reindex %s: %d/%d documents, %d chunks, %d tokens in %s\n",
		summary.Status, summary.DocumentsProcessed, summary.TotalDocuments,
		summary.ChunksCreated, summary.TokensIndexed, formatDuration(summary.Elapsed))
	if summary.Cancelled {
		fmt.Fprintln(out, "Cancelled before all documents were launched")
	}
	for _, e := range summary.Errors {
		fmt.Fprintf(out, "  %s (%s) failed at %s: %s\n", e.DocumentId, e.Filename, e.Stage, e.Error)
	}
	return runErr
}

func statsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	kb, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	stats, err := kb.Statistics(ctx)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.Bool("json") {
		return printJSON(out, stats)
	}
	fmt.Fprintf(out, "Documents: %d (%d indexed)\n", stats.Documents, stats.IndexedDocuments)
	for _, status := range []core.DocumentStatus{core.StatusUploaded, core.StatusProcessing, core.StatusCompleted, core.StatusFailed} {
		if n := stats.DocumentsByStatus[string(status)]; n > 0 {
			fmt.Fprintf(out, "  %s: %d\n", status, n)
		}
	}
	fmt.Fprintf(out, "Chunks: %d\nVectors: %d\nTokens: %d\n", stats.Chunks, stats.Vectors, stats.Tokens)
	return nil
}

func watchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one directory is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	kb, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer kb.Close()

	return kb.Watch(ctx, c.Args().First(),
		ingestion.WithCategory(c.String("category")),
		ingestion.WithProjectCode(c.String("project-code")),
		ingestion.WithSettleDelay(c.Duration("settle")),
	)
}
