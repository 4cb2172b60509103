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

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/normdoc/ingestion"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "normdoc",
		Usage: "Ingest normative documents and search them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "normdoc.yaml",
				EnvVars: []string{"NORMDOC_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from these files (default ./.env when present)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.address)",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "gin mode: debug, release or test (overrides server.mode)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest files or directories synchronously",
				ArgsUsage: "<path>...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Declared document category",
					},
					&cli.StringFlag{
						Name:  "project-code",
						Usage: "Project code attached to every document",
					},
					&cli.BoolFlag{
						Name:    "recursive",
						Aliases: []string{"r"},
						Usage:   "Descend into subdirectories",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a hybrid search",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"k"},
						Usage:   "Number of results (default search.default_limit)",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Only documents in this category",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Only documents of this type (standard, code, regulation, corporate, other)",
					},
					&cli.StringFlag{
						Name:  "project-code",
						Usage: "Only documents with this project code",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-chunk, re-embed and re-index stored documents",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Document ID to reindex (repeatable; default all documents)",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only documents with this status (e.g. failed)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Documents processed concurrently (overrides reindex.workers)",
					},
					&cli.BoolFlag{
						Name:  "stop-on-error",
						Usage: "Stop launching documents after the first failure",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the summary as JSON",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show document, chunk and vector counts",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print statistics as JSON",
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Upload files dropped into a directory",
				ArgsUsage: "<dir>",
				Action:    watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Declared document category",
					},
					&cli.StringFlag{
						Name:  "project-code",
						Usage: "Project code attached to every document",
					},
					&cli.DurationFlag{
						Name:  "settle",
						Usage: "Wait this long after the last write before uploading",
						Value: ingestion.DefaultSettleDelay,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
