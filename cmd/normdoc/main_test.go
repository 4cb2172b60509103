package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/normdoc/core"
	"github.com/poiesic/normdoc/reindex"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	t.Run("log-level defaults to info", func(t *testing.T) {
		var levelFlag *cli.StringFlag
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "log-level" {
				levelFlag = f
				break
			}
		}
		require.NotNil(t, levelFlag)
		assert.Equal(t, "info", levelFlag.Value)
		assert.Contains(t, levelFlag.Aliases, "l")
	})

	t.Run("config reads NORMDOC_CONFIG", func(t *testing.T) {
		var configFlag *cli.StringFlag
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "config" {
				configFlag = f
				break
			}
		}
		require.NotNil(t, configFlag)
		assert.Equal(t, "normdoc.yaml", configFlag.Value)
		assert.Contains(t, configFlag.EnvVars, "NORMDOC_CONFIG")
	})

	t.Run("invalid log level", func(t *testing.T) {
		err := newApp().Run([]string{"normdoc", "--log-level", "verbose", "stats"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"serve", "ingest", "search", "reindex", "stats", "watch"} {
		cmd := findCommand(t, app, name)
		assert.NotNil(t, cmd.Action, name)
		assert.NotEmpty(t, cmd.Usage, name)
	}

	t.Run("watch settle default", func(t *testing.T) {
		cmd := findCommand(t, app, "watch")
		var settle *cli.DurationFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.DurationFlag); ok && f.Name == "settle" {
				settle = f
			}
		}
		require.NotNil(t, settle)
		assert.Positive(t, settle.Value)
	})

	t.Run("search limit has no default", func(t *testing.T) {
		cmd := findCommand(t, app, "search")
		var limit *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "limit" {
				limit = f
			}
		}
		require.NotNil(t, limit)
		assert.Zero(t, limit.Value)
	})
}

// testApp returns an app whose output is captured, plus the arguments that
// point it at an isolated config.
func testApp(t *testing.T) (*cli.App, *bytes.Buffer, []string) {
	t.Helper()
	dir := t.TempDir()

	cfg := "storage:\n" +
		"  sqlite_path: " + filepath.Join(dir, "normdoc.db") + "\n" +
		"  in_memory: true\n"
	cfgPath := filepath.Join(dir, "normdoc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, nil, 0o600))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	return app, &out, []string{"normdoc", "--config", cfgPath, "--env-file", envPath}
}

func TestStatsCommand(t *testing.T) {
	app, out, args := testApp(t)

	require.NoError(t, app.Run(append(args, "stats", "--json")))

	var stats core.Statistics
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Zero(t, stats.Documents)
	assert.Zero(t, stats.Vectors)
}

func TestReindexCommand_EmptyStore(t *testing.T) {
	app, out, args := testApp(t)

	require.NoError(t, app.Run(append(args, "reindex", "--json")))

	var summary reindex.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, core.TaskCompleted, summary.Status)
	assert.Zero(t, summary.TotalDocuments)
	assert.Empty(t, summary.Errors)
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	app, _, args := testApp(t)

	err := app.Run(append(args, "search", "  "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestIngestCommand_NoSupportedFiles(t *testing.T) {
	app, _, args := testApp(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.xyz"), []byte("x"), 0o600))

	err := app.Run(append(args, "ingest", dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported files")
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}
	write("a.txt")
	write("b.xyz")
	write(".hidden.txt")
	write("sub/c.txt")
	write(".git/d.txt")

	files, err := collectFiles([]string{dir}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, files)

	files, err = collectFiles([]string{dir}, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "sub", "c.txt")}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing")}, false)
	assert.Error(t, err)
}
