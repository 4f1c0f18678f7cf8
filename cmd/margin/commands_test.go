package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/margin"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cli runs margin commands against one temporary data directory.
type cli struct {
	t       *testing.T
	dataDir string
	lookup  lookupFunc
	extra   []string
}

func newCLI(t *testing.T, extra ...string) *cli {
	t.Helper()
	home := t.TempDir()
	return &cli{
		t:       t,
		dataDir: t.TempDir(),
		lookup:  env(map[string]string{"HOME": home, "XDG_CONFIG_HOME": home}),
		extra:   extra,
	}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{}, args...)
	full = append(full, "--data-dir", c.dataDir)
	full = append(full, c.extra...)
	err := execute(context.Background(), c.lookup, full, &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err)
	return out
}

// newSession runs "new" and returns the created session ID.
func (c *cli) newSession(doc, name string) string {
	c.t.Helper()
	out := c.mustRun("new", doc, "--name", name)
	id, _, ok := strings.Cut(strings.TrimSpace(out), "\t")
	require.True(c.t, ok, out)
	return id
}

func TestCLI_NewAndSessions(t *testing.T) {
	t.Parallel()
	for _, store := range []string{"json", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			t.Parallel()
			c := newCLI(t, "--store", store)
			id := c.newSession("notes.md", "Plot ideas")
			assert.NotEmpty(t, id)

			out := c.mustRun("sessions", "notes.md")
			assert.Contains(t, out, "NAME")
			assert.Contains(t, out, id)
			assert.Contains(t, out, "Plot ideas")
		})
	}
}

func TestCLI_SessionsEmpty(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	out := c.mustRun("sessions", "notes.md")
	assert.Equal(t, "No sessions for notes.md\n", out)
}

func TestCLI_NewWithSeedFile(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	seed := filepath.Join(t.TempDir(), "selection.txt")
	require.NoError(t, os.WriteFile(seed, []byte("The quick brown fox."), 0o600))

	out := c.mustRun("new", "notes.md", "--seed-file", seed)
	id, _, _ := strings.Cut(strings.TrimSpace(out), "\t")

	md := c.mustRun("export", "notes.md", id)
	assert.Contains(t, md, "> The quick brown fox.")
}

func TestCLI_List(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	c.newSession("docs/a.md", "A")
	c.newSession("docs/sub/b.md", "B")
	c.newSession("docs/sub/b.md", "B2")
	c.newSession("notes.md", "N")

	out := c.mustRun("list")
	assert.Equal(t, "docs/a.md\t1\ndocs/sub/b.md\t2\nnotes.md\t1\n", out)

	out = c.mustRun("list", "--match", "docs/**")
	assert.Equal(t, "docs/a.md\t1\ndocs/sub/b.md\t2\n", out)

	out = c.mustRun("list", "--match", "docs/*.md")
	assert.Equal(t, "docs/a.md\t1\n", out)

	_, err := c.run("list", "--match", "docs/[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --match pattern")
}

func TestCLI_Rename(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	id := c.newSession("notes.md", "Old")

	c.mustRun("rename", "notes.md", id, "New name")
	assert.Contains(t, c.mustRun("sessions", "notes.md"), "New name")

	_, err := c.run("rename", "notes.md", "missing", "X")
	assert.ErrorIs(t, err, margin.ErrSessionNotFound)

	_, err = c.run("rename", "notes.md", id, "  ")
	require.Error(t, err)
}

func TestCLI_Delete(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	first := c.newSession("notes.md", "First")

	_, err := c.run("delete", "notes.md", first)
	assert.ErrorIs(t, err, margin.ErrLastSession)

	second := c.newSession("notes.md", "Second")
	out := c.mustRun("delete", "notes.md", second)
	assert.Contains(t, out, "most recent session is now "+first)

	out = c.mustRun("delete", "notes.md", first, "--force")
	assert.Equal(t, "Deleted "+first+"\n", out)
	assert.Equal(t, "", c.mustRun("list"))

	_, err = c.run("delete", "notes.md", "missing")
	assert.ErrorIs(t, err, margin.ErrSessionNotFound)
}

func TestCLI_Export(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	id := c.newSession("notes.md", "Draft review")

	md := c.mustRun("export", "notes.md", id)
	assert.True(t, strings.HasPrefix(md, "# Draft review\n"), md)

	html := c.mustRun("export", "notes.md", id, "--format", "html")
	assert.Contains(t, html, "<title>Draft review</title>")

	path := filepath.Join(t.TempDir(), "out.md")
	assert.Empty(t, c.mustRun("export", "notes.md", id, "-o", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, md, string(data))

	_, err = c.run("export", "notes.md", id, "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "pdf"`)
}

func TestCLI_UnknownStore(t *testing.T) {
	t.Parallel()
	c := newCLI(t, "--store", "redis")
	_, err := c.run("list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown store "redis"`)
}

// completionServer answers every chat completion with reply and records
// the user message of each request.
func completionServer(t *testing.T, reply string) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && len(req.Messages) > 0 {
			seen = append(seen, req.Messages[len(req.Messages)-1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCLI_Send(t *testing.T) {
	t.Parallel()
	srv, seen := completionServer(t, "Hi there")
	cfg := writeConfig(t, "provider: openrouter\napi_key: sk-test\nbase_url: "+srv.URL+"\n")
	c := newCLI(t, "--config", cfg, "--store", "sqlite")

	out := c.mustRun("send", "notes.md", "Hello", "--seed", "chapter one")
	assert.Equal(t, "Hi there\n", out)
	assert.Equal(t, []string{"Hello"}, *seen)

	sessions := c.mustRun("sessions", "notes.md")
	assert.Regexp(t, `\s2\s`, sessions)

	md := c.mustRun("export", "notes.md", sessionID(t, c, "notes.md"))
	assert.Contains(t, md, "> chapter one")
	assert.Contains(t, md, "## You\n\nHello\n")
	assert.Contains(t, md, "## Assistant\n\nHi there\n")
}

func TestCLI_SendToNamedSession(t *testing.T) {
	t.Parallel()
	srv, _ := completionServer(t, "ok")
	cfg := writeConfig(t, "provider: openrouter\napi_key: sk-test\nbase_url: "+srv.URL+"\n")
	c := newCLI(t, "--config", cfg)
	older := c.newSession("notes.md", "Older")
	time.Sleep(time.Millisecond)
	c.newSession("notes.md", "Newer")

	c.mustRun("send", "notes.md", "Hello", "--session", older)
	md := c.mustRun("export", "notes.md", older)
	assert.Contains(t, md, "## Assistant\n\nok\n")

	_, err := c.run("send", "notes.md", "Hello", "--session", "missing")
	assert.ErrorIs(t, err, margin.ErrSessionNotFound)
}

func TestCLI_SendWithoutCredential(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	_, err := c.run("send", "notes.md", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key found")
}

func TestCLI_ActOnSelection(t *testing.T) {
	t.Parallel()
	srv, seen := completionServer(t, "One\n---\nTwo\n---\nThree")
	cfg := writeConfig(t, "provider: openrouter\napi_key: sk-test\nbase_url: "+srv.URL+"\n")
	c := newCLI(t, "--config", cfg)

	out := c.mustRun("act", "rewrite", "notes.md", "--selection", "Rough draft.", "--instructions", "more formal")
	assert.Equal(t, "[1]\nOne\n\n[2]\nTwo\n\n[3]\nThree\n", out)
	require.Len(t, *seen, 1)
	assert.Contains(t, (*seen)[0], "Rewrite the provided text")
	assert.Contains(t, (*seen)[0], "Context:\nRough draft.")
	assert.Contains(t, (*seen)[0], "Additional Instructions: more formal")

	// Actions leave no trace in the session store.
	assert.Equal(t, "No sessions for notes.md\n", c.mustRun("sessions", "notes.md"))
}

func TestCLI_ActOnDocument(t *testing.T) {
	t.Parallel()
	srv, seen := completionServer(t, "One\n---\nTwo\n---\nThree")
	cfg := writeConfig(t, "provider: openrouter\napi_key: sk-test\nbase_url: "+srv.URL+"\n")
	c := newCLI(t, "--config", cfg)
	doc := filepath.Join(t.TempDir(), "essay.md")
	require.NoError(t, os.WriteFile(doc, []byte("The whole essay."), 0o600))

	out := c.mustRun("act", "key_themes", doc, "--pick", "2")
	assert.Equal(t, "Two\n", out)
	require.Len(t, *seen, 1)
	assert.Contains(t, (*seen)[0], "Context:\nThe whole essay.")

	_, err := c.run("act", "key_themes", doc, "--pick", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proposed 3 variations")
}

func TestCLI_ActValidation(t *testing.T) {
	t.Parallel()
	c := newCLI(t)
	doc := filepath.Join(t.TempDir(), "essay.md")
	require.NoError(t, os.WriteFile(doc, []byte("text"), 0o600))

	for _, tc := range []struct {
		name string
		args []string
	}{
		{name: "unknown action", args: []string{"act", "translate", doc}},
		{name: "selection action without selection", args: []string{"act", "fix", doc}},
		{name: "document action with selection", args: []string{"act", "action_items", doc, "--selection", "x"}},
		{name: "instructions on fix", args: []string{"act", "fix", doc, "--selection", "x", "--instructions", "y"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.run(tc.args...)
			assert.ErrorIs(t, err, margin.ErrValidation)
		})
	}

	_, err := c.run("act", "summarize", filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read document")
}

// sessionID returns the ID of the only session of doc.
func sessionID(t *testing.T, c *cli, doc string) string {
	t.Helper()
	out := c.mustRun("sessions", doc)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	return strings.Fields(lines[1])[0]
}

func TestFilterDocuments(t *testing.T) {
	t.Parallel()
	docs := []string{"a.md", "notes/b.md", "notes/deep/c.txt"}

	got, err := filterDocuments(docs, "")
	require.NoError(t, err)
	assert.Equal(t, docs, got)

	got, err = filterDocuments(docs, "**/*.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "notes/b.md"}, got)

	got, err = filterDocuments(docs, "notes/**")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/b.md", "notes/deep/c.txt"}, got)
}

func TestMostRecent(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok := mostRecent(nil)
	assert.False(t, ok)

	s, ok := mostRecent([]margin.Session{
		{ID: "a", UpdatedAt: base},
		{ID: "b", UpdatedAt: base.Add(time.Hour)},
		{ID: "c", UpdatedAt: base.Add(time.Hour)},
	})
	require.True(t, ok)
	assert.Equal(t, "b", s.ID)
}

func TestSessionTable(t *testing.T) {
	t.Parallel()
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	table := sessionTable([]margin.Session{
		{ID: "s1", Name: "Short", UpdatedAt: updated, Messages: []margin.Message{{TokenCount: 3}, {TokenCount: 4}}},
		{ID: "s2", Name: strings.Repeat("長", 40), UpdatedAt: updated},
	})
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Contains(t, lines[1], "Short")
	assert.Regexp(t, `\s2\s+7\s+2024-03-01 12:00$`, lines[1])
	assert.Contains(t, lines[2], "…")
	// Columns after the name line up despite double-width characters.
	assert.Equal(t, runewidth.StringWidth(lines[1]), runewidth.StringWidth(lines[2]))
}

func TestReadText(t *testing.T) {
	t.Parallel()
	s, err := readText("seed", "inline", "")
	require.NoError(t, err)
	assert.Equal(t, "inline", s)

	_, err = readText("seed", "inline", "file.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--seed and --seed-file")

	_, err = readText("selection", "", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read selection file")
}
