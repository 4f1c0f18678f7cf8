package goldmark_test

import (
	"testing"
	"time"

	"github.com/fwojciec/margin"
	"github.com/fwojciec/margin/goldmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session() margin.Session {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return margin.Session{
		ID:          "s1",
		Name:        "Plot <ideas>",
		DocumentRef: "novel.md",
		SeedContext: "Chapter one.\n\nIt was a dark night.",
		CreatedAt:   at,
		UpdatedAt:   at,
		Messages: []margin.Message{
			margin.NewMessage(margin.RoleUser, "What happens next?", at),
			margin.NewMessage(margin.RoleAssistant, "The *storm* breaks.", at),
		},
	}
}

func TestTranscript(t *testing.T) {
	t.Parallel()
	want := "# Plot <ideas>\n\n" +
		"Document: `novel.md`  \n" +
		"Started: 2025-03-01 09:30\n" +
		"\n> Chapter one.\n>\n> It was a dark night.\n" +
		"\n## You\n\nWhat happens next?\n" +
		"\n## Assistant\n\nThe *storm* breaks.\n"
	assert.Equal(t, want, goldmark.Transcript(session()))
}

func TestTranscript_NoSeed(t *testing.T) {
	t.Parallel()
	s := session()
	s.SeedContext = ""
	s.Messages = nil
	assert.Equal(t, "# Plot <ideas>\n\nDocument: `novel.md`  \nStarted: 2025-03-01 09:30\n", goldmark.Transcript(s))
}

func TestTranscriptHTML(t *testing.T) {
	t.Parallel()
	got, err := goldmark.TranscriptHTML(session())
	require.NoError(t, err)
	assert.Contains(t, got, "<title>Plot &lt;ideas&gt;</title>")
	assert.Contains(t, got, "<blockquote>")
	assert.Contains(t, got, "<h2>Assistant</h2>")
	assert.Contains(t, got, "<em>storm</em>")
}
