package margin_test

import (
	"testing"
	"time"

	"github.com/fwojciec/margin"
	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func TestSession_Clone(t *testing.T) {
	t.Parallel()
	s := margin.Session{
		ID:       "s1",
		Messages: []margin.Message{margin.NewMessage(margin.RoleUser, "hi", testTime)},
	}
	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Messages = append(c.Messages, margin.NewMessage(margin.RoleAssistant, "yo", testTime))

	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.Len(t, s.Messages, 1)
}

func TestSession_Tokens(t *testing.T) {
	t.Parallel()
	s := margin.Session{Messages: []margin.Message{
		margin.NewMessage(margin.RoleUser, "abcd", testTime),
		margin.NewMessage(margin.RoleAssistant, "abcdefgh", testTime),
	}}
	assert.Equal(t, 3, s.Tokens())
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()
	assert.True(t, margin.RoleUser.Valid())
	assert.True(t, margin.RoleAssistant.Valid())
	assert.True(t, margin.RoleSystem.Valid())
	assert.False(t, margin.Role("tool").Valid())
	assert.False(t, margin.Role("").Valid())
}

func TestDefaultSessionName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Chat Jan 2, 2025 3:04:05 AM", margin.DefaultSessionName(testTime))
}

func TestDefaultTheme(t *testing.T) {
	t.Parallel()
	theme := margin.DefaultTheme()
	assert.Equal(t, 4, theme.User)
	assert.Equal(t, 3, theme.Summary)
	assert.Equal(t, 1, theme.Error)
	assert.Equal(t, 8, theme.Muted)
	assert.Equal(t, 5, theme.Accent)
}

func TestUsage_Total(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, margin.Usage{}.Total())
	assert.Equal(t, 15, margin.Usage{InputTokens: 10, OutputTokens: 5}.Total())
}
