package margin_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fwojciec/margin"
	"github.com/fwojciec/margin/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configured = margin.Settings{APIKey: "sk-test"}

func TestChat_SendMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemoryStore(t)
	var reqs []margin.CompletionRequest
	chat := margin.NewChat(store, replyWith("Hi there", &reqs), configured)

	sess := chat.GetOrCreateSession(ctx, "notes.md", "seed text")
	reply, err := chat.SendMessage(ctx, "notes.md", sess.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)

	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, margin.DefaultModel, req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.Equal(t, 2000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, margin.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "seed text")
	assert.Equal(t, margin.ChatMessage{Role: margin.RoleUser, Content: "Hello"}, req.Messages[1])

	got, ok := chat.Session(ctx, "notes.md", sess.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, margin.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Hello", got.Messages[0].Content)
	assert.Equal(t, margin.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "Hi there", got.Messages[1].Content)
}

func TestChat_TurnsAlternate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var reqs []margin.CompletionRequest
	chat := margin.NewChat(newMemoryStore(t), replyWith("ok", &reqs), configured)
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	const turns = 5
	for i := 0; i < turns; i++ {
		_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "question")
		require.NoError(t, err)
	}

	got, _ := chat.Session(ctx, "notes.md", sess.ID)
	require.Len(t, got.Messages, 2*turns)
	for i, m := range got.Messages {
		if i%2 == 0 {
			assert.Equal(t, margin.RoleUser, m.Role)
		} else {
			assert.Equal(t, margin.RoleAssistant, m.Role)
		}
	}
	// The new user message appears once, after the prior history.
	last := reqs[turns-1]
	assert.Len(t, last.Messages, 1+2*(turns-1)+1)
}

func TestChat_FailedCompletionKeepsOnlyUserMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := margin.NewChat(newMemoryStore(t), &mock.Completer{
		CompleteFn: func(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
			return margin.Completion{}, &margin.HTTPError{StatusCode: 500, Message: "upstream"}
		},
	}, configured)
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "Hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, margin.ErrTransport)
	var httpErr *margin.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)

	got, _ := chat.Session(ctx, "notes.md", sess.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, margin.RoleUser, got.Messages[0].Role)
}

func TestChat_PlainErrorsAreTransportErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("connection refused")
	chat := margin.NewChat(newMemoryStore(t), &mock.Completer{
		CompleteFn: func(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
			return margin.Completion{}, boom
		},
	}, configured)
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "Hello")
	assert.ErrorIs(t, err, margin.ErrTransport)
	assert.ErrorIs(t, err, boom)
}

func TestChat_EmptyResponse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := margin.NewChat(newMemoryStore(t), replyWith("", nil), configured)
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "Hello")
	assert.ErrorIs(t, err, margin.ErrEmptyResponse)

	got, _ := chat.Session(ctx, "notes.md", sess.ID)
	assert.Len(t, got.Messages, 1)
}

func TestChat_NotConfigured(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := margin.NewChat(newMemoryStore(t), &mock.Completer{
		CompleteFn: func(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
			t.Fatal("completer must not be called")
			return margin.Completion{}, nil
		},
	}, margin.Settings{})
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "Hello")
	assert.ErrorIs(t, err, margin.ErrNotConfigured)

	got, _ := chat.Session(ctx, "notes.md", sess.ID)
	assert.Empty(t, got.Messages)
}

func TestChat_KeylessBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := margin.NewChat(newMemoryStore(t), replyWith("local", nil), margin.Settings{Keyless: true, Model: "llama3"})
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	reply, err := chat.SendMessage(ctx, "notes.md", sess.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "local", reply)
}

func TestChat_UnknownSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := margin.NewChat(newMemoryStore(t), replyWith("x", nil), configured)

	_, err := chat.SendMessage(ctx, "notes.md", "missing", "Hello")
	assert.ErrorIs(t, err, margin.ErrSessionNotFound)

	_, err = chat.SwitchSession(ctx, "notes.md", "missing")
	assert.ErrorIs(t, err, margin.ErrSessionNotFound)
}

func TestChat_SessionBusy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	chat := margin.NewChat(newMemoryStore(t), &mock.Completer{
		CompleteFn: func(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
			close(entered)
			<-unblock
			return margin.ContentCompletion("done"), nil
		},
	}, configured)
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = chat.SendMessage(ctx, "notes.md", sess.ID, "first")
	}()
	<-entered

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "second")
	assert.ErrorIs(t, err, margin.ErrSessionBusy)

	close(unblock)
	wg.Wait()
	require.NoError(t, firstErr)

	got, _ := chat.Session(ctx, "notes.md", sess.ID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first", got.Messages[0].Content)
}

// compactingChat returns a chat whose active session holds enough history
// to force compaction on the next turn, and the requests it sends.
func compactingChat(t *testing.T, summarize func(call int) (string, error)) (*margin.Chat, margin.Session, *[]margin.CompletionRequest) {
	t.Helper()
	ctx := context.Background()
	store := newMemoryStore(t)
	calls := 0
	summarizer := &mock.Summarizer{
		SummarizeFn: func(ctx context.Context, msgs []margin.ChatMessage) (string, error) {
			calls++
			return summarize(calls)
		},
	}
	var reqs []margin.CompletionRequest
	chat := margin.NewChat(store, replyWith("ok", &reqs), configured,
		margin.WithContextBuilder(margin.NewContextBuilder(summarizer)))
	sess := chat.GetOrCreateSession(ctx, "notes.md", "seed text")
	long := longText(2000)
	for i := 0; i < 3; i++ {
		store.Append(ctx, "notes.md", sess.ID, margin.RoleUser, long)
		store.Append(ctx, "notes.md", sess.ID, margin.RoleAssistant, long)
	}
	return chat, sess, &reqs
}

func TestChat_CompactionUpdatesRunningSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat, sess, reqs := compactingChat(t, func(int) (string, error) { return "OLD SUMMARY", nil })

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "next")
	require.NoError(t, err)
	assert.Equal(t, "OLD SUMMARY", chat.RunningSummary())

	require.Len(t, *reqs, 1)
	msgs := (*reqs)[0].Messages
	require.Len(t, msgs, 6)
	assert.Contains(t, msgs[0].Content, "OLD SUMMARY")
}

func TestChat_ResetRunningSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat, sess, reqs := compactingChat(t, func(call int) (string, error) {
		if call == 1 {
			return "OLD SUMMARY", nil
		}
		return "", margin.ErrSummarization
	})

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "next")
	require.NoError(t, err)
	require.Equal(t, "OLD SUMMARY", chat.RunningSummary())

	chat.ResetRunningSummary()
	assert.Empty(t, chat.RunningSummary())

	_, err = chat.SendMessage(ctx, "notes.md", sess.ID, "after reset")
	require.NoError(t, err)
	require.Len(t, *reqs, 2)
	assert.NotContains(t, (*reqs)[1].Messages[0].Content, "OLD SUMMARY")
	assert.Empty(t, chat.RunningSummary())
}

func TestChat_SwitchSessionStartsFreshConversation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat, sess, _ := compactingChat(t, func(int) (string, error) { return "OLD SUMMARY", nil })

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "next")
	require.NoError(t, err)
	require.NotEmpty(t, chat.RunningSummary())

	other := chat.CreateSession(ctx, "notes.md", "", "Other")
	assert.Empty(t, chat.RunningSummary())

	_, err = chat.SwitchSession(ctx, "notes.md", sess.ID)
	require.NoError(t, err)
	assert.Empty(t, chat.RunningSummary())

	_, err = chat.SwitchSession(ctx, "notes.md", other.ID)
	require.NoError(t, err)
	assert.Empty(t, chat.RunningSummary())
}

func TestChat_DeleteSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("only session", func(t *testing.T) {
		t.Parallel()
		chat := margin.NewChat(newMemoryStore(t), replyWith("x", nil), configured)
		sess := chat.GetOrCreateSession(ctx, "notes.md", "")

		_, err := chat.DeleteSession(ctx, "notes.md", sess.ID)
		assert.ErrorIs(t, err, margin.ErrLastSession)
		assert.Len(t, chat.ListSessions(ctx, "notes.md"), 1)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		chat := margin.NewChat(newMemoryStore(t), replyWith("x", nil), configured)
		chat.GetOrCreateSession(ctx, "notes.md", "")

		_, err := chat.DeleteSession(ctx, "notes.md", "missing")
		assert.ErrorIs(t, err, margin.ErrSessionNotFound)
	})

	t.Run("falls back to most recent", func(t *testing.T) {
		t.Parallel()
		chat := margin.NewChat(newMemoryStore(t), replyWith("x", nil), configured)
		first := chat.CreateSession(ctx, "notes.md", "", "First")
		second := chat.CreateSession(ctx, "notes.md", "", "Second")
		third := chat.CreateSession(ctx, "notes.md", "", "Third")
		_, err := chat.SendMessage(ctx, "notes.md", first.ID, "bump")
		require.NoError(t, err)

		fallback, err := chat.DeleteSession(ctx, "notes.md", third.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, fallback.ID)
		assert.Equal(t, []string{first.ID, second.ID}, ids(chat.ListSessions(ctx, "notes.md")))
		assert.Equal(t, first.ID, chat.GetOrCreateSession(ctx, "notes.md", "").ID)
	})
}

func TestChat_DeleteSessionKeepsOtherActiveConversation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat, sess, _ := compactingChat(t, func(int) (string, error) { return "OLD SUMMARY", nil })
	renamed := chat.CreateSession(ctx, "notes.md", "", "Renamed later")
	doomed := chat.CreateSession(ctx, "notes.md", "", "Doomed")

	_, err := chat.SendMessage(ctx, "notes.md", sess.ID, "next")
	require.NoError(t, err)
	require.Equal(t, "OLD SUMMARY", chat.RunningSummary())
	require.True(t, chat.RenameSession(ctx, "notes.md", renamed.ID, "Most recent"))

	fallback, err := chat.DeleteSession(ctx, "notes.md", doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed.ID, fallback.ID)
	assert.Equal(t, "OLD SUMMARY", chat.RunningSummary())

	fallback, err = chat.DeleteSession(ctx, "notes.md", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed.ID, fallback.ID)
	assert.Empty(t, chat.RunningSummary())
}

func TestChat_RenameSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	chat := margin.NewChat(newMemoryStore(t), replyWith("x", nil), configured)
	sess := chat.GetOrCreateSession(ctx, "notes.md", "")

	assert.True(t, chat.RenameSession(ctx, "notes.md", sess.ID, "Outline"))
	assert.False(t, chat.RenameSession(ctx, "notes.md", "missing", "Outline"))
	got, _ := chat.Session(ctx, "notes.md", sess.ID)
	assert.Equal(t, "Outline", got.Name)
}

func TestSettings_ChatModelID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, margin.DefaultModel, margin.Settings{}.ChatModelID())
	assert.Equal(t, "m", margin.Settings{Model: "m"}.ChatModelID())
	assert.Equal(t, "c", margin.Settings{Model: "m", ChatModel: "c"}.ChatModelID())
}
