package margin_test

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/margin"
	"github.com/fwojciec/margin/mock"
)

// clock returns a time source that advances one second per call.
func clock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// sequentialIDs returns an ID generator producing s1, s2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "s" + strconv.Itoa(n)
	}
}

func newMemoryStore(t *testing.T) *margin.Store {
	t.Helper()
	return margin.NewStore(mock.MemoryBackend(nil),
		margin.WithClock(clock()),
		margin.WithIDGenerator(sequentialIDs()))
}

// replyWith returns a completer that always answers text and records the
// requests it receives.
func replyWith(text string, reqs *[]margin.CompletionRequest) *mock.Completer {
	var mu sync.Mutex
	return &mock.Completer{
		CompleteFn: func(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
			mu.Lock()
			defer mu.Unlock()
			if reqs != nil {
				*reqs = append(*reqs, req)
			}
			return margin.ContentCompletion(text), nil
		},
	}
}

// longText returns text estimated at exactly tokens tokens.
func longText(tokens int) string {
	return strings.Repeat("abcd", tokens)
}
