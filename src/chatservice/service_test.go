package chatservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashtin/convo/src/apiclient"
	"github.com/ashtin/convo/src/convstore"
	"github.com/ashtin/convo/src/kvstore"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *convstore.Store) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := convstore.New(kvstore.NewMemoryStore(), nil)
	client := apiclient.NewClient(apiclient.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	})
	svc := New(store, client, nil)
	t.Cleanup(svc.Close)
	return svc, store
}

func streamDeltas(deltas ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", d)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n")
	}
}

func TestSendAppendsExchange(t *testing.T) {
	svc, store := newTestService(t, streamDeltas("Hi", " there"))
	ctx := context.Background()

	id := store.CreateConversation(ctx)
	result := svc.Send(ctx, id, "hello")

	require.False(t, result.Failed(), "unexpected error: %s", result.Error)
	assert.Equal(t, "Hi there", result.Content)

	conv := store.Conversation(id)
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "assistant", conv.Messages[1].Role)
	assert.Equal(t, "Hi there", conv.Messages[1].Content)
}

func TestSendStreamsIntoLastMessage(t *testing.T) {
	svc, store := newTestService(t, streamDeltas("a", "b", "c"))
	ctx := context.Background()

	id := store.CreateConversation(ctx)

	events, cancel := svc.Events().Subscribe(16)
	defer cancel()

	result := svc.Send(ctx, id, "go")
	require.False(t, result.Failed())

	var deltas []string
	for ev := range events {
		if ev.Done {
			assert.Empty(t, ev.Err)
			break
		}
		deltas = append(deltas, ev.Delta)
	}
	assert.Equal(t, []string{"a", "b", "c"}, deltas)
}

func TestSendHistoryExcludesPlaceholder(t *testing.T) {
	var messageCounts []int
	svc, store := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = decodeJSONBody(r, &req)
		messageCounts = append(messageCounts, len(req.Messages))
		streamDeltas("reply")(w, r)
	})
	ctx := context.Background()

	id := store.CreateConversation(ctx)
	svc.Send(ctx, id, "first")
	svc.Send(ctx, id, "second")

	// First send carries one message, second carries the full prior
	// exchange plus the new user turn.
	assert.Equal(t, []int{1, 3}, messageCounts)
}

func TestSendFailureKeepsUserMessage(t *testing.T) {
	svc, store := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	})
	ctx := context.Background()

	id := store.CreateConversation(ctx)
	result := svc.Send(ctx, id, "hello")

	assert.Equal(t, "bad request", result.Error)

	conv := store.Conversation(id)
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Empty(t, conv.Messages[1].Content, "failed stream leaves the placeholder empty")
}

func TestConcurrentSendsSameConversationSerialize(t *testing.T) {
	svc, store := newTestService(t, streamDeltas("ok"))
	ctx := context.Background()

	id := store.CreateConversation(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			svc.Send(ctx, id, fmt.Sprintf("message %d", n))
		}(i)
	}
	wg.Wait()

	conv := store.Conversation(id)
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 8)
	// Serialized sends keep a strict user/assistant alternation; an
	// interleaved stream would bleed content across message boundaries.
	for i, msg := range conv.Messages {
		if i%2 == 0 {
			assert.Equal(t, "user", msg.Role, "message %d", i)
		} else {
			assert.Equal(t, "assistant", msg.Role, "message %d", i)
			assert.Equal(t, "ok", msg.Content, "message %d", i)
		}
	}
}

func TestLaggingSubscriberEndsOnCancel(t *testing.T) {
	svc, store := newTestService(t, streamDeltas("a", "b", "c", "d", "e"))
	ctx := context.Background()

	id := store.CreateConversation(ctx)

	// Two slots and no reader while the stream runs: the topic drops the
	// overflow, the Done event included. A consumer waiting for Done would
	// wait forever, so cancel must be what ends the subscription.
	events, cancel := svc.Events().Subscribe(2)

	result := svc.Send(ctx, id, "go")
	require.False(t, result.Failed())
	cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for range events {
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber still blocked after cancel")
	}
}

func TestSendLockReleasedAfterSend(t *testing.T) {
	svc, store := newTestService(t, streamDeltas("ok"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		id := store.CreateConversation(ctx)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				svc.Send(ctx, id, "hello")
			}()
		}
	}
	wg.Wait()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Empty(t, svc.sends, "per-conversation locks must not outlive their sends")
}

func decodeJSONBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
