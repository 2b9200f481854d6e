package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashtin/convo/src/apiclient"
	"github.com/ashtin/convo/src/chatservice"
	"github.com/ashtin/convo/src/convstore"
	"github.com/ashtin/convo/src/kvstore"
)

func newChatService(t *testing.T, handler http.HandlerFunc) (*chatservice.Service, *convstore.Store) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := convstore.New(kvstore.NewMemoryStore(), nil)
	client := apiclient.NewClient(apiclient.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	})
	svc := chatservice.New(store, client, nil)
	t.Cleanup(svc.Close)
	return svc, store
}

func sseHandler(deltas ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", d)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n")
	}
}

func TestStreamToPrintsDeltasAndReturns(t *testing.T) {
	svc, store := newChatService(t, sseHandler("Hel", "lo", "!"))
	ctx := context.Background()
	id := store.CreateConversation(ctx)

	var out bytes.Buffer
	done := make(chan apiclient.CompletionResult, 1)
	go func() { done <- streamTo(ctx, svc, id, "hi", &out) }()

	select {
	case result := <-done:
		require.False(t, result.Failed(), "unexpected error: %s", result.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("streaming did not finish")
	}
	assert.Equal(t, "Hello!\n", out.String())
}

func TestStreamToReturnsOnFailure(t *testing.T) {
	svc, store := newChatService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	})
	ctx := context.Background()
	id := store.CreateConversation(ctx)

	var out bytes.Buffer
	done := make(chan apiclient.CompletionResult, 1)
	go func() { done <- streamTo(ctx, svc, id, "hi", &out) }()

	select {
	case result := <-done:
		assert.Equal(t, "bad request", result.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("streaming did not finish")
	}
}
