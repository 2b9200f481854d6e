// Package chatservice ties the completion client and the conversation store
// together: it appends the user turn, streams the assistant reply into the
// store, and persists the result.
package chatservice

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashtin/convo/src/apiclient"
	"github.com/ashtin/convo/src/chatsdk"
	"github.com/ashtin/convo/src/convstore"
	"github.com/ashtin/convo/src/pubsub"
)

// StreamEvent is published for each decoded fragment and once when a send
// settles, so independently rendered surfaces can observe progress without
// sharing mutable state.
type StreamEvent struct {
	ConversationID string
	Delta          string
	Done           bool
	Err            string
}

// Service orchestrates sends. Completions targeting the same conversation id
// are serialized so two live streams cannot interleave their last-message
// updates; sends to different conversations proceed independently.
type Service struct {
	store  *convstore.Store
	client *apiclient.Client
	logger *slog.Logger
	events *pubsub.Topic[StreamEvent]

	mu    sync.Mutex
	sends map[string]*convLock
}

// convLock is a refcounted per-conversation send lock. The refcount covers
// every Send that has acquired or is waiting on the mutex, so the map entry
// can be dropped once the last of them releases.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Service over the given store and client.
func New(store *convstore.Store, client *apiclient.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		client: client,
		logger: logger.With("component", "chat_service"),
		events: pubsub.NewTopic[StreamEvent](),
		sends:  make(map[string]*convLock),
	}
}

// Events exposes the stream progress topic.
func (s *Service) Events() *pubsub.Topic[StreamEvent] {
	return s.events
}

// Close shuts down the event topic.
func (s *Service) Close() {
	s.events.Close()
}

// Send appends text as a user message, requests a streamed completion over
// the conversation's history, and mirrors each fragment into the
// conversation's last message as it arrives. The returned result follows the
// client's contract: on failure Content is empty and Error holds the
// user-facing message; fragments already applied to the store are not
// retracted.
func (s *Service) Send(ctx context.Context, conversationID, text string) apiclient.CompletionResult {
	lock := s.acquireSendLock(conversationID)
	defer s.releaseSendLock(conversationID, lock)

	s.store.AddMessage(ctx, conversationID, chatsdk.RoleUser, text)

	history := s.history(conversationID)

	// Placeholder the stream writes into.
	s.store.AddMessage(ctx, conversationID, chatsdk.RoleAssistant, "")

	var accumulated strings.Builder
	result := s.client.StreamCompletion(ctx, history, func(delta string) {
		accumulated.WriteString(delta)
		// The store receives the full accumulated text each time, not
		// the fragment.
		s.store.UpdateLastMessage(conversationID, accumulated.String())
		s.events.Publish(StreamEvent{ConversationID: conversationID, Delta: delta})
	})

	if result.Failed() {
		s.logger.Warn("completion failed", "conversation_id", conversationID, "error", result.Error)
	} else {
		s.store.UpdateLastMessage(conversationID, result.Content)
	}
	s.store.Save(ctx)

	s.events.Publish(StreamEvent{ConversationID: conversationID, Done: true, Err: result.Error})
	return result
}

// history maps the conversation's persisted messages into request messages.
// System content is injected by the client at request time and never appears
// here.
func (s *Service) history(conversationID string) []*chatsdk.Message {
	conv := s.store.Conversation(conversationID)
	if conv == nil {
		return nil
	}
	out := make([]*chatsdk.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		out = append(out, &chatsdk.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// acquireSendLock takes the per-conversation lock, creating it on first use.
// The refcount is bumped under s.mu before blocking on the conversation lock
// so a concurrent release cannot drop the entry out from under a waiter.
func (s *Service) acquireSendLock(conversationID string) *convLock {
	s.mu.Lock()
	lock, ok := s.sends[conversationID]
	if !ok {
		lock = &convLock{}
		s.sends[conversationID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

// releaseSendLock unlocks and deletes the map entry once no Send holds or
// waits on it.
func (s *Service) releaseSendLock(conversationID string, lock *convLock) {
	lock.mu.Unlock()

	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.sends, conversationID)
	}
	s.mu.Unlock()
}
