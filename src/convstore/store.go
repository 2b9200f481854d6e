// Package convstore owns the persisted collection of conversations and is
// the only writer of its persisted state. The collection is kept in memory,
// ordered most-recently-touched first, and round-tripped wholesale through a
// key/value store as a single JSON blob.
package convstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashtin/convo/src/kvstore"
)

// storageKey is the fixed key the whole collection is serialized under.
const storageKey = "conversations"

const (
	defaultTitle = "New Chat"
	maxTitleLen  = 30
)

// Store holds the in-memory conversation collection and its active pointer.
// All mutation goes through Store methods. Persistence failures are logged
// and swallowed; the in-memory state stays usable even when the backing
// store is unreachable.
type Store struct {
	mu            sync.Mutex
	kv            kvstore.Store
	logger        *slog.Logger
	conversations []*Conversation
	activeID      string
}

// New creates a Store over the given key/value backend.
func New(kv kvstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:     kv,
		logger: logger.With("component", "conversation_store"),
	}
}

// CreateConversation inserts a new empty conversation at the front of the
// collection, makes it active, and returns its id.
func (s *Store) CreateConversation(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &Conversation{
		ID:        uuid.New().String(),
		Title:     defaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations = append([]*Conversation{conv}, s.conversations...)
	s.activeID = conv.ID

	s.save(ctx)
	return conv.ID
}

// SetActiveConversation updates the active pointer. The id is not validated;
// pass "" to clear the pointer.
func (s *Store) SetActiveConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
}

// ActiveConversation returns a copy of the conversation the active pointer
// designates, or nil when there is none.
func (s *Store) ActiveConversation() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.find(s.activeID); conv != nil {
		return conv.clone()
	}
	return nil
}

// Conversation returns a copy of the conversation with the given id, or nil.
func (s *Store) Conversation(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.find(id); conv != nil {
		return conv.clone()
	}
	return nil
}

// Conversations returns a copy of the collection in its current order, most
// recently touched first.
func (s *Store) Conversations() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conversation, len(s.conversations))
	for i, conv := range s.conversations {
		out[i] = conv.clone()
	}
	return out
}

// AddMessage appends a message to the conversation. The first user message
// also titles the conversation, and any append moves the conversation to the
// front of the collection, preserving the relative order of the rest. An
// unknown conversation id is a no-op, but the collection is still persisted.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv := s.find(conversationID); conv != nil {
		msg := Message{
			ID:        uuid.New().String(),
			Role:      role,
			Content:   content,
			Timestamp: time.Now(),
		}
		titled := len(conv.Messages) == 0 && role == RoleUser
		conv.Messages = append(conv.Messages, msg)
		conv.UpdatedAt = time.Now()
		if titled {
			conv.Title = deriveTitle(content)
		}
		s.moveToFront(conversationID)
	}

	s.save(ctx)
}

// UpdateLastMessage replaces the content of the conversation's last message
// in place, reflecting streaming progress. It does not reorder the
// collection (reordering happens on append, not update, so a live stream
// does not shuffle the list) and does not persist; the caller saves once the
// stream settles. Unknown ids and empty conversations are no-ops.
func (s *Store) UpdateLastMessage(conversationID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.find(conversationID)
	if conv == nil || len(conv.Messages) == 0 {
		return
	}
	conv.Messages[len(conv.Messages)-1].Content = content
	conv.UpdatedAt = time.Now()
}

// DeleteConversation removes the conversation. If it was active, the new
// front of the remaining collection becomes active, or none if the
// collection is now empty.
func (s *Store) DeleteConversation(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, conv := range s.conversations {
		if conv.ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		} else {
			s.activeID = ""
		}
	}

	s.save(ctx)
}

// ClearAll empties the collection and clears the active pointer.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.activeID = ""

	s.save(ctx)
}

// Load replaces the in-memory collection with the persisted one. Absence of
// prior state is an empty collection, not an error; load failures degrade to
// an empty collection. After a successful load the front conversation, if
// any, becomes active.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.activeID = ""

	raw, ok, err := s.kv.Get(ctx, storageKey)
	if err != nil {
		s.logger.Error("failed to load conversations", "error", err)
		return
	}
	if !ok {
		return
	}

	var conversations []*Conversation
	if err := json.Unmarshal([]byte(raw), &conversations); err != nil {
		s.logger.Error("failed to decode persisted conversations", "error", err)
		return
	}

	s.conversations = conversations
	if len(s.conversations) > 0 {
		s.activeID = s.conversations[0].ID
	}
}

// Save persists the whole collection now. Mutating operations already save;
// this is for callers that batched updates through UpdateLastMessage.
func (s *Store) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(ctx)
}

// save serializes the collection under the fixed key. Callers hold s.mu.
func (s *Store) save(ctx context.Context) {
	data, err := json.Marshal(s.conversations)
	if err != nil {
		s.logger.Error("failed to encode conversations", "error", err)
		return
	}
	if err := s.kv.Set(ctx, storageKey, string(data)); err != nil {
		s.logger.Error("failed to save conversations", "error", err)
	}
}

// find returns the live conversation for id. Callers hold s.mu.
func (s *Store) find(id string) *Conversation {
	if id == "" {
		return nil
	}
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

// moveToFront implements front-on-touch ordering. Callers hold s.mu.
func (s *Store) moveToFront(id string) {
	for i, conv := range s.conversations {
		if conv.ID == id {
			if i > 0 {
				s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
				s.conversations = append([]*Conversation{conv}, s.conversations...)
			}
			return
		}
	}
}

// deriveTitle builds a conversation title from its first user message:
// trimmed, embedded newlines collapsed to spaces, truncated with an ellipsis
// suffix when longer than the title limit.
func deriveTitle(content string) string {
	title := strings.ReplaceAll(strings.TrimSpace(content), "\n", " ")
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen-1]) + "..."
	}
	return title
}
