package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/docagent/internal/model/transcript"
)

// Binding identifies the content that scopes chat queries.
type Binding struct {
	ContentID string `json:"contentId"`
	Label     string `json:"label"`
}

// Store holds the ordered message log and the active content binding.
// All mutation goes through the store; entries are never reordered or
// dropped once appended.
type Store struct {
	mu       sync.RWMutex
	messages []transcript.Message
	binding  *Binding
}

// NewStore bootstraps an empty in-memory transcript.
func NewStore() *Store {
	return &Store{
		messages: make([]transcript.Message, 0, 16),
	}
}

// Append adds a message to the end of the log and returns the
// user/assistant history as it stood before the append. Taking the
// snapshot and appending under one lock guarantees an outgoing query
// never sees itself in its own history.
func (s *Store) Append(message transcript.Message) []transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := filterHistory(s.messages)

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Variant == "" {
		message.Variant = transcript.VariantNormal
	}

	s.messages = append(s.messages, message)
	return history
}

// History returns the ordered user/assistant subsequence of the log,
// excluding system entries and failure notices.
func (s *Store) History() []transcript.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterHistory(s.messages)
}

// Messages returns a snapshot copy of the full log.
func (s *Store) Messages() []transcript.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]transcript.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len reports the number of logged messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Bind records the active content after a successful ingestion.
func (s *Store) Bind(contentID, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binding = &Binding{ContentID: contentID, Label: label}
}

// Binding returns the active content binding, or nil when none is bound.
func (s *Store) Binding() *Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.binding == nil {
		return nil
	}
	b := *s.binding
	return &b
}

// Bound reports whether content has been ingested for this session.
func (s *Store) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.binding != nil
}

// Reset clears the log and the content binding atomically.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
	s.binding = nil
}

func filterHistory(messages []transcript.Message) []transcript.Message {
	history := make([]transcript.Message, 0, len(messages))
	for _, m := range messages {
		if m.IsError() {
			continue
		}
		if m.Role == transcript.RoleUser || m.Role == transcript.RoleAssistant {
			history = append(history, m)
		}
	}
	return history
}
