package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sapie-ai/sori/internal/api"
)

// RefreshDelay is how long to wait after saving an exchange before pulling the
// server's view of the session list. The backend's own bookkeeping is
// eventually consistent with respect to the process call.
const RefreshDelay = 500 * time.Millisecond

const (
	sessionListLimit    = 50
	sessionMessageLimit = 100
)

// Remote is the server-side session store consumed by Store.
type Remote interface {
	Conversations(ctx context.Context, user string, limit int) ([]api.Conversation, error)
	ConversationMessages(ctx context.Context, id, user string, limit int) ([]api.StoredMessage, error)
	DeleteConversation(ctx context.Context, id, user string) error
}

// Store keeps the ordered collection of sessions, reconciling the
// authoritative remote list with a local fallback snapshot.
type Store struct {
	remote Remote
	user   string
	path   string
	logger *zap.Logger

	mu       sync.Mutex
	sessions []Session
	activeID string
}

func NewStore(remote Remote, user, path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		remote: remote,
		user:   user,
		path:   path,
		logger: logger,
	}
}

// Load fetches the session list from the remote store, falling back to the
// local snapshot on any failure. Sessions the remote has not acknowledged yet
// are merged back in; on success the local snapshot is rewritten so divergence
// heals on the first reachable load.
func (s *Store) Load(ctx context.Context) ([]Session, error) {
	conversations, err := s.remote.Conversations(ctx, s.user, sessionListLimit)
	if err != nil {
		s.logger.Warn("session list unavailable, using local snapshot", zap.Error(err))
		local, localErr := LoadLocal(s.path)
		if localErr != nil {
			return nil, localErr
		}
		s.mu.Lock()
		s.sessions = sortSessions(local)
		result := s.snapshotLocked()
		s.mu.Unlock()
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cached := make(map[string]Session, len(s.sessions))
	for _, session := range s.sessions {
		cached[session.ID] = session
	}

	merged := make([]Session, 0, len(conversations))
	seen := make(map[string]bool, len(conversations))
	for _, conv := range conversations {
		session := Session{
			ID:        conv.ID,
			Title:     conv.Title,
			UpdatedAt: time.Unix(conv.Timestamp, 0),
		}
		if prev, ok := cached[conv.ID]; ok {
			session.Messages = prev.Messages
			session.LastMessage = prev.LastMessage
		}
		merged = append(merged, session)
		seen[conv.ID] = true
	}
	for _, session := range s.sessions {
		if !seen[session.ID] {
			merged = append(merged, session)
		}
	}

	s.sessions = sortSessions(merged)
	if err := SaveLocal(s.path, s.sessions); err != nil {
		s.logger.Warn("failed to persist session snapshot", zap.Error(err))
	}
	return s.snapshotLocked(), nil
}

// Sessions returns the current list, newest first.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ActiveID reports the currently selected session id, empty for a fresh chat.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActive marks a session as selected without loading anything.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
}

// StartNewChat clears the active selection. No session is created until the
// first submission.
func (s *Store) StartNewChat() {
	s.SetActive("")
}

// Select switches the active session and returns the target's messages.
// Selecting the already-active session is a no-op (switched=false). The
// outgoing session's in-memory messages are persisted locally without bumping
// its timestamp; the target's messages come from the local cache when present
// and from the remote store otherwise.
func (s *Store) Select(ctx context.Context, id string, current []Message) ([]Message, bool, error) {
	s.mu.Lock()
	if s.activeID == id {
		s.mu.Unlock()
		return nil, false, nil
	}

	if s.activeID != "" && len(current) > 0 {
		for i := range s.sessions {
			if s.sessions[i].ID == s.activeID {
				s.sessions[i].Messages = append([]Message(nil), current...)
				s.sessions[i].LastMessage = lastContent(current)
				break
			}
		}
		if err := SaveLocal(s.path, s.sessions); err != nil {
			s.logger.Warn("failed to persist outgoing session", zap.Error(err))
		}
	}

	s.activeID = id
	var cached []Message
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			cached = s.sessions[i].Messages
			break
		}
	}
	s.mu.Unlock()

	if len(cached) > 0 {
		return append([]Message(nil), cached...), true, nil
	}

	stored, err := s.remote.ConversationMessages(ctx, id, s.user, sessionMessageLimit)
	if err != nil {
		return nil, true, err
	}
	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, storedToMessage(m))
	}

	s.mu.Lock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].Messages = append([]Message(nil), messages...)
			s.sessions[i].LastMessage = lastContent(messages)
			break
		}
	}
	s.mu.Unlock()
	return messages, true, nil
}

// AddNewSession inserts a freshly created session at the head of the list so
// the UI reflects it before any server round-trip completes.
func (s *Store) AddNewSession(id string, first Message) {
	session := Session{
		ID:          id,
		Title:       Title(first.Content),
		LastMessage: first.Content,
		UpdatedAt:   time.Now(),
		Messages:    []Message{first},
	}

	s.mu.Lock()
	s.sessions = append([]Session{session}, s.sessions...)
	if err := SaveLocal(s.path, s.sessions); err != nil {
		s.logger.Warn("failed to persist new session", zap.Error(err))
	}
	s.mu.Unlock()
}

// SaveOrUpdate upserts a session's message list and snippet and persists the
// snapshot immediately. Callers schedule a remote refresh after RefreshDelay.
func (s *Store) SaveOrUpdate(id string, messages []Message) {
	if id == "" || len(messages) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := Session{
		ID:          id,
		Title:       Title(messages[0].Content),
		LastMessage: lastContent(messages),
		UpdatedAt:   time.Now(),
		Messages:    append([]Message(nil), messages...),
	}

	found := false
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			if s.sessions[i].Title != "" {
				updated.Title = s.sessions[i].Title
			}
			s.sessions[i] = updated
			found = true
			break
		}
	}
	if !found {
		s.sessions = append([]Session{updated}, s.sessions...)
	}
	s.sessions = sortSessions(s.sessions)
	if err := SaveLocal(s.path, s.sessions); err != nil {
		s.logger.Warn("failed to persist session snapshot", zap.Error(err))
	}
}

// Delete removes a session remotely first; local state is only touched on
// confirmed success. It reports whether the deleted session was the active
// one so the caller can reset to a fresh chat.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.remote.DeleteConversation(ctx, id, s.user); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.sessions[:0]
	for _, session := range s.sessions {
		if session.ID != id {
			filtered = append(filtered, session)
		}
	}
	s.sessions = filtered
	if err := SaveLocal(s.path, s.sessions); err != nil {
		s.logger.Warn("failed to persist session snapshot", zap.Error(err))
	}

	if s.activeID == id {
		s.activeID = ""
		return true, nil
	}
	return false, nil
}

func (s *Store) snapshotLocked() []Session {
	return append([]Session(nil), s.sessions...)
}

func sortSessions(sessions []Session) []Session {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions
}

func lastContent(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}

func storedToMessage(m api.StoredMessage) Message {
	role := RoleAssistant
	if m.Type == "user" {
		role = RoleUser
	}
	files := make([]FileRef, 0, len(m.Files))
	for _, f := range m.Files {
		files = append(files, FileRef{
			ID:       f.ID,
			Name:     f.Name,
			MimeType: f.MimeType,
			Kind:     f.Type,
		})
	}
	if len(files) == 0 {
		files = nil
	}
	return Message{
		ID:        m.ID,
		Role:      role,
		Content:   m.Content,
		CreatedAt: time.Unix(m.Timestamp, 0),
		IsVoice:   m.IsVoice,
		Files:     files,
	}
}
