package chat

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FileRef is a server-assigned handle for one uploaded attachment. Immutable
// after creation and owned by exactly one message.
type FileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Kind     string `json:"kind"`
}

// Message is one chat transcript entry. Content is appended to while its
// exchange streams and frozen once a terminal event arrives.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Braille   string    `json:"braille,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	IsVoice   bool      `json:"isVoice,omitempty"`
	Files     []FileRef `json:"files,omitempty"`
}

// Session is one conversation thread. Its id never changes after creation and
// messages keep insertion order.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastMessage string    `json:"lastMessage"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Messages    []Message `json:"messages"`
}

// NewSessionID returns a fresh client-generated session id. Sessions are
// created lazily, at first submission rather than at "new chat" time.
func NewSessionID() string {
	return uuid.NewString()
}

var messageCounter int64

// NewMessageID returns a unique, monotonically increasing message id.
func NewMessageID() string {
	seq := atomic.AddInt64(&messageCounter, 1)
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + strconv.FormatInt(seq, 10)
}

const titleRuneLimit = 30

// Title derives a session title from the first user message: the message
// verbatim up to 30 runes, else the first 30 runes plus an ellipsis.
func Title(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) <= titleRuneLimit {
		return firstMessage
	}
	return string(runes[:titleRuneLimit]) + "…"
}
