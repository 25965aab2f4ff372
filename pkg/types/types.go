package types

import (
	"time"
)

// ScopeKind distinguishes which kind of stream a channel, poller or
// cache entry belongs to.
type ScopeKind string

const (
	ScopeDirect         ScopeKind = "direct"
	ScopeCourse         ScopeKind = "course"
	ScopeLessonComments ScopeKind = "lesson-comments"
)

// Scope identifies one live connection scope: a conversation, a course
// chat room or a lesson comment stream.
type Scope struct {
	ID   int64     `json:"id"`
	Kind ScopeKind `json:"kind"`
}

// Valid reports whether the scope names a real stream.
func (s Scope) Valid() bool {
	if s.ID <= 0 {
		return false
	}
	switch s.Kind {
	case ScopeDirect, ScopeCourse, ScopeLessonComments:
		return true
	}
	return false
}

// ConnectionState is the lifecycle state of a channel transport.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// User is the sender snapshot embedded in messages and participant lists.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns the name shown next to a message.
func (u User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Message content kinds understood by the backend.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Message is one chat message. Immutable once delivered except for the
// read flag, the edited flag/content and the reaction map.
type Message struct {
	ID           int64              `json:"id"`
	Conversation int64              `json:"conversation"`
	Sender       User               `json:"sender"`
	Content      string             `json:"content"`
	MessageType  string             `json:"message_type"`
	FileURL      string             `json:"file_url,omitempty"`
	FileName     string             `json:"file_name,omitempty"`
	FileSize     int64              `json:"file_size,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	Edited       bool               `json:"is_edited"`
	Read         bool               `json:"is_read"`
	Reactions    map[string][]int64 `json:"reactions,omitempty"`
}

// AddReaction records a reaction by userID, keeping the per-reaction
// user set free of duplicates.
func (m *Message) AddReaction(reaction string, userID int64) {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]int64)
	}
	for _, id := range m.Reactions[reaction] {
		if id == userID {
			return
		}
	}
	m.Reactions[reaction] = append(m.Reactions[reaction], userID)
}

// Conversation is one direct or group conversation as the store sees it.
type Conversation struct {
	ID           int64    `json:"id"`
	Participants []User   `json:"participants"`
	IsGroup      bool     `json:"is_group"`
	GroupName    string   `json:"group_name,omitempty"`
	LastMessage  *Message `json:"last_message,omitempty"`
	UnreadCount  int      `json:"unread_count"`
}

// Notification is one entry in the notification surface. Entries pushed
// over a live channel get a locally generated ID; REST-fetched entries
// carry the server one.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"is_read"`
}
