package types

import "time"

// MessageType classifies a session transcript entry
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageAction MessageType = "action"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageAction || t == MessageSystem
}

// Author is the display information attached to a session message
type Author struct {
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// SessionMessage is one append-only entry of a session transcript
type SessionMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Author    Author      `json:"author"`
}

// Validate checks the message invariants
func (m *SessionMessage) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if m.SessionID == "" {
		return ErrMissingSessionID
	}
	if !m.Type.Valid() {
		return ErrUnknownMessageType
	}
	return nil
}

// EntityID returns the de-duplication key of the message
func (m SessionMessage) EntityID() string { return m.ID }

// Version is constant: messages are append-only, so the id alone identifies a fact
func (m SessionMessage) Version() string { return "" }

// FieldValue exposes equality-filterable columns for change feed filtering
func (m SessionMessage) FieldValue(field string) (string, bool) {
	switch field {
	case "id":
		return m.ID, true
	case "session_id":
		return m.SessionID, true
	case "user_id":
		return m.UserID, true
	}
	return "", false
}

// Clone returns a deep copy of the message
func (m SessionMessage) Clone() SessionMessage {
	out := m
	out.Author.AvatarURL = cloneString(m.Author.AvatarURL)
	return out
}

// MessageBefore orders messages by CreatedAt ascending, ties broken by ID
func MessageBefore(a, b SessionMessage) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// UserProfile is the public profile used to decorate message authors
type UserProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// EntityID returns the profile's user id
func (p UserProfile) EntityID() string { return p.ID }

// FieldValue exposes equality-filterable columns for change feed filtering
func (p UserProfile) FieldValue(field string) (string, bool) {
	if field == "id" {
		return p.ID, true
	}
	return "", false
}

// AsAuthor converts the profile into message author information
func (p UserProfile) AsAuthor() Author {
	return Author{DisplayName: p.DisplayName, AvatarURL: cloneString(p.AvatarURL)}
}
