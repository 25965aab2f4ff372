package types

import (
	"errors"
	"testing"
)

func TestParseFrame_ChatMessage(t *testing.T) {
	data := []byte(`{
		"type": "chat_message",
		"message": {
			"id": 501,
			"conversation": 42,
			"sender": {"id": 7, "username": "ana"},
			"content": "hola",
			"message_type": "text",
			"created_at": "2025-03-01T10:00:00Z"
		}
	}`)

	frame, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	msg, ok := frame.(InboundMessage)
	if !ok {
		t.Fatalf("expected InboundMessage, got %T", frame)
	}
	if msg.Message.ID != 501 || msg.Message.Conversation != 42 {
		t.Errorf("unexpected message: %+v", msg.Message)
	}
	if msg.Message.Sender.Username != "ana" {
		t.Errorf("expected sender ana, got %q", msg.Message.Sender.Username)
	}
}

func TestParseFrame_Typing(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantActive bool
	}{
		{"start", `{"type": "user_typing", "user_id": 7, "username": "ana"}`, true},
		{"stop", `{"type": "user_stopped_typing", "user_id": 7, "username": "ana"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseFrame returned error: %v", err)
			}
			typing, ok := frame.(InboundTyping)
			if !ok {
				t.Fatalf("expected InboundTyping, got %T", frame)
			}
			if typing.Active != tt.wantActive {
				t.Errorf("expected active=%v, got %v", tt.wantActive, typing.Active)
			}
			if typing.UserID != 7 || typing.Username != "ana" {
				t.Errorf("unexpected payload: %+v", typing)
			}
		})
	}
}

func TestParseFrame_Reaction(t *testing.T) {
	data := []byte(`{
		"type": "reaction",
		"message_id": 501,
		"reaction": "👍",
		"user": {"id": 7, "username": "ana"}
	}`)

	frame, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	reaction, ok := frame.(InboundReaction)
	if !ok {
		t.Fatalf("expected InboundReaction, got %T", frame)
	}
	if reaction.MessageID != 501 || reaction.Reaction != "👍" {
		t.Errorf("unexpected payload: %+v", reaction)
	}
}

func TestParseFrame_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"unknown type", `{"type": "user_status_update"}`, ErrUnknownFrame},
		{"empty type", `{"content": "hi"}`, ErrUnknownFrame},
		{"not json", `{{{`, ErrMalformedFrame},
		{"bad message payload", `{"type": "chat_message", "message": "nope"}`, ErrMalformedFrame},
		{"reaction without reaction", `{"type": "reaction", "message_id": 1}`, ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMessage_AddReaction(t *testing.T) {
	msg := &Message{ID: 1}
	msg.AddReaction("👍", 7)
	msg.AddReaction("👍", 7) // duplicate user
	msg.AddReaction("👍", 8)
	msg.AddReaction("🎉", 7)

	if got := len(msg.Reactions["👍"]); got != 2 {
		t.Errorf("expected 2 users on 👍, got %d", got)
	}
	if got := len(msg.Reactions["🎉"]); got != 1 {
		t.Errorf("expected 1 user on 🎉, got %d", got)
	}
}

func TestScope_Valid(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  bool
	}{
		{"direct", Scope{ID: 1, Kind: ScopeDirect}, true},
		{"course", Scope{ID: 3, Kind: ScopeCourse}, true},
		{"lesson comments", Scope{ID: 9, Kind: ScopeLessonComments}, true},
		{"zero id", Scope{ID: 0, Kind: ScopeDirect}, false},
		{"unknown kind", Scope{ID: 1, Kind: "forum"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
