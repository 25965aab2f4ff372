package types

import (
	"encoding/json"
	"fmt"
)

// Wire frame type discriminators, as sent by and expected from the
// backend channel.
const (
	FrameMessage           = "message"
	FrameTypingStart       = "typing_start"
	FrameTypingStop        = "typing_stop"
	FrameReaction          = "reaction"
	FrameChatMessage       = "chat_message"
	FrameUserTyping        = "user_typing"
	FrameUserStoppedTyping = "user_stopped_typing"
)

// MessageFrame is the outbound chat message frame.
type MessageFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	FileURL     string `json:"file_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

// NewMessageFrame builds an outbound text or file frame.
func NewMessageFrame(content, messageType, fileURL, fileName string, fileSize int64) MessageFrame {
	if messageType == "" {
		messageType = MessageTypeText
	}
	return MessageFrame{
		Type:        FrameMessage,
		Content:     content,
		MessageType: messageType,
		FileURL:     fileURL,
		FileName:    fileName,
		FileSize:    fileSize,
	}
}

// TypingFrame is the outbound typing_start / typing_stop frame.
type TypingFrame struct {
	Type string `json:"type"`
}

// ReactionFrame is the outbound reaction frame.
type ReactionFrame struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Reaction  string `json:"reaction"`
}

// Inbound frames are narrowed into a closed set of variants at the
// parse boundary; untyped JSON never crosses into the dispatcher.

// InboundFrame is implemented by every parsed inbound variant.
type InboundFrame interface {
	frameType() string
}

// InboundMessage carries a pushed chat message.
type InboundMessage struct {
	Message Message
}

func (InboundMessage) frameType() string { return FrameChatMessage }

// InboundTyping reports a remote user starting or stopping typing.
type InboundTyping struct {
	UserID   int64
	Username string
	Active   bool
}

func (f InboundTyping) frameType() string {
	if f.Active {
		return FrameUserTyping
	}
	return FrameUserStoppedTyping
}

// InboundReaction reports a reaction applied to a message.
type InboundReaction struct {
	MessageID int64
	Reaction  string
	User      User
}

func (InboundReaction) frameType() string { return FrameReaction }

type frameEnvelope struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message"`
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username"`
	MessageID int64           `json:"message_id"`
	Reaction  string          `json:"reaction"`
	User      json.RawMessage `json:"user"`
}

// ParseFrame validates a raw inbound frame and narrows it to one of the
// InboundFrame variants. Unknown types return ErrUnknownFrame so the
// caller can log and drop them without closing the channel.
func ParseFrame(data []byte) (InboundFrame, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case FrameChatMessage:
		var msg Message
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, fmt.Errorf("%w: chat_message payload: %v", ErrMalformedFrame, err)
		}
		return InboundMessage{Message: msg}, nil

	case FrameUserTyping, FrameUserStoppedTyping:
		return InboundTyping{
			UserID:   env.UserID,
			Username: env.Username,
			Active:   env.Type == FrameUserTyping,
		}, nil

	case FrameReaction:
		var usr User
		if len(env.User) > 0 {
			if err := json.Unmarshal(env.User, &usr); err != nil {
				return nil, fmt.Errorf("%w: reaction user: %v", ErrMalformedFrame, err)
			}
		}
		if env.Reaction == "" {
			return nil, fmt.Errorf("%w: reaction frame missing reaction", ErrMalformedFrame)
		}
		return InboundReaction{
			MessageID: env.MessageID,
			Reaction:  env.Reaction,
			User:      usr,
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
}
