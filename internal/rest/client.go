// Package rest is the client for the classroom backend's REST surface:
// conversations, messages, reactions and notifications. Authentication
// is an opaque bearer credential supplied by the caller.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"classwire/internal/logger"
	"classwire/pkg/types"
)

// TokenSource supplies the opaque access credential for each request.
type TokenSource interface {
	AccessToken() string
}

// StaticToken is a TokenSource for a fixed credential.
type StaticToken string

func (t StaticToken) AccessToken() string { return string(t) }

// Client talks to one backend.
type Client struct {
	baseURL  string
	http     *http.Client
	token    TokenSource
	pageSize int
	log      logger.Logger
}

// NewClient builds a client for baseURL (no trailing slash).
func NewClient(baseURL string, token TokenSource, timeout time.Duration, pageSize int, log logger.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		token:    token,
		pageSize: pageSize,
		log:      log,
	}
}

// Page is the paginated list envelope the backend returns.
type Page[T any] struct {
	Results []T     `json:"results"`
	Next    *string `json:"next"`
}

// HasMore reports whether another page follows.
func (p Page[T]) HasMore() bool { return p.Next != nil }

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshaling request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token.AccessToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Status: 0, Code: CodeNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classify(resp.StatusCode)
		// Prefer the server's own message when it sends one.
		var payload struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		if data, rerr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); rerr == nil {
			if jerr := json.Unmarshal(data, &payload); jerr == nil {
				if payload.Message != "" {
					apiErr.Message = payload.Message
				} else if payload.Detail != "" {
					apiErr.Message = payload.Detail
				}
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s %s response", method, path)
	}
	return nil
}

// Conversations fetches the caller's conversation list.
func (c *Client) Conversations(ctx context.Context) (Page[types.Conversation], error) {
	var page Page[types.Conversation]
	err := c.do(ctx, http.MethodGet, "/conversations/", nil, &page)
	return page, err
}

// CreateConversationRequest starts a direct or group conversation.
type CreateConversationRequest struct {
	ParticipantIDs []int64 `json:"participant_ids" validate:"required,min=1,dive,gt=0"`
	IsGroup        bool    `json:"is_group"`
	GroupName      string  `json:"group_name,omitempty" validate:"required_if=IsGroup true"`
}

// CreateConversation creates a conversation and returns the server copy.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (types.Conversation, error) {
	var conv types.Conversation
	if err := types.ValidateStruct(req); err != nil {
		return conv, err
	}
	err := c.do(ctx, http.MethodPost, "/conversations/", req, &conv)
	return conv, err
}

// Messages fetches one page of a conversation's messages, newest page
// first; page 1 is the visible window.
func (c *Client) Messages(ctx context.Context, conversationID int64, page int) (Page[types.Message], error) {
	var out Page[types.Message]
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/conversations/%d/messages/?page=%d&page_size=%d", conversationID, page, c.pageSize)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// SendMessageRequest is the REST send payload.
type SendMessageRequest struct {
	Conversation int64  `json:"conversation" validate:"required,gt=0"`
	Content      string `json:"content" validate:"required"`
	MessageType  string `json:"message_type,omitempty"`
	FileURL      string `json:"file_url,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// SendMessage persists a message and returns the server-assigned copy.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (types.Message, error) {
	var msg types.Message
	if req.MessageType == "" {
		req.MessageType = types.MessageTypeText
	}
	if err := types.ValidateStruct(req); err != nil {
		return msg, err
	}
	err := c.do(ctx, http.MethodPost, "/messages/", req, &msg)
	return msg, err
}

// MarkMessageRead acknowledges one message.
func (c *Client) MarkMessageRead(ctx context.Context, messageID int64) error {
	path := fmt.Sprintf("/messages/%d/mark_as_read/", messageID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// AddReaction records a reaction on a message.
func (c *Client) AddReaction(ctx context.Context, messageID int64, reaction string) error {
	if reaction == "" {
		return types.ErrInvalidReaction
	}
	path := fmt.Sprintf("/messages/%d/add_reaction/", messageID)
	return c.do(ctx, http.MethodPost, path, map[string]string{"reaction": reaction}, nil)
}

// AddParticipants adds users to a group conversation.
func (c *Client) AddParticipants(ctx context.Context, conversationID int64, userIDs []int64) error {
	path := fmt.Sprintf("/conversations/%d/add_participants/", conversationID)
	return c.do(ctx, http.MethodPost, path, map[string][]int64{"user_ids": userIDs}, nil)
}

// RemoveParticipants removes users from a group conversation.
func (c *Client) RemoveParticipants(ctx context.Context, conversationID int64, userIDs []int64) error {
	path := fmt.Sprintf("/conversations/%d/remove_participants/", conversationID)
	return c.do(ctx, http.MethodPost, path, map[string][]int64{"user_ids": userIDs}, nil)
}

// notificationDTO is the backend's notification shape; room/course ids
// discriminate the origin scope.
type notificationDTO struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	RoomID    int64     `json:"room_id"`
	CourseID  int64     `json:"course_id"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (n notificationDTO) toNotification() types.Notification {
	scope := types.Scope{ID: n.RoomID, Kind: types.ScopeDirect}
	if n.RoomID == 0 && n.CourseID != 0 {
		scope = types.Scope{ID: n.CourseID, Kind: types.ScopeCourse}
	}
	return types.Notification{
		ID:        strconv.FormatInt(n.ID, 10),
		Title:     n.Title,
		Body:      n.Content,
		Scope:     scope,
		CreatedAt: n.CreatedAt,
		Read:      n.IsRead,
	}
}

// Notifications fetches the caller's notifications.
func (c *Client) Notifications(ctx context.Context) ([]types.Notification, error) {
	var page Page[notificationDTO]
	if err := c.do(ctx, http.MethodGet, "/notifications/", nil, &page); err != nil {
		return nil, err
	}
	out := make([]types.Notification, 0, len(page.Results))
	for _, dto := range page.Results {
		out = append(out, dto.toNotification())
	}
	return out, nil
}

// MarkNotificationRead acknowledges one server-side notification.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/notifications/"+id+"/mark_as_read/", nil, nil)
}
