// Package host implements the REST client for the host messaging platform:
// bot authentication, presence, room messaging, custom fields, conversation
// transfer, and room close.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBytes = 4 << 20

// Sentinel errors for host platform calls.
var (
	// ErrAuthFailed indicates the bot login was rejected.
	ErrAuthFailed = errors.New("host: authentication failed")

	// ErrCallFailed indicates an authenticated call was rejected.
	ErrCallFailed = errors.New("host: api call failed")
)

// Credentials is an auth token + user id pair returned by Login and attached
// to every subsequent call.
type Credentials struct {
	AuthToken string `json:"authToken"`
	UserID    string `json:"userId"`
}

// Client is a thin HTTP wrapper around the host platform REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a host platform client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiResponse is the envelope the host platform wraps around every response.
type apiResponse[T any] struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    T      `json:"data"`
}

// do sends a JSON request to the given API path and decodes the response
// envelope. creds may be nil for unauthenticated calls (login).
func do[T any](ctx context.Context, c *Client, method, path string, creds *Credentials, payload any) (*T, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("host: marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1/"+path, body)
	if err != nil {
		return nil, fmt.Errorf("host: create %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds != nil {
		req.Header.Set("X-Auth-Token", creds.AuthToken)
		req.Header.Set("X-User-Id", creds.UserID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("host: %s request failed: %w", path, err)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("host: read %s response: %w", path, err)
	}

	// Non-200 bodies are still parsed for the error envelope; a missing
	// envelope yields an empty structure.
	var env apiResponse[T]
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &env)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, env.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return nil, fmt.Errorf("%w: %s (%d): %s", ErrCallFailed, path, resp.StatusCode, env.Error)
	}
	return &env.Data, nil
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// Login authenticates the bot identity and returns its credentials.
func (c *Client) Login(ctx context.Context, user, password string) (Credentials, error) {
	creds, err := do[Credentials](ctx, c, http.MethodPost, "login", nil, loginRequest{User: user, Password: password})
	if err != nil {
		return Credentials{}, err
	}
	if creds.AuthToken == "" || creds.UserID == "" {
		return Credentials{}, fmt.Errorf("%w: login payload incomplete", ErrAuthFailed)
	}
	return *creds, nil
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus sets the bot's presence (e.g. "online").
func (c *Client) SetStatus(ctx context.Context, creds Credentials, status string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "users.setStatus", &creds, setStatusRequest{Status: status})
	return err
}

type postMessageRequest struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// SendMessage posts a text message into the visitor-facing room.
func (c *Client) SendMessage(ctx context.Context, creds Credentials, roomID, text string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "chat.postMessage", &creds, postMessageRequest{RoomID: roomID, Text: text})
	return err
}

type transferRequest struct {
	RoomID     string `json:"roomId"`
	Department string `json:"department"`
}

// TransferRoom hands the conversation over to the target department/queue.
func (c *Client) TransferRoom(ctx context.Context, creds Credentials, roomID, department string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "livechat.room.transfer", &creds, transferRequest{RoomID: roomID, Department: department})
	return err
}

type setFieldsRequest struct {
	RoomID string            `json:"roomId"`
	Fields map[string]string `json:"fields"`
}

// SetRoomField sets one custom field on the room.
func (c *Client) SetRoomField(ctx context.Context, creds Credentials, roomID, key, value string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "rooms.setFields", &creds, setFieldsRequest{
		RoomID: roomID,
		Fields: map[string]string{key: value},
	})
	return err
}

type roomFields struct {
	Fields map[string]string `json:"fields"`
}

// GetRoomField reads one custom field off the room. Missing fields return "".
func (c *Client) GetRoomField(ctx context.Context, creds Credentials, roomID, key string) (string, error) {
	path := "rooms.fields?roomId=" + url.QueryEscape(roomID)
	data, err := do[roomFields](ctx, c, http.MethodGet, path, &creds, nil)
	if err != nil {
		return "", err
	}
	return data.Fields[key], nil
}

type closeRoomRequest struct {
	RoomID  string `json:"roomId"`
	Comment string `json:"comment,omitempty"`
}

// CloseRoom closes the visitor-facing room with an optional comment.
func (c *Client) CloseRoom(ctx context.Context, creds Credentials, roomID, comment string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "livechat.room.close", &creds, closeRoomRequest{RoomID: roomID, Comment: comment})
	return err
}
