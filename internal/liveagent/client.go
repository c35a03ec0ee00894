// Package liveagent implements the REST client for a LiveAgent-style chat
// backend: session creation, chat queue requests, long polling, visitor
// messages, and presence signaling.
package liveagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultAPIVersion = "34"
	maxResponseBytes  = 4 << 20 // backend responses are small JSON bodies

	headerAPIVersion = "X-LIVEAGENT-API-VERSION"
	headerAffinity   = "X-LIVEAGENT-AFFINITY"
	headerSessionKey = "X-LIVEAGENT-SESSION-KEY"
	headerSequence   = "X-LIVEAGENT-SEQUENCE"
)

// Client is a thin HTTP wrapper around the backend chat REST API.
// It performs no retries of its own; retry policy belongs to the session loop.
//
// The backend requires a monotonically increasing X-LIVEAGENT-SEQUENCE on
// every message-bearing call, starting at 1 with ChasitorInit. The client
// tracks the counter per session key so concurrent rooms never share one.
type Client struct {
	baseURL    string
	apiVersion string
	http       *http.Client

	mu  sync.Mutex
	seq map[string]int
}

// NewClient creates a backend client for the given base URL
// (e.g. "https://d.la1-c1-xyz.example.com").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiVersion: defaultAPIVersion,
		seq:        make(map[string]int),
		http: &http.Client{
			// Long polls are held open server-side for up to ~40s; leave headroom.
			Timeout: 60 * time.Second,
		},
	}
}

// nextSequence increments and returns the session's message counter.
func (c *Client) nextSequence(tokens SessionTokens) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[tokens.SessionKey]++
	return c.seq[tokens.SessionKey]
}

// clearSequence drops the session's counter once the session is over.
func (c *Client) clearSequence(tokens SessionTokens) {
	c.mu.Lock()
	delete(c.seq, tokens.SessionKey)
	c.mu.Unlock()
}

// newRequest builds a request with the fixed API-version header and, when
// tokens are given, the affinity/session-key header pair.
func (c *Client) newRequest(ctx context.Context, method, path string, tokens *SessionTokens, body io.Reader) (*http.Request, error) {
	url := fmt.Sprintf("%s/chat/rest/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("liveagent: create %s request: %w", path, err)
	}
	req.Header.Set(headerAPIVersion, c.apiVersion)
	if tokens != nil {
		req.Header.Set(headerAffinity, tokens.AffinityToken)
		req.Header.Set(headerSessionKey, tokens.SessionKey)
	} else {
		// Session creation requires an explicit null affinity.
		req.Header.Set(headerAffinity, "null")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends a JSON request and decodes a 2xx response body into T.
// Non-2xx responses become *APIError; transport failures wrap
// ErrBackendUnreachable.
func do[T any](ctx context.Context, c *Client, method, path string, tokens *SessionTokens, seq int, payload any) (*T, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("liveagent: marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, tokens, body)
	if err != nil {
		return nil, err
	}
	if seq > 0 {
		req.Header.Set(headerSequence, strconv.Itoa(seq))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnreachable, path, err)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("liveagent: read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result T
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedResponse, path, err)
		}
	}
	return &result, nil
}

// CreateSession acquires a fresh set of session tokens from the backend.
func (c *Client) CreateSession(ctx context.Context) (SessionTokens, error) {
	tokens, err := do[SessionTokens](ctx, c, http.MethodGet, "System/SessionId", nil, 0, nil)
	if err != nil {
		return SessionTokens{}, err
	}
	if !tokens.Valid() {
		return SessionTokens{}, fmt.Errorf("%w: SessionId payload incomplete", ErrMalformedResponse)
	}
	return *tokens, nil
}

// Visitor identifies the widget user for the pre-chat form.
type Visitor struct {
	Name  string
	Email string
}

// ChatRequest carries the queue-request parameters for RequestChat.
type ChatRequest struct {
	OrganizationID string
	DeploymentID   string
	ButtonID       string
	Visitor        Visitor
}

type prechatDetail struct {
	Label            string   `json:"label"`
	Value            string   `json:"value"`
	DisplayToAgent   bool     `json:"displayToAgent"`
	TranscriptFields []string `json:"transcriptFields"`
	EntityMaps       []any    `json:"entityMaps"`
}

type chasitorInitRequest struct {
	OrganizationID      string          `json:"organizationId"`
	DeploymentID        string          `json:"deploymentId"`
	ButtonID            string          `json:"buttonId"`
	SessionID           string          `json:"sessionId"`
	UserAgent           string          `json:"userAgent"`
	Language            string          `json:"language"`
	ScreenResolution    string          `json:"screenResolution"`
	VisitorName         string          `json:"visitorName"`
	PrechatDetails      []prechatDetail `json:"prechatDetails"`
	PrechatEntities     []any           `json:"prechatEntities"`
	ReceiveQueueUpdates bool            `json:"receiveQueueUpdates"`
	IsPost              bool            `json:"isPost"`
}

// RequestChat initiates a queue request for the session identified by tokens,
// attaching the visitor identification as structured pre-chat fields.
func (c *Client) RequestChat(ctx context.Context, tokens SessionTokens, req ChatRequest) error {
	body := chasitorInitRequest{
		OrganizationID:      req.OrganizationID,
		DeploymentID:        req.DeploymentID,
		ButtonID:            req.ButtonID,
		SessionID:           tokens.SessionID,
		UserAgent:           "labridge",
		Language:            "en-US",
		ScreenResolution:    "1900x1080",
		VisitorName:         req.Visitor.Name,
		PrechatDetails:      prechatDetails(req.Visitor),
		PrechatEntities:     []any{},
		ReceiveQueueUpdates: true,
		IsPost:              true,
	}
	_, err := do[struct{}](ctx, c, http.MethodPost, "Chasitor/ChasitorInit", &tokens, c.nextSequence(tokens), body)
	return err
}

func prechatDetails(v Visitor) []prechatDetail {
	details := []prechatDetail{
		{
			Label:            "LastName",
			Value:            v.Name,
			DisplayToAgent:   true,
			TranscriptFields: []string{},
			EntityMaps:       []any{},
		},
	}
	if v.Email != "" {
		details = append(details, prechatDetail{
			Label:            "Email",
			Value:            v.Email,
			DisplayToAgent:   true,
			TranscriptFields: []string{},
			EntityMaps:       []any{},
		})
	}
	return details
}

// Poll issues one long-poll request and classifies the outcome. It never
// returns an error: every failure mode is folded into the PollResult so the
// caller's loop has a single decision surface.
func (c *Client) Poll(ctx context.Context, tokens SessionTokens) PollResult {
	req, err := c.newRequest(ctx, http.MethodGet, "System/Messages", &tokens, nil)
	if err != nil {
		return PollResult{Status: PollTransportError, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return PollResult{Status: PollTransportError, Err: fmt.Errorf("%w: %v", ErrBackendUnreachable, err)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	if err != nil {
		return PollResult{Status: PollTransportError, Err: fmt.Errorf("liveagent: read poll response: %w", err)}
	}

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusConflict:
		// Nothing new. The caller must poll again immediately; the backend
		// paces the loop via long-poll semantics.
		return PollResult{Status: PollEmptyRetry}
	case http.StatusForbidden:
		return PollResult{Status: PollSessionExpired, Err: ErrSessionExpired}
	case http.StatusOK:
		return PollResult{Status: PollEvents, Events: DecodeEvents(body)}
	default:
		return PollResult{
			Status: PollTransportError,
			Err:    &APIError{StatusCode: resp.StatusCode, Body: string(body)},
		}
	}
}

type chatMessageRequest struct {
	Text string `json:"text"`
}

// SendMessage forwards one visitor message into the backend chat session.
func (c *Client) SendMessage(ctx context.Context, tokens SessionTokens, text string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "Chasitor/ChatMessage", &tokens, c.nextSequence(tokens), chatMessageRequest{Text: text})
	return err
}

type chatEndRequest struct {
	Reason string `json:"reason"`
}

// EndChat terminates the backend session. The reason is a free-form cause tag
// (e.g. "client", "idle-timeout") forwarded for backend analytics.
func (c *Client) EndChat(ctx context.Context, tokens SessionTokens, reason string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "Chasitor/ChatEnd", &tokens, c.nextSequence(tokens), chatEndRequest{Reason: reason})
	c.clearSequence(tokens)
	return err
}

// SetTyping signals the visitor's typing state to the agent console.
func (c *Client) SetTyping(ctx context.Context, tokens SessionTokens, typing bool) error {
	path := "Chasitor/ChasitorNotTyping"
	if typing {
		path = "Chasitor/ChasitorTyping"
	}
	_, err := do[struct{}](ctx, c, http.MethodPost, path, &tokens, c.nextSequence(tokens), struct{}{})
	return err
}

type sneakPeekRequest struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// SetSneakPeek sends the visitor's in-progress text to the agent console.
// Mutually exclusive with SetTyping; the per-room flag selects which one the
// orchestrator uses.
func (c *Client) SetSneakPeek(ctx context.Context, tokens SessionTokens, partial string) error {
	_, err := do[struct{}](ctx, c, http.MethodPost, "Chasitor/ChasitorSneakPeek", &tokens, c.nextSequence(tokens), sneakPeekRequest{Text: partial})
	return err
}
