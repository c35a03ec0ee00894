package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Bot is the system bot identity the bridge acts as on the host platform.
// It logs in lazily, caches the credentials, and retries exactly once with a
// fresh login when a call fails authentication (expired token).
type Bot struct {
	client   *Client
	username string
	password string

	mu    sync.Mutex
	creds *Credentials
}

// NewBot creates a Bot for the given client and credentials. No network call
// is made until the first operation.
func NewBot(client *Client, username, password string) *Bot {
	return &Bot{client: client, username: username, password: password}
}

// Login authenticates (or returns the cached credentials).
func (b *Bot) Login(ctx context.Context) (Credentials, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.creds != nil {
		return *b.creds, nil
	}
	creds, err := b.client.Login(ctx, b.username, b.password)
	if err != nil {
		return Credentials{}, err
	}
	b.creds = &creds
	return creds, nil
}

// invalidate drops the cached credentials so the next call logs in again.
func (b *Bot) invalidate() {
	b.mu.Lock()
	b.creds = nil
	b.mu.Unlock()
}

// withAuth runs fn with valid credentials, retrying once on auth failure.
func (b *Bot) withAuth(ctx context.Context, fn func(Credentials) error) error {
	creds, err := b.Login(ctx)
	if err != nil {
		return err
	}
	err = fn(creds)
	if errors.Is(err, ErrAuthFailed) {
		b.invalidate()
		creds, err = b.Login(ctx)
		if err != nil {
			return err
		}
		return fn(creds)
	}
	return err
}

// SetStatus sets the bot's presence.
func (b *Bot) SetStatus(ctx context.Context, status string) error {
	return b.withAuth(ctx, func(c Credentials) error {
		return b.client.SetStatus(ctx, c, status)
	})
}

// SendMessage posts a message into a room as the bot.
func (b *Bot) SendMessage(ctx context.Context, roomID, text string) error {
	return b.withAuth(ctx, func(c Credentials) error {
		return b.client.SendMessage(ctx, c, roomID, text)
	})
}

// TransferRoom hands the conversation to the target department/queue.
func (b *Bot) TransferRoom(ctx context.Context, roomID, department string) error {
	return b.withAuth(ctx, func(c Credentials) error {
		return b.client.TransferRoom(ctx, c, roomID, department)
	})
}

// SetRoomField sets one custom field on the room.
func (b *Bot) SetRoomField(ctx context.Context, roomID, key, value string) error {
	return b.withAuth(ctx, func(c Credentials) error {
		return b.client.SetRoomField(ctx, c, roomID, key, value)
	})
}

// GetRoomField reads one custom field off the room.
func (b *Bot) GetRoomField(ctx context.Context, roomID, key string) (string, error) {
	var value string
	err := b.withAuth(ctx, func(c Credentials) error {
		v, err := b.client.GetRoomField(ctx, c, roomID, key)
		value = v
		return err
	})
	return value, err
}

// CloseRoom closes the visitor-facing room.
func (b *Bot) CloseRoom(ctx context.Context, roomID, comment string) error {
	return b.withAuth(ctx, func(c Credentials) error {
		return b.client.CloseRoom(ctx, c, roomID, comment)
	})
}

type scheduleJobRequest struct {
	RoomID  string `json:"roomId"`
	RunIn   int    `json:"runInSeconds"`
	Webhook string `json:"webhook,omitempty"`
}

type scheduleJobResponse struct {
	JobID string `json:"jobId"`
}

// ScheduleJob registers a one-shot job with the host platform's scheduler
// that fires the bridge's timeout webhook after the given delay.
func (b *Bot) ScheduleJob(ctx context.Context, roomID string, delay time.Duration) (string, error) {
	var jobID string
	err := b.withAuth(ctx, func(c Credentials) error {
		resp, err := do[scheduleJobResponse](ctx, b.client, http.MethodPost, "jobs.schedule", &c, scheduleJobRequest{
			RoomID: roomID,
			RunIn:  int(delay.Seconds()),
		})
		if err != nil {
			return err
		}
		if resp.JobID == "" {
			return fmt.Errorf("%w: jobs.schedule returned no job id", ErrCallFailed)
		}
		jobID = resp.JobID
		return nil
	})
	return jobID, err
}

type cancelJobRequest struct {
	JobID string `json:"jobId"`
}

// CancelJob cancels a previously scheduled one-shot job.
func (b *Bot) CancelJob(ctx context.Context, jobID string) error {
	return b.withAuth(ctx, func(c Credentials) error {
		_, err := do[struct{}](ctx, b.client, http.MethodPost, "jobs.cancel", &c, cancelJobRequest{JobID: jobID})
		return err
	})
}
