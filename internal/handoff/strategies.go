package handoff

import (
	"context"
	"fmt"
	"log/slog"
)

// QueueStrategy transfers the conversation to a target agent queue once the
// backend session is established, and optionally back when it ends.
type QueueStrategy struct {
	platform Platform
	cfg      Config
	logger   *slog.Logger
}

var _ Strategy = (*QueueStrategy)(nil)

// OnEstablished logs the bot in (lazily, via the first authenticated call),
// brings it online, and transfers the room to the configured department.
func (s *QueueStrategy) OnEstablished(ctx context.Context, roomID string) error {
	if err := s.platform.SetStatus(ctx, "online"); err != nil {
		return fmt.Errorf("handoff: bot presence: %w", err)
	}
	if err := s.platform.TransferRoom(ctx, roomID, s.cfg.Department); err != nil {
		return fmt.Errorf("handoff: transfer to %s: %w", s.cfg.Department, err)
	}
	s.logger.Info("conversation transferred", "room", roomID, "department", s.cfg.Department)
	return nil
}

// OnEnded relays the end message and hands the conversation back.
func (s *QueueStrategy) OnEnded(ctx context.Context, roomID, message string) error {
	return endChat(ctx, s.platform, s.cfg, s.logger, roomID, message)
}

// DirectStrategy leaves the bridge bot attached as the active agent: no
// transfer happens on establishment, only presence setup.
type DirectStrategy struct {
	platform Platform
	cfg      Config
	logger   *slog.Logger
}

var _ Strategy = (*DirectStrategy)(nil)

// OnEstablished brings the bot online; the bot stays the room's agent and
// the session loop relays backend messages through it.
func (s *DirectStrategy) OnEstablished(ctx context.Context, roomID string) error {
	if err := s.platform.SetStatus(ctx, "online"); err != nil {
		return fmt.Errorf("handoff: bot presence: %w", err)
	}
	s.logger.Info("bot attached as active agent", "room", roomID)
	return nil
}

// OnEnded relays the end message and hands the conversation back.
func (s *DirectStrategy) OnEnded(ctx context.Context, roomID, message string) error {
	return endChat(ctx, s.platform, s.cfg, s.logger, roomID, message)
}

// endChat is the shared end-of-chat behavior: relay the end reason, then
// either transfer the conversation back to the configured department or leave
// the terminal message as the visitor's cue to dismiss the chat.
func endChat(ctx context.Context, platform Platform, cfg Config, logger *slog.Logger, roomID, message string) error {
	if err := platform.SendMessage(ctx, roomID, message); err != nil {
		return fmt.Errorf("handoff: relay end message: %w", err)
	}
	if cfg.HandbackDepartment == "" {
		return nil
	}
	if err := platform.TransferRoom(ctx, roomID, cfg.HandbackDepartment); err != nil {
		return fmt.Errorf("handoff: hand back to %s: %w", cfg.HandbackDepartment, err)
	}
	logger.Info("conversation handed back", "room", roomID, "department", cfg.HandbackDepartment)
	return nil
}
