// Package inbox persists notifications per recipient and streams them to live connections.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository"
	"github.com/splax/teamup/internal/ws"
)

// Service handles inbox persistence and streaming.
type Service struct {
	repo   repository.NotificationRepository
	hub    *ws.Hub
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an inbox service. hub may be nil when nothing streams.
func New(repo repository.NotificationRepository, hub *ws.Hub, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, hub: hub, logger: logger, now: time.Now}
}

// Emit stores one inbox entry per recipient and pushes each to the recipient's streams.
// Stream pushes stop once ctx ends; stored entries stay readable through List.
func (s Service) Emit(ctx context.Context, kind notify.Kind, recipients []string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	created := s.now().UTC()
	entries := make([]domain.Notification, 0, len(recipients))
	for _, recipient := range recipients {
		entries = append(entries, domain.Notification{
			RecipientID: recipient,
			Kind:        string(kind),
			Payload:     raw,
			CreatedAt:   created,
		})
	}
	stored, err := s.repo.InsertNotifications(ctx, entries)
	if err != nil {
		return fmt.Errorf("store notifications: %w", err)
	}
	for _, entry := range stored {
		if err := s.broadcast(ctx, entry); err != nil {
			s.logger.Warn("notification stream push abandoned", "recipient_id", entry.RecipientID, "error", err)
			break
		}
	}
	return nil
}

// List returns the recipient's inbox, newest first.
func (s Service) List(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	return s.repo.ListNotifications(ctx, recipientID, limit)
}

// MarkRead flags one inbox entry as read.
func (s Service) MarkRead(ctx context.Context, recipientID string, id int64) error {
	if err := s.repo.MarkNotificationRead(ctx, recipientID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Errorf(domain.KindNotFound, "notification not found")
		}
		return err
	}
	return nil
}

// Hub returns the websocket hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) broadcast(ctx context.Context, entry domain.Notification) error {
	if s.hub == nil {
		return nil
	}
	data, err := MarshalEntry(entry)
	if err != nil {
		s.logger.Warn("failed to marshal notification payload", "error", err)
		return nil
	}
	return s.hub.Broadcast(ctx, entry.RecipientID, data)
}

// MarshalEntry formats a notification for streaming payloads.
func MarshalEntry(entry domain.Notification) ([]byte, error) {
	var payload any
	if len(entry.Payload) > 0 {
		payload = entry.Payload
	}
	return json.Marshal(map[string]any{
		"id":         entry.ID,
		"kind":       entry.Kind,
		"payload":    payload,
		"created_at": entry.CreatedAt.Format(time.RFC3339Nano),
	})
}
