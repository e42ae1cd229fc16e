package inbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo      NotificationRepository
	templates *TemplateEngine
}

func NewService(repo NotificationRepository, templates *TemplateEngine) *Service {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Service{repo: repo, templates: templates}
}

// Notify renders templateID with data and stores the result for userID.
// extra is copied into the notification's data column alongside data.
func (s *Service) Notify(ctx context.Context, userID, templateID string, data map[string]string, extra map[string]interface{}) (*Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	t, err := s.templates.Render(templateID, data)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]interface{}, len(data)+len(extra))
	for k, v := range data {
		payload[k] = v
	}
	for k, v := range extra {
		payload[k] = v
	}
	n := &Notification{
		UserID:  userID,
		Type:    t.Type,
		Title:   t.Title,
		Message: t.Message,
		Data:    payload,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, userID string) error {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
