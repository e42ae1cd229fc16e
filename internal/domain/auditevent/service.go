package auditevent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo AuditLogRepository
}

func NewService(repo AuditLogRepository) *Service {
	return &Service{repo: repo}
}

// Record writes one audit row attributed to userID.
func (s *Service) Record(ctx context.Context, userID, action, entityType, entityID string, details map[string]interface{}) (*AuditLog, error) {
	l, err := newLog(userID, action, entityType, entityID, details)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("write audit log: %w", err)
	}
	return l, nil
}

func newLog(userID, action, entityType, entityID string, details map[string]interface{}) (*AuditLog, error) {
	if strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entityType) == "" {
		return nil, fmt.Errorf("entity_type is required")
	}
	l := &AuditLog{Action: action, EntityType: entityType, Details: details}
	if userID != "" {
		l.UserID = &userID
	}
	if entityID != "" {
		l.EntityID = &entityID
	}
	return l, nil
}

func (s *Service) GetAuditLog(ctx context.Context, id uuid.UUID) (*AuditLog, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchAuditLogs(ctx context.Context, f Filter, limit, offset int) ([]*AuditLog, int, error) {
	return s.repo.Search(ctx, f, limit, offset)
}
