package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"erpcore/internal/model"
	"erpcore/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditEntry is what a service records about one change.
type AuditEntry struct {
	CompanyID  uuid.UUID
	Action     string
	EntityID   string
	EntityName string
	Details    map[string]any
}

type AuditService interface {
	Record(ctx context.Context, entry AuditEntry) error
	GetAuditLogs(ctx context.Context, companyID uuid.UUID, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
	now  func() time.Time
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo, now: time.Now}
}

// Record writes an entry attributed to the session user in ctx, if any. Inside
// RunInTx it joins the transaction.
func (s *auditService) Record(ctx context.Context, entry AuditEntry) error {
	details := "{}"
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = string(raw)
	}

	log := &model.AuditLog{
		ID:         uuid.New(),
		CompanyID:  entry.CompanyID,
		UserID:     actorID(ctx),
		Action:     entry.Action,
		EntityID:   entry.EntityID,
		EntityName: entry.EntityName,
		Details:    details,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Log(ctx, log); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("audit log written")
	return nil
}

func (s *auditService) GetAuditLogs(ctx context.Context, companyID uuid.UUID, page, limit int) ([]AuditLogResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	logs, total, err := s.repo.List(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userName := "System"
		userID := ""
		if l.User != nil {
			userName = l.User.FullName
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   userName,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
