package tenants

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/loomline/loomline/internal/shared"
)

// Service implements tenant onboarding and lifecycle.
type Service struct {
	repo   *Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs the service.
func NewService(repo *Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Onboard creates the tenant together with its owner account and returns the
// owner's user id.
func (s *Service) Onboard(ctx context.Context, actorID int64, t *Tenant, ownerUsername, ownerPassword string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(ownerPassword), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("tenants: hash owner password: %w", err)
	}
	ownerID, err := s.repo.CreateWithOwner(ctx, t, norm.NFKC.String(ownerUsername), string(hash))
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, "tenant.onboard", t.ID, map[string]any{
		"name":     t.Name,
		"owner_id": ownerID,
	})
	return ownerID, nil
}

// List returns all tenants.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.repo.List(ctx)
}

// SetActive suspends or reactivates a tenant.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.record(ctx, actorID, "tenant.set_active", id, map[string]any{"active": active})
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, tenantID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "tenant",
		EntityID: fmt.Sprintf("%d", tenantID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
