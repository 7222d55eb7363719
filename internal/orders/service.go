package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/loomline/loomline/internal/shared"
	"github.com/loomline/loomline/internal/tenancy"
)

// ErrInvalidStatus rejects a lifecycle move the current status does not allow.
var ErrInvalidStatus = errors.New("invalid status transition")

// CreateOrderRequest carries the fields a caller may set on a new order.
type CreateOrderRequest struct {
	OrderNo  string
	StyleNo  string
	Quantity int64
	Remark   string
}

// Service implements production order workflows.
type Service struct {
	repo        *Repository
	idempotency *shared.IdempotencyStore
	audit       *shared.AuditLogger
	logger      *slog.Logger
}

// NewService constructs the service.
func NewService(repo *Repository, idempotency *shared.IdempotencyStore, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, idempotency: idempotency, audit: audit, logger: logger}
}

// Create records a draft order for the calling principal. A non-empty
// idempotency key makes retried submissions return ErrIdempotencyConflict
// instead of a second order.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*Order, error) {
	p := tenancy.PrincipalFromContext(ctx)
	if p == nil {
		return nil, shared.ErrInvalidCredentials
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("orders: quantity must be positive")
	}

	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "orders"); err != nil {
			return nil, err
		}
	}

	o := &Order{
		OrderNo:   req.OrderNo,
		StyleNo:   strings.TrimSpace(req.StyleNo),
		Quantity:  req.Quantity,
		Status:    StatusDraft,
		FactoryID: p.TeamID,
		CreatedBy: p.UserID,
		Remark:    req.Remark,
	}
	if o.OrderNo == "" {
		o.OrderNo = generateOrderNo()
	}

	if err := s.repo.Create(ctx, o); err != nil {
		if idempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("idempotency rollback", slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	s.record(ctx, p.UserID, "order.create", o.ID, map[string]any{"order_no": o.OrderNo})
	return o, nil
}

// Get returns one order within the caller's visibility.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of visible orders plus pagination metadata.
func (s *Service) List(ctx context.Context, status string, page, perPage int) ([]Order, shared.Pagination, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	total, err := s.repo.Count(ctx, status)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	list, err := s.repo.List(ctx, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(page, perPage, total), nil
}

// Transition moves an order through its lifecycle.
func (s *Service) Transition(ctx context.Context, id int64, to string) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(o.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, o.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	o.Status = to
	if p := tenancy.PrincipalFromContext(ctx); p != nil {
		s.record(ctx, p.UserID, "order.transition", id, map[string]any{"to": to})
	}
	return o, nil
}

// Delete removes a draft order.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if p := tenancy.PrincipalFromContext(ctx); p != nil {
		s.record(ctx, p.UserID, "order.delete", id, nil)
	}
	return nil
}

func generateOrderNo() string {
	return "PO-" + strings.ToUpper(uuid.NewString()[:8])
}

func (s *Service) record(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production_order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
