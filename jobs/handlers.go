package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomline/loomline/internal/rbac"
)

// PermWarmupHandler precomputes effective permission sets so the first
// request after a cache flush does not pay the resolution cost.
type PermWarmupHandler struct {
	pool   *pgxpool.Pool
	engine *rbac.Engine
	logger *slog.Logger
}

// NewPermWarmupHandler constructs the handler.
func NewPermWarmupHandler(pool *pgxpool.Pool, engine *rbac.Engine, logger *slog.Logger) *PermWarmupHandler {
	return &PermWarmupHandler{pool: pool, engine: engine, logger: logger}
}

// ProcessTask warms the permission caches for users active in the last day.
func (h *PermWarmupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload PermWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	rows, err := h.pool.Query(ctx,
		`SELECT id, role_id, tenant_id, is_tenant_owner FROM users
		 WHERE is_active AND (tenant_id = NULLIF($1, 0) OR ($1 = 0 AND tenant_id IS NULL))
		 AND last_login_at > NOW() - INTERVAL '1 day'`,
		payload.TenantID)
	if err != nil {
		return err
	}
	defer rows.Close()

	warmed := 0
	for rows.Next() {
		var (
			userID      int64
			roleID      *int64
			tenantID    *int64
			tenantOwner bool
		)
		if err := rows.Scan(&userID, &roleID, &tenantID, &tenantOwner); err != nil {
			return err
		}
		if _, err := h.engine.ComputeEffective(ctx, userID, roleID, tenantID, tenantOwner); err != nil {
			h.logger.Warn("perm warmup", slog.Int64("user_id", userID), slog.Any("error", err))
			continue
		}
		warmed++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	h.logger.Info("perm warmup complete",
		slog.Int64("tenant_id", payload.TenantID),
		slog.Int("users", warmed))
	return nil
}

// LoginLogCleanupHandler prunes login_logs beyond the retention window.
type LoginLogCleanupHandler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLoginLogCleanupHandler constructs the handler.
func NewLoginLogCleanupHandler(pool *pgxpool.Pool, logger *slog.Logger) *LoginLogCleanupHandler {
	return &LoginLogCleanupHandler{pool: pool, logger: logger}
}

// ProcessTask deletes rows older than the retention window, 90 days when the
// payload does not say otherwise.
func (h *LoginLogCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload LoginLogCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.RetentionDays
	if days <= 0 {
		days = 90
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	tag, err := h.pool.Exec(ctx, `DELETE FROM login_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return err
	}
	h.logger.Info("login log cleanup", slog.Int64("deleted", tag.RowsAffected()))
	return nil
}
