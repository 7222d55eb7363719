package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermWarmup recomputes and caches effective permissions for the
	// recently active users of one tenant.
	TaskPermWarmup = "perms:warmup"
	// TaskLoginLogCleanup prunes aged login audit rows.
	TaskLoginLogCleanup = "logins:cleanup"
)

// PermWarmupPayload selects which tenant to warm. A zero TenantID warms the
// platform accounts.
type PermWarmupPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewPermWarmupTask constructs an Asynq task.
func NewPermWarmupTask(payload PermWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermWarmup, data), nil
}

// LoginLogCleanupPayload bounds the retention window in days.
type LoginLogCleanupPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewLoginLogCleanupTask constructs an Asynq task.
func NewLoginLogCleanupTask(payload LoginLogCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoginLogCleanup, data), nil
}
