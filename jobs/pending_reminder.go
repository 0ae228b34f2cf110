package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/gatepass-hq/gatepass/internal/jobs"
	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/permits"
)

const (
	// TaskPendingReminder nudges approvers about permits that sat pending
	// for too long.
	TaskPendingReminder = "permits:pending_reminder"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PendingReminderPayload tunes the reminder window.
type PendingReminderPayload struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// NewPendingReminderTask constructs the scheduled reminder task.
func NewPendingReminderTask(payload PendingReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPendingReminder, data), nil
}

// PendingReminderJob reminds approvers about aging pending exit permits.
type PendingReminderJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPendingReminderJob initialises the reminder handler.
func NewPendingReminderJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *PendingReminderJob {
	return &PendingReminderJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reminder sweep.
func (j *PendingReminderJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("pending reminder: handler not configured")
	}
	var payload PendingReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxAgeHours <= 0 {
		payload.MaxAgeHours = 24
	}

	start := j.now()
	tracker := j.metrics().Track(TaskPendingReminder)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("max_age_hours", payload.MaxAgeHours))
	logger.Info("starting pending reminder sweep")

	cutoff := start.Add(-time.Duration(payload.MaxAgeHours) * time.Hour)
	stale, err := j.stalePermits(ctx, cutoff)
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}
	if len(stale) == 0 {
		logger.Info("no aging pending permits", slog.Duration("duration", time.Since(start)))
		return nil
	}

	approvers, err := j.activeApprovers(ctx)
	if err != nil {
		logger.Error("approver lookup failed", slog.Any("error", err))
		return err
	}

	reminded := 0
	for _, a := range approvers {
		count := 0
		for _, p := range stale {
			if permits.CanApprove(a.Role, a.Grade, p.Grade) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		logger.Info("pending approvals reminder",
			slog.Int64("approver_id", a.ID),
			slog.String("role", string(a.Role)),
			slog.Int("pending_count", count),
		)
		j.metrics().AddReminders(string(a.Role), 1)
		reminded++
	}

	logger.Info("completed pending reminder sweep",
		slog.Int("stale_permits", len(stale)),
		slog.Int("approvers_reminded", reminded),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

type stalePermit struct {
	ID    string
	Grade org.Grade
}

type approver struct {
	ID    int64
	Role  org.Role
	Grade org.Grade
}

func (j *PendingReminderJob) stalePermits(ctx context.Context, cutoff time.Time) ([]stalePermit, error) {
	if j.Pool == nil {
		return nil, errors.New("pending reminder: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT p.id, e.grade
		FROM permits p
		JOIN employees e ON e.id = p.employee_id
		WHERE p.status = 'pending' AND p.created_at < $1
		ORDER BY p.created_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stalePermit
	for rows.Next() {
		var id, grade string
		if err := rows.Scan(&id, &grade); err != nil {
			return nil, err
		}
		out = append(out, stalePermit{ID: id, Grade: org.Grade(grade)})
	}
	return out, rows.Err()
}

func (j *PendingReminderJob) activeApprovers(ctx context.Context) ([]approver, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT id, role, grade
		FROM employees
		WHERE is_active AND role IN ('supervisor', 'manager', 'hr')
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []approver
	for rows.Next() {
		var a approver
		var role, grade string
		if err := rows.Scan(&a.ID, &role, &grade); err != nil {
			return nil, err
		}
		a.Role = org.Role(role)
		a.Grade = org.Grade(grade)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (j *PendingReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPendingReminder))
	}
	return slog.Default().With(slog.String("job", TaskPendingReminder))
}

func (j *PendingReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PendingReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
