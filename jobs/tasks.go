package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatepass-hq/gatepass/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotify is the task type for delivering permit notifications.
	TaskTypeNotify = "notify:dispatch"
)

// NotifyPayload describes a single notification to deliver.
type NotifyPayload struct {
	Event       string `json:"event"`
	PermitID    string `json:"permit_id"`
	RecipientID int64  `json:"recipient_id"`
	Message     string `json:"message"`
}

// NewNotifyTask constructs an Asynq task.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// NotifyHandler delivers permit notifications pulled off the queue.
type NotifyHandler struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskTypeNotify tasks.
func (h *NotifyHandler) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	tracker := h.metrics().Track(TaskTypeNotify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger().Error("undecodable notification payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	// Placeholder: integrate with the WhatsApp gateway in phase 2.
	h.logger().Info("deliver notification",
		slog.String("event", payload.Event),
		slog.String("permit_id", payload.PermitID),
		slog.Int64("recipient_id", payload.RecipientID),
	)
	return nil
}

func (h *NotifyHandler) metrics() *jobmetrics.Metrics {
	if h.Metrics != nil {
		return h.Metrics
	}
	return defaultJobMetrics
}

func (h *NotifyHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger.With(slog.String("job", TaskTypeNotify))
	}
	return slog.Default().With(slog.String("job", TaskTypeNotify))
}

// HandleNotifyTask processes TaskTypeNotify tasks with default dependencies.
func HandleNotifyTask(ctx context.Context, t *asynq.Task) error {
	var h NotifyHandler
	return h.Handle(ctx, t)
}
