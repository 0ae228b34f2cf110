// Package notify turns permit events into notification intents: a
// structured log line plus a queued dispatch task for the worker.
// Dispatch is fire and forget; nothing here may fail the operation that
// raised the event.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/permits"
	"github.com/gatepass-hq/gatepass/jobs"
)

// Dispatcher implements permits.Notifier.
type Dispatcher struct {
	logger *slog.Logger
	client *asynq.Client
}

// NewDispatcher constructs a Dispatcher. The asynq client may be nil,
// in which case intents are only logged.
func NewDispatcher(logger *slog.Logger, client *asynq.Client) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, client: client}
}

// PermitSubmitted records the intent to notify eligible approvers.
func (d *Dispatcher) PermitSubmitted(ctx context.Context, p permits.Permit, requester org.Employee) {
	msg := fmt.Sprintf("New exit permit submitted by %s for %s from %s to %s. Reason: %s",
		requester.Name, p.Date.Format("2006-01-02"), p.ExitTime, p.ReturnTime, p.Reason)
	d.emit(ctx, permits.EventSubmitted, p, requester.ID, msg)
}

// PermitResolved records the intent to notify the requester of the
// outcome.
func (d *Dispatcher) PermitResolved(ctx context.Context, p permits.Permit, decision permits.Decision) {
	var msg string
	if p.Status == permits.StatusRejected {
		msg = fmt.Sprintf("Your exit permit for %s has been rejected. Reason: %s",
			p.Date.Format("2006-01-02"), p.RejectionReason)
	} else {
		msg = fmt.Sprintf("Your exit permit for %s has been approved.", p.Date.Format("2006-01-02"))
	}
	d.emit(ctx, permits.ResolutionEvent(p.Status), p, p.EmployeeID, msg)
}

func (d *Dispatcher) emit(ctx context.Context, event permits.Event, p permits.Permit, recipientID int64, msg string) {
	d.logger.Info("notification intent",
		slog.String("event", string(event)),
		slog.String("permit_id", p.ID.String()),
		slog.Int64("recipient_id", recipientID),
		slog.String("message", msg),
	)

	if d.client == nil {
		return
	}
	task, err := jobs.NewNotifyTask(jobs.NotifyPayload{
		Event:       string(event),
		PermitID:    p.ID.String(),
		RecipientID: recipientID,
		Message:     msg,
	})
	if err != nil {
		d.logger.Warn("build notify task", slog.Any("error", err))
		return
	}
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		d.logger.Warn("enqueue notify task", slog.Any("error", err))
	}
}
