package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/gatepass-hq/gatepass/internal/jobs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	sample:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue sample
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// ============================================================================
// Notify dispatch
// ============================================================================

func TestNotifyHandlerRecordsSuccessfulRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := &NotifyHandler{Logger: discardLogger(), Metrics: jobmetrics.NewMetrics(reg)}

	task, err := NewNotifyTask(NotifyPayload{
		Event:       "permit.approved",
		PermitID:    "7f9c24e8-1c1a-4c4b-9d55-0b2f6b9a1c11",
		RecipientID: 42,
		Message:     "Your exit permit was approved.",
	})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), task))

	runs := counterValue(t, reg, "gatepass_jobs_total", map[string]string{
		"job": TaskTypeNotify, "status": "success",
	})
	assert.Equal(t, 1.0, runs)
}

func TestNotifyHandlerRecordsUndecodablePayloadAsFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := &NotifyHandler{Logger: discardLogger(), Metrics: jobmetrics.NewMetrics(reg)}

	task := asynq.NewTask(TaskTypeNotify, []byte("{not json"))

	err := h.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	runs := counterValue(t, reg, "gatepass_jobs_total", map[string]string{
		"job": TaskTypeNotify, "status": "failure",
	})
	assert.Equal(t, 1.0, runs)
	failures := counterValue(t, reg, "gatepass_jobs_failures_total", map[string]string{
		"job": TaskTypeNotify,
	})
	assert.Equal(t, 1.0, failures)
}

// ============================================================================
// Pending reminder sweep
// ============================================================================

func TestPendingReminderRecordsSweepFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewPendingReminderJob(nil, discardLogger(), jobmetrics.NewMetrics(reg))

	task, err := NewPendingReminderTask(PendingReminderPayload{MaxAgeHours: 12})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)

	runs := counterValue(t, reg, "gatepass_jobs_total", map[string]string{
		"job": TaskPendingReminder, "status": "failure",
	})
	assert.Equal(t, 1.0, runs)
	failures := counterValue(t, reg, "gatepass_jobs_failures_total", map[string]string{
		"job": TaskPendingReminder,
	})
	assert.Equal(t, 1.0, failures)
}
