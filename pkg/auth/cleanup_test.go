package auth

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/campus/pkg/observability"
)

func TestCleanupJob_Run(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tm, _ := newTestManager(now)

	for i := 0; i < 3; i++ {
		_, _, err := tm.CreateToken(ctx, uuid.New(), "expiring", time.Minute)
		require.NoError(t, err)
	}
	tm.now = func() time.Time { return now.Add(time.Hour) }

	var buf bytes.Buffer
	cleaned := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_tokens_cleaned_total"})
	job := NewCleanupJob(tm, cleaned, observability.NewLogger(observability.InfoLevel, &buf))

	job.Run()
	assert.Equal(t, 3.0, testutil.ToFloat64(cleaned))
	assert.Contains(t, buf.String(), "Expired tokens deleted")

	buf.Reset()
	job.Run()
	assert.Equal(t, 3.0, testutil.ToFloat64(cleaned))
	assert.Empty(t, buf.String())
}

func TestScheduleCleanup(t *testing.T) {
	tm, _ := newTestManager(time.Now())
	job := NewCleanupJob(tm, nil, observability.NewLogger(observability.InfoLevel, &bytes.Buffer{}))
	c := cron.New()

	id, err := ScheduleCleanup(c, "", job)
	require.NoError(t, err)
	assert.Equal(t, job, c.Entry(id).Job)

	_, err = ScheduleCleanup(c, "not a schedule", job)
	assert.Error(t, err)
}
