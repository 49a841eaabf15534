package auth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/campus/pkg/observability"
)

// DefaultCleanupSchedule runs token cleanup at minute 17 of every hour
const DefaultCleanupSchedule = "17 * * * *"

// CleanupJob deletes expired tokens. It implements cron.Job.
type CleanupJob struct {
	tokens  *TokenManager
	cleaned prometheus.Counter
	logger  *observability.Logger
	timeout time.Duration
}

// NewCleanupJob creates a cleanup job; cleaned may be nil
func NewCleanupJob(tokens *TokenManager, cleaned prometheus.Counter, logger *observability.Logger) *CleanupJob {
	return &CleanupJob{tokens: tokens, cleaned: cleaned, logger: logger, timeout: time.Minute}
}

// Run deletes expired tokens once
func (j *CleanupJob) Run() {
	defer observability.RecoverPanic(j.logger, "token cleanup")

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		j.logger.WithError(err).Error("Token cleanup failed")
		return
	}
	if j.cleaned != nil {
		j.cleaned.Add(float64(n))
	}
	if n > 0 {
		j.logger.WithField("deleted", n).Info("Expired tokens deleted")
	}
}

// ScheduleCleanup registers job on c; an empty spec uses DefaultCleanupSchedule
func ScheduleCleanup(c *cron.Cron, spec string, job *CleanupJob) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultCleanupSchedule
	}
	return c.AddJob(spec, job)
}
