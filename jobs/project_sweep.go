package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSweepAge = 30 * time.Minute

// ProjectSweepJob fails generations that never reached a terminal status.
// A crash between the provider call and persistence leaves rows in
// `generating` forever; this sweep closes them out.
type ProjectSweepJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProjectSweepJob(pool *pgxpool.Pool, logger *slog.Logger) *ProjectSweepJob {
	return &ProjectSweepJob{pool: pool, logger: logger}
}

// Handle processes TaskProjectSweep tasks.
func (j *ProjectSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ProjectSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	maxAge := time.Duration(payload.MaxAgeMinutes) * time.Minute
	if maxAge <= 0 {
		maxAge = defaultSweepAge
	}

	const q = `
		UPDATE projects
		SET status = 'error', updated_at = now()
		WHERE status = 'generating' AND created_at < now() - make_interval(mins => $1)`
	tag, err := j.pool.Exec(ctx, q, int(maxAge.Minutes()))
	if err != nil {
		j.logger.Error("project sweep", slog.Any("error", err))
		return err
	}
	if tag.RowsAffected() > 0 {
		j.logger.Info("project sweep closed stale generations",
			slog.Int64("count", tag.RowsAffected()))
	}
	return nil
}
