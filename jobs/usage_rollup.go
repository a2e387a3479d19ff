package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRollupJob folds the previous day's usage transactions into the
// usage_daily table so balance history queries do not scan the full ledger.
type UsageRollupJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewUsageRollupJob(pool *pgxpool.Pool, logger *slog.Logger) *UsageRollupJob {
	return &UsageRollupJob{pool: pool, logger: logger}
}

// Handle processes TaskUsageRollup tasks.
func (j *UsageRollupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload UsageRollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	day := payload.Day
	if day == "" {
		day = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	}

	const q = `
		INSERT INTO usage_daily (account_id, day, spent, transactions)
		SELECT account_id, $1::date, -sum(amount), count(*)
		FROM credit_transactions
		WHERE category = 'usage'
		  AND created_at >= $1::date
		  AND created_at < $1::date + interval '1 day'
		GROUP BY account_id
		ON CONFLICT (account_id, day)
		DO UPDATE SET spent = excluded.spent, transactions = excluded.transactions`
	tag, err := j.pool.Exec(ctx, q, day)
	if err != nil {
		j.logger.Error("usage rollup", slog.String("day", day), slog.Any("error", err))
		return err
	}
	j.logger.Info("usage rollup complete",
		slog.String("day", day),
		slog.Int64("accounts", tag.RowsAffected()))
	return nil
}
