package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProjectSweep marks generations stuck in-flight as failed.
	TaskProjectSweep = "projects:sweep"
	// TaskUsageRollup aggregates the previous day's usage charges.
	TaskUsageRollup = "usage:rollup"
)

// ProjectSweepPayload bounds how old an in-flight generation may be before
// the sweep declares it dead.
type ProjectSweepPayload struct {
	MaxAgeMinutes int `json:"max_age_minutes"`
}

// NewProjectSweepTask constructs an Asynq task for the artifact sweep.
func NewProjectSweepTask(maxAge time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ProjectSweepPayload{MaxAgeMinutes: int(maxAge.Minutes())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProjectSweep, body, asynq.Queue(QueueDefault)), nil
}

// UsageRollupPayload names the day to aggregate, empty means yesterday.
type UsageRollupPayload struct {
	Day string `json:"day,omitempty"`
}

// NewUsageRollupTask constructs an Asynq task for the daily usage rollup.
func NewUsageRollupTask(day string) (*asynq.Task, error) {
	body, err := json.Marshal(UsageRollupPayload{Day: day})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsageRollup, body, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueProjectSweep enqueues an immediate artifact sweep.
func (c *Client) EnqueueProjectSweep(ctx context.Context, maxAge time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewProjectSweepTask(maxAge)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ SweepEnqueuer = (*Client)(nil)
