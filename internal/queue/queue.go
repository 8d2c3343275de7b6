// Package queue is the durable delayed job queue: a thin policy layer over
// the store's jobs table. Jobs enqueued with a delay sit in the delayed state
// until their scheduled time passes, then become claimable in
// priority-then-FIFO order.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"tubefarm/internal/store"
	logx "tubefarm/pkg/logx"
)

// JobTypeShortVideo is the only job type the production pipeline handles
// today. Unknown types are failed terminally at dispatch.
const JobTypeShortVideo = "short_video"

type Queue struct {
	st  store.Store
	log logx.Logger
}

func New(st store.Store, log logx.Logger) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Queue{st: st, log: log}
}

// Enqueue inserts a job, delayed by the given duration. The job ID is the
// idempotency key: enqueueing the same ID twice inserts nothing the second
// time and returns false.
func (q *Queue) Enqueue(ctx context.Context, j store.Job, delay time.Duration) (bool, error) {
	if strings.TrimSpace(j.ID) == "" {
		return false, errors.New("queue: job ID (idempotency key) is required")
	}
	if strings.TrimSpace(j.Type) == "" {
		return false, errors.New("queue: job type is required")
	}

	now := time.Now()
	if delay < 0 {
		delay = 0
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = now.Add(delay)
	}
	if delay > 0 {
		j.Status = store.StatusDelayed
	} else {
		j.Status = store.StatusPending
	}

	inserted, err := q.st.InsertJob(ctx, j)
	if err != nil {
		return false, err
	}
	if !inserted {
		q.log.Debug("duplicate job skipped", logx.String("job", j.ID))
		return false, nil
	}
	q.log.Debug("job enqueued",
		logx.String("job", j.ID),
		logx.String("type", j.Type),
		logx.String("channel", j.ChannelID),
		logx.Duration("delay", delay),
	)
	return true, nil
}

// ChannelBacklog counts a channel's queued-but-unstarted jobs
// (delayed + pending). Reconciliation tops up against this number.
func (q *Queue) ChannelBacklog(ctx context.Context, channelID string) (int, error) {
	return q.st.CountChannelJobs(ctx, channelID, store.BacklogStatuses...)
}

// Jobs lists jobs in the given states, priority DESC then FIFO.
func (q *Queue) Jobs(ctx context.Context, states ...store.JobStatus) ([]store.Job, error) {
	return q.st.ListJobs(ctx, states...)
}

// ClaimReady promotes due delayed jobs and atomically claims up to limit
// pending jobs for processing.
func (q *Queue) ClaimReady(ctx context.Context, limit int) ([]store.Job, error) {
	return q.st.ClaimDueJobs(ctx, limit, time.Now())
}

func (q *Queue) Counts(ctx context.Context) (store.QueueCounts, error) {
	return q.st.QueueCounts(ctx)
}
