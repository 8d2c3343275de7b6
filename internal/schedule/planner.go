package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tubefarm/internal/queue"
	"tubefarm/internal/store"
	logx "tubefarm/pkg/logx"
)

// defaultNiches is the fallback when a channel has no niche list configured.
var defaultNiches = []string{"Motivational"}

// Config controls reconciliation.
type Config struct {
	// VideosPerDay is the global default target; channels may override it.
	VideosPerDay int
	// JitterMinutes is the symmetric slot jitter (+/-).
	JitterMinutes int
}

func (c Config) withDefaults() Config {
	if c.VideosPerDay <= 0 {
		c.VideosPerDay = 15
	}
	if c.JitterMinutes < 0 {
		c.JitterMinutes = 15
	}
	return c
}

// ChannelStore is the channel lookup surface the planner needs.
type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (*store.Channel, error)
	ListEnabledChannels(ctx context.Context) ([]store.Channel, error)
}

// JobQueue is the enqueue surface the planner needs.
type JobQueue interface {
	Enqueue(ctx context.Context, j store.Job, delay time.Duration) (bool, error)
	ChannelBacklog(ctx context.Context, channelID string) (int, error)
}

// jobPayload is the short_video job payload shape.
type jobPayload struct {
	ChannelID   string `json:"channel_id"`
	Niche       string `json:"niche"`
	Type        string `json:"type"`
	ScheduledAt int64  `json:"scheduled_at"`
}

// Planner reconciles each channel's queued-job backlog against its daily
// target, topping up only the deficit. It never removes excess jobs: lowering
// a channel's target leaves previously queued work in place.
type Planner struct {
	cfg      Config
	channels ChannelStore
	jobs     JobQueue
	log      logx.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewPlanner(cfg Config, channels ChannelStore, jobs JobQueue, log logx.Logger) *Planner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Planner{
		cfg:      cfg.withDefaults(),
		channels: channels,
		jobs:     jobs,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ScheduleChannel tops up one channel's queue to its daily target.
//
// A missing or disabled channel is a logged no-op, not an error. Re-running
// with no elapsed time enqueues nothing: the backlog already meets the target
// and identical slots are deduplicated by job ID.
func (p *Planner) ScheduleChannel(ctx context.Context, channelID string) error {
	ch, err := p.channels.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel %s: %w", channelID, err)
	}
	if ch == nil || !ch.Enabled {
		p.log.Warn("channel missing or disabled, skipping", logx.String("channel", channelID))
		return nil
	}

	target := ch.VideosPerDay
	if target <= 0 {
		target = p.cfg.VideosPerDay
	}

	existing, err := p.jobs.ChannelBacklog(ctx, channelID)
	if err != nil {
		return fmt.Errorf("count backlog for %s: %w", channelID, err)
	}
	if existing >= target {
		p.log.Debug("channel backlog meets target",
			logx.String("channel", channelID),
			logx.Int("existing", existing),
			logx.Int("target", target),
		)
		return nil
	}

	needed := target - existing
	slots := GenerateSlots(needed, p.cfg.JitterMinutes)

	niches := ch.Niches
	if len(niches) == 0 {
		niches = defaultNiches
	}

	now := time.Now()
	enqueued := 0
	for _, slot := range slots {
		niche := niches[p.pick(len(niches))]

		payload, err := json.Marshal(jobPayload{
			ChannelID:   channelID,
			Niche:       niche,
			Type:        queue.JobTypeShortVideo,
			ScheduledAt: slot.ScheduledAt.UnixMilli(),
		})
		if err != nil {
			return err
		}

		delay := slot.ScheduledAt.Sub(now)
		if delay < 0 {
			delay = 0
		}

		// Job ID doubles as the idempotency key so re-running reconciliation
		// never double-enqueues the same exact slot.
		job := store.Job{
			ID:          fmt.Sprintf("%s-%d", channelID, slot.ScheduledAt.UnixMilli()),
			Type:        queue.JobTypeShortVideo,
			ChannelID:   channelID,
			Niche:       niche,
			Payload:     string(payload),
			ScheduledAt: slot.ScheduledAt,
		}
		ins, err := p.jobs.Enqueue(ctx, job, delay)
		if err != nil {
			return fmt.Errorf("enqueue slot for %s: %w", channelID, err)
		}
		if ins {
			enqueued++
		}

		p.log.Info("scheduled video job",
			logx.String("channel", channelID),
			logx.String("niche", niche),
			logx.Time("scheduled_for", slot.ScheduledAt),
			logx.Int("delay_minutes", int(delay/time.Minute)),
		)
	}

	p.log.Info("channel reconciled",
		logx.String("channel", channelID),
		logx.Int("enqueued", enqueued),
		logx.Int("existing", existing),
		logx.Int("target", target),
	)
	return nil
}

// ScheduleAll reconciles every enabled channel. One channel's failure never
// aborts the others.
func (p *Planner) ScheduleAll(ctx context.Context) error {
	channels, err := p.channels.ListEnabledChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	failed := 0
	for _, ch := range channels {
		if err := p.ScheduleChannel(ctx, ch.ID); err != nil {
			failed++
			p.log.Error("channel reconciliation failed", logx.String("channel", ch.ID), logx.Err(err))
		}
	}

	p.log.Info("reconciliation pass complete", logx.Int("channels", len(channels)), logx.Int("failed", failed))
	return nil
}

func (p *Planner) pick(n int) int {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Intn(n)
}
