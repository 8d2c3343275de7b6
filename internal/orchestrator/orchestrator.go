package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"tubefarm/internal/eventbus"
	"tubefarm/internal/store"
	logx "tubefarm/pkg/logx"
)

// Processor handles one claimed job. It owns intermediate stage transitions;
// the orchestrator owns claiming and terminal failure marking.
type Processor func(ctx context.Context, job store.Job) error

// Config controls the dispatch loop.
type Config struct {
	MaxConcurrent int           // concurrency cap (default 3)
	PollInterval  time.Duration // dequeue poll cadence (default 10s)
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	return c
}

// JobSource claims ready work.
type JobSource interface {
	ClaimReady(ctx context.Context, limit int) ([]store.Job, error)
}

// JobSink records terminal failure.
type JobSink interface {
	FailJob(ctx context.Context, id, errMsg string, countRetry bool) error
}

// JobEvent is published on the bus for job lifecycle transitions.
type JobEvent struct {
	JobID     string `json:"job_id"`
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
	Niche     string `json:"niche,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Orchestrator polls the queue and dispatches claimed jobs to registered
// processors, running at most MaxConcurrent jobs at once.
//
// All mutable state lives on the struct (never package globals) so tests can
// run independent instances. The active counter is atomic: jobs complete on
// their own goroutines.
type Orchestrator struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	source JobSource
	sink   JobSink
	procs  map[string]Processor

	active         atomic.Int32
	workersEnabled atomic.Bool

	stopCh   chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
}

func New(cfg Config, source JobSource, sink JobSink, log logx.Logger, bus eventbus.Bus) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		log:    log,
		bus:    bus,
		source: source,
		sink:   sink,
		procs:  make(map[string]Processor),
	}
}

// Register binds a processor to a job type. Jobs with unregistered types are
// failed terminally without consuming retry budget.
func (o *Orchestrator) Register(jobType string, p Processor) {
	o.mu.Lock()
	o.procs[jobType] = p
	o.mu.Unlock()
}

// SetWorkersEnabled flips the dispatch gate. While off, poll ticks skip
// dequeuing entirely; in-flight jobs are unaffected.
func (o *Orchestrator) SetWorkersEnabled(enabled bool) {
	o.workersEnabled.Store(enabled)
	o.log.Info("workers gate changed", logx.Bool("enabled", enabled))
}

func (o *Orchestrator) WorkersEnabled() bool { return o.workersEnabled.Load() }

// ActiveJobs reports the number of currently running jobs.
func (o *Orchestrator) ActiveJobs() int { return int(o.active.Load()) }

// Start begins the poll loop. Idempotent: a second call warns and does nothing.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.stopCh != nil {
		o.mu.Unlock()
		o.log.Warn("orchestrator already running")
		return
	}
	o.stopCh = make(chan struct{})
	o.loopDone = make(chan struct{})
	stopCh := o.stopCh
	done := o.loopDone
	o.mu.Unlock()

	o.log.Info("orchestrator started",
		logx.Int("max_concurrent", o.cfg.MaxConcurrent),
		logx.Duration("poll", o.cfg.PollInterval),
	)

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.cfg.PollInterval)
		defer ticker.Stop()

		// First tick immediately so a restart drains ready work without waiting.
		o.tick(ctx)
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.tick(ctx)
			}
		}
	}()
}

// Stop halts new dequeues and waits (bounded by ctx) for in-flight jobs.
// It does not cancel running jobs: they finish or fail on their own.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	stopCh := o.stopCh
	done := o.loopDone
	o.stopCh = nil
	o.loopDone = nil
	o.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-done:
	case <-ctx.Done():
	}

	drained := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		o.log.Info("orchestrator stopped")
	case <-ctx.Done():
		o.log.Warn("orchestrator stop timed out with jobs in flight", logx.Int("active", o.ActiveJobs()))
	}
}

// tick runs one poll round. It never panics and never returns an error: any
// per-job failure is contained so the loop always reaches the next tick.
func (o *Orchestrator) tick(ctx context.Context) {
	if !o.workersEnabled.Load() {
		return
	}

	available := o.cfg.MaxConcurrent - int(o.active.Load())
	if available <= 0 {
		o.log.Debug("concurrency cap reached, waiting",
			logx.Int("active", o.ActiveJobs()),
			logx.Int("max", o.cfg.MaxConcurrent),
		)
		return
	}

	jobs, err := o.source.ClaimReady(ctx, available)
	if err != nil {
		o.log.Error("claim failed", logx.Err(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	for _, job := range jobs {
		job := job
		o.active.Add(1)
		o.inflight.Add(1)
		go func() {
			// Decrement must happen on every exit path, panics included.
			defer o.inflight.Done()
			defer o.active.Add(-1)
			o.runJob(job)
		}()
	}
}

func (o *Orchestrator) runJob(job store.Job) {
	// Job execution is deliberately detached from the poll context: stopping
	// the orchestrator must not cancel in-flight work.
	ctx := context.Background()

	o.log.Info("processing job",
		logx.String("job", job.ID),
		logx.String("type", job.Type),
		logx.String("channel", job.ChannelID),
	)
	o.publish("job.started", job, "")

	o.mu.Lock()
	proc := o.procs[job.Type]
	o.mu.Unlock()

	if proc == nil {
		o.log.Error("unknown job type", logx.String("job", job.ID), logx.String("type", job.Type))
		if err := o.sink.FailJob(ctx, job.ID, "unknown job type: "+job.Type, false); err != nil {
			o.log.Error("failed to mark job failed", logx.String("job", job.ID), logx.Err(err))
		}
		o.publish("job.failed", job, "unknown job type")
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				o.log.Error("job panicked",
					logx.String("job", job.ID),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		return proc(ctx, job)
	}()

	if err != nil {
		o.log.Error("job processing failed", logx.String("job", job.ID), logx.Err(err))
		if ferr := o.sink.FailJob(ctx, job.ID, err.Error(), true); ferr != nil {
			o.log.Error("failed to mark job failed", logx.String("job", job.ID), logx.Err(ferr))
		}
		o.publish("job.failed", job, err.Error())
		return
	}

	o.log.Info("job completed", logx.String("job", job.ID))
	o.publish("job.completed", job, "")
}

func (o *Orchestrator) publish(event string, job store.Job, errMsg string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventbus.Event{
		Type: event,
		Data: JobEvent{
			JobID:     job.ID,
			Type:      job.Type,
			ChannelID: job.ChannelID,
			Niche:     job.Niche,
			Error:     errMsg,
		},
	})
}
