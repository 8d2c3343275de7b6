package schedule

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "tubefarm/pkg/logx"
)

const defaultReconcileEvery = time.Hour

// maxStartupSpread bounds the random delay added to the first cron run so a
// fleet of restarts doesn't reconcile in lockstep.
const maxStartupSpread = 30 * time.Second

// Service owns the periodic reconciliation trigger: an interval cron entry
// that calls Planner.ScheduleAll, plus one immediate pass on startup.
type Service struct {
	mu sync.Mutex

	planner *Planner
	log     logx.Logger
	every   time.Duration

	c *cron.Cron
}

func NewService(planner *Planner, every time.Duration, log logx.Logger) *Service {
	if every <= 0 {
		every = defaultReconcileEvery
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{planner: planner, log: log, every: every}
}

// Start begins periodic reconciliation. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return
	}
	s.c = cron.New()
	sched, spread := makeIntervalScheduleWithSpread(s.every, time.Now(), "reconcile")
	s.c.Schedule(sched, cron.FuncJob(func() {
		if err := s.planner.ScheduleAll(context.Background()); err != nil {
			s.log.Error("scheduled reconciliation failed", logx.Err(err))
		}
	}))
	s.c.Start()
	s.mu.Unlock()

	s.log.Info("reconciliation trigger started",
		logx.Duration("every", s.every),
		logx.Duration("startup_spread", spread),
	)

	// Immediate pass so a fresh daemon fills the queue without waiting an hour.
	go func() {
		if err := s.planner.ScheduleAll(ctx); err != nil {
			s.log.Error("startup reconciliation failed", logx.Err(err))
		}
	}()
}

// Stop halts the trigger and waits for a running pass to finish (bounded by ctx).
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("reconciliation trigger stopped")
}

// startupSpreadSchedule wraps a base schedule and overrides the first run time.
// After the first run, it delegates to the base schedule.
type startupSpreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *startupSpreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq uint64

func makeIntervalScheduleWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := every
	if spreadMax > maxStartupSpread {
		spreadMax = maxStartupSpread
	}
	if spreadMax <= 0 {
		return base, 0
	}

	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	rng := rand.New(rand.NewSource(seed))
	jitter := time.Duration(rng.Int63n(int64(spreadMax)))
	first := now.Add(every + jitter)
	return &startupSpreadSchedule{base: base, first: first}, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
