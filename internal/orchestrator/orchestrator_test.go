package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tubefarm/internal/store"
	logx "tubefarm/pkg/logx"
)

type fakeSource struct {
	mu      sync.Mutex
	pending []store.Job
}

func (f *fakeSource) add(jobs ...store.Job) {
	f.mu.Lock()
	f.pending = append(f.pending, jobs...)
	f.mu.Unlock()
}

func (f *fakeSource) ClaimReady(_ context.Context, limit int) ([]store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	claimed := f.pending[:limit]
	f.pending = f.pending[limit:]
	return claimed, nil
}

type failure struct {
	id         string
	msg        string
	countRetry bool
}

type fakeSink struct {
	mu    sync.Mutex
	fails []failure
}

func (f *fakeSink) FailJob(_ context.Context, id, msg string, countRetry bool) error {
	f.mu.Lock()
	f.fails = append(f.fails, failure{id: id, msg: msg, countRetry: countRetry})
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) failures() []failure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]failure(nil), f.fails...)
}

func makeJobs(n int, typ string) []store.Job {
	jobs := make([]store.Job, n)
	for i := range jobs {
		jobs[i] = store.Job{ID: fmt.Sprintf("job-%d", i), Type: typ, ChannelID: "ch1"}
	}
	return jobs
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestConcurrencyCap(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	o := New(Config{MaxConcurrent: 3, PollInterval: 10 * time.Millisecond}, src, sink, logx.Nop(), nil)

	var active, maxActive, done int32
	o.Register("slow", func(context.Context, store.Job) error {
		cur := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&done, 1)
		return nil
	})

	src.add(makeJobs(10, "slow")...)
	o.SetWorkersEnabled(true)
	o.Start(context.Background())
	defer o.Stop(context.Background())

	waitFor(t, func() bool { return atomic.LoadInt32(&done) == 10 })

	if got := atomic.LoadInt32(&maxActive); got > 3 {
		t.Fatalf("concurrency cap exceeded: %d jobs ran at once", got)
	}
	waitFor(t, func() bool { return o.ActiveJobs() == 0 })
}

func TestUnknownTypeFailsWithoutRetryCredit(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	o := New(Config{PollInterval: 10 * time.Millisecond}, src, sink, logx.Nop(), nil)

	src.add(store.Job{ID: "j1", Type: "mystery", ChannelID: "ch1"})
	o.SetWorkersEnabled(true)
	o.Start(context.Background())
	defer o.Stop(context.Background())

	waitFor(t, func() bool { return len(sink.failures()) == 1 })

	f := sink.failures()[0]
	if f.id != "j1" || f.countRetry {
		t.Fatalf("unknown type must fail terminally without retry credit: %+v", f)
	}
}

func TestProcessorErrorAndPanicAreContained(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	o := New(Config{PollInterval: 10 * time.Millisecond}, src, sink, logx.Nop(), nil)

	var okRuns int32
	o.Register("bad", func(context.Context, store.Job) error { return errors.New("stage exploded") })
	o.Register("panicky", func(context.Context, store.Job) error { panic("kaboom") })
	o.Register("ok", func(context.Context, store.Job) error {
		atomic.AddInt32(&okRuns, 1)
		return nil
	})

	src.add(
		store.Job{ID: "b1", Type: "bad"},
		store.Job{ID: "p1", Type: "panicky"},
		store.Job{ID: "g1", Type: "ok"},
	)
	o.SetWorkersEnabled(true)
	o.Start(context.Background())
	defer o.Stop(context.Background())

	waitFor(t, func() bool {
		return len(sink.failures()) == 2 && atomic.LoadInt32(&okRuns) == 1
	})

	for _, f := range sink.failures() {
		if !f.countRetry {
			t.Fatalf("processor failure should count toward retries: %+v", f)
		}
	}
	waitFor(t, func() bool { return o.ActiveJobs() == 0 })
}

func TestWorkersGate(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	o := New(Config{PollInterval: 10 * time.Millisecond}, src, sink, logx.Nop(), nil)

	var runs int32
	o.Register("t", func(context.Context, store.Job) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	src.add(makeJobs(3, "t")...)

	o.Start(context.Background())
	defer o.Stop(context.Background())

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatalf("jobs dispatched while workers disabled")
	}

	o.SetWorkersEnabled(true)
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 3 })
}

func TestStopHaltsDequeues(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	o := New(Config{PollInterval: 10 * time.Millisecond}, src, sink, logx.Nop(), nil)

	var runs int32
	o.Register("t", func(context.Context, store.Job) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	o.SetWorkersEnabled(true)
	o.Start(context.Background())
	o.Start(context.Background()) // second call is a warning, not a second loop

	src.add(makeJobs(2, "t")...)
	waitFor(t, func() bool { return atomic.LoadInt32(&runs) == 2 })

	o.Stop(context.Background())

	src.add(makeJobs(2, "t")...)
	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Fatalf("jobs dispatched after Stop: %d", got)
	}
}
