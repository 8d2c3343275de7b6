package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tubefarm/internal/store"
	logx "tubefarm/pkg/logx"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "q.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, logx.Nop())
}

func TestEnqueueDelayedVsImmediate(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	ins, err := q.Enqueue(ctx, store.Job{ID: "later", Type: JobTypeShortVideo, ChannelID: "ch1"}, time.Hour)
	if err != nil || !ins {
		t.Fatalf("delayed enqueue: ins=%v err=%v", ins, err)
	}
	ins, err = q.Enqueue(ctx, store.Job{ID: "now", Type: JobTypeShortVideo, ChannelID: "ch1"}, 0)
	if err != nil || !ins {
		t.Fatalf("immediate enqueue: ins=%v err=%v", ins, err)
	}

	delayed, err := q.Jobs(ctx, store.StatusDelayed)
	if err != nil || len(delayed) != 1 || delayed[0].ID != "later" {
		t.Fatalf("delayed bucket: %+v err=%v", delayed, err)
	}
	pending, err := q.Jobs(ctx, store.StatusPending)
	if err != nil || len(pending) != 1 || pending[0].ID != "now" {
		t.Fatalf("pending bucket: %+v err=%v", pending, err)
	}

	if n, _ := q.ChannelBacklog(ctx, "ch1"); n != 2 {
		t.Fatalf("backlog = %d, want 2", n)
	}
}

func TestEnqueueDuplicateIgnored(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	j := store.Job{ID: "ch1-42", Type: JobTypeShortVideo, ChannelID: "ch1"}
	if ins, err := q.Enqueue(ctx, j, time.Minute); err != nil || !ins {
		t.Fatalf("first enqueue: ins=%v err=%v", ins, err)
	}
	if ins, err := q.Enqueue(ctx, j, time.Minute); err != nil || ins {
		t.Fatalf("duplicate must be skipped: ins=%v err=%v", ins, err)
	}
	if n, _ := q.ChannelBacklog(ctx, "ch1"); n != 1 {
		t.Fatalf("backlog = %d, want 1", n)
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, store.Job{Type: JobTypeShortVideo}, 0); err == nil {
		t.Fatalf("expected error for missing ID")
	}
	if _, err := q.Enqueue(ctx, store.Job{ID: "x"}, 0); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestClaimReadyHonorsDelay(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, store.Job{ID: "soon", Type: JobTypeShortVideo, ChannelID: "ch1"}, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, store.Job{ID: "tomorrow", Type: JobTypeShortVideo, ChannelID: "ch1"}, 24*time.Hour); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := q.ClaimReady(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimReady: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "soon" {
		t.Fatalf("expected only the due job, got %+v", claimed)
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Active != 1 || counts.Delayed != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
