package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"tubefarm/internal/eventbus"
	logx "tubefarm/pkg/logx"
)

// testService builds an enabled Service with sends captured in memory,
// skipping the Telegram handshake.
func testService(send func(msg string) error) *Service {
	return &Service{
		cfg:     Config{Enabled: true, AdminChatID: 1, QueueSize: 32},
		log:     logx.Nop(),
		limiter: rate.NewLimiter(rate.Inf, 1),
		send:    send,
	}
}

func TestFormatJobUpdate(t *testing.T) {
	cases := []struct {
		name string
		u    JobUpdate
		want []string
	}{
		{
			name: "queued",
			u:    JobUpdate{Event: "queued", ChannelID: "ch1", Niche: "Finance", Type: "short_video"},
			want: []string{"📋 Job queued", "Channel: ch1", "Niche: Finance"},
		},
		{
			name: "started",
			u:    JobUpdate{Event: "started", JobID: "j1", Niche: "Finance", Type: "short_video"},
			want: []string{"▶️ Job started", "Job ID: j1"},
		},
		{
			name: "uploading",
			u:    JobUpdate{Event: "uploading", VideoID: "v1", Title: "My Video"},
			want: []string{"⬆️ Uploading to YouTube", "Video ID: v1", "Title: My Video"},
		},
		{
			name: "completed",
			u:    JobUpdate{Event: "completed", VideoID: "v1", YouTubeID: "yt1", Title: "My Video", URL: "https://youtube.com/watch?v=yt1"},
			want: []string{"✅ Job completed successfully!", "YouTube ID: yt1", "Watch: https://youtube.com/watch?v=yt1"},
		},
		{
			name: "failed",
			u:    JobUpdate{Event: "failed", JobID: "j1", VideoID: "v1", Error: "upload exploded"},
			want: []string{"❌ Job failed", "Error: upload exploded"},
		},
		{
			name: "unknown event",
			u:    JobUpdate{Event: "rescheduled", JobID: "j1", ChannelID: "ch1"},
			want: []string{"ℹ️ Job event: rescheduled", "Channel: ch1"},
		},
	}
	for _, tc := range cases {
		msg := formatJobUpdate(tc.u)
		for _, w := range tc.want {
			if !strings.Contains(msg, w) {
				t.Fatalf("%s: message %q missing %q", tc.name, msg, w)
			}
		}
	}
}

func TestEnabledRequiresCredentials(t *testing.T) {
	if _, err := New(Config{Enabled: true}, logx.Nop()); err == nil {
		t.Fatalf("expected error for enabled notifier without token")
	}
	if _, err := New(Config{Enabled: true, Token: "t"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for enabled notifier without chat id")
	}
}

func TestDisabledServiceDoesNotSubscribe(t *testing.T) {
	svc, err := New(Config{Enabled: false}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bus := eventbus.New()
	svc.Start(context.Background(), bus)
	bus.Publish(eventbus.Event{Type: "job.completed", Data: JobUpdate{Event: "completed"}})
	// Stop without a subscription must be a no-op.
	svc.Stop(context.Background())
}

func TestDeliversJobUpdatesFromBus(t *testing.T) {
	var mu sync.Mutex
	var got []string
	svc := testService(func(msg string) error {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		return nil
	})

	bus := eventbus.New()
	svc.Start(context.Background(), bus)

	// Non-JobUpdate payloads are diagnostic and must be skipped.
	bus.Publish(eventbus.Event{Type: "job.started", Data: map[string]string{"job_id": "x"}})
	bus.Publish(eventbus.Event{Type: "job.completed", Data: JobUpdate{
		Event: "completed", VideoID: "v1", YouTubeID: "yt1", Title: "T", URL: "https://youtube.com/watch?v=yt1",
	}})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no message delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	svc.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1: %v", len(got), got)
	}
	if !strings.Contains(got[0], "yt1") {
		t.Fatalf("unexpected message: %q", got[0])
	}
}

func TestStopDuringPublishIsSafe(t *testing.T) {
	svc := testService(func(msg string) error { return nil })
	bus := eventbus.New()
	svc.Start(context.Background(), bus)

	// Publishers keep firing while Stop runs; nothing may panic and the
	// service must still shut down before the deadline.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					bus.Publish(eventbus.Event{Type: "job.completed", Data: JobUpdate{Event: "completed"}})
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(ctx)
	if ctx.Err() != nil {
		t.Fatalf("Stop did not finish before the deadline")
	}
	close(stop)
	wg.Wait()

	// Stop again is a no-op.
	svc.Stop(context.Background())
}
