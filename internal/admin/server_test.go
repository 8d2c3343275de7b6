package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tubefarm/internal/eventbus"
	"tubefarm/internal/store"
	logx "tubefarm/pkg/logx"
)

type fakePlanner struct {
	scheduled []string
	err       error
}

func (p *fakePlanner) ScheduleChannel(ctx context.Context, channelID string) error {
	if p.err != nil {
		return p.err
	}
	p.scheduled = append(p.scheduled, channelID)
	return nil
}

type fakeWorkers struct {
	enabled bool
	active  int
}

func (w *fakeWorkers) WorkersEnabled() bool      { return w.enabled }
func (w *fakeWorkers) SetWorkersEnabled(on bool) { w.enabled = on }
func (w *fakeWorkers) ActiveJobs() int           { return w.active }

func newTestServer(t *testing.T) (*Server, store.Store, *fakePlanner, *fakeWorkers) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "admin.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	planner := &fakePlanner{}
	workers := &fakeWorkers{enabled: true, active: 2}
	srv := NewServer(Config{Enabled: true}, st, planner, workers, eventbus.NewRecorder(16), logx.Nop())
	return srv, st, planner, workers
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("%s %s: decode body: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	ctx := context.Background()
	if _, err := st.InsertJob(ctx, store.Job{ID: "j1", Type: "short_video", Status: store.StatusPending}); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	code, body := doJSON(t, srv, http.MethodGet, "/health", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("health status: %v", body["status"])
	}
	workers, _ := body["workers"].(map[string]any)
	if workers["enabled"] != true || workers["active"] != float64(2) {
		t.Fatalf("workers block: %v", workers)
	}
	services, _ := body["services"].(map[string]any)
	queue, _ := services["queue"].(map[string]any)
	if queue["waiting"] != float64(1) || queue["total"] != float64(1) {
		t.Fatalf("queue block: %v", queue)
	}
}

func TestQueueStats(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	ctx := context.Background()
	for _, j := range []store.Job{
		{ID: "a", Type: "short_video", Status: store.StatusPending},
		{ID: "b", Type: "short_video", Status: store.StatusDelayed},
		{ID: "c", Type: "short_video", Status: store.StatusFailed},
	} {
		if _, err := st.InsertJob(ctx, j); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	code, body := doJSON(t, srv, http.MethodGet, "/admin/queue/stats", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body["waiting"] != float64(1) || body["delayed"] != float64(1) || body["failed"] != float64(1) {
		t.Fatalf("stats: %v", body)
	}
}

func TestListChannels(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	ctx := context.Background()
	if err := st.UpsertChannel(ctx, store.Channel{ID: "ch1", Name: "Main", Enabled: true, Niches: []string{"Finance"}, VideosPerDay: 10}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	if err := st.UpsertChannel(ctx, store.Channel{ID: "ch2", Name: "Off", Enabled: false}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}

	code, body := doJSON(t, srv, http.MethodGet, "/admin/channels", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	channels, _ := body["channels"].([]any)
	if len(channels) != 1 {
		t.Fatalf("channels: %v", channels)
	}
	ch, _ := channels[0].(map[string]any)
	if ch["id"] != "ch1" || ch["videos_per_day"] != float64(10) {
		t.Fatalf("channel payload: %v", ch)
	}
}

func TestReschedule(t *testing.T) {
	srv, _, planner, _ := newTestServer(t)

	code, _ := doJSON(t, srv, http.MethodPost, "/admin/channels/ch1/reschedule", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(planner.scheduled) != 1 || planner.scheduled[0] != "ch1" {
		t.Fatalf("planner calls: %v", planner.scheduled)
	}

	planner.err = errors.New("store down")
	code, _ = doJSON(t, srv, http.MethodPost, "/admin/channels/ch1/reschedule", "")
	if code != http.StatusInternalServerError {
		t.Fatalf("status %d", code)
	}
}

func TestVideosPerDay(t *testing.T) {
	srv, st, planner, _ := newTestServer(t)
	ctx := context.Background()
	if err := st.UpsertChannel(ctx, store.Channel{ID: "ch1", Name: "Main", Enabled: true, VideosPerDay: 5}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}

	code, _ := doJSON(t, srv, http.MethodPost, "/admin/channels/ch1/videos-per-day", `{"videosPerDay": 20}`)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	ch, _ := st.GetChannel(ctx, "ch1")
	if ch.VideosPerDay != 20 {
		t.Fatalf("videos_per_day not persisted: %d", ch.VideosPerDay)
	}
	if len(planner.scheduled) != 1 || planner.scheduled[0] != "ch1" {
		t.Fatalf("reschedule not triggered: %v", planner.scheduled)
	}

	if code, _ = doJSON(t, srv, http.MethodPost, "/admin/channels/ch1/videos-per-day", `{"videosPerDay": 51}`); code != http.StatusBadRequest {
		t.Fatalf("out-of-range accepted: %d", code)
	}
	if code, _ = doJSON(t, srv, http.MethodPost, "/admin/channels/ch1/videos-per-day", `{"videosPerDay": 0}`); code != http.StatusBadRequest {
		t.Fatalf("out-of-range accepted: %d", code)
	}
	if code, _ = doJSON(t, srv, http.MethodPost, "/admin/channels/ghost/videos-per-day", `{"videosPerDay": 10}`); code != http.StatusNotFound {
		t.Fatalf("missing channel: %d", code)
	}
}

func TestRecentEvents(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	srv.events.Record(eventbus.Event{Type: "job.started", Time: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Data: map[string]string{"job_id": "j1"}})
	srv.events.Record(eventbus.Event{Type: "job.completed", Time: time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)})

	code, body := doJSON(t, srv, http.MethodGet, "/admin/events", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	events, _ := body["events"].([]any)
	if len(events) != 2 {
		t.Fatalf("events: %v", events)
	}
	first, _ := events[0].(map[string]any)
	if first["type"] != "job.started" || first["time"] != "2026-03-01T09:00:00Z" {
		t.Fatalf("event payload: %v", first)
	}
}

func TestRecentEventsWithoutRecorder(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	srv.events = nil

	code, body := doJSON(t, srv, http.MethodGet, "/admin/events", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if events, ok := body["events"].([]any); !ok || len(events) != 0 {
		t.Fatalf("expected empty events list: %v", body)
	}
}

func TestWorkersToggle(t *testing.T) {
	srv, st, _, workers := newTestServer(t)
	ctx := context.Background()

	code, body := doJSON(t, srv, http.MethodPost, "/admin/workers/disable", "")
	if code != http.StatusOK || body["workersEnabled"] != false {
		t.Fatalf("disable: code=%d body=%v", code, body)
	}
	if workers.enabled {
		t.Fatalf("gate not flipped")
	}
	if v, ok, _ := st.GetSetting(ctx, store.SettingWorkersEnabled); !ok || v != "false" {
		t.Fatalf("flag not persisted: %q %v", v, ok)
	}

	code, _ = doJSON(t, srv, http.MethodPost, "/admin/workers/enable", "")
	if code != http.StatusOK || !workers.enabled {
		t.Fatalf("enable failed")
	}
	if v, _, _ := st.GetSetting(ctx, store.SettingWorkersEnabled); v != "true" {
		t.Fatalf("flag not persisted: %q", v)
	}
}
