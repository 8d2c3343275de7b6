package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tubefarm/internal/eventbus"
	"tubefarm/internal/store"
	logx "tubefarm/pkg/logx"
)

// Config controls the admin HTTP server.
type Config struct {
	Enabled bool
	Addr    string // default 127.0.0.1:3000
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:3000"
	}
	return c
}

// Planner triggers channel reconciliation on demand.
type Planner interface {
	ScheduleChannel(ctx context.Context, channelID string) error
}

// Workers exposes the dispatch loop's runtime controls.
type Workers interface {
	WorkersEnabled() bool
	SetWorkersEnabled(enabled bool)
	ActiveJobs() int
}

// Server is the local admin API: channel controls, queue stats, recent job
// events and health.
type Server struct {
	cfg     Config
	st      store.Store
	planner Planner
	workers Workers
	events  *eventbus.Recorder
	log     logx.Logger

	app     *fiber.App
	started time.Time
}

func NewServer(cfg Config, st store.Store, planner Planner, workers Workers, events *eventbus.Recorder, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:     cfg.withDefaults(),
		st:      st,
		planner: planner,
		workers: workers,
		events:  events,
		log:     log,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(recover.New())

	app.Get("/health", s.handleHealth)

	grp := app.Group("/admin")
	grp.Get("/queue/stats", s.handleQueueStats)
	grp.Get("/events", s.handleRecentEvents)
	grp.Get("/channels", s.handleListChannels)
	grp.Post("/channels/:id/reschedule", s.handleReschedule)
	grp.Post("/channels/:id/videos-per-day", s.handleVideosPerDay)
	grp.Post("/workers/enable", s.handleWorkersToggle(true))
	grp.Post("/workers/disable", s.handleWorkersToggle(false))

	s.app = app
	return s
}

// Start begins listening. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	s.started = time.Now()
	s.log.Info("admin server listening", logx.String("addr", s.cfg.Addr))
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	deadline := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	return s.app.ShutdownWithTimeout(deadline)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	counts, err := s.st.QueueCounts(c.UserContext())
	status := "ok"
	var queue any
	if err != nil {
		status = "degraded"
		queue = fiber.Map{"status": "error", "message": err.Error()}
	} else {
		queue = fiber.Map{
			"status":  "ok",
			"waiting": counts.Waiting,
			"active":  counts.Active,
			"delayed": counts.Delayed,
			"failed":  counts.Failed,
			"total":   counts.Waiting + counts.Active + counts.Delayed,
		}
	}
	return c.JSON(fiber.Map{
		"status":    status,
		"uptime":    time.Since(s.started).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"workers": fiber.Map{
			"enabled": s.workers.WorkersEnabled(),
			"active":  s.workers.ActiveJobs(),
		},
		"services": fiber.Map{"queue": queue},
	})
}

func (s *Server) handleQueueStats(c *fiber.Ctx) error {
	counts, err := s.st.QueueCounts(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(counts)
}

func (s *Server) handleRecentEvents(c *fiber.Ctx) error {
	if s.events == nil {
		return c.JSON(fiber.Map{"events": []any{}})
	}
	recent := s.events.Recent()
	out := make([]fiber.Map, 0, len(recent))
	for _, e := range recent {
		out = append(out, fiber.Map{
			"type": e.Type,
			"time": e.Time.UTC().Format(time.RFC3339),
			"data": e.Data,
		})
	}
	return c.JSON(fiber.Map{"events": out})
}

func (s *Server) handleListChannels(c *fiber.Ctx) error {
	channels, err := s.st.ListEnabledChannels(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(channels))
	for _, ch := range channels {
		out = append(out, fiber.Map{
			"id":             ch.ID,
			"name":           ch.Name,
			"niches":         ch.Niches,
			"videos_per_day": ch.VideosPerDay,
		})
	}
	return c.JSON(fiber.Map{"channels": out})
}

func (s *Server) handleReschedule(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.planner.ScheduleChannel(c.UserContext(), id); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "message": "channel rescheduled"})
}

func (s *Server) handleVideosPerDay(c *fiber.Ctx) error {
	id := c.Params("id")

	var body struct {
		VideosPerDay int `json:"videosPerDay"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if body.VideosPerDay < 1 || body.VideosPerDay > 50 {
		return fiber.NewError(fiber.StatusBadRequest, "videosPerDay must be between 1 and 50")
	}

	ch, err := s.st.GetChannel(c.UserContext(), id)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if ch == nil {
		return fiber.NewError(fiber.StatusNotFound, "channel not found")
	}

	if err := s.st.SetChannelVideosPerDay(c.UserContext(), id, body.VideosPerDay); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	s.log.Info("videos per day updated", logx.String("channel", id), logx.Int("videos_per_day", body.VideosPerDay))

	// Top up the channel against its new target right away.
	if err := s.planner.ScheduleChannel(c.UserContext(), id); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("updated, reschedule failed: %v", err))
	}

	return c.JSON(fiber.Map{"success": true, "channelId": id, "videosPerDay": body.VideosPerDay})
}

func (s *Server) handleWorkersToggle(enabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s.workers.SetWorkersEnabled(enabled)
		// Persist so the gate survives restarts.
		if err := s.st.SetSetting(c.UserContext(), store.SettingWorkersEnabled, fmt.Sprintf("%t", enabled)); err != nil {
			s.log.Error("persist workers flag failed", logx.Err(err))
		}
		return c.JSON(fiber.Map{"success": true, "workersEnabled": enabled})
	}
}
