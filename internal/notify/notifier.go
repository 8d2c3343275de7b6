package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"tubefarm/internal/eventbus"
	logx "tubefarm/pkg/logx"
)

// Config controls the Telegram notifier.
type Config struct {
	Enabled     bool
	Token       string
	AdminChatID int64
	RatePerSec  int // default 3
	QueueSize   int // subscription buffer (default 128)
}

// JobUpdate describes one job lifecycle transition for the admin chat.
// Publishers put it on the event bus as Event.Data; the notifier ignores
// events carrying anything else.
type JobUpdate struct {
	Event     string // queued, started, uploading, completed, failed
	JobID     string
	ChannelID string
	Niche     string
	Type      string
	VideoID   string
	Title     string
	YouTubeID string
	URL       string
	Error     string
}

// Service delivers job notifications to the admin chat, fire and forget: it
// subscribes to the event bus, rate limits sends, logs failures, and never
// propagates errors into job state. Backpressure is the bus contract: a slow
// consumer drops events rather than blocking publishers.
// A disabled or unconfigured Service subscribes to nothing.
type Service struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter
	send    func(msg string) error

	mu    sync.Mutex
	unsub func()
	done  chan struct{}
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
	if !cfg.Enabled {
		return s, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	if cfg.AdminChatID == 0 {
		return nil, errors.New("notify: admin chat id is empty")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	s.bot = bot
	s.send = func(msg string) error {
		_, err := bot.Send(tele.ChatID(cfg.AdminChatID), msg)
		return err
	}
	return s, nil
}

func (s *Service) Enabled() bool { return s.cfg.Enabled && s.send != nil }

// Start subscribes to job lifecycle events on the bus and launches the send
// worker. No-op when disabled.
func (s *Service) Start(ctx context.Context, bus eventbus.Bus) {
	if !s.Enabled() || bus == nil {
		return
	}
	s.mu.Lock()
	if s.unsub != nil {
		s.mu.Unlock()
		return
	}
	events, unsub := bus.Subscribe(s.cfg.QueueSize)
	s.unsub = unsub
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				u, ok := ev.Data.(JobUpdate)
				if !ok {
					// Diagnostic events (orchestrator lifecycle) are not for the chat.
					continue
				}
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
				if err := s.send(formatJobUpdate(u)); err != nil {
					s.log.Error("notification send failed", logx.Err(err))
				}
			}
		}
	}()
	s.log.Info("notifier started", logx.Int64("chat", s.cfg.AdminChatID))
}

// Stop unsubscribes and waits (bounded by ctx) for the worker to drain.
// Publishers racing with Stop are safe: the bus tolerates sends during
// unsubscribe, so no job update can panic a publisher mid-shutdown.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	unsub := s.unsub
	done := s.done
	s.unsub = nil
	s.done = nil
	s.mu.Unlock()

	if unsub == nil {
		return
	}
	unsub()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func formatJobUpdate(u JobUpdate) string {
	switch u.Event {
	case "queued":
		return fmt.Sprintf("📋 Job queued\n\nChannel: %s\nNiche: %s\nType: %s", u.ChannelID, u.Niche, u.Type)
	case "started":
		return fmt.Sprintf("▶️ Job started\n\nJob ID: %s\nNiche: %s\nType: %s", u.JobID, u.Niche, u.Type)
	case "uploading":
		return fmt.Sprintf("⬆️ Uploading to YouTube\n\nVideo ID: %s\nTitle: %s", u.VideoID, u.Title)
	case "completed":
		return fmt.Sprintf("✅ Job completed successfully!\n\nVideo ID: %s\nYouTube ID: %s\nTitle: %s\n\nWatch: %s",
			u.VideoID, u.YouTubeID, u.Title, u.URL)
	case "failed":
		return fmt.Sprintf("❌ Job failed\n\nJob ID: %s\nVideo ID: %s\nError: %s", u.JobID, u.VideoID, u.Error)
	default:
		return fmt.Sprintf("ℹ️ Job event: %s\n\nJob ID: %s\nChannel: %s", u.Event, u.JobID, u.ChannelID)
	}
}
