package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tubefarm/internal/eventbus"
	"tubefarm/internal/generate"
	"tubefarm/internal/notify"
	"tubefarm/internal/retry"
	"tubefarm/internal/store"
	"tubefarm/internal/youtube"
	logx "tubefarm/pkg/logx"
)

// Generator produces video content. Implemented by generate.OpenAI.
type Generator interface {
	Generate(ctx context.Context, niche, videoType string) (generate.Content, error)
}

// Fallback produces template content when the Generator fails. It cannot fail.
type Fallback interface {
	Generate(niche, videoType string) generate.Content
}

// Renderer produces the media files for a video.
type Renderer interface {
	Render(ctx context.Context, videoID string, c generate.Content) (string, error)
	Thumbnail(ctx context.Context, videoID string, c generate.Content) (string, error)
}

// Uploader publishes a finished video and returns its YouTube ID.
type Uploader interface {
	Upload(ctx context.Context, refreshToken string, up youtube.Upload) (string, error)
}

// Config controls upload retry behavior. The upload step is the only one
// retried in place: generation has the fallback path and rendering failures
// are deterministic.
type Config struct {
	UploadMaxRetries int           // total attempts (default 5)
	UploadBackoff    time.Duration // base backoff (default 60s)
	BreakerThreshold int           // consecutive failures before opening (default 5)
	BreakerCooldown  time.Duration // open-state hold (default 60s)
}

func (c Config) withDefaults() Config {
	if c.UploadMaxRetries <= 0 {
		c.UploadMaxRetries = 5
	}
	if c.UploadBackoff <= 0 {
		c.UploadBackoff = time.Minute
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = time.Minute
	}
	return c
}

// Pipeline runs one job through the production stages:
// generating -> thumbnail -> rendering -> uploading -> published.
//
// Stage transitions are persisted as they happen so a crashed run shows
// exactly where it died. Admin-facing updates go out as notify.JobUpdate
// events on the bus; the notifier and the event log consume them there.
type Pipeline struct {
	cfg      Config
	st       store.Store
	gen      Generator
	fallback Fallback
	renderer Renderer
	uploader Uploader
	breaker  *retry.Breaker
	bus      eventbus.Bus
	log      logx.Logger
}

func New(cfg Config, st store.Store, gen Generator, fallback Fallback, renderer Renderer, uploader Uploader, bus eventbus.Bus, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:      cfg,
		st:       st,
		gen:      gen,
		fallback: fallback,
		renderer: renderer,
		uploader: uploader,
		breaker:  retry.NewBreaker("youtube-upload", cfg.BreakerThreshold, cfg.BreakerCooldown, log),
		bus:      bus,
		log:      log,
	}
}

// UploadBreakerState exposes the breaker for diagnostics.
func (p *Pipeline) UploadBreakerState() retry.BreakerState { return p.breaker.State() }

// ProcessShortVideo is the orchestrator processor for short_video jobs.
func (p *Pipeline) ProcessShortVideo(ctx context.Context, job store.Job) error {
	videoID := uuid.NewString()
	log := p.log.With(logx.String("job", job.ID), logx.String("video", videoID))

	fail := func(err error) error {
		p.notify(notify.JobUpdate{
			Event:   "failed",
			JobID:   job.ID,
			VideoID: videoID,
			Error:   err.Error(),
		})
		return err
	}

	ch, err := p.st.GetChannel(ctx, job.ChannelID)
	if err != nil {
		return fail(fmt.Errorf("load channel: %w", err))
	}
	if ch == nil {
		return fail(fmt.Errorf("channel %s not found", job.ChannelID))
	}

	p.notify(notify.JobUpdate{
		Event: "started",
		JobID: job.ID,
		Niche: job.Niche,
		Type:  job.Type,
	})

	// Stage: generating (set at claim time).
	content := p.generateContent(ctx, log, job.Niche)

	if err := p.st.InsertVideo(ctx, store.Video{
		ID:          videoID,
		ChannelID:   job.ChannelID,
		Type:        job.Type,
		Niche:       job.Niche,
		Title:       content.Title(),
		Description: content.Description,
		Script:      content.Script,
		Status:      "generating",
	}); err != nil {
		return fail(fmt.Errorf("insert video: %w", err))
	}

	// Stage: thumbnail.
	if err := p.stage(ctx, job, store.StatusThumbnail); err != nil {
		return fail(err)
	}
	thumbPath, err := p.renderer.Thumbnail(ctx, videoID, content)
	if err != nil {
		return fail(fmt.Errorf("thumbnail: %w", err))
	}

	// Stage: rendering.
	if err := p.stage(ctx, job, store.StatusRendering); err != nil {
		return fail(err)
	}
	videoPath, err := p.renderer.Render(ctx, videoID, content)
	if err != nil {
		return fail(fmt.Errorf("render: %w", err))
	}
	if err := p.st.SetVideoPaths(ctx, videoID, videoPath, thumbPath); err != nil {
		return fail(fmt.Errorf("record paths: %w", err))
	}

	// Stage: uploading.
	if err := p.stage(ctx, job, store.StatusUploading); err != nil {
		return fail(err)
	}
	p.notify(notify.JobUpdate{
		Event:   "uploading",
		JobID:   job.ID,
		VideoID: videoID,
		Title:   content.Title(),
	})

	youtubeID, err := p.upload(ctx, ch.RefreshToken, youtube.Upload{
		Title:         content.Title(),
		Description:   content.Description,
		Tags:          content.Hashtags,
		FilePath:      videoPath,
		ThumbnailPath: thumbPath,
	})
	if err != nil {
		return fail(fmt.Errorf("upload: %w", err))
	}

	now := time.Now()
	if err := p.st.SetVideoPublished(ctx, videoID, youtubeID, now); err != nil {
		return fail(fmt.Errorf("record publish: %w", err))
	}
	if err := p.st.MarkJobPublished(ctx, job.ID); err != nil {
		return fail(fmt.Errorf("mark published: %w", err))
	}

	p.notify(notify.JobUpdate{
		Event:     "completed",
		JobID:     job.ID,
		ChannelID: job.ChannelID,
		VideoID:   videoID,
		YouTubeID: youtubeID,
		Title:     content.Title(),
		URL:       youtube.WatchURL(youtubeID),
	})

	log.Info("job published", logx.String("youtube_id", youtubeID))
	return nil
}

// generateContent tries the AI generator and falls back to templates on any
// failure, so a content outage degrades output quality instead of halting
// the schedule.
func (p *Pipeline) generateContent(ctx context.Context, log logx.Logger, niche string) generate.Content {
	if p.gen != nil {
		c, err := p.gen.Generate(ctx, niche, "short")
		if err == nil {
			return c
		}
		log.Warn("content generation failed, using fallback", logx.Err(err))
	}
	return p.fallback.Generate(niche, "short")
}

func (p *Pipeline) upload(ctx context.Context, refreshToken string, up youtube.Upload) (string, error) {
	var youtubeID string
	err := retry.Do(ctx, func(ctx context.Context) error {
		return p.breaker.Do(ctx, func(ctx context.Context) error {
			id, err := p.uploader.Upload(ctx, refreshToken, up)
			if err != nil {
				return err
			}
			youtubeID = id
			return nil
		})
	}, retry.Options{
		MaxRetries: p.cfg.UploadMaxRetries,
		Backoff:    p.cfg.UploadBackoff,
		Name:       "youtube-upload",
		Log:        p.log,
	})
	return youtubeID, err
}

func (p *Pipeline) stage(ctx context.Context, job store.Job, st store.JobStatus) error {
	if err := p.st.SetJobStage(ctx, job.ID, st); err != nil {
		return fmt.Errorf("set stage %s: %w", st, err)
	}
	p.log.Info("job stage", logx.String("job", job.ID), logx.String("stage", string(st)))
	return nil
}

// notify publishes one admin-facing update. Fire and forget: the bus never
// blocks and subscribers may drop under pressure.
func (p *Pipeline) notify(u notify.JobUpdate) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: "job." + u.Event, Data: u})
}
