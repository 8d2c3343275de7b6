package app

import (
	"context"
	"fmt"
	"time"

	"tubefarm/internal/admin"
	"tubefarm/internal/config"
	"tubefarm/internal/eventbus"
	"tubefarm/internal/generate"
	"tubefarm/internal/notify"
	"tubefarm/internal/orchestrator"
	"tubefarm/internal/pipeline"
	"tubefarm/internal/queue"
	"tubefarm/internal/render"
	rtsup "tubefarm/internal/runtime/supervisor"
	"tubefarm/internal/schedule"
	"tubefarm/internal/store"
	"tubefarm/internal/youtube"
	logx "tubefarm/pkg/logx"
)

// App wires the services together and owns their lifecycle.
type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	st       store.Store
	bus      eventbus.Bus
	events   *eventbus.Recorder
	notifier *notify.Service
	planner  *schedule.Planner
	schedSvc *schedule.Service
	orch     *orchestrator.Orchestrator
	pipe     *pipeline.Pipeline
	adminSrv *admin.Server

	sup *rtsup.Supervisor
}

func New(configPath string) (*App, error) {
	cfgMgr := config.NewManager(configPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgMgr: cfgMgr, logSvc: logSvc, log: log}
	if err := a.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "./tubefarm.db"
	}
	st, err := store.Open(store.Config{Path: dbPath, BusyTimeout: busyTimeout}, a.log.With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.st = st
	a.bus = eventbus.New()
	a.events = eventbus.NewRecorder(256)

	tg := notify.Config{}
	if cfg.Telegram != nil {
		tg = notify.Config{
			Enabled:     cfg.Telegram.Enabled,
			Token:       cfg.Telegram.Token,
			AdminChatID: cfg.Telegram.AdminChatID,
			RatePerSec:  cfg.Telegram.RatePerSec,
		}
	}
	notifier, err := notify.New(tg, a.log.With(logx.String("comp", "notify")))
	if err != nil {
		return err
	}
	a.notifier = notifier

	q := queue.New(st, a.log.With(logx.String("comp", "queue")))

	a.planner = schedule.NewPlanner(schedule.Config{
		VideosPerDay:  cfg.Scheduler.VideosPerDay,
		JitterMinutes: cfg.Scheduler.JitterMinutes,
	}, st, q, a.log.With(logx.String("comp", "schedule")))

	reconcileEvery, err := config.ParseDurationOrDefault("scheduler.reconcile_every", cfg.Scheduler.ReconcileEvery, time.Hour)
	if err != nil {
		return err
	}
	a.schedSvc = schedule.NewService(a.planner, reconcileEvery, a.log.With(logx.String("comp", "schedule")))

	pollInterval, err := config.ParseDurationField("workers.poll_interval", cfg.Workers.PollInterval)
	if err != nil {
		return err
	}
	a.orch = orchestrator.New(orchestrator.Config{
		MaxConcurrent: cfg.Workers.MaxConcurrent,
		PollInterval:  pollInterval,
	}, q, st, a.log.With(logx.String("comp", "orchestrator")), a.bus)

	var gen pipeline.Generator
	if cfg.OpenAI.APIKey != "" {
		og, err := generate.NewOpenAI(generate.Config{
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.OpenAI.Model,
			TopicModel: cfg.OpenAI.TopicModel,
		}, a.log.With(logx.String("comp", "generate")))
		if err != nil {
			return err
		}
		gen = og
	} else {
		a.log.Warn("openai api key not configured, template fallback only")
	}
	fallback := generate.NewFallback(a.log.With(logx.String("comp", "generate")))

	renderTimeout, err := config.ParseDurationField("render.timeout", cfg.Render.Timeout)
	if err != nil {
		return err
	}
	renderer, err := render.NewFFmpeg(render.Config{
		StoragePath: cfg.Render.StoragePath,
		FFmpegPath:  cfg.Render.FFmpegPath,
		Timeout:     renderTimeout,
	}, a.log.With(logx.String("comp", "render")))
	if err != nil {
		return err
	}

	var uploader pipeline.Uploader
	if cfg.YouTube.ClientID != "" && cfg.YouTube.ClientSecret != "" {
		uploader, err = youtube.NewUploader(youtube.Config{
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			Privacy:      cfg.YouTube.Privacy,
			CategoryID:   cfg.YouTube.CategoryID,
		}, a.log.With(logx.String("comp", "youtube")))
		if err != nil {
			return err
		}
	} else {
		a.log.Warn("youtube credentials not configured, uploads will fail")
		uploader = noUploader{}
	}

	uploadBackoff, err := config.ParseDurationField("upload.backoff", cfg.Upload.Backoff)
	if err != nil {
		return err
	}
	breakerCooldown, err := config.ParseDurationField("upload.breaker_cooldown", cfg.Upload.BreakerCooldown)
	if err != nil {
		return err
	}
	a.pipe = pipeline.New(pipeline.Config{
		UploadMaxRetries: cfg.Upload.MaxRetries,
		UploadBackoff:    uploadBackoff,
		BreakerThreshold: cfg.Upload.BreakerThreshold,
		BreakerCooldown:  breakerCooldown,
	}, st, gen, fallback, renderer, uploader, a.bus, a.log.With(logx.String("comp", "pipeline")))

	a.orch.Register(queue.JobTypeShortVideo, a.pipe.ProcessShortVideo)

	adminCfg := admin.Config{}
	if cfg.Admin != nil {
		adminCfg = admin.Config{Enabled: cfg.Admin.Enabled, Addr: cfg.Admin.Addr}
	}
	a.adminSrv = admin.NewServer(adminCfg, st, a.planner, a.orch, a.events, a.log.With(logx.String("comp", "admin")))

	return nil
}

// Start brings all services up. The returned error covers startup only;
// runtime failures surface through the supervisor and logs.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	a.restoreWorkersGate(ctx)

	a.notifier.Start(a.sup.Context(), a.bus)
	a.schedSvc.Start(a.sup.Context())
	a.orch.Start(a.sup.Context())

	a.sup.Go0("event-log", func(ctx context.Context) {
		a.events.Run(ctx, a.bus)
	})
	a.sup.Go("config-watch", a.cfgMgr.Watch)
	a.sup.Go0("config-apply", a.applyConfigUpdates)
	// Restart on listener failure (e.g. the port is briefly taken); a clean
	// shutdown returns nil and stops the loop.
	a.sup.GoRestart("admin-api", func(context.Context) error {
		return a.adminSrv.Start()
	})

	a.log.Info("started")
	return nil
}

// Stop shuts services down in dependency order, bounded by ctx.
func (a *App) Stop(ctx context.Context) {
	a.schedSvc.Stop(ctx)
	a.orch.Stop(ctx)
	if err := a.adminSrv.Stop(ctx); err != nil {
		a.log.Warn("admin shutdown", logx.Err(err))
	}
	a.notifier.Stop(ctx)

	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	if err := a.st.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
}

// restoreWorkersGate applies the persisted dispatch gate, falling back to the
// config default when no toggle has ever been saved.
func (a *App) restoreWorkersGate(ctx context.Context) {
	enabled := a.cfgMgr.Get().WorkersEnabled()
	if v, ok, err := a.st.GetSetting(ctx, store.SettingWorkersEnabled); err != nil {
		a.log.Warn("read workers flag failed", logx.Err(err))
	} else if ok {
		enabled = v == "true"
	}
	a.orch.SetWorkersEnabled(enabled)
}

// applyConfigUpdates reacts to hot reloads. Only logging is applied live;
// structural settings need a restart.
func (a *App) applyConfigUpdates(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging configuration applied")
		}
	}
}

// noUploader stands in when OAuth credentials are absent so jobs fail with a
// clear error instead of a nil dereference.
type noUploader struct{}

func (noUploader) Upload(context.Context, string, youtube.Upload) (string, error) {
	return "", youtube.ErrNoCredentials
}
