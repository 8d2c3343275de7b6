package config

// Config is the on-disk configuration. YAML and JSON are both accepted;
// unknown fields are rejected so stale keys are caught at load time.
//
// All durations are Go duration strings (e.g. "10s", "1m", "1h").
// A small set of environment variables overrides file values, see env.go.
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Storage   StorageConfig    `json:"storage"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Workers   WorkersConfig    `json:"workers"`
	Upload    UploadConfig     `json:"upload"`
	OpenAI    OpenAIConfig     `json:"openai"`
	YouTube   YouTubeConfig    `json:"youtube"`
	Render    RenderConfig     `json:"render"`
	Telegram  *TelegramConfig  `json:"telegram,omitempty"`
	Admin     *AdminConfig     `json:"admin,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls daily slot generation and channel reconciliation.
//
// Defaults (when fields are omitted/zero):
//   - videos_per_day: 15
//   - jitter_minutes: 15
//   - reconcile_every: "1h"
type SchedulerConfig struct {
	VideosPerDay   int    `json:"videos_per_day,omitempty"`
	JitterMinutes  int    `json:"jitter_minutes,omitempty"`
	ReconcileEvery string `json:"reconcile_every,omitempty"`
}

// WorkersConfig controls the job dispatch loop.
//
// Enabled is a pointer so an omitted field (default true) is distinguishable
// from an explicit false. The persisted runtime toggle takes precedence over
// this startup value.
type WorkersConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
	PollInterval  string `json:"poll_interval,omitempty"`
}

type UploadConfig struct {
	MaxRetries       int    `json:"max_retries,omitempty"`
	Backoff          string `json:"backoff,omitempty"`
	BreakerThreshold int    `json:"breaker_threshold,omitempty"`
	BreakerCooldown  string `json:"breaker_cooldown,omitempty"`
}

type OpenAIConfig struct {
	APIKey     string `json:"api_key,omitempty"`
	Model      string `json:"model,omitempty"`
	TopicModel string `json:"topic_model,omitempty"`
}

type YouTubeConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Privacy      string `json:"privacy,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
}

type RenderConfig struct {
	StoragePath string `json:"storage_path,omitempty"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token,omitempty"`
	AdminChatID int64  `json:"admin_chat_id,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:3000"
}

// WorkersEnabled resolves the tri-state startup flag.
func (c *Config) WorkersEnabled() bool {
	if c.Workers.Enabled == nil {
		return true
	}
	return *c.Workers.Enabled
}
