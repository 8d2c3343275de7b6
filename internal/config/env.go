package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// applyEnv layers environment overrides on top of the file config. Only the
// documented deployment knobs are read here; everything else stays
// file-driven.
func applyEnv(cfg *Config) error {
	if err := envInt("VIDEOS_PER_DAY", &cfg.Scheduler.VideosPerDay); err != nil {
		return err
	}
	if err := envInt("SCHEDULE_JITTER_MINUTES", &cfg.Scheduler.JitterMinutes); err != nil {
		return err
	}
	if err := envInt("MAX_CONCURRENT_JOBS", &cfg.Workers.MaxConcurrent); err != nil {
		return err
	}
	if err := envInt("UPLOAD_MAX_RETRIES", &cfg.Upload.MaxRetries); err != nil {
		return err
	}
	if err := envMillis("RETRY_BACKOFF_MS", &cfg.Upload.Backoff); err != nil {
		return err
	}

	envStr("DATABASE_PATH", &cfg.Storage.Path)
	envStr("STORAGE_PATH", &cfg.Render.StoragePath)
	envStr("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	envStr("YT_CLIENT_ID", &cfg.YouTube.ClientID)
	envStr("YT_CLIENT_SECRET", &cfg.YouTube.ClientSecret)

	if v, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok && v != "" {
		if cfg.Telegram == nil {
			cfg.Telegram = &TelegramConfig{Enabled: true}
		}
		cfg.Telegram.Token = v
	}
	if v, ok := os.LookupEnv("ADMIN_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ADMIN_CHAT_ID: %w", err)
		}
		if cfg.Telegram == nil {
			cfg.Telegram = &TelegramConfig{Enabled: true}
		}
		cfg.Telegram.AdminChatID = id
	}
	return nil
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// envMillis reads an integer millisecond value and stores it as a duration
// string, keeping the file format canonical.
func envMillis(key string, dst *string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = (time.Duration(ms) * time.Millisecond).String()
	return nil
}
