package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"tubefarm/internal/generate"
	logx "tubefarm/pkg/logx"
)

// Config configures the ffmpeg renderer.
type Config struct {
	StoragePath string        // root for videos/ and thumbnails/ (default ./storage)
	FFmpegPath  string        // binary name or path (default ffmpeg)
	Timeout     time.Duration // per-invocation limit (default 5m)
}

func (c Config) withDefaults() Config {
	if c.StoragePath == "" {
		c.StoragePath = "./storage"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	return c
}

// FFmpeg renders placeholder videos and thumbnails by shelling out to ffmpeg.
// Output layout: <storage>/videos/<id>.mp4 and <storage>/thumbnails/<id>.jpg.
type FFmpeg struct {
	cfg Config
	log logx.Logger
}

func NewFFmpeg(cfg Config, log logx.Logger) (*FFmpeg, error) {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	for _, dir := range []string{
		filepath.Join(cfg.StoragePath, "videos"),
		filepath.Join(cfg.StoragePath, "thumbnails"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("render: create %s: %w", dir, err)
		}
	}
	return &FFmpeg{cfg: cfg, log: log}, nil
}

// Render produces the video file for the given content and returns its path.
func (r *FFmpeg) Render(ctx context.Context, videoID string, c generate.Content) (string, error) {
	out := filepath.Join(r.cfg.StoragePath, "videos", videoID+".mp4")

	width, height, duration := 1080, 1920, 30
	if c.Type != "" && c.Type != "short" {
		width, height, duration = 1920, 1080, 300
	}

	filter := fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=60:x=(w-text_w)/2:y=(h-text_h)/2:borderw=2:bordercolor=black",
		escapeDrawtext(c.Title()),
	)
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:d=%d", width, height, duration),
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		out,
	}

	r.log.Info("rendering video", logx.String("video", videoID), logx.String("path", out))
	if err := r.run(ctx, args); err != nil {
		return "", fmt.Errorf("render video %s: %w", videoID, err)
	}
	return out, nil
}

// Thumbnail produces a 1280x720 title card and returns its path.
func (r *FFmpeg) Thumbnail(ctx context.Context, videoID string, c generate.Content) (string, error) {
	out := filepath.Join(r.cfg.StoragePath, "thumbnails", videoID+".jpg")

	title := truncateRunes(c.Title(), 40)
	filter := fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=72:x=(w-text_w)/2:y=(h-text_h)/2:borderw=4:bordercolor=black",
		escapeDrawtext(title),
	)
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", "gradients=s=1280x720:c0=0xFF0096:c1=0x00CCFF:n=2",
		"-vf", filter,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	}

	r.log.Info("generating thumbnail", logx.String("video", videoID), logx.String("path", out))
	if err := r.run(ctx, args); err != nil {
		return "", fmt.Errorf("render thumbnail %s: %w", videoID, err)
	}
	return out, nil
}

func (r *FFmpeg) run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.FFmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(out)
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		return fmt.Errorf("%s: %w (%s)", r.cfg.FFmpegPath, err, strings.TrimSpace(tail))
	}
	return nil
}

// truncateRunes shortens s to at most n runes. Cutting on rune boundaries
// keeps the result valid UTF-8 for the drawtext filter.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// escapeDrawtext escapes characters with meaning inside an ffmpeg drawtext
// argument.
func escapeDrawtext(s string) string {
	repl := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return repl.Replace(s)
}
