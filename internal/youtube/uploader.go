package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	logx "tubefarm/pkg/logx"
)

// Config holds the OAuth application credentials. Per-channel refresh tokens
// come from the channel record, not from here.
type Config struct {
	ClientID     string
	ClientSecret string
	Privacy      string // privacyStatus for new uploads (default public)
	CategoryID   string // default 22 (People & Blogs)
}

func (c Config) withDefaults() Config {
	if c.Privacy == "" {
		c.Privacy = "public"
	}
	if c.CategoryID == "" {
		c.CategoryID = "22"
	}
	return c
}

var ErrNoCredentials = errors.New("youtube: OAuth client credentials not configured")

// Upload describes one video to publish.
type Upload struct {
	Title         string
	Description   string
	Tags          []string
	FilePath      string
	ThumbnailPath string // optional; a failed thumbnail set never fails the upload
}

// Uploader publishes videos through the YouTube Data API v3, authenticating
// each call with the owning channel's refresh token.
type Uploader struct {
	cfg Config
	log logx.Logger
}

func NewUploader(cfg Config, log logx.Logger) (*Uploader, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNoCredentials
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Uploader{cfg: cfg.withDefaults(), log: log}, nil
}

// Upload publishes the video and returns the YouTube video ID.
func (u *Uploader) Upload(ctx context.Context, refreshToken string, up Upload) (string, error) {
	if refreshToken == "" {
		return "", errors.New("youtube: channel has no refresh token")
	}

	f, err := os.Open(up.FilePath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	svc, err := u.service(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	title := up.Title
	if title == "" {
		title = "Untitled Video"
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: up.Description,
			Tags:        up.Tags,
			CategoryId:  u.cfg.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           u.cfg.Privacy,
			SelfDeclaredMadeForKids: false,
		},
	}

	u.log.Info("uploading video", logx.String("title", title))

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.Media(f)
	uploaded, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}

	u.log.Info("video uploaded", logx.String("youtube_id", uploaded.Id))

	if up.ThumbnailPath != "" {
		if err := u.setThumbnail(svc, uploaded.Id, up.ThumbnailPath); err != nil {
			// Thumbnail failure is cosmetic; the video is already live.
			u.log.Warn("thumbnail upload failed", logx.String("youtube_id", uploaded.Id), logx.Err(err))
		}
	}

	return uploaded.Id, nil
}

// WatchURL builds the public URL for an uploaded video.
func WatchURL(youtubeID string) string {
	return "https://youtube.com/watch?v=" + youtubeID
}

func (u *Uploader) service(ctx context.Context, refreshToken string) (*youtube.Service, error) {
	conf := &oauth2.Config{
		ClientID:     u.cfg.ClientID,
		ClientSecret: u.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh on first use
	}
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

func (u *Uploader) setThumbnail(svc *youtube.Service, youtubeID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()

	call := svc.Thumbnails.Set(youtubeID)
	call.Media(f)
	if _, err := call.Do(); err != nil {
		return err
	}
	u.log.Info("thumbnail set", logx.String("youtube_id", youtubeID))
	return nil
}
