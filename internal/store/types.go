package store

import (
	"context"
	"time"
)

// SettingWorkersEnabled persists the runtime dispatch gate across restarts.
// Values are "true"/"false".
const SettingWorkersEnabled = "workers_enabled"

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// JobStatus is the job lifecycle state machine:
//
//	delayed -> pending -> generating -> thumbnail -> rendering -> uploading -> published
//	                                 \-> failed (terminal, any stage)
//
// "delayed" jobs are not yet due; they become claimable once their
// scheduled_at passes. Terminal states are never left automatically; the next
// reconciliation cycle creates new jobs instead.
type JobStatus string

const (
	StatusDelayed    JobStatus = "delayed"
	StatusPending    JobStatus = "pending"
	StatusGenerating JobStatus = "generating"
	StatusThumbnail  JobStatus = "thumbnail"
	StatusRendering  JobStatus = "rendering"
	StatusUploading  JobStatus = "uploading"
	StatusPublished  JobStatus = "published"
	StatusFailed     JobStatus = "failed"
)

// ActiveStatuses are the in-flight processing stages.
var ActiveStatuses = []JobStatus{StatusGenerating, StatusThumbnail, StatusRendering, StatusUploading}

// BacklogStatuses count toward a channel's scheduled-work backlog during
// reconciliation (work that is queued but not yet picked up).
var BacklogStatuses = []JobStatus{StatusDelayed, StatusPending}

// Channel is one managed YouTube channel.
//
// Channels are soft-disabled (Enabled=false), never deleted: jobs and videos
// keep referencing them.
type Channel struct {
	ID           string
	Name         string
	RefreshToken string
	Enabled      bool
	Niches       []string
	VideosPerDay int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Job is one unit of scheduled work (one video's production pipeline).
type Job struct {
	ID          string
	Type        string
	ChannelID   string
	Niche       string
	Status      JobStatus
	Priority    int
	Payload     string // JSON blob, decoded by the dispatcher per Type
	Error       string
	RetryCount  int
	ScheduledAt time.Time
	CreatedAt   time.Time
	StartedAt   time.Time // zero until claimed
	CompletedAt time.Time // zero until terminal
}

// Video is a produced (or in-production) video record.
type Video struct {
	ID            string
	ChannelID     string
	Type          string
	Niche         string
	Title         string
	Description   string
	Script        string
	Status        string
	YouTubeID     string
	FilePath      string
	ThumbnailPath string
	UploadedAt    time.Time
	CreatedAt     time.Time
}

// QueueCounts is a point-in-time view of the job queue.
type QueueCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Failed    int `json:"failed"`
	Published int `json:"published"`
}

// Store is the persistence API used by the scheduler, queue and orchestrator.
type Store interface {
	// Channels.
	UpsertChannel(ctx context.Context, c Channel) error
	GetChannel(ctx context.Context, id string) (*Channel, error) // nil, nil when missing
	ListEnabledChannels(ctx context.Context) ([]Channel, error)
	SetChannelEnabled(ctx context.Context, id string, enabled bool) error
	SetChannelVideosPerDay(ctx context.Context, id string, n int) error

	// Jobs.
	InsertJob(ctx context.Context, j Job) (inserted bool, err error)
	CountChannelJobs(ctx context.Context, channelID string, states ...JobStatus) (int, error)
	ListJobs(ctx context.Context, states ...JobStatus) ([]Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	// ClaimDueJobs atomically promotes due delayed jobs to pending and claims
	// up to limit pending jobs (priority DESC, created_at ASC), moving them to
	// the generating stage.
	ClaimDueJobs(ctx context.Context, limit int, now time.Time) ([]Job, error)
	SetJobStage(ctx context.Context, id string, st JobStatus) error
	MarkJobPublished(ctx context.Context, id string) error
	FailJob(ctx context.Context, id, errMsg string, countRetry bool) error
	QueueCounts(ctx context.Context) (QueueCounts, error)
	PruneFinishedJobs(ctx context.Context, before time.Time) (int64, error)

	// Videos.
	InsertVideo(ctx context.Context, v Video) error
	SetVideoPaths(ctx context.Context, id, filePath, thumbnailPath string) error
	SetVideoPublished(ctx context.Context, id, youtubeID string, at time.Time) error

	// Settings (small key/value surface, e.g. the workers-enabled flag).
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
