package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "tubefarm/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store, creating the database file and schema
// when missing.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Channels ----

func (s *sqliteStore) UpsertChannel(ctx context.Context, c Channel) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	niches, err := json.Marshal(c.Niches)
	if err != nil {
		return err
	}
	enabled := 0
	if c.Enabled {
		enabled = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO channels(id, name, refresh_token, enabled, niches, videos_per_day, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, refresh_token=excluded.refresh_token,
		   enabled=excluded.enabled, niches=excluded.niches,
		   videos_per_day=excluded.videos_per_day, updated_at=excluded.updated_at`,
		c.ID, c.Name, nullStr(c.RefreshToken), enabled, string(niches), c.VideosPerDay,
		c.CreatedAt.UnixMilli(), now.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetChannel(ctx context.Context, id string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, refresh_token, enabled, niches, videos_per_day, created_at, updated_at
		 FROM channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *sqliteStore) ListEnabledChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, refresh_token, enabled, niches, videos_per_day, created_at, updated_at
		 FROM channels WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetChannelEnabled(ctx context.Context, id string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return s.updateChannelField(ctx, id, "enabled", v)
}

func (s *sqliteStore) SetChannelVideosPerDay(ctx context.Context, id string, n int) error {
	return s.updateChannelField(ctx, id, "videos_per_day", n)
}

func (s *sqliteStore) updateChannelField(ctx context.Context, id, field string, v any) error {
	// field is always a compile-time constant from the methods above.
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE channels SET %s = ?, updated_at = ? WHERE id = ?`, field),
		v, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("channel %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(r rowScanner) (*Channel, error) {
	var (
		c       Channel
		refresh sql.NullString
		enabled int
		niches  string
		created int64
		updated int64
	)
	if err := r.Scan(&c.ID, &c.Name, &refresh, &enabled, &niches, &c.VideosPerDay, &created, &updated); err != nil {
		return nil, err
	}
	c.RefreshToken = refresh.String
	c.Enabled = enabled != 0
	if niches != "" {
		if err := json.Unmarshal([]byte(niches), &c.Niches); err != nil {
			return nil, fmt.Errorf("channel %s: bad niches: %w", c.ID, err)
		}
	}
	c.CreatedAt = time.UnixMilli(created)
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}

// ---- Jobs ----

const jobCols = `id, type, channel_id, niche, status, priority, payload, error, retry_count, scheduled_at, created_at, started_at, completed_at`

func (s *sqliteStore) InsertJob(ctx context.Context, j Job) (bool, error) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	// OR IGNORE makes insertion idempotent: the job id doubles as the
	// scheduling idempotency key.
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO jobs(`+jobCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Type, nullStr(j.ChannelID), nullStr(j.Niche), string(j.Status), j.Priority,
		nullStr(j.Payload), nullStr(j.Error), j.RetryCount,
		msOrNil(j.ScheduledAt), j.CreatedAt.UnixMilli(), msOrNil(j.StartedAt), msOrNil(j.CompletedAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) CountChannelJobs(ctx context.Context, channelID string, states ...JobStatus) (int, error) {
	if len(states) == 0 {
		return 0, nil
	}
	q := `SELECT COUNT(*) FROM jobs WHERE channel_id = ? AND status IN (` + placeholders(len(states)) + `)`
	args := append([]any{channelID}, statusArgs(states)...)
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) ListJobs(ctx context.Context, states ...JobStatus) ([]Job, error) {
	q := `SELECT ` + jobCols + ` FROM jobs`
	var args []any
	if len(states) > 0 {
		q += ` WHERE status IN (` + placeholders(len(states)) + `)`
		args = statusArgs(states)
	}
	q += ` ORDER BY priority DESC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *sqliteStore) ClaimDueJobs(ctx context.Context, limit int, now time.Time) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	nowMS := now.UnixMilli()

	// Promote due delayed jobs first so they compete in this claim round.
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?`,
		string(StatusPending), string(StatusDelayed), nowMS); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobCols+` FROM jobs WHERE status = ?
		 ORDER BY priority DESC, created_at ASC LIMIT ?`,
		string(StatusPending), limit)
	if err != nil {
		return nil, err
	}
	var claimed []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, *j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range claimed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
			string(StatusGenerating), nowMS, claimed[i].ID); err != nil {
			return nil, err
		}
		claimed[i].Status = StatusGenerating
		claimed[i].StartedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *sqliteStore) SetJobStage(ctx context.Context, id string, st JobStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(st), id)
	return err
}

func (s *sqliteStore) MarkJobPublished(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`,
		string(StatusPublished), time.Now().UnixMilli(), id)
	return err
}

func (s *sqliteStore) FailJob(ctx context.Context, id, errMsg string, countRetry bool) error {
	inc := 0
	if countRetry {
		inc = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, retry_count = retry_count + ?, completed_at = ? WHERE id = ?`,
		string(StatusFailed), nullStr(errMsg), inc, time.Now().UnixMilli(), id)
	return err
}

func (s *sqliteStore) QueueCounts(ctx context.Context) (QueueCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return QueueCounts{}, err
	}
	defer rows.Close()

	var c QueueCounts
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return QueueCounts{}, err
		}
		switch JobStatus(st) {
		case StatusPending:
			c.Waiting += n
		case StatusDelayed:
			c.Delayed += n
		case StatusGenerating, StatusThumbnail, StatusRendering, StatusUploading:
			c.Active += n
		case StatusFailed:
			c.Failed += n
		case StatusPublished:
			c.Published += n
		}
	}
	return c, rows.Err()
}

func (s *sqliteStore) PruneFinishedJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(StatusPublished), string(StatusFailed), before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanJob(r rowScanner) (*Job, error) {
	var (
		j                             Job
		channelID, niche, payload     sql.NullString
		errMsg                        sql.NullString
		status                        string
		scheduled, started, completed sql.NullInt64
		created                       int64
	)
	if err := r.Scan(&j.ID, &j.Type, &channelID, &niche, &status, &j.Priority,
		&payload, &errMsg, &j.RetryCount, &scheduled, &created, &started, &completed); err != nil {
		return nil, err
	}
	j.ChannelID = channelID.String
	j.Niche = niche.String
	j.Payload = payload.String
	j.Error = errMsg.String
	j.Status = JobStatus(status)
	j.CreatedAt = time.UnixMilli(created)
	if scheduled.Valid {
		j.ScheduledAt = time.UnixMilli(scheduled.Int64)
	}
	if started.Valid {
		j.StartedAt = time.UnixMilli(started.Int64)
	}
	if completed.Valid {
		j.CompletedAt = time.UnixMilli(completed.Int64)
	}
	return &j, nil
}

// ---- Videos ----

func (s *sqliteStore) InsertVideo(ctx context.Context, v Video) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO videos(id, channel_id, type, niche, title, description, script, status, youtube_id, file_path, thumbnail_path, uploaded_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.ChannelID, v.Type, nullStr(v.Niche), nullStr(v.Title), nullStr(v.Description),
		nullStr(v.Script), v.Status, nullStr(v.YouTubeID), nullStr(v.FilePath),
		nullStr(v.ThumbnailPath), msOrNil(v.UploadedAt), v.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) SetVideoPaths(ctx context.Context, id, filePath, thumbnailPath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE videos SET file_path = ?, thumbnail_path = ? WHERE id = ?`,
		filePath, thumbnailPath, id)
	return err
}

func (s *sqliteStore) SetVideoPublished(ctx context.Context, id, youtubeID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE videos SET youtube_id = ?, uploaded_at = ?, status = 'published' WHERE id = ?`,
		youtubeID, at.UnixMilli(), id)
	return err
}

// ---- Settings ----

func (s *sqliteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

func (s *sqliteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// ---- helpers ----

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func msOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func statusArgs(states []JobStatus) []any {
	out := make([]any, 0, len(states))
	for _, st := range states {
		out = append(out, string(st))
	}
	return out
}
