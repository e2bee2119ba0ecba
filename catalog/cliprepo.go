package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClipRepository defines the interface for CRUD operations on catalogued clips
type ClipRepository interface {
	// GetByID returns nil, nil when no clip has the given ID
	GetByID(ctx context.Context, id string) (*Clip, error)

	// Query returns matching clips newest first and the total count before pagination
	Query(ctx context.Context, query ClipQuery) ([]*Clip, int, error)

	Add(ctx context.Context, clip *Clip) error

	Delete(ctx context.Context, id string) error

	// GetOldestClips returns up to limit clips ordered by opening time, oldest first
	GetOldestClips(ctx context.Context, limit int) ([]*Clip, error)

	// GetTotalStorageUsage returns the summed size of every catalogued clip in bytes
	GetTotalStorageUsage(ctx context.Context) (int64, error)
}

// SQLiteClipRepository implements ClipRepository using SQLite
type SQLiteClipRepository struct {
	db *sql.DB
}

// NewSQLiteClipRepository creates a new SQLite-based ClipRepository
func NewSQLiteClipRepository(db *sql.DB) (*SQLiteClipRepository, error) {
	repo := &SQLiteClipRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

func (r *SQLiteClipRepository) createTables() error {
	createClipsTable := `
	CREATE TABLE IF NOT EXISTS clips (
		id TEXT PRIMARY KEY,
		origin TEXT NOT NULL,
		path TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		opened_at TEXT NOT NULL,
		closed_at TEXT NOT NULL,
		duration INTEGER NOT NULL,
		frames INTEGER NOT NULL,
		preroll_frames INTEGER NOT NULL,
		postroll_frames INTEGER NOT NULL,
		frame_rate REAL NOT NULL,
		reason TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		encrypted INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clips_opened_at ON clips(opened_at);`

	_, err := r.db.Exec(createClipsTable)
	return err
}

const clipColumns = `id, origin, path, mime_type, opened_at, closed_at, duration, frames,
	preroll_frames, postroll_frames, frame_rate, reason, size_bytes, encrypted, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClip(row rowScanner) (*Clip, error) {
	clip := &Clip{}
	var openedAt, closedAt, createdAt string
	var durationNanos int64
	var encrypted int
	err := row.Scan(
		&clip.ID, &clip.Origin, &clip.Path, &clip.MimeType, &openedAt, &closedAt, &durationNanos, &clip.Frames,
		&clip.PrerollFrames, &clip.PostrollFrames, &clip.FrameRate, &clip.Reason, &clip.SizeBytes, &encrypted, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if clip.OpenedAt, err = StringToTime(openedAt); err != nil {
		return nil, fmt.Errorf("failed to parse opened_at: %w", err)
	}
	if clip.ClosedAt, err = StringToTime(closedAt); err != nil {
		return nil, fmt.Errorf("failed to parse closed_at: %w", err)
	}
	if clip.CreatedAt, err = StringToTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	clip.Duration = time.Duration(durationNanos)
	clip.Encrypted = IntToBool(encrypted)
	return clip, nil
}

// GetByID retrieves a Clip by its ID
func (r *SQLiteClipRepository) GetByID(ctx context.Context, id string) (*Clip, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+clipColumns+" FROM clips WHERE id = ?", id)

	clip, err := scanClip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get clip by ID: %w", err)
	}
	return clip, nil
}

// Query retrieves Clips based on the provided query parameters
func (r *SQLiteClipRepository) Query(ctx context.Context, query ClipQuery) ([]*Clip, int, error) {
	where, args := buildWhere(query)

	var totalCount int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM clips"+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	sqlQuery := "SELECT " + clipColumns + " FROM clips" + where + " ORDER BY opened_at DESC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	clips, err := r.queryClips(ctx, sqlQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	return clips, totalCount, nil
}

func buildWhere(query ClipQuery) (string, []any) {
	var conditions []string
	var args []any

	if query.Origin != "" {
		conditions = append(conditions, "origin = ?")
		args = append(args, query.Origin)
	}
	if query.Since != nil {
		conditions = append(conditions, "opened_at >= ?")
		args = append(args, TimeToString(*query.Since))
	}
	if query.Until != nil {
		conditions = append(conditions, "opened_at <= ?")
		args = append(args, TimeToString(*query.Until))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (r *SQLiteClipRepository) queryClips(ctx context.Context, sqlQuery string, args ...any) ([]*Clip, error) {
	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips: %w", err)
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clip: %w", err)
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// Add stores a new Clip in the repository
func (r *SQLiteClipRepository) Add(ctx context.Context, clip *Clip) error {
	if clip.CreatedAt.IsZero() {
		clip.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO clips (` + clipColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		clip.ID, clip.Origin, clip.Path, clip.MimeType,
		TimeToString(clip.OpenedAt), TimeToString(clip.ClosedAt), int64(clip.Duration), clip.Frames,
		clip.PrerollFrames, clip.PostrollFrames, clip.FrameRate, clip.Reason, clip.SizeBytes,
		BoolToInt(clip.Encrypted), TimeToString(clip.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add clip: %w", err)
	}
	return nil
}

// Delete removes a Clip by its ID
func (r *SQLiteClipRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM clips WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete clip: %w", err)
	}
	return nil
}

func (r *SQLiteClipRepository) GetOldestClips(ctx context.Context, limit int) ([]*Clip, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.queryClips(ctx, "SELECT "+clipColumns+" FROM clips ORDER BY opened_at ASC LIMIT ?", limit)
}

func (r *SQLiteClipRepository) GetTotalStorageUsage(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM clips").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total storage usage: %w", err)
	}
	return total, nil
}
