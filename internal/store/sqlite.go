package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"repostflow/internal/domain"
)

var ErrNotFound = errors.New("entry not found")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS entries (
  id TEXT PRIMARY KEY,
  seq INTEGER NOT NULL,
  post_id TEXT NOT NULL,
  requested_at DATETIME NOT NULL,
  scheduled_at DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','executed','failed','canceled')) DEFAULT 'pending',
  executed_at DATETIME,
  error TEXT NOT NULL DEFAULT '',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_entries_status_sched ON entries(status, scheduled_at);
CREATE TABLE IF NOT EXISTS posts (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  author TEXT NOT NULL,
  text TEXT NOT NULL,
  posted_at DATETIME NOT NULL,
  fetched_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_account ON posts(account_id, posted_at DESC);
`
	_, err := db.Exec(schema)
	return err
}

type Repository interface {
	SaveEntry(ctx context.Context, e domain.ScheduleEntry) error
	UpdateEntryStatus(ctx context.Context, id string, status domain.EntryStatus, executedAt time.Time, errMsg string) error
	MarkCanceled(ctx context.Context, id string) error
	GetEntry(ctx context.Context, id string) (domain.ScheduleEntry, error)
	ListEntries(ctx context.Context, limit int) ([]domain.ScheduleEntry, error)
	ListPending(ctx context.Context) ([]domain.ScheduleEntry, error)
	ScheduleTail(ctx context.Context) (time.Time, int64, bool, error)

	UpsertPosts(ctx context.Context, posts []domain.Post) error
	ListRecentPosts(ctx context.Context, limit int) ([]domain.Post, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

func (r *sqliteRepo) SaveEntry(ctx context.Context, e domain.ScheduleEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO entries (id,seq,post_id,requested_at,scheduled_at,status,error,created_at)
VALUES (?,?,?,?,?,?,?,?)
`, e.ID, e.Seq, e.Request.PostID, e.Request.RequestedAt, e.ScheduledAt, string(e.Status), e.Error, e.CreatedAt)
	return err
}

func (r *sqliteRepo) UpdateEntryStatus(ctx context.Context, id string, status domain.EntryStatus, executedAt time.Time, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE entries SET status=?, executed_at=?, error=? WHERE id=?`,
		string(status), executedAt, errMsg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) MarkCanceled(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE entries SET status='canceled' WHERE id=? AND status='pending'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) GetEntry(ctx context.Context, id string) (domain.ScheduleEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id,seq,post_id,requested_at,scheduled_at,status,executed_at,error,created_at
FROM entries WHERE id=?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return domain.ScheduleEntry{}, ErrNotFound
	}
	return e, err
}

func (r *sqliteRepo) ListEntries(ctx context.Context, limit int) ([]domain.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,seq,post_id,requested_at,scheduled_at,status,executed_at,error,created_at
FROM entries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *sqliteRepo) ListPending(ctx context.Context) ([]domain.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,seq,post_id,requested_at,scheduled_at,status,executed_at,error,created_at
FROM entries WHERE status='pending' ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ScheduleTail reports the scheduled time of the newest already-executed (or
// failed) entry plus the highest seq ever assigned. The bool is false when no
// terminal entry exists. Pending entries are not part of the tail; they are
// reloaded individually and keep their own slots.
func (r *sqliteRepo) ScheduleTail(ctx context.Context) (time.Time, int64, bool, error) {
	var maxSeq sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM entries`).Scan(&maxSeq); err != nil {
		return time.Time{}, 0, false, err
	}

	row := r.db.QueryRowContext(ctx, `
SELECT scheduled_at FROM entries WHERE status IN ('executed','failed') ORDER BY seq DESC LIMIT 1`)
	var at time.Time
	err := row.Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, maxSeq.Int64, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, err
	}
	return at, maxSeq.Int64, true, nil
}

func (r *sqliteRepo) UpsertPosts(ctx context.Context, posts []domain.Post) error {
	for _, p := range posts {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO posts (id,account_id,author,text,posted_at,fetched_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET text=excluded.text, fetched_at=excluded.fetched_at
`, p.ID, p.AccountID, p.Author, p.Text, p.PostedAt, p.FetchedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *sqliteRepo) ListRecentPosts(ctx context.Context, limit int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,account_id,author,text,posted_at,fetched_at
FROM posts ORDER BY posted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Author, &p.Text, &p.PostedAt, &p.FetchedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	var status string
	var executedAt sql.NullTime
	err := row.Scan(&e.ID, &e.Seq, &e.Request.PostID, &e.Request.RequestedAt,
		&e.ScheduledAt, &status, &executedAt, &e.Error, &e.CreatedAt)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	e.Status = domain.EntryStatus(status)
	if executedAt.Valid {
		t := executedAt.Time
		e.ExecutedAt = &t
	}
	return e, nil
}

func collectEntries(rows *sql.Rows) ([]domain.ScheduleEntry, error) {
	var entries []domain.ScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
