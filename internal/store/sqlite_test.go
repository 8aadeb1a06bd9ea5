package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"repostflow/internal/domain"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := EnsureSchema(db); err != nil {
		t.Fatal(err)
	}
	return NewSQLiteRepo(db)
}

func entry(id string, seq int64, postID string, scheduledAt time.Time) domain.ScheduleEntry {
	return domain.ScheduleEntry{
		ID:          id,
		Seq:         seq,
		Request:     domain.RepostRequest{PostID: postID, RequestedAt: scheduledAt},
		ScheduledAt: scheduledAt,
		Status:      domain.StatusPending,
		CreatedAt:   scheduledAt,
	}
}

func TestSaveAndGetEntry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.SaveEntry(ctx, entry("rp_1", 1, "p1", at)); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetEntry(ctx, "rp_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Request.PostID != "p1" || got.Status != domain.StatusPending || got.Seq != 1 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.ScheduledAt.Unix() != at.Unix() {
		t.Fatalf("scheduled_at round trip: got %v, want %v", got.ScheduledAt, at)
	}

	if _, err := repo.GetEntry(ctx, "rp_missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEntryStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.SaveEntry(ctx, entry("rp_1", 1, "p1", at)); err != nil {
		t.Fatal(err)
	}
	done := at.Add(time.Minute)
	if err := repo.UpdateEntryStatus(ctx, "rp_1", domain.StatusFailed, done, "rate limited"); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetEntry(ctx, "rp_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFailed || got.Error != "rate limited" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.ExecutedAt == nil || got.ExecutedAt.Unix() != done.Unix() {
		t.Fatalf("executed_at round trip: %+v", got.ExecutedAt)
	}

	if err := repo.UpdateEntryStatus(ctx, "rp_missing", domain.StatusExecuted, done, ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkCanceledOnlyHitsPending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.SaveEntry(ctx, entry("rp_1", 1, "p1", at)); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkCanceled(ctx, "rp_1"); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkCanceled(ctx, "rp_1"); err != ErrNotFound {
		t.Fatalf("canceling twice should report not found, got %v", err)
	}
	got, _ := repo.GetEntry(ctx, "rp_1")
	if got.Status != domain.StatusCanceled {
		t.Fatalf("status %s, want canceled", got.Status)
	}
}

func TestListPendingOrderedBySeq(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	repo.SaveEntry(ctx, entry("rp_2", 2, "p2", at.Add(30*time.Minute)))
	repo.SaveEntry(ctx, entry("rp_1", 1, "p1", at))
	repo.SaveEntry(ctx, entry("rp_3", 3, "p3", at.Add(60*time.Minute)))
	repo.UpdateEntryStatus(ctx, "rp_1", domain.StatusExecuted, at, "")

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ID != "rp_2" || pending[1].ID != "rp_3" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}
}

func TestScheduleTail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if _, _, ok, err := repo.ScheduleTail(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	repo.SaveEntry(ctx, entry("rp_1", 1, "p1", at))
	repo.SaveEntry(ctx, entry("rp_2", 2, "p2", at.Add(30*time.Minute)))
	repo.UpdateEntryStatus(ctx, "rp_1", domain.StatusExecuted, at, "")

	tail, maxSeq, ok, err := repo.ScheduleTail(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || tail.Unix() != at.Unix() {
		t.Fatalf("tail ok=%v at=%v, want %v", ok, tail, at)
	}
	if maxSeq != 2 {
		t.Fatalf("max seq %d, want 2", maxSeq)
	}
}

func TestUpsertAndListPosts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	posts := []domain.Post{
		{ID: "post1", AccountID: "acc1", Author: "alice", Text: "hello", PostedAt: at, FetchedAt: at},
		{ID: "post2", AccountID: "acc1", Author: "alice", Text: "again", PostedAt: at.Add(time.Hour), FetchedAt: at},
	}
	if err := repo.UpsertPosts(ctx, posts); err != nil {
		t.Fatal(err)
	}
	// refetch with edited text replaces, not duplicates
	posts[0].Text = "hello (edited)"
	if err := repo.UpsertPosts(ctx, posts[:1]); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListRecentPosts(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(got))
	}
	if got[0].ID != "post2" {
		t.Fatalf("newest first, got %s", got[0].ID)
	}
	if got[1].Text != "hello (edited)" {
		t.Fatalf("upsert did not replace text: %q", got[1].Text)
	}
}
