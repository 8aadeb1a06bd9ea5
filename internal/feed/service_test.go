package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"repostflow/internal/domain"
	"repostflow/internal/metrics"
)

type fakeFetcher struct {
	calls []string
	fail  map[string]bool
}

func (f *fakeFetcher) FetchRecentPosts(ctx context.Context, accountID string) ([]domain.Post, error) {
	f.calls = append(f.calls, accountID)
	if f.fail[accountID] {
		return nil, errors.New("upstream unavailable")
	}
	return []domain.Post{{ID: "post_" + accountID, AccountID: accountID}}, nil
}

type fakeCache struct {
	upserts [][]domain.Post
}

func (c *fakeCache) UpsertPosts(ctx context.Context, posts []domain.Post) error {
	c.upserts = append(c.upserts, posts)
	return nil
}

func TestNewServiceRejectsBadCron(t *testing.T) {
	if _, err := NewService(&fakeFetcher{}, &fakeCache{}, nil, "not a cron", time.Second, metrics.New()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestRefreshAllContinuesPastAccountErrors(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]bool{"acc1": true}}
	cache := &fakeCache{}
	s, err := NewService(fetcher, cache, []string{"acc1", "acc2", "acc3"}, "*/5 * * * *", time.Second, metrics.New())
	if err != nil {
		t.Fatal(err)
	}

	s.refreshAll(context.Background())

	if len(fetcher.calls) != 3 {
		t.Fatalf("fetched %d accounts, want 3", len(fetcher.calls))
	}
	if len(cache.upserts) != 2 {
		t.Fatalf("cached %d account feeds, want 2", len(cache.upserts))
	}
}

func TestRefreshAccountSkipsEmptyFeed(t *testing.T) {
	cache := &fakeCache{}
	s, err := NewService(emptyFetcher{}, cache, []string{"acc1"}, "*/5 * * * *", time.Second, metrics.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.refreshAccount(context.Background(), "acc1"); err != nil {
		t.Fatal(err)
	}
	if len(cache.upserts) != 0 {
		t.Fatalf("empty feed should not hit the cache, got %d upserts", len(cache.upserts))
	}
}

type emptyFetcher struct{}

func (emptyFetcher) FetchRecentPosts(ctx context.Context, accountID string) ([]domain.Post, error) {
	return nil, nil
}

func TestValidateCronExpression(t *testing.T) {
	if err := ValidateCronExpression("*/5 * * * *"); err != nil {
		t.Fatal(err)
	}
	if err := ValidateCronExpression("61 * * * *"); err == nil {
		t.Fatal("expected error for out-of-range minute")
	}
}
