package feed

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"repostflow/internal/domain"
	"repostflow/internal/metrics"
)

// Fetcher lists an account's recent posts. Satisfied by social.Client.
type Fetcher interface {
	FetchRecentPosts(ctx context.Context, accountID string) ([]domain.Post, error)
}

// PostCache stores fetched posts. Satisfied by store.Repository.
type PostCache interface {
	UpsertPosts(ctx context.Context, posts []domain.Post) error
}

// Service refreshes the cached posts of the configured accounts on a
// cron-defined schedule.
type Service struct {
	fetcher  Fetcher
	cache    PostCache
	accounts []string
	schedule cron.Schedule
	metrics  *metrics.Metrics
	stop     chan struct{}
	interval time.Duration
}

func NewService(fetcher Fetcher, cache PostCache, accounts []string, cronExpr string, checkInterval time.Duration, m *metrics.Metrics) (*Service, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, err
	}
	return &Service{
		fetcher:  fetcher,
		cache:    cache,
		accounts: accounts,
		schedule: schedule,
		metrics:  m,
		stop:     make(chan struct{}),
		interval: checkInterval,
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	next := s.schedule.Next(time.Now())
	log.Info().Time("next_refresh", next).Int("accounts", len(s.accounts)).Msg("feed service started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			s.refreshAll(ctx)
			next = s.schedule.Next(now)
		}
	}
}

func (s *Service) Stop() {
	close(s.stop)
}

func (s *Service) refreshAll(ctx context.Context) {
	for _, account := range s.accounts {
		if err := s.refreshAccount(ctx, account); err != nil {
			log.Error().Err(err).Str("account_id", account).Msg("failed to refresh account feed")
		}
	}
	if s.metrics != nil {
		s.metrics.IncFeedRefreshes()
	}
}

func (s *Service) refreshAccount(ctx context.Context, accountID string) error {
	posts, err := s.fetcher.FetchRecentPosts(ctx, accountID)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	if err := s.cache.UpsertPosts(ctx, posts); err != nil {
		return err
	}
	log.Info().Str("account_id", accountID).Int("posts", len(posts)).Msg("feed refreshed")
	return nil
}

// ValidateCronExpression validates a refresh schedule expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
