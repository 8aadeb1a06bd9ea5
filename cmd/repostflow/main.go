package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"repostflow/internal/api"
	"repostflow/internal/config"
	"repostflow/internal/feed"
	"repostflow/internal/metrics"
	"repostflow/internal/social"
	"repostflow/internal/spacer"
	"repostflow/internal/store"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "HTTP bind address")
		dbPath      = flag.String("db", "repostflow.db", "SQLite DB path")
		tick        = flag.Duration("tick", 30*time.Second, "tick interval for the repost queue")
		minGap      = flag.Duration("gap", spacer.DefaultMinGap, "minimum gap between repost executions")
		refreshCron = flag.String("refresh", "*/5 * * * *", "cron expression for feed refresh")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.LoadRuntime()
	if err != nil { log.Fatal().Err(err).Msg("load config") }

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil { log.Fatal().Err(err).Msg("open db") }
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil { log.Fatal().Err(err).Msg("ensure schema") }

	repo := store.NewSQLiteRepo(db)
	m := metrics.New()
	client := social.NewClient(cfg.APIBaseURL, cfg.ClientID, cfg.ClientSecret)

	sp := spacer.New(*minGap, client.Repost, repo, m)
	if pending, err := repo.ListPending(context.Background()); err == nil {
		tail, maxSeq, ok, lerr := repo.ScheduleTail(context.Background())
		if lerr != nil { log.Fatal().Err(lerr).Msg("load schedule tail") }
		sp.Restore(pending, tail, maxSeq, ok)
		log.Info().Int("pending", len(pending)).Msg("restored repost queue")
	} else {
		log.Fatal().Err(err).Msg("load pending entries")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sp.Run(ctx, *tick)

	poller, err := feed.NewService(client, repo, cfg.Accounts, *refreshCron, 30*time.Second, m)
	if err != nil { log.Fatal().Err(err).Msg("feed schedule") }
	go poller.Start(ctx)

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(sp, repo, m)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
