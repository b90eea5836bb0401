package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"quarry/internal/browser"
	"quarry/internal/config"
	"quarry/internal/crawler"
	"quarry/internal/embedding"
	"quarry/internal/extract"
	server "quarry/internal/http"
	"quarry/internal/ingest"
	"quarry/internal/jobs"
	"quarry/internal/migrate"
	"quarry/internal/scraper"
	"quarry/internal/search"
	"quarry/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN, ""); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("parse redis url failed: %v", err)
		}
		rdb = redis.NewClient(opt)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := embedding.NewClient(cfg.Embedding)

	srv := server.NewServer(server.Deps{
		Config: cfg,
		Store:  st,
		Search: search.New(st, embedder),
		Logger: logger,
		Redis:  rdb,
		Ping:   db.PingContext,
	})

	startWorker := func() *browser.Pool {
		pool := browser.NewPool(browser.Options{
			MaxPages:      cfg.Browser.MaxPages,
			ControlURL:    cfg.Browser.ControlURL,
			LaunchRetries: cfg.Browser.LaunchRetries,
			Logger:        logger,
		})
		sc := scraper.NewRodScraper(pool, scraper.Options{
			DiscoveryNavTimeout: time.Duration(cfg.Crawler.NavTimeoutMs) * time.Millisecond,
			IngestNavTimeout:    time.Duration(cfg.Ingest.NavTimeoutMs) * time.Millisecond,
			SettleWait:          time.Duration(cfg.Crawler.SettleWaitMs) * time.Millisecond,
			ClickWait:           time.Duration(cfg.Crawler.ClickWaitMs) * time.Millisecond,
			UserAgent:           cfg.Crawler.UserAgent,
		})

		discoverer := jobs.NewDiscoverer(st, sc, crawler.Options{
			MaxPages:      cfg.Crawler.MaxPagesDefault,
			ProgressEvery: cfg.Crawler.ProgressEvery,
			RespectRobots: cfg.Crawler.RespectRobots,
			UserAgent:     cfg.Crawler.UserAgent,
			Logger:        logger,
		}, logger)

		pipeline := ingest.New(st, sc, embedder, ingest.Options{
			Retries:             cfg.Ingest.Retries,
			MinDocumentChars:    cfg.Extractor.MinDocumentChars,
			MaxConcurrentEmbeds: cfg.Embedding.MaxConcurrent,
			Extract: extract.Options{
				MinMainTextChars:  cfg.Extractor.MinMainTextChars,
				MinTextHTMLRatio:  cfg.Extractor.MinTextHTMLRatio,
				FallbackParaChars: cfg.Extractor.FallbackParaChars,
				FallbackBodyChars: cfg.Extractor.FallbackBodyChars,
				MaxContentChars:   cfg.Extractor.MaxContentChars,
			},
			Logger: logger,
		})

		runner := jobs.NewRunner(cfg, st, jobs.Executors{
			Discovery: discoverer,
			Ingest:    jobs.NewIngester(pipeline, logger),
		}, logger)
		go runner.Start(rootCtx)
		return pool
	}

	switch *role {
	case "api":
		go shutdownOnSignal(rootCtx, srv, nil, logger)
		if err := srv.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "worker":
		pool := startWorker()
		<-rootCtx.Done()
		pool.Shutdown()
	case "all":
		pool := startWorker()
		go shutdownOnSignal(rootCtx, srv, pool, logger)
		if err := srv.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}

func shutdownOnSignal(ctx context.Context, srv *server.Server, pool *browser.Pool, logger *slog.Logger) {
	<-ctx.Done()
	logger.Info("shutting down")
	if pool != nil {
		pool.Shutdown()
	}
	if err := srv.Shutdown(); err != nil {
		logger.Error("server shutdown", "error", err)
	}
}
