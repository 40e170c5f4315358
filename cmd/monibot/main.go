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

	"monibot/internal/ai"
	"monibot/internal/api"
	"monibot/internal/backoff"
	"monibot/internal/campaigns"
	"monibot/internal/config"
	"monibot/internal/consumer"
	"monibot/internal/dispatcher"
	"monibot/internal/domain"
	"monibot/internal/handlers/campaign"
	"monibot/internal/handlers/randompick"
	"monibot/internal/reply"
	"monibot/internal/social"
	"monibot/internal/store"
)

func main() {
	var (
		addr   = flag.String("addr", ":8080", "HTTP bind address")
		dbPath = flag.String("db", "monibot.db", "SQLite DB path")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	st := store.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// External capabilities. Missing Gemini credentials degrade to
	// curated templates only; missing Twitter credentials are fatal
	// since the whole point is posting.
	var gen ai.Client
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("init gemini")
		}
		gen = gemini
		log.Info().Str("model", cfg.GeminiModel).Msg("gemini client ready")
	} else {
		log.Warn().Msg("no gemini api key, replies use curated templates only")
	}

	twitter, err := social.NewTwitter(ctx, social.Config{
		ClientID:     cfg.TwitterClientID,
		ClientSecret: cfg.TwitterClientSecret,
		AccessToken:  cfg.TwitterAccessToken,
		RefreshToken: cfg.TwitterRefreshToken,
	}, st)
	if err != nil {
		log.Fatal().Err(err).Msg("init twitter client")
	}

	bo := backoff.NewController()
	composer := reply.NewComposer(gen, bo)

	cons := consumer.New(st, composer, twitter, consumer.Config{
		Interval:  cfg.QueueInterval,
		BatchSize: cfg.QueueBatchSize,
		MaxRetry:  cfg.MaxRetryCount,
	})

	disp := dispatcher.New(st, map[string]dispatcher.Handler{
		domain.JobTypeCampaignPost: campaign.New(st, twitter, composer),
		domain.JobTypeRandomPick:   randompick.New(twitter, composer),
	}, dispatcher.Config{
		Interval:     cfg.JobsInterval,
		PromoteBatch: cfg.PromoteBatchSize,
		DeliverBatch: cfg.DeliverBatchSize,
	})

	go cons.Run(ctx)
	go disp.Run(ctx)

	if cfg.CampaignsEnabled {
		sched := campaigns.NewScheduler(st, cfg.CampaignGrantAmount, cfg.CampaignMaxParticipants)
		for _, spec := range cfg.CampaignCrons {
			if err := sched.AddSlot(spec); err != nil {
				log.Fatal().Err(err).Str("spec", spec).Msg("invalid campaign cron")
			}
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(st)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown: stop scheduling new cycles, let in-flight
	// cycles finish, log the cycle totals.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().
		Int64("social_queue_cycles", cons.Cycles()).
		Int64("scheduled_job_cycles", disp.Cycles()).
		Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
