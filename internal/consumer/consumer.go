// Package consumer is the transaction-queue polling loop: it fetches
// unreplied records oldest-first, composes and delivers a reply for
// each, and maintains retry/replied state.
package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"monibot/internal/domain"
	"monibot/internal/reply"
	"monibot/internal/social"
	"monibot/internal/store"
)

type Config struct {
	Interval  time.Duration
	BatchSize int
	MaxRetry  int
}

type Consumer struct {
	store    store.Store
	composer *reply.Composer
	social   social.Client
	cfg      Config
	cycles   atomic.Int64
}

func New(st store.Store, composer *reply.Composer, sc social.Client, cfg Config) *Consumer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	return &Consumer{store: st, composer: composer, social: sc, cfg: cfg}
}

// Run polls until ctx is done. The first cycle runs immediately; each
// cycle runs to completion before the next tick is honored.
func (c *Consumer) Run(ctx context.Context) {
	log.Info().Dur("interval", c.cfg.Interval).Msg("social queue loop started")
	c.RunCycle(ctx, time.Now())

	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c.RunCycle(ctx, now)
		}
	}
}

// Cycles returns how many cycles have run, for shutdown logging.
func (c *Consumer) Cycles() int64 { return c.cycles.Load() }

// RunCycle processes one bounded batch. A failure on one record never
// aborts the rest of the batch.
func (c *Consumer) RunCycle(ctx context.Context, now time.Time) {
	c.cycles.Add(1)

	recs, err := c.store.UnrepliedTransactions(ctx, c.cfg.MaxRetry, c.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch social queue")
		return
	}
	if len(recs) > 0 {
		log.Info().Int("count", len(recs)).Msg("processing unreplied transactions")
	}

	for _, tx := range recs {
		// Sequential on purpose: retry-count and replied updates stay
		// race-free within the loop.
		if err := c.process(ctx, tx); err != nil {
			log.Error().Err(err).Str("tx_id", tx.ID).Msg("failed to process queue item")
		}
	}

	swept, err := c.store.SweepExceededRetries(ctx, c.cfg.MaxRetry)
	if err != nil {
		log.Error().Err(err).Msg("retry sweep failed")
	} else if swept > 0 {
		log.Warn().Int("count", swept).Msg("forced terminal skip after max retries")
	}
}

func (c *Consumer) process(ctx context.Context, tx domain.TransactionRecord) error {
	text := c.composer.Reply(ctx, tx)

	if tx.TweetID != nil {
		if _, err := c.social.Reply(ctx, *tx.TweetID, text); err != nil {
			if social.IsTerminal(err) {
				// The referenced tweet is gone; retrying cannot help.
				reason := skipReason(err)
				log.Warn().Err(err).Str("tx_id", tx.ID).Str("reason", reason).Msg("terminal delivery error, skipping")
				return c.store.MarkReplied(ctx, tx.ID, reason)
			}
			log.Warn().Err(err).Str("tx_id", tx.ID).Int("retry_count", tx.RetryCount+1).Msg("transient delivery error, will retry")
			return c.store.IncrementRetry(ctx, tx.ID)
		}
		log.Info().Str("tx_id", tx.ID).Str("tweet_id", *tx.TweetID).Msg("replied to tweet")
	}

	if err := c.store.MarkReplied(ctx, tx.ID, ""); err != nil {
		return err
	}

	if tx.Settled() {
		if err := c.store.IncrementMissionStats(ctx, tx.Amount+tx.Fee); err != nil {
			log.Error().Err(err).Str("tx_id", tx.ID).Msg("mission stats update failed")
		}
	}
	return nil
}

func skipReason(err error) string {
	var apiErr *social.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 404:
			return "SKIPPED_TWEET_NOT_FOUND"
		case 403:
			return "SKIPPED_TWEET_FORBIDDEN"
		case 401:
			return "SKIPPED_UNAUTHORIZED"
		}
	}
	return "SKIPPED_TWEET_INACCESSIBLE"
}
