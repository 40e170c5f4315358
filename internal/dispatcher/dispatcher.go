// Package dispatcher is the scheduled-jobs polling loop. Each cycle
// promotes due pending campaign jobs to completed and then delivers
// completed jobs whose results are not yet posted, via a handler
// registry keyed by job type.
package dispatcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"monibot/internal/domain"
	"monibot/internal/store"
)

// Delivery reports what a handler posted. A nil Delivery with a nil
// error means the job legitimately produced no output (for example a
// random pick with zero winners) and the result is left untouched.
type Delivery struct {
	TweetID string
}

// Handler executes one job type.
type Handler interface {
	Deliver(ctx context.Context, job domain.ScheduledJob) (*Delivery, error)
}

type Config struct {
	Interval     time.Duration
	PromoteBatch int
	DeliverBatch int
}

type Dispatcher struct {
	store    store.Store
	handlers map[string]Handler
	cfg      Config
	cycles   atomic.Int64
}

func New(st store.Store, handlers map[string]Handler, cfg Config) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.PromoteBatch <= 0 {
		cfg.PromoteBatch = 3
	}
	if cfg.DeliverBatch <= 0 {
		cfg.DeliverBatch = 5
	}
	return &Dispatcher{store: st, handlers: handlers, cfg: cfg}
}

func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Dur("interval", d.cfg.Interval).Msg("scheduled jobs loop started")
	d.RunCycle(ctx, time.Now())

	t := time.NewTicker(d.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			d.RunCycle(ctx, now)
		}
	}
}

// Cycles returns how many cycles have run, for shutdown logging.
func (d *Dispatcher) Cycles() int64 { return d.cycles.Load() }

// RunCycle executes one promotion pass and one delivery pass.
func (d *Dispatcher) RunCycle(ctx context.Context, now time.Time) {
	d.cycles.Add(1)
	d.promoteDue(ctx, now)
	d.deliverCompleted(ctx, now)
}

// promoteDue flips due pending campaign jobs to completed and delivers
// them immediately. The immediate delivery does not re-check
// social_posted; only the CompleteJob status guard protects against a
// concurrently racing delivery pass.
func (d *Dispatcher) promoteDue(ctx context.Context, now time.Time) {
	jobs, err := d.store.DuePendingJobs(ctx, domain.JobTypeCampaignPost, now, d.cfg.PromoteBatch)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch due pending jobs")
		return
	}

	for _, job := range jobs {
		result := job.Result
		result.ReadyForSocial = true
		result.TriggeredBy = "scheduler"

		promoted, err := d.store.CompleteJob(ctx, job.ID, now, result)
		if err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("failed to promote job")
			continue
		}
		if !promoted {
			// Another cycle won the promotion.
			continue
		}
		log.Info().Str("job_id", job.ID).Str("type", job.Type).Msg("promoted scheduled job")

		job.Status = domain.JobCompleted
		job.Result = result
		completedAt := now
		job.CompletedAt = &completedAt
		d.deliver(ctx, job, now)
	}
}

func (d *Dispatcher) deliverCompleted(ctx context.Context, now time.Time) {
	jobs, err := d.store.DeliverableJobs(ctx, d.cfg.DeliverBatch)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch deliverable jobs")
		return
	}

	for _, job := range jobs {
		d.deliver(ctx, job, now)
	}
}

// deliver runs the type-specific handler and records the outcome into
// the job's result. Handler errors never escape the loop iteration;
// the job stays eligible for the next cycle.
func (d *Dispatcher) deliver(ctx context.Context, job domain.ScheduledJob, now time.Time) {
	h, ok := d.handlers[job.Type]
	if !ok {
		// Unknown job types are not errors.
		log.Debug().Str("job_id", job.ID).Str("type", job.Type).Msg("no handler for job type, skipping")
		return
	}

	delivery, err := h.Deliver(ctx, job)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Str("type", job.Type).Msg("job delivery failed")
		msg := err.Error()
		errAt := now
		if merr := d.store.MergeJobResult(ctx, job.ID, domain.ResultPatch{
			SocialError:   &msg,
			SocialErrorAt: &errAt,
		}); merr != nil {
			log.Error().Err(merr).Str("job_id", job.ID).Msg("failed to record job error")
		}
		return
	}
	if delivery == nil {
		return
	}

	posted := true
	postedAt := now
	if err := d.store.MergeJobResult(ctx, job.ID, domain.ResultPatch{
		SocialPosted:   &posted,
		SocialTweetID:  &delivery.TweetID,
		SocialPostedAt: &postedAt,
	}); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to record job delivery")
		return
	}
	log.Info().Str("job_id", job.ID).Str("tweet_id", delivery.TweetID).Msg("job delivered")
}
