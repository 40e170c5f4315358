// Package campaign delivers campaign_post jobs: resolve the
// announcement text, post it, and log the campaign with its allocated
// budget.
package campaign

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"monibot/internal/dispatcher"
	"monibot/internal/domain"
	"monibot/internal/reply"
	"monibot/internal/social"
	"monibot/internal/store"
)

type Handler struct {
	store    store.Store
	social   social.Client
	composer *reply.Composer
}

func New(st store.Store, sc social.Client, composer *reply.Composer) *Handler {
	return &Handler{store: st, social: sc, composer: composer}
}

func (h *Handler) Deliver(ctx context.Context, job domain.ScheduledJob) (*dispatcher.Delivery, error) {
	p := job.Payload
	text := h.composer.CampaignText(ctx, p)

	tweetID, err := h.social.Post(ctx, text)
	if err != nil {
		return nil, err
	}
	log.Info().Str("job_id", job.ID).Str("tweet_id", tweetID).
		Float64("grant_amount", p.GrantAmount).Int("max_participants", p.MaxParticipants).
		Msg("campaign posted")

	// The tweet is out; a failed log entry must not fail the job and
	// cause a duplicate post next cycle.
	if _, err := h.store.InsertCampaign(ctx, domain.Campaign{
		TweetID:         tweetID,
		Message:         text,
		Type:            "grant",
		Status:          "active",
		GrantAmount:     p.GrantAmount,
		MaxParticipants: p.MaxParticipants,
		BudgetAllocated: p.GrantAmount * float64(p.MaxParticipants),
		PostedAt:        time.Now(),
	}); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to log campaign")
	}

	return &dispatcher.Delivery{TweetID: tweetID}, nil
}
