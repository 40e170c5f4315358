// Package randompick delivers random_pick jobs: announce the winners
// as a reply to the originating tweet, degrading to a standalone post
// when that tweet is gone.
package randompick

import (
	"context"

	"github.com/rs/zerolog/log"

	"monibot/internal/dispatcher"
	"monibot/internal/domain"
	"monibot/internal/reply"
	"monibot/internal/social"
)

type Handler struct {
	social   social.Client
	composer *reply.Composer
}

func New(sc social.Client, composer *reply.Composer) *Handler {
	return &Handler{social: sc, composer: composer}
}

func (h *Handler) Deliver(ctx context.Context, job domain.ScheduledJob) (*dispatcher.Delivery, error) {
	res := job.Result
	if len(res.Winners) == 0 {
		// Nothing to announce; leave the result untouched.
		log.Debug().Str("job_id", job.ID).Msg("random pick has no winners, nothing to post")
		return nil, nil
	}

	text := h.composer.WinnerText(ctx, res)

	if res.OriginalTweetID != "" {
		tweetID, err := h.social.Reply(ctx, res.OriginalTweetID, text)
		if err == nil {
			return &dispatcher.Delivery{TweetID: tweetID}, nil
		}
		if !social.IsTerminal(err) {
			return nil, err
		}
		// The campaign tweet is gone; announce standalone instead of
		// failing the job.
		log.Warn().Err(err).Str("job_id", job.ID).Msg("origin tweet inaccessible, posting standalone announcement")
	}

	tweetID, err := h.social.Post(ctx, text)
	if err != nil {
		return nil, err
	}
	return &dispatcher.Delivery{TweetID: tweetID}, nil
}
