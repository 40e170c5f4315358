// Package campaigns holds the optional cron-driven campaign trigger.
// Instead of posting directly, each firing inserts an immediately due
// campaign_post job so delivery goes through the dispatcher handshake
// like every other campaign.
package campaigns

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"monibot/internal/domain"
	"monibot/internal/store"
)

type Scheduler struct {
	store           store.Store
	cron            *cron.Cron
	grantAmount     float64
	maxParticipants int
}

func NewScheduler(st store.Store, grantAmount float64, maxParticipants int) *Scheduler {
	return &Scheduler{
		store:           st,
		cron:            cron.New(),
		grantAmount:     grantAmount,
		maxParticipants: maxParticipants,
	}
}

// AddSlot registers a cron expression (standard 5-field syntax) that
// enqueues a campaign job when it fires.
func (s *Scheduler) AddSlot(spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.trigger(spec) })
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("slots", len(s.cron.Entries())).Msg("campaign scheduler active")
}

func (s *Scheduler) Stop() { s.cron.Stop() }

func (s *Scheduler) trigger(slot string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := s.store.CreateJob(ctx, domain.ScheduledJob{
		Type:   domain.JobTypeCampaignPost,
		Status: domain.JobPending,
		Payload: domain.CampaignPayload{
			GrantAmount:     s.grantAmount,
			MaxParticipants: s.maxParticipants,
			TimeSlot:        slot,
		},
		ScheduledAt: time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Str("slot", slot).Msg("failed to enqueue campaign job")
		return
	}
	log.Info().Str("job_id", id).Str("slot", slot).Msg("campaign job enqueued")
}

// ValidateSpec validates a cron expression.
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
