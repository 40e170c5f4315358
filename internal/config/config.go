// Package config loads all tunables and credentials from the
// environment under the MONIBOT prefix.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Poll loops
	QueueInterval    time.Duration `envconfig:"SOCIAL_QUEUE_INTERVAL" default:"30s"`
	JobsInterval     time.Duration `envconfig:"SCHEDULED_JOBS_INTERVAL" default:"15s"`
	MaxRetryCount    int           `envconfig:"MAX_RETRY_COUNT" default:"3"`
	QueueBatchSize   int           `envconfig:"QUEUE_BATCH_SIZE" default:"5"`
	PromoteBatchSize int           `envconfig:"PROMOTE_BATCH_SIZE" default:"3"`
	DeliverBatchSize int           `envconfig:"DELIVER_BATCH_SIZE" default:"5"`

	// AI capability
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	// Twitter OAuth2
	TwitterClientID     string `envconfig:"TWITTER_CLIENT_ID"`
	TwitterClientSecret string `envconfig:"TWITTER_CLIENT_SECRET"`
	TwitterAccessToken  string `envconfig:"TWITTER_OAUTH2_ACCESS_TOKEN"`
	TwitterRefreshToken string `envconfig:"TWITTER_OAUTH2_REFRESH_TOKEN"`

	// Cron campaign slots (legacy trigger; dashboard triggers are the
	// primary path)
	CampaignsEnabled        bool     `envconfig:"CAMPAIGNS_ENABLED" default:"false"`
	CampaignCrons           []string `envconfig:"CAMPAIGN_CRONS" default:"0 9 * * 1-5,0 16 * * 1-5"`
	CampaignGrantAmount     float64  `envconfig:"CAMPAIGN_GRANT_AMOUNT" default:"1.0"`
	CampaignMaxParticipants int      `envconfig:"CAMPAIGN_MAX_PARTICIPANTS" default:"5"`
}

func Load() (Config, error) {
	var c Config
	err := envconfig.Process("MONIBOT", &c)
	return c, err
}
