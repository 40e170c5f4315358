package domain

import "time"

// HashPrefix marks a settlement reference: a tx_hash starting with it
// is a settled on-chain transfer, anything else is a symbolic code
// such as ERROR_BALANCE or SKIP_NO_PAYTAG.
const HashPrefix = "0x"

// TransactionRecord is one row of the social queue: a monetary or
// social event awaiting a Twitter reply.
type TransactionRecord struct {
	ID              string
	Type            string // "grant", "p2p_command", ...
	Amount          float64
	Fee             float64
	TxHash          string // settlement hash or symbolic code
	Status          string
	TweetID         *string // tweet to reply to, if any
	PayerPayTag     string
	RecipientPayTag string
	Replied         bool
	RetryCount      int
	ErrorReason     *string // terminal skip annotation
	CreatedAt       time.Time
}

// Settled reports whether the record carries a genuine settlement
// reference rather than a symbolic error/skip code.
func (t TransactionRecord) Settled() bool {
	return len(t.TxHash) >= len(HashPrefix) && t.TxHash[:len(HashPrefix)] == HashPrefix
}

// Scheduled job statuses.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
)

// Known job types. Anything else is skipped by the dispatcher.
const (
	JobTypeCampaignPost = "campaign_post"
	JobTypeRandomPick   = "random_pick"
)

// ScheduledJob is a unit of future social output, created by the
// dashboard or the campaign scheduler and delivered by the dispatcher.
type ScheduledJob struct {
	ID          string
	Type        string
	Status      string
	Payload     CampaignPayload
	Result      JobResult
	ScheduledAt time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CampaignPayload carries the type-specific parameters of a job.
type CampaignPayload struct {
	Text            string  `json:"text,omitempty"` // pre-written tweet, skips AI
	GrantAmount     float64 `json:"grant_amount,omitempty"`
	MaxParticipants int     `json:"max_participants,omitempty"`
	Budget          float64 `json:"budget,omitempty"`
	TimeSlot        string  `json:"time_slot,omitempty"`
}

// Winner is one picked participant of a random_pick job.
type Winner struct {
	PayTag   string `json:"pay_tag,omitempty"`
	Username string `json:"username,omitempty"`
}

// JobResult accumulates the social-delivery handshake state of a job.
// Fields are merged field-wise; a delivery never clobbers what an
// earlier pass wrote.
type JobResult struct {
	ReadyForSocial  bool       `json:"ready_for_social,omitempty"`
	TriggeredBy     string     `json:"triggered_by,omitempty"`
	SocialPosted    bool       `json:"social_posted,omitempty"`
	SocialTweetID   string     `json:"social_tweet_id,omitempty"`
	SocialPostedAt  *time.Time `json:"social_posted_at,omitempty"`
	SocialError     string     `json:"social_error,omitempty"`
	SocialErrorAt   *time.Time `json:"social_error_at,omitempty"`
	Winners         []Winner   `json:"winners,omitempty"`
	GrantAmount     float64    `json:"grant_amount,omitempty"`
	OriginalTweetID string     `json:"original_tweet_id,omitempty"`
	OriginalAuthor  string     `json:"original_author,omitempty"`
}

// ResultPatch is a field-wise update applied to a JobResult. Nil
// fields are left untouched.
type ResultPatch struct {
	SocialPosted   *bool
	SocialTweetID  *string
	SocialPostedAt *time.Time
	SocialError    *string
	SocialErrorAt  *time.Time
}

// Apply merges the patch into r.
func (p ResultPatch) Apply(r *JobResult) {
	if p.SocialPosted != nil {
		r.SocialPosted = *p.SocialPosted
	}
	if p.SocialTweetID != nil {
		r.SocialTweetID = *p.SocialTweetID
	}
	if p.SocialPostedAt != nil {
		r.SocialPostedAt = p.SocialPostedAt
	}
	if p.SocialError != nil {
		r.SocialError = *p.SocialError
	}
	if p.SocialErrorAt != nil {
		r.SocialErrorAt = p.SocialErrorAt
	}
}

// Campaign is one log entry written when a campaign announcement is
// posted.
type Campaign struct {
	ID              string
	TweetID         string
	Message         string
	Type            string // "grant"
	Status          string // "active"
	GrantAmount     float64
	MaxParticipants int
	BudgetAllocated float64
	PostedAt        time.Time
}

// MissionStats is the running-totals singleton: cumulative spend and
// onboarded-user count across all settled transactions.
type MissionStats struct {
	SpentBudget    float64
	UsersOnboarded int
}
