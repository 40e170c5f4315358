// Package reply turns queue records and job payloads into final tweet
// text: curated templates for error/skip categories, AI copy (guarded
// by the backoff controller) for everything else.
package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"monibot/internal/ai"
	"monibot/internal/backoff"
	"monibot/internal/classify"
	"monibot/internal/domain"
)

// MaxTweetLen is the platform's per-post character limit.
const MaxTweetLen = 280

const shortHashLen = 18

type Composer struct {
	gen ai.Client // nil means fallback-only
	bo  *backoff.Controller
	now func() time.Time
}

func NewComposer(gen ai.Client, bo *backoff.Controller) *Composer {
	return &Composer{gen: gen, bo: bo, now: time.Now}
}

// Reply produces the final reply text for a transaction record.
func (c *Composer) Reply(ctx context.Context, tx domain.TransactionRecord) string {
	cat := classify.Classify(tx)

	// Error/skip categories always use the curated copy; it names the
	// exact fix and beats a generated platitude.
	if cat.Curated() {
		return c.finish(Pick(cat), tx)
	}

	base := c.generate(ctx, ai.ActionReply, replyPrompt(tx))
	if base == "" {
		base = Pick(cat)
	}
	return c.finish(base, tx)
}

// finish appends the verification suffix on settled outcomes and caps
// the length.
func (c *Composer) finish(base string, tx domain.TransactionRecord) string {
	if tx.Settled() {
		if tx.RecipientPayTag != "" {
			base += " → monitag: " + tx.RecipientPayTag
		}
		base += "\n\nTx: " + ShortHash(tx.TxHash)
	}
	return Truncate(base)
}

// CampaignText resolves the announcement for a campaign_post job:
// payload-supplied copy wins, then AI, then the curated fallback.
func (c *Composer) CampaignText(ctx context.Context, p domain.CampaignPayload) string {
	if p.Text != "" {
		return Truncate(p.Text)
	}
	text := c.generate(ctx, ai.ActionCampaign, campaignPrompt(p))
	if text == "" {
		text = fmt.Sprintf("🔵 GM Base!\n\nFirst %d to drop their monitag below get $%.2f USDC!\n\nCreate your MoniPay account to claim! ⚡",
			p.MaxParticipants, p.GrantAmount)
	}
	return Truncate(text)
}

// WinnerText builds the winner announcement for a random_pick job.
func (c *Composer) WinnerText(ctx context.Context, res domain.JobResult) string {
	text := c.generate(ctx, ai.ActionWinner, winnerPrompt(res))
	if text == "" {
		tags := make([]string, 0, len(res.Winners))
		for _, w := range res.Winners {
			tag := w.PayTag
			if tag == "" {
				tag = w.Username
			}
			tags = append(tags, "@"+tag)
		}
		grant := res.GrantAmount
		if grant == 0 {
			grant = 1.00
		}
		text = fmt.Sprintf("🎉 Congrats to our winners!\n\n%s\n\nEach getting $%.2f USDC! 🔵⚡",
			strings.Join(tags, ", "), grant)
	}
	return Truncate(text)
}

// generate calls the AI capability unless a cooldown is active. Any
// failure resolves to "" so the caller falls back to curated copy;
// rate-limit signals escalate the cooldown, a success resets it.
func (c *Composer) generate(ctx context.Context, action ai.Action, prompt string) string {
	if c.gen == nil {
		return ""
	}
	now := c.now()
	if c.bo.IsCoolingDown(now) {
		log.Debug().Dur("remaining", c.bo.Remaining(now)).Msg("ai in cooldown, using fallback")
		return ""
	}
	text, err := c.gen.Generate(ctx, action, prompt)
	if err != nil {
		if ai.IsRateLimited(err) {
			d := c.bo.RecordFailure(now)
			log.Warn().Err(err).Dur("cooldown", d).Msg("ai rate limited, backing off")
		} else {
			log.Error().Err(err).Str("action", string(action)).Msg("ai generation failed")
		}
		return ""
	}
	c.bo.RecordSuccess()
	return text
}

func replyPrompt(tx domain.TransactionRecord) string {
	recipient := tx.RecipientPayTag
	if recipient == "" {
		recipient = "unknown"
	}
	payer := tx.PayerPayTag
	if payer == "" {
		payer = "MoniBot"
	}
	return fmt.Sprintf("Write a reply for this transaction: type=%s amount=%.2f USDC recipient=%s payer=%s status=%s",
		tx.Type, tx.Amount, recipient, payer, tx.Status)
}

func campaignPrompt(p domain.CampaignPayload) string {
	return fmt.Sprintf("Announce a grant campaign: first %d people to drop their monitag get $%.2f USDC each (budget $%.2f).",
		p.MaxParticipants, p.GrantAmount, p.Budget)
}

func winnerPrompt(res domain.JobResult) string {
	tags := make([]string, 0, len(res.Winners))
	for _, w := range res.Winners {
		tag := w.PayTag
		if tag == "" {
			tag = w.Username
		}
		tags = append(tags, tag)
	}
	return fmt.Sprintf("Announce the winners of a random pick: %s. Each wins $%.2f USDC.",
		strings.Join(tags, ", "), res.GrantAmount)
}

// ShortHash shortens a settlement reference for display.
func ShortHash(hash string) string {
	if len(hash) <= shortHashLen {
		return hash
	}
	return hash[:shortHashLen] + "..."
}

// Truncate caps text to the platform limit, marking the cut.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTweetLen {
		return text
	}
	return string(runes[:MaxTweetLen-3]) + "..."
}
