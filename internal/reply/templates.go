package reply

import (
	"math/rand"

	"monibot/internal/classify"
)

// Curated fallback template sets, one per reply category. These carry
// the product voice when the AI capability is unavailable, and are
// always preferred for error/skip categories.
var templates = map[classify.Category][]string{
	classify.Success: {
		"Transfer complete. USDC delivered to your MoniPay wallet.",
		"Done. Your USDC just landed. Welcome onchain.",
		"Transfer confirmed. You're officially on Base with MoniPay.",
		"Sent. Another successful transaction on Base.",
		"USDC delivered. That's how it works on MoniPay.",
	},
	classify.ErrorAllowance: {
		"You need to approve your MoniBot spending allowance first. Open MoniPay, then Settings, then MoniBot and set your allowance.",
		"Your allowance isn't set up yet. Go to MoniPay Settings under MoniBot to approve spending.",
		"Can't process this: no spending allowance found. Set it up in MoniPay under Settings, MoniBot.",
	},
	classify.ErrorBalance: {
		"Not enough USDC in your wallet. Fund your MoniPay account and try again.",
		"Insufficient balance. Top up your MoniPay wallet first, then resend.",
		"Your wallet balance is too low for this transfer. Add USDC to your MoniPay account.",
	},
	classify.ErrorTarget: {
		"That monitag doesn't exist. Double-check the spelling or ask the recipient to create a MoniPay account.",
		"Monitag not found. The recipient needs a MoniPay account before you can send to them.",
		"Can't find that monitag. Make sure they've registered on MoniPay.",
	},
	classify.LimitReached: {
		"Campaign is full. All spots have been claimed. Follow MoniBot for the next one.",
		"Too late, this campaign already hit its participant limit. Stay tuned for the next drop.",
		"All slots taken. You'll catch the next campaign.",
		"Campaign's at capacity. Better luck next time.",
	},
	classify.ErrorBlockchain: {
		"Transaction failed due to a network issue. Try again in a few minutes.",
		"Temporary blockchain hiccup. Our team is aware. Please retry shortly.",
		"Network congestion caused this to fail. Wait a moment and try again.",
	},
	classify.ErrorDuplicateGrant: {
		"You've already claimed from this campaign. One per person.",
		"Already sent to you for this campaign. Check your MoniPay balance.",
	},
	classify.ErrorTreasuryEmpty: {
		"Campaign funds are depleted. Check back for the next one.",
		"This campaign's budget is exhausted. More drops coming soon.",
	},
	classify.MaxRetries: {
		"We couldn't process this after multiple attempts. Check your MoniPay account for status.",
	},
	classify.SkipNoPayTag: {
		"Drop your monitag to claim. Need a MoniPay account? Create one first.",
		"Reply with your monitag to receive. No monitag = no transfer.",
	},
	classify.SkipCampaignInactive: {
		"This campaign has ended. Follow MoniBot for future drops.",
		"Campaign's closed. Stay tuned for the next one.",
	},
	classify.SkipDuplicate: {
		"You already received from this campaign. Check your MoniPay balance.",
		"One per person. You've already been sent USDC for this campaign.",
	},
	classify.SkipInvalidSyntax: {
		"Couldn't parse that. Use: @monibot send $5 to monitag",
		"Invalid format. Try: @monibot send $X to monitag",
	},
	classify.SkipSenderNotFound: {
		"You need a MoniPay account first. Create your monitag to use social payments.",
		"No MoniPay account found for you. Sign up and link your X account to send USDC.",
	},
	classify.Default: {
		"Check your MoniPay account for transaction details.",
		"Transaction processed. See your MoniPay account for the full receipt.",
	},
}

// Pick returns a random template for the category, falling back to the
// default set for unmapped categories.
func Pick(cat classify.Category) string {
	set, ok := templates[cat]
	if !ok || len(set) == 0 {
		set = templates[classify.Default]
	}
	return set[rand.Intn(len(set))]
}

// Templates returns the curated set for a category, for tests that
// assert a reply came from the curated copy.
func Templates(cat classify.Category) []string {
	if set, ok := templates[cat]; ok {
		return set
	}
	return templates[classify.Default]
}
