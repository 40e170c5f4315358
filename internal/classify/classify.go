// Package classify maps a transaction's outcome code and status to a
// reply category. The mapping is total: unknown codes land on Default,
// never an error.
package classify

import (
	"strings"

	"monibot/internal/domain"
)

type Category string

const (
	Success              Category = "success"
	LimitReached         Category = "limit_reached"
	ErrorAllowance       Category = "error_allowance"
	ErrorBalance         Category = "error_balance"
	ErrorTarget          Category = "error_target"
	ErrorDuplicateGrant  Category = "error_duplicate_grant"
	ErrorTreasuryEmpty   Category = "error_treasury_empty"
	ErrorBlockchain      Category = "error_blockchain"
	MaxRetries           Category = "max_retries"
	SkipNoPayTag         Category = "skip_no_paytag"
	SkipCampaignInactive Category = "skip_campaign_inactive"
	SkipDuplicate        Category = "skip_duplicate"
	SkipInvalidSyntax    Category = "skip_invalid_syntax"
	SkipSenderNotFound   Category = "skip_sender_not_found"
	Default              Category = "default"
)

// Curated reports whether the category has a specific curated reply,
// i.e. it is neither a settled success nor the default bucket. These
// replies are judged more actionable than a generated one.
func (c Category) Curated() bool { return c != Success && c != Default }

// Classify maps a record to its reply category.
func Classify(tx domain.TransactionRecord) Category {
	// Status takes precedence over the outcome code.
	if tx.Status == "limit_reached" {
		return LimitReached
	}

	outcome := tx.TxHash
	if strings.HasPrefix(outcome, domain.HashPrefix) {
		return Success
	}

	switch outcome {
	case "LIMIT_REACHED":
		return LimitReached
	case "ERROR_ALLOWANCE":
		return ErrorAllowance
	case "ERROR_BALANCE":
		return ErrorBalance
	case "ERROR_TARGET_NOT_FOUND":
		return ErrorTarget
	case "ERROR_DUPLICATE_GRANT":
		return ErrorDuplicateGrant
	case "ERROR_TREASURY_EMPTY":
		return ErrorTreasuryEmpty
	case "ERROR_SENDER_NOT_FOUND":
		return SkipSenderNotFound
	case "SKIP_NO_PAYTAG":
		return SkipNoPayTag
	case "SKIP_CAMPAIGN_INACTIVE":
		return SkipCampaignInactive
	case "SKIP_DUPLICATE_GRANT_DB", "SKIP_DUPLICATE_GRANT_ONCHAIN", "SKIP_ALREADY_ONCHAIN":
		return SkipDuplicate
	case "SKIP_INVALID_SYNTAX":
		return SkipInvalidSyntax
	}

	if strings.Contains(outcome, "ERROR_BLOCKCHAIN") {
		return ErrorBlockchain
	}
	if strings.Contains(outcome, "MAX_RETRIES") {
		return MaxRetries
	}
	return Default
}
