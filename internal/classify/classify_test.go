package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"monibot/internal/domain"
)

func tx(hash, status string) domain.TransactionRecord {
	return domain.TransactionRecord{TxHash: hash, Status: status}
}

func TestClassifyKnownCodes(t *testing.T) {
	cases := []struct {
		hash   string
		status string
		want   Category
	}{
		{"0xabc123def4567890abcdef", "", Success},
		{"0x", "", Success},
		{"LIMIT_REACHED", "", LimitReached},
		{"ERROR_ALLOWANCE", "", ErrorAllowance},
		{"ERROR_BALANCE", "", ErrorBalance},
		{"ERROR_TARGET_NOT_FOUND", "", ErrorTarget},
		{"ERROR_DUPLICATE_GRANT", "", ErrorDuplicateGrant},
		{"ERROR_TREASURY_EMPTY", "", ErrorTreasuryEmpty},
		{"ERROR_SENDER_NOT_FOUND", "", SkipSenderNotFound},
		{"ERROR_BLOCKCHAIN", "", ErrorBlockchain},
		{"ERROR_BLOCKCHAIN_TIMEOUT", "", ErrorBlockchain},
		{"MAX_RETRIES_EXCEEDED", "", MaxRetries},
		{"SKIP_NO_PAYTAG", "", SkipNoPayTag},
		{"SKIP_CAMPAIGN_INACTIVE", "", SkipCampaignInactive},
		{"SKIP_DUPLICATE_GRANT_DB", "", SkipDuplicate},
		{"SKIP_DUPLICATE_GRANT_ONCHAIN", "", SkipDuplicate},
		{"SKIP_ALREADY_ONCHAIN", "", SkipDuplicate},
		{"SKIP_INVALID_SYNTAX", "", SkipInvalidSyntax},
	}
	for _, c := range cases {
		t.Run(c.hash, func(t *testing.T) {
			assert.Equal(t, c.want, Classify(tx(c.hash, c.status)))
		})
	}
}

func TestClassifyStatusTakesPrecedence(t *testing.T) {
	// A limit_reached status wins even over a settlement hash.
	assert.Equal(t, LimitReached, Classify(tx("0xabc123", "limit_reached")))
	assert.Equal(t, LimitReached, Classify(tx("ERROR_BALANCE", "limit_reached")))
}

func TestClassifyUnknownCodesMapToDefault(t *testing.T) {
	unknown := []string{"", "WAT", "ERROR_UNKNOWN_THING", "skip_no_paytag", "1234567890"}
	for _, code := range unknown {
		assert.Equal(t, Default, Classify(tx(code, "")), "code %q", code)
	}
}

func TestCurated(t *testing.T) {
	assert.False(t, Success.Curated())
	assert.False(t, Default.Curated())
	assert.True(t, SkipNoPayTag.Curated())
	assert.True(t, ErrorBalance.Curated())
	assert.True(t, LimitReached.Curated())
}
