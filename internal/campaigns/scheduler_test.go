package campaigns

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"monibot/internal/domain"
	"monibot/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.EnsureSchema(db))
	return store.New(db)
}

func TestTriggerEnqueuesDueCampaignJob(t *testing.T) {
	st := newTestStore(t)
	s := NewScheduler(st, 1.5, 5)

	s.trigger("0 9 * * 1-5")

	due, err := st.DuePendingJobs(context.Background(), domain.JobTypeCampaignPost, time.Now().Add(time.Second), 3)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.InDelta(t, 1.5, due[0].Payload.GrantAmount, 1e-9)
	assert.Equal(t, 5, due[0].Payload.MaxParticipants)
	assert.Equal(t, "0 9 * * 1-5", due[0].Payload.TimeSlot)
}

func TestAddSlotRejectsBadSpec(t *testing.T) {
	s := NewScheduler(newTestStore(t), 1, 5)
	assert.Error(t, s.AddSlot("not a cron"))
	assert.NoError(t, s.AddSlot("0 16 * * 1-5"))
}

func TestValidateSpec(t *testing.T) {
	assert.NoError(t, ValidateSpec("0 9 * * 1-5"))
	assert.Error(t, ValidateSpec("99 99 * *"))
}
