package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"monibot/internal/domain"
	"monibot/internal/store"
)

func newTestServer(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.EnsureSchema(db))
	st := store.New(db)
	return NewServer(st), st
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "monibot_up 1")
}

func TestCreateJobAndFetch(t *testing.T) {
	h, st := newTestServer(t)

	body := `{"type":"campaign_post","payload":{"grant_amount":1.5,"max_participants":4}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	// Persisted as a pending, immediately due job.
	j, err := st.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobPending, j.Status)
	assert.InDelta(t, 1.5, j.Payload.GrantAmount, 1e-9)
	assert.Equal(t, 4, j.Payload.MaxParticipants)
	due, err := st.DuePendingJobs(context.Background(), domain.JobTypeCampaignPost, time.Now().Add(time.Second), 5)
	require.NoError(t, err)
	require.Len(t, due, 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched["id"])
	assert.Equal(t, "campaign_post", fetched["type"])
	assert.Equal(t, "pending", fetched["status"])
}

func TestCreateJobValidation(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"payload":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/job_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTransactions(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.InsertTransaction(ctx, domain.TransactionRecord{
		ID:     "tx_1",
		Type:   "grant",
		Amount: 1.0,
		TxHash: "0xabc",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "tx_1", out[0]["id"])
	assert.Equal(t, "0xabc", out[0]["tx_hash"])
	assert.Equal(t, false, out[0]["replied"])
}

func TestStats(t *testing.T) {
	h, st := newTestServer(t)
	require.NoError(t, st.IncrementMissionStats(context.Background(), 2.5))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.InDelta(t, 2.5, out["spent_budget"].(float64), 1e-9)
	assert.Equal(t, float64(1), out["users_onboarded"])
}

func TestQueryIntBounds(t *testing.T) {
	mk := func(q string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/api/transactions"+q, nil)
	}
	assert.Equal(t, 20, queryInt(mk(""), "limit", 20))
	assert.Equal(t, 10, queryInt(mk("?limit=10"), "limit", 20))
	assert.Equal(t, 20, queryInt(mk("?limit=0"), "limit", 20))
	assert.Equal(t, 20, queryInt(mk("?limit=500"), "limit", 20))
	assert.Equal(t, 20, queryInt(mk("?limit=abc"), "limit", 20))
}
