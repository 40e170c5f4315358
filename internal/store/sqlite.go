package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"monibot/internal/domain"
)

var ErrNotFound = errors.New("not found")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS monibot_transactions (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL DEFAULT 'p2p_command',
  amount REAL NOT NULL DEFAULT 0,
  fee REAL NOT NULL DEFAULT 0,
  tx_hash TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  tweet_id TEXT,
  payer_pay_tag TEXT NOT NULL DEFAULT '',
  recipient_pay_tag TEXT NOT NULL DEFAULT '',
  replied INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  error_reason TEXT,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tx_unreplied ON monibot_transactions(replied, retry_count, created_at);
CREATE TABLE IF NOT EXISTS scheduled_jobs (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','completed')) DEFAULT 'pending',
  payload BLOB NOT NULL DEFAULT '{}',
  result BLOB NOT NULL DEFAULT '{}',
  scheduled_at DATETIME NOT NULL,
  completed_at DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON scheduled_jobs(status, type, scheduled_at);
CREATE TABLE IF NOT EXISTS campaigns (
  id TEXT PRIMARY KEY,
  tweet_id TEXT NOT NULL,
  message TEXT NOT NULL,
  type TEXT NOT NULL DEFAULT 'grant',
  status TEXT NOT NULL DEFAULT 'active',
  grant_amount REAL NOT NULL DEFAULT 0,
  max_participants INTEGER NOT NULL DEFAULT 0,
  budget_allocated REAL NOT NULL DEFAULT 0,
  posted_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS monibot_mission_stats (
  id INTEGER PRIMARY KEY CHECK(id = 1),
  spent_budget REAL NOT NULL DEFAULT 0,
  users_onboarded INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := db.Exec(schema)
	return err
}

type Store interface {
	// Transaction queue
	InsertTransaction(ctx context.Context, t domain.TransactionRecord) (string, error)
	UnrepliedTransactions(ctx context.Context, maxRetry, limit int) ([]domain.TransactionRecord, error)
	MarkReplied(ctx context.Context, id, errorReason string) error
	IncrementRetry(ctx context.Context, id string) error
	SweepExceededRetries(ctx context.Context, maxRetry int) (int, error)
	RecentTransactions(ctx context.Context, limit int) ([]domain.TransactionRecord, error)

	// Scheduled jobs
	CreateJob(ctx context.Context, j domain.ScheduledJob) (string, error)
	GetJob(ctx context.Context, id string) (domain.ScheduledJob, error)
	DuePendingJobs(ctx context.Context, jobType string, now time.Time, limit int) ([]domain.ScheduledJob, error)
	CompleteJob(ctx context.Context, id string, now time.Time, result domain.JobResult) (bool, error)
	DeliverableJobs(ctx context.Context, limit int) ([]domain.ScheduledJob, error)
	MergeJobResult(ctx context.Context, id string, patch domain.ResultPatch) error

	// Campaign log
	InsertCampaign(ctx context.Context, c domain.Campaign) (string, error)
	ListCampaigns(ctx context.Context, limit int) ([]domain.Campaign, error)

	// Mission stats
	IncrementMissionStats(ctx context.Context, spent float64) error
	MissionStats(ctx context.Context) (domain.MissionStats, error)

	// Settings KV (credential refresh tokens)
	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

type sqliteStore struct{ db *sql.DB }

func New(db *sql.DB) Store { return &sqliteStore{db: db} }

const txColumns = `id,type,amount,fee,tx_hash,status,tweet_id,payer_pay_tag,recipient_pay_tag,replied,retry_count,error_reason,created_at`

func scanTransaction(row interface{ Scan(...any) error }) (domain.TransactionRecord, error) {
	var t domain.TransactionRecord
	var tweetID, errReason sql.NullString
	err := row.Scan(&t.ID, &t.Type, &t.Amount, &t.Fee, &t.TxHash, &t.Status, &tweetID,
		&t.PayerPayTag, &t.RecipientPayTag, &t.Replied, &t.RetryCount, &errReason, &t.CreatedAt)
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	if tweetID.Valid {
		s := tweetID.String
		t.TweetID = &s
	}
	if errReason.Valid {
		s := errReason.String
		t.ErrorReason = &s
	}
	return t, nil
}

func (s *sqliteStore) InsertTransaction(ctx context.Context, t domain.TransactionRecord) (string, error) {
	id := t.ID
	if id == "" {
		id = "tx_" + uuid.NewString()
	}
	var tweetID any
	if t.TweetID != nil {
		tweetID = *t.TweetID
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO monibot_transactions (id,type,amount,fee,tx_hash,status,tweet_id,payer_pay_tag,recipient_pay_tag,replied,retry_count,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
`, id, t.Type, t.Amount, t.Fee, t.TxHash, t.Status, tweetID, t.PayerPayTag, t.RecipientPayTag, t.Replied, t.RetryCount, created.UTC())
	return id, err
}

func (s *sqliteStore) UnrepliedTransactions(ctx context.Context, maxRetry, limit int) ([]domain.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+txColumns+`
FROM monibot_transactions
WHERE replied=0 AND retry_count < ?
ORDER BY created_at ASC
LIMIT ?`, maxRetry, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionRecord
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkReplied(ctx context.Context, id, errorReason string) error {
	var reason any
	if errorReason != "" {
		reason = errorReason
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE monibot_transactions SET replied=1, error_reason=? WHERE id=?`, reason, id)
	return err
}

func (s *sqliteStore) IncrementRetry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE monibot_transactions SET retry_count = retry_count + 1 WHERE id=?`, id)
	return err
}

// SweepExceededRetries forces records at or above the retry ceiling
// into replied=1 so they are never fetched again.
func (s *sqliteStore) SweepExceededRetries(ctx context.Context, maxRetry int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE monibot_transactions
SET replied=1, error_reason='MAX_RETRIES_EXCEEDED'
WHERE replied=0 AND retry_count >= ?`, maxRetry)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) RecentTransactions(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+txColumns+`
FROM monibot_transactions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionRecord
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const jobColumns = `id,type,status,payload,result,scheduled_at,completed_at,created_at,updated_at`

func scanJob(row interface{ Scan(...any) error }) (domain.ScheduledJob, error) {
	var j domain.ScheduledJob
	var payload, result []byte
	var completed sql.NullTime
	err := row.Scan(&j.ID, &j.Type, &j.Status, &payload, &result, &j.ScheduledAt, &completed, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return domain.ScheduledJob{}, err
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return domain.ScheduledJob{}, fmt.Errorf("decode job payload %s: %w", j.ID, err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &j.Result); err != nil {
			return domain.ScheduledJob{}, fmt.Errorf("decode job result %s: %w", j.ID, err)
		}
	}
	return j, nil
}

func (s *sqliteStore) CreateJob(ctx context.Context, j domain.ScheduledJob) (string, error) {
	id := j.ID
	if id == "" {
		id = "job_" + uuid.NewString()
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return "", err
	}
	result, err := json.Marshal(j.Result)
	if err != nil {
		return "", err
	}
	var completed any
	switch {
	case j.CompletedAt != nil:
		completed = j.CompletedAt.UTC()
	case j.Status == domain.JobCompleted && !j.ScheduledAt.IsZero():
		// A completed job must carry a completion time or it sorts
		// ahead of everything in the delivery order.
		completed = j.ScheduledAt.UTC()
	case j.Status == domain.JobCompleted:
		completed = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO scheduled_jobs (id,type,status,payload,result,scheduled_at,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, id, j.Type, j.Status, payload, result, j.ScheduledAt.UTC(), completed)
	return id, err
}

func (s *sqliteStore) GetJob(ctx context.Context, id string) (domain.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id=?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScheduledJob{}, ErrNotFound
	}
	return j, err
}

func (s *sqliteStore) DuePendingJobs(ctx context.Context, jobType string, now time.Time, limit int) ([]domain.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM scheduled_jobs
WHERE status='pending' AND type=? AND scheduled_at <= ?
ORDER BY scheduled_at ASC
LIMIT ?`, jobType, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CompleteJob promotes a pending job to completed. The WHERE clause on
// status makes the promotion atomic: the second of two racing callers
// sees zero rows affected and reports false.
func (s *sqliteStore) CompleteJob(ctx context.Context, id string, now time.Time, result domain.JobResult) (bool, error) {
	encoded, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE scheduled_jobs
SET status='completed', completed_at=?, result=?, updated_at=CURRENT_TIMESTAMP
WHERE id=? AND status='pending'`, now.UTC(), encoded, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeliverableJobs returns completed jobs still awaiting social
// delivery. The eligibility filter lives in SQL so already-posted jobs
// never occupy the per-cycle fetch window.
func (s *sqliteStore) DeliverableJobs(ctx context.Context, limit int) ([]domain.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM scheduled_jobs
WHERE status='completed'
  AND json_extract(result,'$.ready_for_social')=1
  AND json_extract(result,'$.social_posted') IS NOT 1
ORDER BY completed_at ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]domain.ScheduledJob, error) {
	var out []domain.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MergeJobResult applies a field-wise patch to the job's result map
// without clobbering fields written by earlier passes.
func (s *sqliteStore) MergeJobResult(ctx context.Context, id string, patch domain.ResultPatch) error {
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	patch.Apply(&j.Result)
	encoded, err := json.Marshal(j.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET result=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, encoded, id)
	return err
}

func (s *sqliteStore) InsertCampaign(ctx context.Context, c domain.Campaign) (string, error) {
	id := c.ID
	if id == "" {
		id = "cmp_" + uuid.NewString()
	}
	if c.Type == "" {
		c.Type = "grant"
	}
	if c.Status == "" {
		c.Status = "active"
	}
	posted := c.PostedAt
	if posted.IsZero() {
		posted = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO campaigns (id,tweet_id,message,type,status,grant_amount,max_participants,budget_allocated,posted_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, id, c.TweetID, c.Message, c.Type, c.Status, c.GrantAmount, c.MaxParticipants, c.BudgetAllocated, posted.UTC())
	return id, err
}

func (s *sqliteStore) ListCampaigns(ctx context.Context, limit int) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,tweet_id,message,type,status,grant_amount,max_participants,budget_allocated,posted_at
FROM campaigns ORDER BY posted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.TweetID, &c.Message, &c.Type, &c.Status,
			&c.GrantAmount, &c.MaxParticipants, &c.BudgetAllocated, &c.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IncrementMissionStats adds one settled transaction to the singleton.
// The UPDATE is the atomic increment path; when the row does not exist
// yet it falls back to read-then-insert, matching the lazy creation of
// the singleton.
func (s *sqliteStore) IncrementMissionStats(ctx context.Context, spent float64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE monibot_mission_stats
SET spent_budget = spent_budget + ?, users_onboarded = users_onboarded + 1
WHERE id=1`, spent)
	if err == nil {
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	// Fallback: read current row, insert if absent.
	var cur domain.MissionStats
	row := s.db.QueryRowContext(ctx,
		`SELECT spent_budget, users_onboarded FROM monibot_mission_stats WHERE id=1`)
	scanErr := row.Scan(&cur.SpentBudget, &cur.UsersOnboarded)
	if errors.Is(scanErr, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO monibot_mission_stats (id, spent_budget, users_onboarded) VALUES (1, ?, 1)`, spent)
		return err
	}
	if scanErr != nil {
		return scanErr
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE monibot_mission_stats SET spent_budget=?, users_onboarded=? WHERE id=1`,
		cur.SpentBudget+spent, cur.UsersOnboarded+1)
	return err
}

func (s *sqliteStore) MissionStats(ctx context.Context) (domain.MissionStats, error) {
	var st domain.MissionStats
	row := s.db.QueryRowContext(ctx,
		`SELECT spent_budget, users_onboarded FROM monibot_mission_stats WHERE id=1`)
	err := row.Scan(&st.SpentBudget, &st.UsersOnboarded)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MissionStats{}, nil
	}
	return st, err
}

func (s *sqliteStore) Setting(ctx context.Context, key string) (string, error) {
	var v string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key)
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *sqliteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings (key, value, updated_at) VALUES (?,?,CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`, key, value)
	return err
}
