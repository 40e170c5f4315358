package social

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSettings struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{m: map[string]string{}}
}

func (s *memSettings) Setting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return "", errors.New("setting not found")
	}
	return v, nil
}

func (s *memSettings) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func newTwitterForTest(t *testing.T, baseURL string, settings SettingsStore) *Twitter {
	t.Helper()
	tw, err := NewTwitter(context.Background(), Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		AccessToken:  "tok_access",
		RefreshToken: "tok_refresh",
		BaseURL:      baseURL,
	}, settings)
	require.NoError(t, err)
	return tw
}

func TestPostReturnsTweetID(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/2/tweets", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"190001","text":"gm"}}`))
	}))
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, nil)
	id, err := tw.Post(context.Background(), "gm")
	require.NoError(t, err)
	assert.Equal(t, "190001", id)
	assert.Equal(t, "Bearer tok_access", gotAuth)
	assert.Equal(t, "gm", gotBody["text"])
	assert.NotContains(t, gotBody, "reply")
}

func TestReplySetsInReplyTo(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"data":{"id":"190002"}}`))
	}))
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, nil)
	id, err := tw.Reply(context.Background(), "111", "nice tx")
	require.NoError(t, err)
	assert.Equal(t, "190002", id)

	reply, ok := gotBody["reply"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "111", reply["in_reply_to_tweet_id"])
}

func TestNotFoundIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"title":"Not Found Error","detail":"Tweet with id 111 was deleted"}`))
	}))
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, nil)
	_, err := tw.Reply(context.Background(), "111", "nice tx")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, KindNotFound, apiErr.Kind)
	assert.Equal(t, "Tweet with id 111 was deleted", apiErr.Message)
	assert.True(t, IsTerminal(err))
	assert.False(t, IsRateLimited(err))
}

func TestForbiddenIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"You are not allowed to reply to this Tweet"}`))
	}))
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, nil)
	_, err := tw.Reply(context.Background(), "111", "nice tx")
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
}

func TestRateLimitClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"Too Many Requests"}`))
	}))
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, nil)
	_, err := tw.Post(context.Background(), "gm")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsTerminal(err))
}

func TestUnauthorizedRefreshesAndRetries(t *testing.T) {
	settings := newMemSettings()
	var mu sync.Mutex
	tweetCalls := 0
	refreshCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tweetCalls++
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer tok_fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Unauthorized"}`))
			return
		}
		w.Write([]byte(`{"data":{"id":"190003"}}`))
	})
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		refreshCalls++
		mu.Unlock()
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "cid", user)
		require.Equal(t, "csecret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "tok_refresh", r.PostForm.Get("refresh_token"))
		w.Write([]byte(`{"access_token":"tok_fresh","refresh_token":"tok_rotated"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, settings)
	id, err := tw.Post(context.Background(), "gm")
	require.NoError(t, err)
	assert.Equal(t, "190003", id)

	mu.Lock()
	assert.Equal(t, 2, tweetCalls, "401 then retry with fresh token")
	assert.Equal(t, 1, refreshCalls)
	mu.Unlock()

	// The rotated refresh token is persisted for the next restart.
	stored, err := settings.Setting(context.Background(), "twitter_oauth2_refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "tok_rotated", stored)
}

func TestRefreshFailurePropagatesOriginalError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Unauthorized"}`))
	})
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, nil)
	_, err := tw.Post(context.Background(), "gm")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, KindAuth, apiErr.Kind)
}

func TestStoredRefreshTokenWinsOverConfig(t *testing.T) {
	settings := newMemSettings()
	require.NoError(t, settings.SetSetting(context.Background(), "twitter_oauth2_refresh_token", "tok_stored"))

	var gotRefresh string
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok_fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Unauthorized"}`))
			return
		}
		w.Write([]byte(`{"data":{"id":"190004"}}`))
	})
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotRefresh = r.PostForm.Get("refresh_token")
		w.Write([]byte(`{"access_token":"tok_fresh"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tw := newTwitterForTest(t, srv.URL, settings)
	_, err := tw.Post(context.Background(), "gm")
	require.NoError(t, err)
	assert.Equal(t, "tok_stored", gotRefresh)
}

func TestMissingCredentialsRejected(t *testing.T) {
	_, err := NewTwitter(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestIsTerminalPatternMatch(t *testing.T) {
	assert.True(t, IsTerminal(errors.New("this tweet was deleted")))
	assert.True(t, IsTerminal(errors.New("403 Forbidden")))
	assert.True(t, IsTerminal(errors.New("author has blocked you")))
	assert.False(t, IsTerminal(errors.New("connection reset by peer")))
	assert.False(t, IsTerminal(errors.New("twitter: 500 internal error")))
}
