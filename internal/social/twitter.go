// Package social is the Twitter posting capability: post a tweet,
// reply to one, and classify the three failure classes the delivery
// loops care about (rate-limited, auth, not-found/forbidden).
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind is the failure class of an APIError.
type Kind int

const (
	KindOther Kind = iota
	KindRateLimited
	KindAuth
	KindNotFound // referenced tweet deleted, protected, or forbidden
)

type APIError struct {
	StatusCode int
	Kind       Kind
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitter: %d %s", e.StatusCode, e.Message)
}

var terminalMarkers = []string{"not found", "forbidden", "blocked", "deleted", "unauthorized"}

// IsTerminal reports whether a delivery error can never succeed on
// retry (the referenced tweet is gone or inaccessible). Unknown errors
// fall back to a pattern match over the message.
func IsTerminal(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range terminalMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsRateLimited reports whether the posting capability itself is
// throttling us.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited
}

// Client is the posting capability consumed by the two loops.
type Client interface {
	Post(ctx context.Context, text string) (string, error)
	Reply(ctx context.Context, tweetID, text string) (string, error)
}

// SettingsStore persists the rotated OAuth2 refresh token across
// restarts.
type SettingsStore interface {
	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

const refreshTokenKey = "twitter_oauth2_refresh_token"

type Config struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	BaseURL      string // override in tests
	TokenURL     string
}

// Twitter is the OAuth2 client over the v2 API. A 401 triggers one
// token refresh and retry; the rotated refresh token is persisted to
// the settings table.
type Twitter struct {
	http     *http.Client
	baseURL  string
	tokenURL string
	clientID string
	secret   string
	settings SettingsStore

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewTwitter(ctx context.Context, cfg Config, settings SettingsStore) (*Twitter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("twitter client id and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twitter.com"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = cfg.BaseURL + "/2/oauth2/token"
	}
	t := &Twitter{
		http:         &http.Client{Timeout: 30 * time.Second},
		baseURL:      cfg.BaseURL,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		secret:       cfg.ClientSecret,
		settings:     settings,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}
	// A token rotated during a previous run wins over the env value.
	if settings != nil {
		if stored, err := settings.Setting(ctx, refreshTokenKey); err == nil && stored != "" {
			t.refreshToken = stored
		}
	}
	return t, nil
}

func (t *Twitter) Post(ctx context.Context, text string) (string, error) {
	return t.createTweet(ctx, map[string]any{"text": text})
}

func (t *Twitter) Reply(ctx context.Context, tweetID, text string) (string, error) {
	return t.createTweet(ctx, map[string]any{
		"text":  text,
		"reply": map[string]any{"in_reply_to_tweet_id": tweetID},
	})
}

func (t *Twitter) createTweet(ctx context.Context, body map[string]any) (string, error) {
	id, err := t.doCreate(ctx, body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindAuth {
		if rerr := t.refresh(ctx); rerr != nil {
			return "", err
		}
		return t.doCreate(ctx, body)
	}
	return id, err
}

func (t *Twitter) doCreate(ctx context.Context, body map[string]any) (string, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/2/tweets", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	t.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+t.accessToken)
	t.mu.Unlock()

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return "", classifyStatus(resp.StatusCode, raw)
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode tweet response: %w", err)
	}
	if out.Data.ID == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Kind: KindOther, Message: "no tweet id in response"}
	}
	return out.Data.ID, nil
}

func classifyStatus(status int, raw []byte) *APIError {
	msg := string(raw)
	var detail struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		msg = detail.Detail
	}
	kind := KindOther
	switch status {
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusUnauthorized:
		kind = KindAuth
	case http.StatusForbidden, http.StatusNotFound:
		kind = KindNotFound
	}
	return &APIError{StatusCode: status, Kind: kind, Message: msg}
}

func (t *Twitter) refresh(ctx context.Context) error {
	t.mu.Lock()
	refreshToken := t.refreshToken
	t.mu.Unlock()
	if refreshToken == "" {
		return errors.New("no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", t.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.clientID, t.secret)

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, raw)
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return errors.New("token refresh returned no access token")
	}

	t.mu.Lock()
	t.accessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		t.refreshToken = tokens.RefreshToken
	}
	t.mu.Unlock()

	if t.settings != nil && tokens.RefreshToken != "" {
		if err := t.settings.SetSetting(ctx, refreshTokenKey, tokens.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("failed to persist rotated refresh token")
		}
	}
	log.Info().Msg("twitter access token refreshed")
	return nil
}
