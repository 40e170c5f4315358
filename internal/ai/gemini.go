// Package ai wraps the Gemini text-generation capability. Callers
// treat any failure as "use the curated fallback"; rate-limit signals
// are detectable via IsRateLimited and feed the backoff controller.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Action selects the kind of text being generated.
type Action string

const (
	ActionReply    Action = "generate-reply"
	ActionCampaign Action = "generate-campaign"
	ActionWinner   Action = "generate-winner"
)

// Client generates social copy. Implementations return an error (never
// an empty string with nil error) when no text could be produced.
type Client interface {
	Generate(ctx context.Context, action Action, prompt string) (string, error)
}

const defaultModel = "gemini-2.0-flash"

// Persona instructions per action. MoniBot is the "stressed AI VP of
// Growth" voice used across all campaign copy.
var systemPrompts = map[Action]string{
	ActionReply: "You are MoniBot, an AI VP of Growth for MoniPay on Base. " +
		"Write a single short, friendly tweet reply about the transaction described. " +
		"No URLs, no @ mentions, under 200 characters.",
	ActionCampaign: "You are MoniBot, a slightly stressed AI VP of Growth running USDC grant campaigns on Base. " +
		"Write a single campaign announcement tweet with personality. No URLs, no @ mentions.",
	ActionWinner: "You are MoniBot announcing the winners of a random pick. " +
		"Write a single celebratory tweet. No URLs.",
}

// Gemini is the production Client on top of the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, action Action, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.9),
		MaxOutputTokens: 120,
	}
	if system, ok := systemPrompts[action]; ok {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("genai %s: %w", action, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("genai %s: empty response", action)
	}
	return text, nil
}

// IsRateLimited reports whether err is a quota / rate-limit signal
// (HTTP 429 or the payment-required 402 some quota backends return).
// Only these escalate the backoff controller.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code == 402
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
