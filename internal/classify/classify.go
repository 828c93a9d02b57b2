// Package classify calls the external AI service that scores update
// text and produces weekly digests.
//
// The service is an OpenAI-compatible chat endpoint reached through
// langchaingo. Calls are stateless single round trips with no built-in
// retry; timeouts are the caller's responsibility via ctx. Failures are
// surfaced as ErrClassification with no finer taxonomy, because the
// feature the service powers is advisory: callers degrade to manual
// posting rather than blocking on it.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

var (
	// ErrClassification indicates the external service call failed.
	ErrClassification = errors.New("classification failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")
)

// Suggestion is a successful analysis of one drafted update. The shape
// is a tagged success value: a Suggestion either exists in full or the
// call failed, there is no partially-populated middle ground.
type Suggestion struct {
	RefinedText         string `json:"refinedUpdate"`
	IsGrowthOpportunity bool   `json:"isGrowthOpportunity"`
	OpportunityReason   string `json:"opportunityReason,omitempty"`
	FeedbackNeeded      bool   `json:"feedbackNeeded"`
	FeedbackReason      string `json:"feedbackReason,omitempty"`
}

// WeeklyDigest is the generated summary of one week of updates.
type WeeklyDigest struct {
	Summary             string   `json:"summary"`
	Highlights          []string `json:"highlights"`
	GrowthOpportunities []string `json:"growthOpportunities"`
}

// Classifier is the contract the lifecycle manager and digest generator
// program against.
type Classifier interface {
	Analyze(ctx context.Context, text, clientType string) (*Suggestion, error)
	SummarizeWeek(ctx context.Context, updateTexts []string, clientType string) (*WeeklyDigest, error)
}

// Config holds configuration for the classification client.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint base URL.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// APIKey authenticates against the endpoint. Optional for local
	// gateways.
	APIKey string

	// Temperature controls sampling. Zero means the provider default.
	Temperature float64
}

// ConfigFromEnv creates a Config from environment variables.
//
// Environment variables:
//   - CLASSIFIER_BASE_URL: endpoint base URL (default: https://api.openai.com/v1)
//   - CLASSIFIER_MODEL: chat model (default: gpt-4o-mini)
//   - CLASSIFIER_API_KEY: API key (optional)
func ConfigFromEnv() Config {
	baseURL := os.Getenv("CLASSIFIER_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	model := os.Getenv("CLASSIFIER_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	return Config{
		BaseURL:     baseURL,
		Model:       model,
		APIKey:      os.Getenv("CLASSIFIER_API_KEY"),
		Temperature: 0.7,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Client calls the classification service through langchaingo.
type Client struct {
	llm    llms.Model
	config Config
	logger *zap.Logger
}

// NewClient creates a classification client with the given
// configuration.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token, use placeholder for local gateways
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chat client: %w", err)
	}

	return &Client{
		llm:    llm,
		config: config,
		logger: logger.Named("classify"),
	}, nil
}

const suggestSystemPrompt = `You are an AI assistant for an Amazon agency. Analyze employee work updates and:
1. Suggest if this could be a growth opportunity for the client
2. Provide a refined version of the update that's client-friendly
3. Flag if feedback from the client might be needed

Keep responses concise and actionable. Format as JSON:
{
  "isGrowthOpportunity": boolean,
  "opportunityReason": "string or null",
  "refinedUpdate": "string",
  "feedbackNeeded": boolean,
  "feedbackReason": "string or null"
}`

const weeklySystemPrompt = `You are an AI assistant creating weekly summaries for Amazon agency clients. Generate a professional, engaging summary that:
1. Highlights key accomplishments
2. Notes any growth opportunities identified
3. Outlines next week's focus areas

Keep the tone professional but friendly. Format as JSON:
{
  "summary": "string",
  "highlights": ["string array of 3-5 key points"],
  "growthOpportunities": ["string array"]
}`

// Analyze submits one drafted update for classification.
//
// Returns a Suggestion on success or an error wrapping
// ErrClassification on any service or decode failure.
func (c *Client) Analyze(ctx context.Context, text, clientType string) (*Suggestion, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if clientType == "" {
		clientType = "general"
	}

	user := fmt.Sprintf("Client type: %s\nWork update: %s", clientType, text)
	content, err := c.complete(ctx, suggestSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var suggestion Suggestion
	if err := json.Unmarshal(extractJSON(content), &suggestion); err != nil {
		c.logger.Debug("undecodable analysis response", zap.String("content", content))
		return nil, fmt.Errorf("%w: decoding suggestion: %v", ErrClassification, err)
	}
	if suggestion.RefinedText == "" {
		suggestion.RefinedText = text
	}

	return &suggestion, nil
}

// SummarizeWeek generates a digest over a week's update texts.
func (c *Client) SummarizeWeek(ctx context.Context, updateTexts []string, clientType string) (*WeeklyDigest, error) {
	if len(updateTexts) == 0 {
		return nil, ErrEmptyInput
	}
	if clientType == "" {
		clientType = "general"
	}

	user := fmt.Sprintf("Client type: %s\nDaily updates this week:\n%s",
		clientType, strings.Join(updateTexts, "\n"))
	content, err := c.complete(ctx, weeklySystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var digest WeeklyDigest
	if err := json.Unmarshal(extractJSON(content), &digest); err != nil {
		c.logger.Debug("undecodable digest response", zap.String("content", content))
		return nil, fmt.Errorf("%w: decoding digest: %v", ErrClassification, err)
	}

	return &digest, nil
}

// complete performs one chat completion round trip.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}

	opts := []llms.CallOption{}
	if c.config.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.config.Temperature))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassification, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrClassification)
	}

	return resp.Choices[0].Content, nil
}

// fencedJSON matches a ```json fenced block in a completion.
var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls the JSON object out of a completion that may wrap
// it in markdown fences or surrounding prose.
func extractJSON(content string) []byte {
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		return []byte(m[1])
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return []byte(content[start : end+1])
	}
	return []byte(content)
}
