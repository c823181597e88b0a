package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GenerationConfig parameterizes a single provider call.
type GenerationConfig struct {
	Temperature      float64
	TopP             float64
	TopK             int
	MaxOutputTokens  int
	ResponseMIMEType string
	Deadline         time.Duration
}

// DefaultGenerationConfig returns the config used for résumé extraction:
// low temperature for deterministic structure, JSON-constrained output.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:      0.1,
		TopP:             0.9,
		MaxOutputTokens:  4096,
		ResponseMIMEType: "application/json",
		Deadline:         45 * time.Second,
	}
}

// Provider is the sum-type boundary between the two supported LLM
// backends (Anthropic, Bedrock): each variant implements Generate and
// nothing else. The Queue Engine never knows which provider is wired in.
type Provider interface {
	// Generate runs prompt through the model and returns the raw text
	// response along with the number of tokens billed for the call. The
	// count is reported whether or not extraction later succeeds; the
	// Client charges it to the quota ledger only once a response parses.
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (text string, tokensUsed int, err error)

	// Name identifies the provider for metrics and logging.
	Name() string
}

// QuotaChecker is the narrow slice of the quota ledger the Client needs:
// pre-flight daily-request and monthly-token checks and a post-success
// usage record.
type QuotaChecker interface {
	CheckDaily(ctx context.Context, principalID, apiKind string) (bool, int, error)
	CheckMonthlyTokens(ctx context.Context, principalID, apiKind string) (bool, int, error)
	Record(ctx context.Context, principalID, apiKind string, tokens int) error
}

// Client is the Structured Extraction Pipeline: it wraps a single
// Provider variant with quota enforcement, failure classification, and
// one bounded repair retry on malformed JSON.
type Client struct {
	provider Provider
	quota    QuotaChecker
	apiKind  string
	deadline time.Duration
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithDeadline overrides the default 45-second deadline shared by the
// initial generation and the repair retry (one budget for both calls).
func WithDeadline(d time.Duration) Option {
	return func(c *Client) { c.deadline = d }
}

// New builds a Client. apiKind identifies this call class to the quota
// ledger (e.g. "extraction").
func New(provider Provider, quota QuotaChecker, apiKind string, opts ...Option) *Client {
	c := &Client{provider: provider, quota: quota, apiKind: apiKind, deadline: DefaultGenerationConfig().Deadline}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract runs résumé text through the configured provider and returns a
// normalized Record. Both the daily-request and monthly-token quota
// checks run before the call regardless of outcome; usage is only
// recorded after a successful call — failed calls never charge quota.
// Unavailable and timeout failures are never retried; a single
// malformed-JSON response is retried once with a repair prompt before
// being classified as a parse failure.
func (c *Client) Extract(ctx context.Context, principalID, text string) (Record, error) {
	allowed, _, err := c.quota.CheckDaily(ctx, principalID, c.apiKind)
	if err != nil {
		return Record{}, fmt.Errorf("checking extraction quota: %w", err)
	}
	if !allowed {
		return Record{}, &Error{Kind: FailureQuotaExhausted, Message: "daily extraction quota exhausted"}
	}

	allowed, _, err = c.quota.CheckMonthlyTokens(ctx, principalID, c.apiKind)
	if err != nil {
		return Record{}, fmt.Errorf("checking monthly token quota: %w", err)
	}
	if !allowed {
		return Record{}, &Error{Kind: FailureQuotaExhausted, Message: "monthly token quota exhausted"}
	}

	cfg := DefaultGenerationConfig()
	deadlineCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	raw, tokens, err := c.provider.Generate(deadlineCtx, BuildPrompt(text), cfg)
	if err != nil {
		return Record{}, classifyProviderError(err)
	}

	record, parseErr := parseResponse(raw)
	if parseErr != nil {
		raw, tokens2, repairErr := c.provider.Generate(deadlineCtx, BuildRepairPrompt(text, raw, parseErr), cfg)
		tokens += tokens2
		if repairErr != nil {
			return Record{}, classifyProviderError(repairErr)
		}
		record, parseErr = parseResponse(raw)
		if parseErr != nil {
			return Record{}, parseErr
		}
	}

	if err := c.quota.Record(ctx, principalID, c.apiKind, tokens); err != nil {
		return Record{}, fmt.Errorf("recording extraction quota usage: %w", err)
	}

	return Normalize(record), nil
}

func classifyProviderError(err error) error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case isDeadlineErr(err):
		return &Error{Kind: FailureTimeout, Message: err.Error()}
	default:
		return &Error{Kind: FailureUnavailable, Message: err.Error()}
	}
}

func isDeadlineErr(err error) bool {
	type deadline interface {
		Timeout() bool
	}
	var d deadline
	return errors.As(err, &d) && d.Timeout()
}

// parseResponse turns a raw provider response into a Record, classifying
// malformed JSON as FailureParse and a well-formed-but-incomplete
// document (missing one of the six top-level sections) as FailureSchema.
func parseResponse(raw string) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Record{}, &Error{Kind: FailureParse, Message: err.Error()}
	}

	for _, key := range []string{"personalInfo", "experience", "skills", "education", "projects", "certifications"} {
		if _, ok := fields[key]; !ok {
			return Record{}, &Error{Kind: FailureSchema, Message: fmt.Sprintf("missing required field %q", key)}
		}
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return Record{}, &Error{Kind: FailureSchema, Message: err.Error()}
	}
	return record, nil
}
