// Package reasoning provides the client for the external reasoning service
// that strategies and the repair mechanism consult. Requests are free-form
// prompts; responses are either unstructured text or JSON decoded against a
// caller-declared shape and validated before use, so a malformed response
// surfaces as a strategy failure rather than a crash.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConfig indicates the reasoning service cannot be reached
	// with the given configuration. Detected before a run starts.
	ErrInvalidConfig = errors.New("invalid reasoning config")

	// ErrMalformedResponse indicates the service returned output that does
	// not conform to the requested schema.
	ErrMalformedResponse = errors.New("malformed reasoning response")
)

// Client is the reasoning-service contract.
type Client interface {
	// Generate returns the service's unstructured text response.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateJSON requests a response conforming to the shape of out and
	// decodes into it. If out implements Validator, conformance beyond
	// mere JSON well-formedness is checked too.
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

// Validator lets a response type declare schema constraints beyond JSON
// decoding (required fields, value ranges).
type Validator interface {
	Validate() error
}

// Config holds the reasoning-service connection settings.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint. Empty means the
	// provider's default endpoint.
	BaseURL string

	// Model is the model identifier requests are sent to.
	Model string

	// APIKey authenticates requests. Required; a missing key is a
	// cannot-start condition, not a mid-run failure.
	APIKey string

	// RequestsPerSecond caps the request rate. Zero disables limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns sensible defaults. The API key always comes from
// configuration; there is no default.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		RequestsPerSecond: 2,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// LLM is the langchaingo-backed Client.
type LLM struct {
	model   llms.Model
	limiter *rate.Limiter
}

// New creates a reasoning client. Configuration problems are reported here,
// before any run starts.
func New(cfg Config) (*LLM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating reasoning model: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &LLM{model: model, limiter: limiter}, nil
}

// Generate implements Client.
func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt)
	if err != nil {
		return "", fmt.Errorf("reasoning request failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// jsonInstruction is appended to every structured request. Conformance is
// carried by the prompt and enforced by DecodeJSON afterwards, so a model
// that ignores the instruction still surfaces as a malformed response.
const jsonInstruction = "Respond with a single JSON value only, no prose and no code fences."

// GenerateJSON implements Client.
func (l *LLM) GenerateJSON(ctx context.Context, prompt string, out any) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt+"\n\n"+jsonInstruction)
	if err != nil {
		return fmt.Errorf("reasoning request failed: %w", err)
	}
	return DecodeJSON(text, out)
}

// DecodeJSON decodes a reasoning response into out, tolerating markdown
// code fences some models wrap JSON in, and runs the Validator check when
// out declares one.
func DecodeJSON(text string, out any) error {
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
