package reasoning

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing model", func(c *Config) { c.Model = "" }, true},
		{"missing api key", func(c *Config) { c.APIKey = "" }, true},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.APIKey = "test-key"
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNew_RejectsMissingCredentials(t *testing.T) {
	_, err := New(Config{Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type analysisOut struct {
	Conclusion   string  `json:"conclusion"`
	NoveltyScore float64 `json:"novelty_score"`
}

func (a *analysisOut) Validate() error {
	if a.NoveltyScore < 0 || a.NoveltyScore > 1 {
		return fmt.Errorf("novelty_score out of range: %v", a.NoveltyScore)
	}
	return nil
}

func TestDecodeJSON(t *testing.T) {
	var out analysisOut
	err := DecodeJSON(`{"conclusion":"ok","novelty_score":0.8}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Conclusion)
}

func TestDecodeJSON_StripsCodeFences(t *testing.T) {
	var out analysisOut
	err := DecodeJSON("```json\n{\"conclusion\":\"ok\",\"novelty_score\":0.5}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Conclusion)
}

func TestDecodeJSON_MalformedIsError(t *testing.T) {
	var out analysisOut
	err := DecodeJSON(`not json at all`, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodeJSON_ValidatorRejects(t *testing.T) {
	var out analysisOut
	err := DecodeJSON(`{"conclusion":"ok","novelty_score":3.5}`, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

// scriptedModel serves a canned response and records the prompts it saw.
type scriptedModel struct {
	response string
	prompts  []string
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *scriptedModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return m.response, nil
}

func TestLLM_Generate(t *testing.T) {
	model := &scriptedModel{response: "  an answer\n"}
	l := &LLM{model: model, limiter: rate.NewLimiter(rate.Inf, 1)}

	got, err := l.Generate(context.Background(), "a question")
	require.NoError(t, err)
	assert.Equal(t, "an answer", got)
}

func TestLLM_GenerateJSONCarriesInstructionInPrompt(t *testing.T) {
	model := &scriptedModel{response: "```json\n{\"conclusion\":\"ok\",\"novelty_score\":0.4}\n```"}
	l := &LLM{model: model, limiter: rate.NewLimiter(rate.Inf, 1)}

	var out analysisOut
	require.NoError(t, l.GenerateJSON(context.Background(), "analyze this", &out))
	assert.Equal(t, "ok", out.Conclusion)

	// Structured output is requested through the prompt, not a call option,
	// and enforced by DecodeJSON on the way back.
	require.NotEmpty(t, model.prompts)
	assert.Contains(t, model.prompts[0], "analyze this")
	assert.Contains(t, model.prompts[0], jsonInstruction)
}

func TestFake_ServesQueueInOrder(t *testing.T) {
	f := NewFake("first", "second")

	got, err := f.Generate(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = f.Generate(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	_, err = f.Generate(context.Background(), "p3")
	require.Error(t, err)

	assert.Equal(t, []string{"p1", "p2", "p3"}, f.Prompts())
}

func TestFake_QueueError(t *testing.T) {
	f := NewFake()
	boom := errors.New("boom")
	f.QueueError(boom)

	_, err := f.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
}
