package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
)

// Search answers web-search queries through the reasoning service's
// grounded search capability, returning the answer text plus the sources
// it was grounded on.
type Search struct {
	client reasoning.Client
	logger *zap.Logger
}

// NewSearch creates the search tool.
func NewSearch(client reasoning.Client, logger *zap.Logger) (*Search, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Search{client: client, logger: logger}, nil
}

func (s *Search) Name() string { return "search" }

func (s *Search) Description() string {
	return "Performs a web search to find up-to-date information with source attribution."
}

type searchResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

func (r *searchResponse) Validate() error {
	if strings.TrimSpace(r.Answer) == "" {
		return fmt.Errorf("answer is empty")
	}
	return nil
}

// Call implements Tool. Transport and schema failures are folded into an
// OK=false result rather than an error, matching the capability contract:
// the caller decides whether a failed search fails the node.
func (s *Search) Call(ctx context.Context, in Input, tc Context) (Result, error) {
	var sb strings.Builder
	sb.WriteString("Perform a web search and answer the query below using up-to-date information.\n")
	sb.WriteString(fmt.Sprintf("Query: %q\n\n", in.Query))
	sb.WriteString("Return a JSON object with keys \"answer\" (string) and \"sources\" ")
	sb.WriteString("(array of {\"uri\", \"title\"} objects for each source consulted).")

	var resp searchResponse
	if err := s.client.GenerateJSON(ctx, sb.String(), &resp); err != nil {
		s.logger.Warn("search tool failed",
			zap.String("run_id", tc.RunID),
			zap.String("query", in.Query),
			zap.Error(err))
		return Result{OK: false, Data: "Failed to perform search."}, nil
	}

	return Result{OK: true, Data: resp.Answer, Sources: resp.Sources}, nil
}
