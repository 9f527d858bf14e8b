// Package tools defines the generic capability interface data-collection
// strategies invoke, and the built-in web-search tool.
package tools

import (
	"context"
)

// Input is a tool invocation request.
type Input struct {
	Query string `json:"query"`
}

// Context identifies the run a tool call belongs to.
type Context struct {
	RunID string `json:"runId"`
}

// Source attributes a tool result to where it came from.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Result is a tool invocation outcome. OK=false must be surfaced by
// callers as a strategy failure carrying Data as the error detail.
type Result struct {
	OK      bool     `json:"ok"`
	Data    string   `json:"data"`
	Sources []Source `json:"sources,omitempty"`
}

// Tool is a capability a strategy may invoke during execution.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, in Input, tc Context) (Result, error)
}
