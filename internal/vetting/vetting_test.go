package vetting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineRun(t *testing.T) {
	e := NewEngine(DefaultRules())

	tests := []struct {
		name      string
		artifact  string
		statement string
		strategy  string
		approved  bool
		comment   string
	}{
		{
			name:     "empty artifact",
			artifact: "",
			approved: false,
			comment:  "Artifact is missing or invalid, cannot be vetted.",
		},
		{
			name:      "statement missing",
			artifact:  "Phase 1: do things",
			statement: "go deep on one lead",
			strategy:  "h1",
			approved:  false,
			comment:   "Strategy statement missing from artifact.",
		},
		{
			name:      "missing required section",
			artifact:  "Plan: go deep on one lead.\nPhase 1: baseline.\nPhase 2: probe.",
			statement: "go deep on one lead",
			strategy:  "h2",
			approved:  false,
			comment:   "Missing required section for strategy h2: Phase 3.",
		},
		{
			name:      "all sections present",
			artifact:  "Plan: go deep on one lead.\nPhase 1: baseline.\nPhase 2: probe.\nPhase 3: verify.",
			statement: "go deep on one lead",
			strategy:  "h2",
			approved:  true,
		},
		{
			name:      "strategy with no mandated sections",
			artifact:  "Plan: survey broadly.",
			statement: "survey broadly",
			strategy:  "h9",
			approved:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Run(tt.artifact, tt.statement, tt.strategy)
			assert.Equal(t, tt.approved, out.Approved)
			if tt.comment != "" {
				assert.Equal(t, tt.comment, out.Comment)
			} else {
				assert.NotEmpty(t, out.Comment)
			}
		})
	}
}
