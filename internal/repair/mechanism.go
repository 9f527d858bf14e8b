package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
)

const instrumentationName = "github.com/fyrsmithlabs/discoveryd/internal/repair"

// Mechanism produces repair proposals for failed nodes by consulting the
// reasoning service with the failure context and a strict output schema.
type Mechanism struct {
	client  reasoning.Client
	catalog *Catalog
	logger  *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	proposeCounter metric.Int64Counter
}

// NewMechanism creates a repair mechanism.
func NewMechanism(client reasoning.Client, catalog *Catalog, logger *zap.Logger) (*Mechanism, error) {
	if client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("patch catalog is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Mechanism{
		client:  client,
		catalog: catalog,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}

	var err error
	m.proposeCounter, err = m.meter.Int64Counter(
		"discoveryd.repair.proposals_total",
		metric.WithDescription("Repair proposals requested, labeled by outcome (proposed, failed)."),
		metric.WithUnit("{proposal}"),
	)
	if err != nil {
		logger.Warn("failed to create proposal counter", zap.Error(err))
	}

	return m, nil
}

// Propose consults the reasoning service for a repair. A nil return means
// the repair subsystem itself failed to produce a usable proposal — the
// engine treats that as fatal for the node, never as "no repair needed".
func (m *Mechanism) Propose(ctx context.Context, rc Context, runID string, log *events.Log) *Proposal {
	ctx, span := m.tracer.Start(ctx, "repair.propose", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("node.id", rc.Node.ID),
	))
	defer span.End()

	log.Emit(events.Event{
		NodeID: rc.Node.ID,
		Type:   events.TypeRepairProposeStart,
		Data:   map[string]any{},
	}, runID)

	var proposal Proposal
	if err := m.client.GenerateJSON(ctx, m.buildPrompt(rc), &proposal); err != nil {
		m.logger.Error("repair mechanism failed to generate a proposal",
			zap.String("run_id", runID),
			zap.String("node_id", rc.Node.ID),
			zap.Error(err))
		m.count(ctx, "failed")
		return nil
	}

	m.count(ctx, "proposed")
	return &proposal
}

func (m *Mechanism) count(ctx context.Context, outcome string) {
	if m.proposeCounter == nil {
		return
	}
	m.proposeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// buildPrompt assembles the diagnose-propose prompt from the failure
// context and the patch catalog.
func (m *Mechanism) buildPrompt(rc Context) string {
	depState, err := json.MarshalIndent(rc.DependencyState, "", "  ")
	if err != nil {
		depState = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString("You are the repair mechanism of an autonomous discovery engine. ")
	sb.WriteString("A node of the discovery graph has failed and the run is paused. ")
	sb.WriteString("Diagnose the most likely root cause, then propose exactly one repair.\n\n")

	sb.WriteString("Repair strategies:\n")
	sb.WriteString("A) artifact_repair — for transient or data errors. Provide the corrected ")
	sb.WriteString("result object in \"repaired_artifact\"; the node will be completed with it ")
	sb.WriteString("without re-execution. Leave \"patch\" null.\n")
	sb.WriteString("B) code_patch — for persistent logic errors. Choose a replacement strategy ")
	sb.WriteString("from the catalog below by id, and provide instructions for it in ")
	sb.WriteString("\"patch\": {\"id\", \"instructions\"}. The node will be retried once with ")
	sb.WriteString("the replacement. Leave \"repaired_artifact\" null.\n\n")

	sb.WriteString("Available patch catalog:\n")
	for _, line := range m.catalog.Describe() {
		sb.WriteString("- " + line + "\n")
	}

	sb.WriteString("\nFailure context:\n")
	sb.WriteString(fmt.Sprintf("- Error message: %q\n", rc.Err))
	sb.WriteString(fmt.Sprintf("- Failed node id: %q\n", rc.Node.ID))
	sb.WriteString(fmt.Sprintf("- Failed node role: %q\n", rc.Node.Role))
	sb.WriteString(fmt.Sprintf("- Failed node brief: %q\n", rc.Node.Brief))
	sb.WriteString(fmt.Sprintf("- State of dependencies: %s\n", depState))

	sb.WriteString("\nRespond with a JSON object: {\"modification_type\": ")
	sb.WriteString("\"artifact_repair\"|\"code_patch\", \"repaired_artifact\": object|null, ")
	sb.WriteString("\"patch\": {\"id\": string, \"instructions\": string}|null, ")
	sb.WriteString("\"notes\": [string, ...]}. Include your diagnosis and the reasoning ")
	sb.WriteString("behind the chosen repair in \"notes\"; an empty notes list will be vetoed.")

	return sb.String()
}
