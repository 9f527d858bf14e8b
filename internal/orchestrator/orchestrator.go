// Package orchestrator runs the perpetual discovery loop: hypothesize,
// design an experiment, drain its wavefronts, analyze, and escalate
// high-novelty conclusions to validation, growing the task graph as it
// goes. Node failures route through the governed self-repair pipeline
// before they are allowed to end a run.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/discoveryd/internal/dag"
	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/governance"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoner"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/repair"
	"github.com/fyrsmithlabs/discoveryd/internal/runstate"
	"github.com/fyrsmithlabs/discoveryd/internal/strategy"
	"github.com/fyrsmithlabs/discoveryd/internal/tools"
	"github.com/fyrsmithlabs/discoveryd/internal/vetting"
)

const instrumentationName = "github.com/fyrsmithlabs/discoveryd/internal/orchestrator"

// Options configures an Engine. Client and Events are required; the
// strategy registry, patch catalog and repair mechanism are built from the
// client and tool when not supplied.
type Options struct {
	Logger   *zap.Logger
	Client   reasoning.Client
	Tool     tools.Tool
	Events   *events.Log
	Governor *governance.Governor

	// Deliberate enables graph-of-thoughts deliberation for hypothesis
	// generation and report self-correction during validation.
	Deliberate bool

	// Registry, Catalog and Mechanism override the built defaults.
	Registry  *strategy.Registry
	Catalog   *repair.Catalog
	Mechanism *repair.Mechanism
}

// Report is the final outcome of a run.
type Report struct {
	RunID   string `json:"runId"`
	Goal    string `json:"goal"`
	Cycles  int    `json:"cycles"`
	Eureka  bool   `json:"eureka"`
	Stopped bool   `json:"stopped"`

	Hypothesis    string  `json:"hypothesis,omitempty"`
	Conclusion    string  `json:"conclusion,omitempty"`
	NoveltyScore  float64 `json:"noveltyScore,omitempty"`
	Justification string  `json:"justification,omitempty"`

	Knowledge    string `json:"knowledge"`
	FinalMessage string `json:"finalMessage"`
}

// Engine drives discovery runs. An Engine is single-run at a time; Stop
// requests a graceful halt of the run in flight.
type Engine struct {
	logger    *zap.Logger
	events    *events.Log
	governor  *governance.Governor
	registry  *strategy.Registry
	catalog   *repair.Catalog
	mechanism *repair.Mechanism

	stopped atomic.Bool

	tracer       trace.Tracer
	meter        metric.Meter
	cycleCounter metric.Int64Counter
	nodeCounter  metric.Int64Counter
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("reasoning client is required")
	}
	if opts.Events == nil {
		return nil, fmt.Errorf("event log is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	governor := opts.Governor
	if governor == nil {
		var err error
		governor, err = governance.NewGovernor(governance.DefaultPolicy(), logger)
		if err != nil {
			return nil, err
		}
	}

	registry := opts.Registry
	if registry == nil {
		var err error
		registry, err = buildRegistry(opts, logger)
		if err != nil {
			return nil, err
		}
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = repair.NewCatalog()
		if opts.Tool != nil {
			strategy.RegisterPatches(catalog, opts.Client, opts.Tool)
		}
	}

	// The governor vets patch references against the catalog actually in
	// use, whichever of the two was supplied.
	governor.BindCatalog(catalog)

	mechanism := opts.Mechanism
	if mechanism == nil {
		var err error
		mechanism, err = repair.NewMechanism(opts.Client, catalog, logger)
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		logger:    logger,
		events:    opts.Events,
		governor:  governor,
		registry:  registry,
		catalog:   catalog,
		mechanism: mechanism,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}

	var err error
	e.cycleCounter, err = e.meter.Int64Counter(
		"discoveryd.engine.cycles_total",
		metric.WithDescription("Discovery cycles executed."),
		metric.WithUnit("{cycle}"))
	if err != nil {
		logger.Warn("failed to create cycle counter", zap.Error(err))
	}
	e.nodeCounter, err = e.meter.Int64Counter(
		"discoveryd.engine.nodes_total",
		metric.WithDescription("Graph nodes executed, labeled by final status."),
		metric.WithUnit("{node}"))
	if err != nil {
		logger.Warn("failed to create node counter", zap.Error(err))
	}

	return e, nil
}

func buildRegistry(opts Options, logger *zap.Logger) (*strategy.Registry, error) {
	var deliberator *reasoner.Deliberator
	var vetter *vetting.Engine
	if opts.Deliberate {
		var err error
		deliberator, err = reasoner.NewDeliberator(opts.Client, logger)
		if err != nil {
			return nil, err
		}
		vetter = vetting.NewEngine(vetting.DefaultRules())
	}

	simulate, err := strategy.NewSimulation(opts.Client)
	if err != nil {
		return nil, err
	}
	registry, err := strategy.NewRegistry(simulate)
	if err != nil {
		return nil, err
	}

	hypothesize, err := strategy.NewHypothesize(opts.Client, deliberator, logger)
	if err != nil {
		return nil, err
	}
	design, err := strategy.NewDesign(opts.Client)
	if err != nil {
		return nil, err
	}
	analyze, err := strategy.NewAnalyze(opts.Client)
	if err != nil {
		return nil, err
	}
	validate, err := strategy.NewValidate(opts.Client, vetter, logger)
	if err != nil {
		return nil, err
	}

	registry.Register(strategy.RoleHypothesize, hypothesize)
	registry.Register(strategy.RoleDesign, design)
	registry.Register(strategy.RoleSimulation, simulate)
	registry.Register(strategy.RoleCrossReference, simulate)
	registry.Register(strategy.RoleAnalyze, analyze)
	registry.Register(strategy.RoleValidate, validate)

	if opts.Tool != nil {
		collect, err := strategy.NewDataCollection(opts.Client, opts.Tool, logger)
		if err != nil {
			return nil, err
		}
		registry.Register(strategy.RoleDataCollection, collect)
	}

	return registry, nil
}

// Stop requests a graceful halt. The run finishes in-flight node work,
// then exits at the next scheduling point with a run.stopped event.
func (e *Engine) Stop() {
	e.stopped.Store(true)
}

// run is the per-run mutable context. The mutex guards the bookkeeping
// maps, which wavefront goroutines touch concurrently.
type run struct {
	id    string
	graph *dag.Graph
	state *runstate.Store

	mu             sync.Mutex
	repairAttempts map[string]int
	failInjected   map[string]bool
}

// injectFailure reports whether the node's artificial failure marker
// should fire, flipping it so only the first execution is affected.
func (r *run) injectFailure(node *dag.Node) bool {
	if !strings.Contains(strings.ToUpper(node.Brief), "FAIL") {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInjected[node.ID] {
		return false
	}
	r.failInjected[node.ID] = true
	return true
}

// takeRepairAttempt consumes one repair attempt for the node, reporting
// false when the budget is exhausted.
func (r *run) takeRepairAttempt(node *dag.Node, max int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repairAttempts[node.ID] >= max {
		return false
	}
	r.repairAttempts[node.ID]++
	return true
}

// Run executes the discovery loop for the given goal until a validated
// discovery, the cycle limit, a permanent node failure, or a stop request.
func (e *Engine) Run(ctx context.Context, goal, runID string) (*Report, error) {
	e.stopped.Store(false)

	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("run.id", runID)))
	defer span.End()

	// In-flight node work is never cancelled mid-strategy; stop and
	// cancellation are honored at scheduling points only, so the event
	// stream stays consistent.
	workCtx := context.WithoutCancel(ctx)

	rn := &run{
		id:             runID,
		graph:          dag.NewGraph(),
		state:          runstate.New(),
		repairAttempts: make(map[string]int),
		failInjected:   make(map[string]bool),
	}
	rn.state.Set(runstate.KeyDomain, goal)
	rn.state.Set(runstate.KeyKnowledge, "")

	e.events.Emit(events.Event{Type: events.TypeRunStart, Data: map[string]any{"goal": goal}}, runID)
	e.logger.Info("discovery run started", zap.String("run_id", runID), zap.String("goal", goal))

	report := &Report{RunID: runID, Goal: goal}
	policy := e.governor.Policy()

	for cycle := 1; cycle <= policy.MaxCycles; cycle++ {
		if e.interrupted(ctx) {
			return e.stopRun(report, runID)
		}
		report.Cycles = cycle
		if e.cycleCounter != nil {
			e.cycleCounter.Add(ctx, 1)
		}

		eureka, err := e.runCycle(workCtx, ctx, rn, cycle, goal, report)
		if err != nil {
			if errStopped(err) {
				return e.stopRun(report, runID)
			}
			report.FinalMessage = fmt.Sprintf("Run failed: %v", err)
			e.events.Emit(events.Event{Type: events.TypeRunDone, Data: map[string]any{
				"approved":     false,
				"comment":      "Run failed",
				"finalMessage": report.FinalMessage,
			}}, runID)
			return report, err
		}
		if eureka {
			break
		}
	}

	report.Knowledge = rn.state.Knowledge()
	if report.Eureka {
		report.FinalMessage = fmt.Sprintf(
			"!!! EUREKA !!! A discovery has been made in the domain of %q.\n\n**Hypothesis:** %s\n**Conclusion:** %s\n**Justification:** %s",
			goal, report.Hypothesis, report.Conclusion, report.Justification)
	} else {
		report.FinalMessage = fmt.Sprintf(
			"The discovery engine completed %d cycles without a breakthrough. The final knowledge base has been updated.",
			report.Cycles)
	}

	comment := "No discovery found"
	if report.Eureka {
		comment = "Discovery Validated"
	}
	e.events.Emit(events.Event{Type: events.TypeRunDone, Data: map[string]any{
		"approved":     report.Eureka,
		"comment":      comment,
		"finalMessage": report.FinalMessage,
	}}, runID)
	e.logger.Info("discovery run finished",
		zap.String("run_id", runID),
		zap.Bool("eureka", report.Eureka),
		zap.Int("cycles", report.Cycles))

	return report, nil
}

// errStop marks a stop request detected between node executions.
var errStop = fmt.Errorf("run stopped")

func errStopped(err error) bool { return err == errStop }

func (e *Engine) interrupted(ctx context.Context) bool {
	return e.stopped.Load() || ctx.Err() != nil
}

func (e *Engine) stopRun(report *Report, runID string) (*Report, error) {
	report.Stopped = true
	report.FinalMessage = "Discovery loop stopped by user."
	e.events.Emit(events.Event{Type: events.TypeRunStopped, Data: map[string]any{
		"comment": "Discovery loop stopped by user.",
	}}, runID)
	e.logger.Info("discovery run stopped", zap.String("run_id", runID))
	return report, nil
}

// runCycle executes one hypothesize-design-experiment-analyze(-validate)
// cycle. It returns true when a validated discovery ends the run.
func (e *Engine) runCycle(workCtx, ctx context.Context, rn *run, cycle int, goal string, report *Report) (bool, error) {
	hypoID := fmt.Sprintf("H%d", cycle)
	hypoNode := dag.NewNode(hypoID, strategy.RoleHypothesize,
		"Generate hypothesis for domain", e.registry.Resolve(strategy.RoleHypothesize))
	if err := rn.graph.Add(hypoNode); err != nil {
		return false, err
	}
	if _, err := e.executeNode(workCtx, rn, hypoNode); err != nil {
		return false, err
	}

	designID := fmt.Sprintf("D%d", cycle)
	designNode := dag.NewNode(designID, strategy.RoleDesign,
		fmt.Sprintf("Design experiment for %s", hypoID),
		e.registry.Resolve(strategy.RoleDesign), hypoID)
	if err := rn.graph.Add(designNode); err != nil {
		return false, err
	}
	designRes, err := e.executeNode(workCtx, rn, designNode)
	if err != nil {
		return false, err
	}

	tasks := dag.TasksFromResult(designRes)
	if len(tasks) == 0 {
		e.logger.Info("empty experiment plan, skipping cycle",
			zap.String("run_id", rn.id), zap.Int("cycle", cycle))
		return false, nil
	}

	experimentIDs := make([]string, 0, len(tasks))
	for _, task := range tasks {
		deps := append(append([]string{}, task.DependsOn...), designID, hypoID)
		brief := task.Brief
		// The goal may request a demonstration failure during data
		// collection; the injected marker fires once per node.
		if strings.Contains(strings.ToUpper(goal), "FAIL DURING THE DATA COLLECTION") &&
			task.Role == strategy.RoleDataCollection {
			brief += " FAIL"
		}
		node := dag.NewNode(task.TaskID, task.Role, brief, e.registry.Resolve(task.Role), deps...)
		if err := rn.graph.Add(node); err != nil {
			return false, err
		}
		experimentIDs = append(experimentIDs, task.TaskID)
	}

	if err := e.drainWavefronts(workCtx, ctx, rn); err != nil {
		return false, err
	}

	analysisID := fmt.Sprintf("A%d", cycle)
	analysisDeps := append(append([]string{}, experimentIDs...), hypoID)
	analysisNode := dag.NewNode(analysisID, strategy.RoleAnalyze,
		fmt.Sprintf("Analyze results for %s", hypoID),
		e.registry.Resolve(strategy.RoleAnalyze), analysisDeps...)
	if err := rn.graph.Add(analysisNode); err != nil {
		return false, err
	}
	if _, err := e.executeNode(workCtx, rn, analysisNode); err != nil {
		return false, err
	}

	analysis, ok := rn.state.Analysis(analysisID)
	if !ok {
		return false, fmt.Errorf("analysis node %s produced no usable result", analysisID)
	}
	hypothesis, _ := rn.state.Hypothesis(hypoID)
	rn.state.AppendKnowledge(fmt.Sprintf("Hypothesis: %s. Conclusion: %s.", hypothesis, analysis.Conclusion))

	if analysis.NoveltyScore <= e.governor.Policy().NoveltyThreshold {
		return false, nil
	}

	validationID := fmt.Sprintf("V%d", cycle)
	validationNode := dag.NewNode(validationID, strategy.RoleValidate,
		fmt.Sprintf("Validate potential discovery from %s", hypoID),
		e.registry.Resolve(strategy.RoleValidate), analysisID, hypoID)
	if err := rn.graph.Add(validationNode); err != nil {
		return false, err
	}
	if _, err := e.executeNode(workCtx, rn, validationNode); err != nil {
		return false, err
	}

	verdict, ok := rn.state.Validation(validationID)
	if !ok || !verdict.IsDiscovery {
		return false, nil
	}

	report.Eureka = true
	report.Hypothesis = hypothesis
	report.Conclusion = analysis.Conclusion
	report.NoveltyScore = analysis.NoveltyScore
	report.Justification = verdict.Justification
	return true, nil
}

// drainWavefronts repeatedly executes every runnable node in parallel
// until the experiment frontier is exhausted. Siblings of a failing node
// finish their wave; the failure surfaces after the wave completes.
func (e *Engine) drainWavefronts(workCtx, ctx context.Context, rn *run) error {
	for {
		runnable := rn.graph.Runnable()
		if len(runnable) == 0 {
			return nil
		}
		if e.interrupted(ctx) {
			return errStop
		}

		var g errgroup.Group
		for _, node := range runnable {
			node := node
			g.Go(func() error {
				_, err := e.executeNode(workCtx, rn, node)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// executeNode runs a node with repair handling: on failure the repair
// pipeline proposes, governance vets, and an approved repair either
// completes the node with a corrected artifact or retries it under a
// patched strategy. Exhausted or vetoed repairs fail the node permanently.
func (e *Engine) executeNode(ctx context.Context, rn *run, node *dag.Node) (dag.Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.node", trace.WithAttributes(
		attribute.String("run.id", rn.id),
		attribute.String("node.id", node.ID),
		attribute.String("node.role", node.Role)))
	defer span.End()

	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeNodeStart, Data: map[string]any{
		"role":  node.Role,
		"brief": node.Brief,
	}}, rn.id)

	for {
		res, err := e.attempt(ctx, rn, node)
		if err == nil {
			e.countNode(ctx, node)
			return res, nil
		}

		res, retry, rerr := e.repairNode(ctx, rn, node, err)
		if rerr != nil {
			e.countNode(ctx, node)
			return nil, rerr
		}
		if !retry {
			e.countNode(ctx, node)
			return res, nil
		}
	}
}

func (e *Engine) countNode(ctx context.Context, node *dag.Node) {
	if e.nodeCounter == nil {
		return
	}
	e.nodeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", node.Role),
		attribute.String("status", string(node.Status))))
}

// attempt executes the node once, publishes its result, and converts a
// rejected result into an error.
func (e *Engine) attempt(ctx context.Context, rn *run, node *dag.Node) (dag.Result, error) {
	if rn.injectFailure(node) {
		node.Status = dag.StatusFailed
		return nil, fmt.Errorf("artificial failure triggered for node %s", node.ID)
	}

	res, err := node.Execute(ctx, dag.Input{
		TaskID:    node.ID,
		DependsOn: node.DependsOn,
		State:     rn.state,
		Graph:     rn.graph,
		RunID:     rn.id,
		Events:    e.events,
	})
	if err != nil {
		return nil, err
	}

	rn.state.Set(node.ID, map[string]any(res))
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeNodeResult, Data: res}, rn.id)

	if node.Status == dag.StatusFailed {
		return nil, fmt.Errorf("node %s (%s) failed during execution", node.ID, node.Role)
	}
	return res, nil
}

// repairNode drives one pass of the repair pipeline for a failed node.
// retry=true means an approved patch was applied and the node should be
// re-attempted; retry=false with a result means an artifact repair
// completed the node in place.
func (e *Engine) repairNode(ctx context.Context, rn *run, node *dag.Node, cause error) (dag.Result, bool, error) {
	e.logger.Warn("node failed, engaging self-repair",
		zap.String("run_id", rn.id),
		zap.String("node_id", node.ID),
		zap.Error(cause))

	policy := e.governor.Policy()
	if !rn.takeRepairAttempt(node, policy.MaxRepairAttempts) {
		e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairFailedPermanent, Data: map[string]any{
			"reason": "Max repair attempts reached",
		}}, rn.id)
		return nil, false, e.failNode(rn, node, cause)
	}

	node.Status = dag.StatusRepairing
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeNodeStatusUpdate, Data: map[string]any{
		"status": string(dag.StatusRepairing),
	}}, rn.id)
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairStart, Data: map[string]any{
		"message": "Self-repair pipeline activated.",
	}}, rn.id)

	proposal := e.mechanism.Propose(ctx, repair.Context{
		Err:             cause.Error(),
		Node:            node,
		DependencyState: rn.state.Snapshot(node.DependsOn),
	}, rn.id, e.events)

	if proposal == nil {
		e.emitRepairFailed(rn, node, "The repair mechanism itself failed to generate a proposal.")
		return nil, false, e.failNode(rn, node,
			fmt.Errorf("self-repair for node %s failed at proposal stage", node.ID))
	}

	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairVetStart, Data: map[string]any{
		"message": "Submitting repair to governance for approval.",
	}}, rn.id)
	verdict := e.governor.Vet(proposal)
	if !verdict.Approved {
		e.emitRepairFailed(rn, node, "VETOED: "+verdict.Comment)
		return nil, false, e.failNode(rn, node,
			fmt.Errorf("self-repair for node %s was vetoed by governance: %s", node.ID, verdict.Comment))
	}
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairVetSuccess, Data: map[string]any{
		"message": "Repair proposal approved by governance.",
	}}, rn.id)

	if proposal.ModificationType == repair.CodePatch {
		e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairApplyCodePatch, Data: map[string]any{
			"patch":         proposal.Patch,
			"justification": proposal.Notes,
		}}, rn.id)

		patched, err := e.catalog.Build(*proposal.Patch)
		if err != nil {
			e.emitRepairFailed(rn, node, fmt.Sprintf("The approved patch could not be applied: %v.", err))
			return nil, false, e.failNode(rn, node,
				fmt.Errorf("applying patch for node %s: %w", node.ID, err))
		}
		if err := node.ReplaceStrategy(patched); err != nil {
			e.emitRepairFailed(rn, node, fmt.Sprintf("The approved patch could not be applied: %v.", err))
			return nil, false, e.failNode(rn, node,
				fmt.Errorf("applying patch for node %s: %w", node.ID, err))
		}

		e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairSuccess, Data: map[string]any{
			"message": "Strategy patched. Retrying node execution.",
		}}, rn.id)
		node.Status = dag.StatusPending
		return nil, true, nil
	}

	// Artifact repair: complete the node with the corrected result
	// without re-execution.
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairSuccess, Data: map[string]any{}}, rn.id)

	final := make(dag.Result, len(proposal.RepairedArtifact)+4)
	for k, v := range proposal.RepairedArtifact {
		final[k] = v
	}
	final[dag.ResultKeyTaskID] = node.ID
	final[dag.ResultKeyRole] = node.Role
	final[dag.ResultKeyStatus] = string(dag.StatusCompleted)
	final[dag.ResultKeyRepaired] = true

	rn.state.Set(node.ID, map[string]any(final))
	node.Status = dag.StatusCompleted
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeNodeResult, Data: final}, rn.id)
	return final, false, nil
}

func (e *Engine) emitRepairFailed(rn *run, node *dag.Node, justification string) {
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeRepairFailed, Data: map[string]any{
		"justification": []string{justification},
	}}, rn.id)
}

// failNode marks the node permanently failed and returns cause.
func (e *Engine) failNode(rn *run, node *dag.Node, cause error) error {
	node.Status = dag.StatusFailed
	e.events.Emit(events.Event{NodeID: node.ID, Type: events.TypeNodeStatusUpdate, Data: map[string]any{
		"status": string(dag.StatusFailed),
	}}, rn.id)
	return cause
}
