// Package executor runs a single tool invocation under a per-tool timeout and
// records the outcome as an audit entry, independent of whether the tool
// succeeded, failed, or ran out of time.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/metrics"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/tools"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

var tracer = otel.Tracer("github.com/ops-agent/fraud-investigator/pkg/fraud/executor")

// Executor wraps tool invocations with a timeout budget and audit recording.
type Executor struct {
	registry   *tools.Registry
	toolBudget time.Duration
}

// New builds an Executor bound to registry, with every call bounded by toolBudget.
func New(registry *tools.Registry, toolBudget time.Duration) *Executor {
	return &Executor{registry: registry, toolBudget: toolBudget}
}

// Run executes the named tool against state, returning the resulting state
// (on success) and the ToolExecution audit record for the attempt. The
// returned state always carries the execution appended to ToolExecutions and,
// on success, the tool name appended to CompletedSteps — callers don't need
// to do this bookkeeping themselves.
//
// On failure or timeout, Run returns the ORIGINAL state (not nil) with the
// failed execution appended, so the graph can decide whether to retry,
// fall back, or fail the investigation without losing prior evidence.
func (e *Executor) Run(ctx context.Context, toolName string, state *types.InvestigationState) (*types.InvestigationState, types.ToolExecution, error) {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		exec := types.ToolExecution{
			ToolName:     toolName,
			StepNumber:   state.StepCount + 1,
			Status:       types.ExecutionFailed,
			ErrorMessage: fmt.Sprintf("unknown tool %q", toolName),
			Timestamp:    time.Now(),
		}
		next := state.Clone()
		next.ToolExecutions = append(next.ToolExecutions, exec)
		next.CompletedSteps = append(next.CompletedSteps, toolName)
		next.StepCount = exec.StepNumber
		return next, exec, fmt.Errorf("executor: unknown tool %q", toolName)
	}

	ctx, span := tracer.Start(ctx, "tool."+toolName, trace.WithAttributes(
		attribute.String("fraud.investigation_id", state.InvestigationID),
		attribute.Int("fraud.step_number", state.StepCount+1),
	))
	defer span.End()

	spanCtx := span.SpanContext()
	exec := types.ToolExecution{
		ToolName:   toolName,
		StepNumber: state.StepCount + 1,
		InputSummary: summarizeInput(toolName, state),
		Timestamp:  time.Now(),
		TraceID:    spanCtx.TraceID().String(),
		SpanID:     spanCtx.SpanID().String(),
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.toolBudget)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(toolCtx, state)
	exec.ExecutionTimeMs = time.Since(start).Milliseconds()

	switch {
	case err != nil && toolCtx.Err() == context.DeadlineExceeded:
		exec.Status = types.ExecutionTimedOut
		exec.ErrorMessage = fmt.Sprintf("tool %q exceeded its %s budget", toolName, e.toolBudget)
		span.SetAttributes(attribute.String("fraud.status", string(exec.Status)))
		metrics.ToolDuration.WithLabelValues(toolName, string(exec.Status)).Observe(time.Since(start).Seconds())
		next := state.Clone()
		next.ToolExecutions = append(next.ToolExecutions, exec)
		next.CompletedSteps = append(next.CompletedSteps, toolName)
		next.StepCount = exec.StepNumber
		return next, exec, fmt.Errorf("executor: %s", exec.ErrorMessage)
	case err != nil:
		exec.Status = types.ExecutionFailed
		exec.ErrorMessage = err.Error()
		span.SetAttributes(attribute.String("fraud.status", string(exec.Status)))
		metrics.ToolDuration.WithLabelValues(toolName, string(exec.Status)).Observe(time.Since(start).Seconds())
		next := state.Clone()
		next.ToolExecutions = append(next.ToolExecutions, exec)
		next.CompletedSteps = append(next.CompletedSteps, toolName)
		next.StepCount = exec.StepNumber
		return next, exec, err
	}

	exec.Status = types.ExecutionSuccess
	exec.OutputSummary = summarizeOutput(toolName, result)
	span.SetAttributes(attribute.String("fraud.status", string(exec.Status)))
	metrics.ToolDuration.WithLabelValues(toolName, string(exec.Status)).Observe(time.Since(start).Seconds())

	next := result.Clone()
	next.ToolExecutions = append(next.ToolExecutions, exec)
	next.CompletedSteps = append(next.CompletedSteps, toolName)
	next.StepCount = exec.StepNumber
	return next, exec, nil
}

// summarizeInput produces a short, non-sensitive description of what a tool
// was about to do, for the audit trail. It never includes evidence payloads.
func summarizeInput(toolName string, state *types.InvestigationState) string {
	switch toolName {
	case types.ToolContext:
		return fmt.Sprintf("transaction_id=%s", state.TransactionID)
	default:
		return fmt.Sprintf("completed_steps=%v", state.CompletedSteps)
	}
}

// summarizeOutput produces a short, non-sensitive description of a tool's
// result for the audit trail, derived from the evidence bucket it populated
// rather than the evidence payload itself.
func summarizeOutput(toolName string, state *types.InvestigationState) string {
	switch toolName {
	case types.ToolContext:
		if state.Context == nil {
			return "no context gathered"
		}
		return fmt.Sprintf("card_history=%d merchant_history=%d matched_rules=%d",
			len(state.Context.CardHistory), len(state.Context.MerchantHistory), len(state.Context.MatchedRules))
	case types.ToolPattern:
		if state.PatternResults == nil {
			return "no pattern results"
		}
		return fmt.Sprintf("overall_score=%.2f patterns_detected=%v", state.PatternResults.OverallScore, state.PatternResults.PatternsDetected)
	case types.ToolSimilarity:
		if state.SimilarityResults == nil {
			return "no similarity results"
		}
		if state.SimilarityResults.Skipped {
			return "skipped: vector search disabled"
		}
		return fmt.Sprintf("matches=%d overall_score=%.2f", len(state.SimilarityResults.Matches), state.SimilarityResults.OverallScore)
	case types.ToolReasoning:
		if state.Reasoning == nil {
			return "no reasoning produced"
		}
		return fmt.Sprintf("risk_level=%s llm_status=%s confidence=%.2f", state.Reasoning.RiskLevel, state.Reasoning.LLMStatus, state.Reasoning.Confidence)
	case types.ToolRecommendation:
		return fmt.Sprintf("recommendations=%d", len(state.Recommendations))
	case types.ToolRuleDraft:
		if state.RuleDraft == nil {
			return "no rule draft (no rule_candidate recommendation)"
		}
		return fmt.Sprintf("rule_name=%s conditions=%d", state.RuleDraft.RuleName, len(state.RuleDraft.Conditions))
	default:
		return ""
	}
}
