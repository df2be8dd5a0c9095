// Package types holds the core data contracts shared by every stage of the
// investigation runtime: the working-memory state that flows through the
// graph, the evidence and audit records it accumulates, and the persisted
// artifacts the completion node writes.
package types

import "time"

// Mode selects how thoroughly an investigation runs.
type Mode string

// Investigation modes.
const (
	ModeFull  Mode = "FULL"
	ModeQuick Mode = "QUICK"
)

// Status is the lifecycle status of an investigation.
type Status string

// Investigation lifecycle statuses.
const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// Severity is the aggregate risk classification of an investigation.
type Severity string

// Severity levels, ordered least to most severe.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank gives a total order over severities for max-aggregation.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// MaxSeverity returns the more severe of a and b. Unknown values rank below LOW.
func MaxSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// Tool name constants. These are the only valid values for ToolExecution.ToolName,
// PlannerDecision.SelectedTool (aside from ToolComplete), and CompletedSteps entries.
const (
	ToolContext        = "context_tool"
	ToolPattern        = "pattern_tool"
	ToolSimilarity     = "similarity_tool"
	ToolReasoning      = "reasoning_tool"
	ToolRecommendation = "recommendation_tool"
	ToolRuleDraft      = "rule_draft_tool"

	// ToolComplete is the sentinel the planner emits instead of a tool name to
	// signal the investigation is done gathering evidence.
	ToolComplete = "COMPLETE"
)

// FallbackSequence is the canonical deterministic tool ordering used when the
// planner's LLM is unavailable, too slow, or returns an invalid response.
// Read-only; never mutated at runtime.
var FallbackSequence = []string{
	ToolContext,
	ToolPattern,
	ToolSimilarity,
	ToolReasoning,
	ToolRecommendation,
	ToolRuleDraft,
}

// AllTools is the registered tool catalog, in canonical order.
var AllTools = FallbackSequence

// ExecutionStatus is the outcome of a single tool execution.
type ExecutionStatus string

// Tool execution outcomes.
const (
	ExecutionSuccess  ExecutionStatus = "SUCCESS"
	ExecutionFailed   ExecutionStatus = "FAILED"
	ExecutionTimedOut ExecutionStatus = "TIMED_OUT"
)

// ToolExecution is one audit record of a single tool invocation.
type ToolExecution struct {
	ToolName        string          `json:"tool_name"`
	StepNumber      int             `json:"step_number"`
	Status          ExecutionStatus `json:"status"`
	InputSummary    string          `json:"input_summary"`
	OutputSummary   string          `json:"output_summary"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	TraceID         string          `json:"trace_id,omitempty"`
	SpanID          string          `json:"span_id,omitempty"`
}

// PlannerDecision is one audit record of a single planner call.
type PlannerDecision struct {
	Step          int       `json:"step"`
	SelectedTool  string    `json:"selected_tool"`
	Reason        string    `json:"reason"`
	Confidence    float64   `json:"confidence"`
	UsedFallback  bool      `json:"used_fallback"`
	FallbackCause string    `json:"fallback_cause,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EvidenceEnvelope is one tool-authored entry in the flat evidence list.
type EvidenceEnvelope struct {
	Category string          `json:"category"`
	Tool     string          `json:"tool"`
	Data     any             `json:"data"`
	Created  time.Time       `json:"created_at"`
}

// Safeguards is the frozen snapshot of runtime limits in effect when an
// investigation started. Copied into the response envelope verbatim so an
// audit replay sees exactly what guarded the run, even if operators change
// configuration afterward.
type Safeguards struct {
	InvestigationTimeoutSeconds int `json:"investigation_timeout_seconds"`
	ToolTimeoutSeconds          int `json:"tool_timeout_seconds"`
	PlannerTimeoutSeconds       int `json:"planner_timeout_seconds"`
	MaxSteps                    int `json:"max_steps"`
}

// FeatureFlags is the frozen snapshot of feature toggles in effect at start.
type FeatureFlags struct {
	PlannerLLMEnabled   bool `json:"planner_llm_enabled"`
	VectorEnabled       bool `json:"vector_enabled"`
	PromptGuardEnabled  bool `json:"prompt_guard_enabled"`
	RuleDraftExportable bool `json:"rule_draft_exportable"`
}

// InvestigationState is the working memory that flows through every node of
// the graph. Nodes must treat it as copy-on-write: read the input, return a
// new value, never mutate fields reachable from the argument in place. This
// is what makes resume-from-snapshot deterministic.
type InvestigationState struct {
	InvestigationID string `json:"investigation_id"`
	TransactionID   string `json:"transaction_id"`
	Mode            Mode   `json:"mode"`

	Context *TransactionContext `json:"context,omitempty"`

	PatternResults    *PatternResults    `json:"pattern_results,omitempty"`
	SimilarityResults *SimilarityResults `json:"similarity_results,omitempty"`
	Reasoning         *Reasoning         `json:"reasoning,omitempty"`
	Recommendations   []Recommendation   `json:"recommendations,omitempty"`
	RuleDraft         *RuleDraftPayload  `json:"rule_draft,omitempty"`
	Evidence          []EvidenceEnvelope `json:"evidence,omitempty"`

	ConfidenceScore float64  `json:"confidence_score"`
	Severity        Severity `json:"severity,omitempty"`
	Hypotheses      []string `json:"hypotheses,omitempty"`

	Status         Status    `json:"status"`
	CompletedSteps []string  `json:"completed_steps"`
	NextAction     string    `json:"next_action,omitempty"`
	StepCount      int       `json:"step_count"`
	MaxSteps       int       `json:"max_steps"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
	Error          string    `json:"error,omitempty"`

	PlannerDecisions []PlannerDecision `json:"planner_decisions"`
	ToolExecutions   []ToolExecution   `json:"tool_executions"`

	FeatureFlags FeatureFlags `json:"feature_flags"`
	Safeguards   Safeguards   `json:"safeguards"`

	// PlannerModel is the identifier of the model configured for planning,
	// frozen at investigation start for the response envelope.
	PlannerModel string `json:"planner_model"`

	// internal, not serialized: usage counters accumulated for the trace envelope.
	LLMUsage LLMUsage `json:"llm_usage"`
	TMUsage  TMUsage  `json:"tm_usage"`
}

// LLMUsage accumulates token/call counters across a single investigation run.
type LLMUsage struct {
	PlannerCalls           int    `json:"planner_calls"`
	ReasoningCalls         int    `json:"reasoning_calls"`
	TotalPromptTokens      int    `json:"total_prompt_tokens"`
	TotalCompletionTokens  int    `json:"total_completion_tokens"`
	FallbackCount          int    `json:"fallback_count"`
	Model                  string `json:"model"`
}

// TMUsage accumulates TM API call counters across a single investigation run.
type TMUsage struct {
	TotalCalls     int      `json:"total_calls"`
	EndpointsCalled []string `json:"endpoints_called"`
}

// HasCompleted reports whether tool has already run in this investigation.
func (s *InvestigationState) HasCompleted(tool string) bool {
	for _, t := range s.CompletedSteps {
		if t == tool {
			return true
		}
	}
	return false
}

// Clone returns a deep-enough copy of the state for copy-on-write node
// semantics: slices and the nested evidence buckets are copied so a node can
// freely append/mutate its result without aliasing the caller's value.
func (s *InvestigationState) Clone() *InvestigationState {
	clone := *s

	clone.CompletedSteps = append([]string(nil), s.CompletedSteps...)
	clone.Hypotheses = append([]string(nil), s.Hypotheses...)
	clone.Evidence = append([]EvidenceEnvelope(nil), s.Evidence...)
	clone.PlannerDecisions = append([]PlannerDecision(nil), s.PlannerDecisions...)
	clone.ToolExecutions = append([]ToolExecution(nil), s.ToolExecutions...)
	clone.Recommendations = append([]Recommendation(nil), s.Recommendations...)
	clone.TMUsage.EndpointsCalled = append([]string(nil), s.TMUsage.EndpointsCalled...)

	if s.Context != nil {
		ctxCopy := *s.Context
		clone.Context = &ctxCopy
	}
	if s.PatternResults != nil {
		prCopy := *s.PatternResults
		prCopy.Scores = append([]PatternScore(nil), s.PatternResults.Scores...)
		prCopy.PatternsDetected = append([]string(nil), s.PatternResults.PatternsDetected...)
		clone.PatternResults = &prCopy
	}
	if s.SimilarityResults != nil {
		simCopy := *s.SimilarityResults
		simCopy.Matches = append([]SimilarityMatch(nil), s.SimilarityResults.Matches...)
		clone.SimilarityResults = &simCopy
	}
	if s.Reasoning != nil {
		rCopy := *s.Reasoning
		rCopy.Hypotheses = append([]string(nil), s.Reasoning.Hypotheses...)
		clone.Reasoning = &rCopy
	}
	if s.RuleDraft != nil {
		rdCopy := *s.RuleDraft
		rdCopy.Conditions = append([]RuleCondition(nil), s.RuleDraft.Conditions...)
		clone.RuleDraft = &rdCopy
	}

	return &clone
}
