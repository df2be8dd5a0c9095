package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DeriveIdempotencyKey derives the stable key shared by an Investigation and
// its terminal Insight for the same (transaction_id, mode) pair, so a
// duplicate run request is recognized without a second side-effecting call.
func DeriveIdempotencyKey(transactionID string, mode Mode) string {
	sum := sha256.Sum256([]byte(transactionID + ":" + string(mode)))
	return hex.EncodeToString(sum[:])[:32]
}

// Investigation is the top-level lifecycle row for one run of the agentic
// investigation runtime.
type Investigation struct {
	InvestigationID string     `db:"id" json:"investigation_id"`
	TransactionID   string     `db:"transaction_id" json:"transaction_id"`
	Mode            Mode       `db:"mode" json:"mode"`
	Status          Status     `db:"status" json:"status"`
	Severity        Severity   `db:"severity" json:"severity"`
	FinalConfidence float64    `db:"final_confidence" json:"final_confidence"`
	StepCount       int        `db:"step_count" json:"step_count"`
	MaxSteps        int        `db:"max_steps" json:"max_steps"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	PlannerModel    string     `db:"planner_model" json:"planner_model"`
	CaseID          string     `db:"case_id" json:"case_id,omitempty"`
	IdempotencyKey  string     `db:"idempotency_key" json:"-"`
}

// InvestigationStateSnapshot is the versioned JSONB row holding the full
// working-memory state for one investigation.
type InvestigationStateSnapshot struct {
	InvestigationID string    `db:"investigation_id"`
	State           []byte    `db:"state"` // strict JSON encoding of InvestigationState
	Version         int       `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// ToolExecutionLogRow is the append-only persisted form of a ToolExecution.
type ToolExecutionLogRow struct {
	ID              string    `db:"id"`
	InvestigationID string    `db:"investigation_id"`
	ToolName        string    `db:"tool_name"`
	StepNumber      int       `db:"step_number"`
	Status          string    `db:"status"`
	InputSummary    string    `db:"input_summary"`
	OutputSummary   string    `db:"output_summary"`
	ExecutionTimeMs int64     `db:"execution_time_ms"`
	ErrorMessage    string    `db:"error_message"`
	CreatedAt       time.Time `db:"created_at"`
}

// Insight is the one-per-investigation durable summary row.
type Insight struct {
	ID             string    `db:"id" json:"id"`
	InvestigationID string   `db:"investigation_id" json:"investigation_id"`
	TransactionID  string    `db:"transaction_id" json:"transaction_id"`
	IdempotencyKey string    `db:"idempotency_key" json:"-"`
	Severity       Severity  `db:"severity" json:"severity"`
	Summary        string    `db:"summary" json:"summary"`
	EvidenceKind   string    `db:"evidence_kind" json:"evidence_kind"`
	ModelMode      string    `db:"model_mode" json:"model_mode"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Evidence is a many-per-insight ordered record.
type Evidence struct {
	ID        string    `db:"id" json:"id"`
	InsightID string    `db:"insight_id" json:"insight_id"`
	Category  string    `db:"category" json:"category"`
	Tool      string    `db:"tool" json:"tool"`
	Payload   []byte    `db:"payload" json:"payload"` // JSON
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RecommendationRow is the persisted form of a Recommendation.
type RecommendationRow struct {
	ID        string               `db:"id" json:"id"`
	InsightID string               `db:"insight_id" json:"insight_id"`
	Type      string               `db:"type" json:"type"`
	Priority  int                  `db:"priority" json:"priority"`
	Status    RecommendationStatus `db:"status" json:"status"`
	Payload   []byte               `db:"payload" json:"payload"` // JSON
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt time.Time            `db:"updated_at" json:"updated_at"`
}

// RuleDraftStatus is the lifecycle status of a persisted rule draft.
type RuleDraftStatus string

// Rule draft statuses.
const (
	RuleDraftPending  RuleDraftStatus = "PENDING"
	RuleDraftExported RuleDraftStatus = "EXPORTED"
	RuleDraftFailed   RuleDraftStatus = "FAILED"
)

// RuleDraftRow is the persisted, optional, per-investigation rule draft.
type RuleDraftRow struct {
	ID              string          `db:"id" json:"id"`
	InvestigationID string          `db:"investigation_id" json:"investigation_id"`
	Payload         []byte          `db:"payload" json:"payload"` // JSON
	Status          RuleDraftStatus `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// AuditLogRow is one append-only audit trail entry.
type AuditLogRow struct {
	ID           string    `db:"id" json:"id"`
	EntityType   string    `db:"entity_type" json:"entity_type"`
	EntityID     string    `db:"entity_id" json:"entity_id"`
	Action       string    `db:"action" json:"action"`
	PerformedBy  string    `db:"performed_by" json:"performed_by"`
	NewValue     []byte    `db:"new_value" json:"new_value,omitempty"` // JSON
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Audit action names used by the completion node and recommendation updates.
const (
	AuditActionCompleted          = "completed"
	AuditActionFailed             = "failed"
	AuditActionTimedOut           = "timed_out"
	AuditActionSeverityEscalated  = "severity_escalated"
	AuditActionDependencyFailure  = "dependency_failure"
	AuditActionRecommendationAck  = "recommendation_acknowledged"
	AuditActionRecommendationRej  = "recommendation_rejected"
	AuditActionRecommendationExp  = "recommendation_exported"
)

// AgenticTrace is the audit envelope embedded in every investigation response.
type AgenticTrace struct {
	LLMUsage           LLMUsage          `json:"llm_usage"`
	TMAPIUsage         TMUsage           `json:"tm_api_usage"`
	FeatureFlagsSnap   FeatureFlags      `json:"feature_flags_snapshot"`
	SafeguardsSnap     Safeguards        `json:"safeguards_snapshot"`
	EvidenceGaps       []string          `json:"evidence_gaps"`
	ActionPlan         []string          `json:"action_plan"`
}

// InvestigationResponse is the full response envelope returned for run,
// get-detail, and resume operations.
type InvestigationResponse struct {
	InvestigationID   string            `json:"investigation_id"`
	TransactionID     string            `json:"transaction_id"`
	Status            Status            `json:"status"`
	Severity          Severity          `json:"severity"`
	ConfidenceScore   float64           `json:"confidence_score"`
	StepCount         int               `json:"step_count"`
	MaxSteps          int               `json:"max_steps"`
	PlannerDecisions  []PlannerDecision `json:"planner_decisions"`
	ToolExecutions    []ToolExecution   `json:"tool_executions"`
	Recommendations   []Recommendation  `json:"recommendations"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       time.Time         `json:"completed_at,omitempty"`
	TotalDurationMs   int64             `json:"total_duration_ms"`
	AgenticTrace      AgenticTrace      `json:"agentic_trace"`
}
