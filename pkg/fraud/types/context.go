package types

import "time"

// Transaction is the internal representation of a card transaction, after
// field-name translation from the TM API's wire format (see tmclient.FieldMap).
type Transaction struct {
	TransactionID   string    `json:"transaction_id"`
	CardID          string    `json:"card_id"`
	MerchantID      string    `json:"merchant_id"`
	MerchantName    string    `json:"merchant_name"`
	MCC             string    `json:"mcc"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Timestamp       time.Time `json:"timestamp"`
	Declined        bool      `json:"declined"`
	DeclineReason   string    `json:"decline_reason,omitempty"`
	ThreeDSVerified bool      `json:"three_ds_verified"`
	DeviceTrusted   bool      `json:"device_trusted"`
}

// ReviewCase carries prior human-review context for a transaction, if any.
type ReviewCase struct {
	ReviewID string `json:"review_id,omitempty"`
	Notes    []Note `json:"notes,omitempty"`
	CaseID   string `json:"case_id,omitempty"`
}

// Note is a single analyst note attached to a review.
type Note struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchedRule is a fraud rule that fired for the transaction under review,
// as reported by the TM overview endpoint.
type MatchedRule struct {
	RuleID   string  `json:"rule_id"`
	RuleName string  `json:"rule_name"`
	Score    float64 `json:"score"`
}

// WindowStats summarizes transaction activity in a fixed window, anchored to
// the investigated transaction's own timestamp, never wall-clock.
type WindowStats struct {
	Count           int   `json:"count"`
	TotalAmountCents int64 `json:"total_amount_cents"`
	UniqueMerchants int   `json:"unique_merchants"`
	DeclineCount    int   `json:"decline_count"`
}

// TransactionContext is the evidence bucket ContextTool populates.
type TransactionContext struct {
	Transaction     Transaction   `json:"transaction"`
	CardHistory     []Transaction `json:"card_history"`
	MerchantHistory []Transaction `json:"merchant_history"`
	MatchedRules    []MatchedRule `json:"matched_rules"`
	Review          *ReviewCase   `json:"review,omitempty"`
	Notes           []Note        `json:"notes,omitempty"`
	CaseID          string        `json:"case,omitempty"`

	Window1h  WindowStats `json:"window_1h"`
	Window6h  WindowStats `json:"window_6h"`
	Window24h WindowStats `json:"window_24h"`
	Window72h WindowStats `json:"window_72h"`
}

// IsEmpty reports whether context has not been populated yet — the planner's
// non-negotiable constraint that forces context_tool first consults this.
func (c *TransactionContext) IsEmpty() bool {
	return c == nil || c.Transaction.TransactionID == ""
}

// PatternScore is one named pattern-detection signal from PatternTool.
type PatternScore struct {
	Name    string         `json:"name"`
	Score   float64        `json:"score"`
	Weight  float64        `json:"weight"`
	Details map[string]any `json:"details,omitempty"`
}

// PatternResults is the evidence bucket PatternTool populates.
type PatternResults struct {
	Scores           []PatternScore `json:"scores"`
	OverallScore     float64        `json:"overall_score"`
	PatternsDetected []string       `json:"patterns_detected"`
}

// SimilarityMatch is one nearest-neighbor result from the vector search.
type SimilarityMatch struct {
	TransactionID string    `json:"transaction_id"`
	Similarity    float64   `json:"similarity"`
	AgeWeight     float64   `json:"age_weight"`
	OccurredAt    time.Time `json:"occurred_at"`
	Outcome       string    `json:"outcome,omitempty"`
}

// SimilarityResults is the evidence bucket SimilarityTool populates.
type SimilarityResults struct {
	Matches      []SimilarityMatch `json:"matches"`
	OverallScore float64           `json:"overall_score"`
	Skipped      bool              `json:"skipped,omitempty"`
}

// Reasoning is the evidence bucket ReasoningTool populates.
type Reasoning struct {
	RiskLevel   Severity `json:"risk_level"`
	Explanation string   `json:"explanation"`
	Hypotheses  []string `json:"hypotheses"`
	Confidence  float64  `json:"confidence"`
	LLMStatus   string   `json:"llm_status"` // "llm" or "fallback"
}

// Recommendation is an analyst-facing suggested action.
type Recommendation struct {
	Type     string         `json:"type"`
	Priority int            `json:"priority"`
	Title    string         `json:"title"`
	Impact   string         `json:"impact"`
	Payload  map[string]any `json:"payload"`

	// Persistence-only fields, populated by the repository layer, not by the tool.
	ID       string              `json:"id,omitempty"`
	Status   RecommendationStatus `json:"status,omitempty"`
	RuleID   string              `json:"rule_id,omitempty"`
}

// RecommendationStatus is the lifecycle status of a recommendation.
type RecommendationStatus string

// Recommendation status values and their allowed transitions.
const (
	RecommendationOpen         RecommendationStatus = "OPEN"
	RecommendationAcknowledged RecommendationStatus = "ACKNOWLEDGED"
	RecommendationRejected     RecommendationStatus = "REJECTED"
	RecommendationExported     RecommendationStatus = "EXPORTED"
)

// RuleCondition is one normalized tuple in a rule draft's condition list.
type RuleCondition struct {
	FieldName string `json:"field_name"`
	Operator  string `json:"operator"`
	Value     any    `json:"value"`
	LogicalOp string `json:"logical_op,omitempty"`
}

// RuleDraftPayload is the evidence bucket RuleDraftTool populates.
type RuleDraftPayload struct {
	RuleName        string            `json:"rule_name"`
	RuleDescription string            `json:"rule_description"`
	Conditions      []RuleCondition   `json:"conditions"`
	Thresholds      map[string]float64 `json:"thresholds"`
	Metadata        RuleDraftMetadata `json:"metadata"`
}

// RuleDraftMetadata carries provenance for a rule draft.
type RuleDraftMetadata struct {
	RecommendationID string `json:"recommendation_id"`
	InsightID        string `json:"insight_id"`
	Source           string `json:"source"`
}
