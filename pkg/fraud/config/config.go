// Package config loads and validates the runtime's process-wide settings.
// Every option is read once at startup into an immutable Config value;
// changing configuration requires a restart.
package config

import "time"

// Environment names used by the startup safety checks.
const (
	EnvLocal      = "local"
	EnvStaging    = "staging"
	EnvProduction = "production"
)

// Config is the fully resolved, immutable runtime configuration.
type Config struct {
	Environment string

	Timeouts  TimeoutsConfig
	Planner   PlannerConfig
	LLM       LLMConfig
	Vector    VectorConfig
	TM        TMConfig
	Scoring   ScoringConfig
	Safety    SafetyConfig
	Database  DatabaseConfig
	Metrics   MetricsConfig
	Redis     RedisConfig
}

// TimeoutsConfig groups the investigation's timing budgets.
type TimeoutsConfig struct {
	InvestigationTimeout time.Duration
	ToolTimeout          time.Duration
	PlannerTimeout       time.Duration
	MaxSteps             int
}

// PlannerConfig controls planner LLM behavior and fallback.
type PlannerConfig struct {
	Model            string
	Temperature      float64
	LLMEnabled       bool
	FallbackSequence []string
}

// LLMConfig controls the shared LLM collaborator client.
type LLMConfig struct {
	BaseURL              string
	APIKey               string
	MaxPromptTokens      int
	MaxCompletionTokens  int
	PromptGuardEnabled   bool
}

// VectorConfig controls SimilarityTool's vector search.
type VectorConfig struct {
	Enabled        bool
	Dimension      int
	SearchLimit    int
	TimeWindowDays int
	MinSimilarity  float64
	// EmbeddingModel names the embedding model, independent of Planner.Model
	// which names the planner/reasoning chat model.
	EmbeddingModel string
}

// TMConfig controls the Transaction Management API collaborator.
type TMConfig struct {
	BaseURL                string
	M2MClientID            string
	M2MClientSecret        string
	M2MAudience            string
	Timeout                time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerCooldown time.Duration
}

// ScoringConfig holds all deterministic scoring thresholds.
type ScoringConfig struct {
	VelocityThreshold1h  int
	VelocityThreshold6h  int
	DeclineRatioHigh     float64
	DeclineRatioMedium   float64
	AmountHighCents      int64
	AmountElevatedCents  int64
	ZScoreOutlier        float64
	ZScoreWarning        float64
	UnusualHours         map[int]bool
	RoundNumbers         map[int64]bool
	SeverityCritical     float64
	SeverityHigh         float64
	SeverityMedium       float64
}

// SafetyConfig holds the human-approval and export gating flags.
type SafetyConfig struct {
	EnforceHumanApproval  bool
	EnableRuleDraftExport bool
	SkipJWTValidation     bool
	MetricsToken          string
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	RetentionDays   int
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Token string
}

// RedisConfig controls the optional shared cache backing the TM M2M token
// cache. URL is empty by default, in which case tmclient falls back to an
// in-process-only token cache — Redis only matters once more than one
// ops-agent replica shares a TM client.
type RedisConfig struct {
	URL string
}

// DefaultUnusualHours is the built-in set of "unusual" transaction hours
// (late night / early morning), mirroring common card-fraud heuristics.
func DefaultUnusualHours() map[int]bool {
	hours := map[int]bool{}
	for _, h := range []int{0, 1, 2, 3, 4, 5} {
		hours[h] = true
	}
	return hours
}

// DefaultRoundNumbers is the built-in set of round-dollar amounts (in cents)
// used as a minor signal in amount-anomaly scoring.
func DefaultRoundNumbers() map[int64]bool {
	nums := map[int64]bool{}
	for _, n := range []int64{5000, 10000, 20000, 50000, 100000} {
		nums[n] = true
	}
	return nums
}
