package config

import "time"

// defaultConfig returns the built-in configuration merged underneath whatever
// the operator supplies in fraud-agent.yaml.
func defaultConfig() *Config {
	return &Config{
		Environment: EnvLocal,
		Timeouts: TimeoutsConfig{
			InvestigationTimeout: 120 * time.Second,
			ToolTimeout:          30 * time.Second,
			PlannerTimeout:       10 * time.Second,
			MaxSteps:             20,
		},
		Planner: PlannerConfig{
			Model:            "claude-sonnet-4-5",
			Temperature:      0.0,
			LLMEnabled:       true,
			FallbackSequence: []string{"context_tool", "pattern_tool", "similarity_tool", "reasoning_tool", "recommendation_tool", "rule_draft_tool"},
		},
		LLM: LLMConfig{
			MaxPromptTokens:     8000,
			MaxCompletionTokens: 2000,
			PromptGuardEnabled:  true,
		},
		Vector: VectorConfig{
			Enabled:        true,
			Dimension:      1024,
			SearchLimit:    10,
			TimeWindowDays: 90,
			MinSimilarity:  0.75,
			EmbeddingModel: "text-embedding-3-small",
		},
		TM: TMConfig{
			Timeout:                 10 * time.Second,
			CircuitBreakerThreshold: 3,
			CircuitBreakerCooldown:  60 * time.Second,
		},
		Scoring: ScoringConfig{
			VelocityThreshold1h: 5,
			VelocityThreshold6h: 12,
			DeclineRatioHigh:    0.5,
			DeclineRatioMedium:  0.25,
			AmountHighCents:     100000,
			AmountElevatedCents: 50000,
			ZScoreOutlier:       3.0,
			ZScoreWarning:       2.0,
			UnusualHours:        DefaultUnusualHours(),
			RoundNumbers:        DefaultRoundNumbers(),
			SeverityCritical:    0.7,
			SeverityHigh:        0.5,
			SeverityMedium:      0.3,
		},
		Safety: SafetyConfig{
			EnforceHumanApproval:  true,
			EnableRuleDraftExport: false,
			SkipJWTValidation:     false,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "fraud_agent",
			Database:        "fraud_agent",
			SSLMode:         "require",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
			RetentionDays:   365,
		},
	}
}
