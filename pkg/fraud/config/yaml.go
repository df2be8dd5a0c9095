package config

// fraudYAMLConfig mirrors the on-disk fraud-agent.yaml structure. Every field
// is optional; anything left unset is filled in by mergeDefaults.
type fraudYAMLConfig struct {
	Environment string               `yaml:"environment"`
	Timeouts    *timeoutsYAML        `yaml:"timeouts"`
	Planner     *plannerYAML         `yaml:"planner"`
	LLM         *llmYAML             `yaml:"llm"`
	Vector      *vectorYAML          `yaml:"vector"`
	TM          *tmYAML              `yaml:"tm_api"`
	Scoring     *scoringYAML         `yaml:"scoring"`
	Safety      *safetyYAML          `yaml:"safety"`
	Database    *databaseYAML        `yaml:"database"`
	Metrics     *metricsYAML         `yaml:"metrics"`
	Redis       *redisYAML           `yaml:"redis"`
}

type timeoutsYAML struct {
	InvestigationTimeoutSeconds *int `yaml:"investigation_timeout_seconds"`
	ToolTimeoutSeconds          *int `yaml:"tool_timeout_seconds"`
	PlannerTimeoutSeconds       *int `yaml:"planner_timeout_seconds"`
	MaxSteps                    *int `yaml:"max_steps"`
}

type plannerYAML struct {
	Model            string   `yaml:"model"`
	Temperature      *float64 `yaml:"temperature"`
	LLMEnabled       *bool    `yaml:"llm_enabled"`
	FallbackSequence []string `yaml:"fallback_sequence,omitempty"`
}

type llmYAML struct {
	BaseURL             string `yaml:"base_url"`
	APIKeyEnv           string `yaml:"api_key_env"`
	MaxPromptTokens     *int   `yaml:"max_prompt_tokens"`
	MaxCompletionTokens *int   `yaml:"max_completion_tokens"`
	PromptGuardEnabled  *bool  `yaml:"prompt_guard_enabled"`
}

type vectorYAML struct {
	Enabled        *bool    `yaml:"enabled"`
	Dimension      *int     `yaml:"dimension"`
	SearchLimit    *int     `yaml:"search_limit"`
	TimeWindowDays *int     `yaml:"time_window_days"`
	MinSimilarity  *float64 `yaml:"min_similarity"`
	EmbeddingModel string   `yaml:"embedding_model"`
}

type tmYAML struct {
	BaseURL                 string `yaml:"base_url"`
	M2MClientIDEnv          string `yaml:"m2m_client_id_env"`
	M2MClientSecretEnv      string `yaml:"m2m_client_secret_env"`
	M2MAudience             string `yaml:"m2m_audience"`
	TimeoutSeconds          *int   `yaml:"timeout_seconds"`
	CircuitBreakerThreshold *int   `yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldownSeconds *int `yaml:"circuit_breaker_cooldown_seconds"`
}

type scoringYAML struct {
	VelocityThreshold1h *int     `yaml:"velocity_threshold_1h"`
	VelocityThreshold6h *int     `yaml:"velocity_threshold_6h"`
	DeclineRatioHigh    *float64 `yaml:"decline_ratio_high"`
	DeclineRatioMedium  *float64 `yaml:"decline_ratio_medium"`
	AmountHighCents     *int64   `yaml:"amount_high_cents"`
	AmountElevatedCents *int64   `yaml:"amount_elevated_cents"`
	ZScoreOutlier       *float64 `yaml:"z_score_outlier"`
	ZScoreWarning       *float64 `yaml:"z_score_warning"`
	UnusualHours        []int    `yaml:"unusual_hours,omitempty"`
	RoundNumbers        []int64  `yaml:"round_numbers,omitempty"`
	SeverityCritical    *float64 `yaml:"severity_critical"`
	SeverityHigh        *float64 `yaml:"severity_high"`
	SeverityMedium      *float64 `yaml:"severity_medium"`
}

type safetyYAML struct {
	EnforceHumanApproval  *bool  `yaml:"enforce_human_approval"`
	EnableRuleDraftExport *bool  `yaml:"enable_rule_draft_export"`
	SkipJWTValidation     *bool  `yaml:"skip_jwt_validation"`
	MetricsTokenEnv       string `yaml:"metrics_token_env"`
}

type databaseYAML struct {
	Host                  string `yaml:"host"`
	Port                  *int   `yaml:"port"`
	User                  string `yaml:"user"`
	PasswordEnv           string `yaml:"password_env"`
	Database              string `yaml:"database"`
	SSLMode               string `yaml:"ssl_mode"`
	MaxOpenConns          *int   `yaml:"max_open_conns"`
	MaxIdleConns          *int   `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds *int  `yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds *int  `yaml:"conn_max_idle_time_seconds"`
	RetentionDays         *int   `yaml:"retention_days"`
}

type metricsYAML struct {
	TokenEnv string `yaml:"token_env"`
}

type redisYAML struct {
	URLEnv string `yaml:"url_env"`
}
