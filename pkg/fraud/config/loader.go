package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when fraud-agent.yaml is missing from configDir.
var ErrConfigNotFound = errors.New("config file not found")

// Initialize loads fraud-agent.yaml from configDir, merges it over the
// built-in defaults, resolves secret references from the environment, and
// validates the result. It is the sole entry point cmd/ops-agent/main.go
// calls at startup; a non-nil error means the process must not start.
//
// Steps: load .env (if present) -> read+expand YAML -> merge over defaults ->
// resolve secret env vars -> validate -> return frozen Config.
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env file", "error", err)
	}

	overlay, err := loadYAML(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud-agent.yaml: %w", err)
	}

	cfg := defaultConfig()
	if err := applyOverlay(cfg, overlay); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	resolveSecrets(cfg, overlay)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"environment", cfg.Environment,
		"planner_llm_enabled", cfg.Planner.LLMEnabled,
		"vector_enabled", cfg.Vector.Enabled)

	return cfg, nil
}

func loadYAML(configDir string) (*fraudYAMLConfig, error) {
	path := filepath.Join(configDir, "fraud-agent.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var overlay fraudYAMLConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return &overlay, nil
}

// applyOverlay merges the user-supplied overlay onto cfg in place, with
// overlay values taking precedence over the built-in defaults already in cfg.
func applyOverlay(cfg *Config, overlay *fraudYAMLConfig) error {
	if overlay.Environment != "" {
		cfg.Environment = overlay.Environment
	}

	if t := overlay.Timeouts; t != nil {
		if t.InvestigationTimeoutSeconds != nil {
			cfg.Timeouts.InvestigationTimeout = time.Duration(*t.InvestigationTimeoutSeconds) * time.Second
		}
		if t.ToolTimeoutSeconds != nil {
			cfg.Timeouts.ToolTimeout = time.Duration(*t.ToolTimeoutSeconds) * time.Second
		}
		if t.PlannerTimeoutSeconds != nil {
			cfg.Timeouts.PlannerTimeout = time.Duration(*t.PlannerTimeoutSeconds) * time.Second
		}
		if t.MaxSteps != nil {
			cfg.Timeouts.MaxSteps = *t.MaxSteps
		}
	}

	if p := overlay.Planner; p != nil {
		planner := PlannerConfig{
			Model:            cfg.Planner.Model,
			Temperature:      cfg.Planner.Temperature,
			LLMEnabled:       cfg.Planner.LLMEnabled,
			FallbackSequence: cfg.Planner.FallbackSequence,
		}
		if p.Model != "" {
			planner.Model = p.Model
		}
		if p.Temperature != nil {
			planner.Temperature = *p.Temperature
		}
		if p.LLMEnabled != nil {
			planner.LLMEnabled = *p.LLMEnabled
		}
		if len(p.FallbackSequence) > 0 {
			planner.FallbackSequence = p.FallbackSequence
		}
		if err := mergo.Merge(&cfg.Planner, planner, mergo.WithOverride); err != nil {
			return err
		}
	}

	if l := overlay.LLM; l != nil {
		if l.BaseURL != "" {
			cfg.LLM.BaseURL = l.BaseURL
		}
		if l.MaxPromptTokens != nil {
			cfg.LLM.MaxPromptTokens = *l.MaxPromptTokens
		}
		if l.MaxCompletionTokens != nil {
			cfg.LLM.MaxCompletionTokens = *l.MaxCompletionTokens
		}
		if l.PromptGuardEnabled != nil {
			cfg.LLM.PromptGuardEnabled = *l.PromptGuardEnabled
		}
	}

	if v := overlay.Vector; v != nil {
		if v.Enabled != nil {
			cfg.Vector.Enabled = *v.Enabled
		}
		if v.Dimension != nil {
			cfg.Vector.Dimension = *v.Dimension
		}
		if v.SearchLimit != nil {
			cfg.Vector.SearchLimit = *v.SearchLimit
		}
		if v.TimeWindowDays != nil {
			cfg.Vector.TimeWindowDays = *v.TimeWindowDays
		}
		if v.MinSimilarity != nil {
			cfg.Vector.MinSimilarity = *v.MinSimilarity
		}
		if v.EmbeddingModel != "" {
			cfg.Vector.EmbeddingModel = v.EmbeddingModel
		}
	}

	if tm := overlay.TM; tm != nil {
		if tm.BaseURL != "" {
			cfg.TM.BaseURL = tm.BaseURL
		}
		if tm.M2MAudience != "" {
			cfg.TM.M2MAudience = tm.M2MAudience
		}
		if tm.TimeoutSeconds != nil {
			cfg.TM.Timeout = time.Duration(*tm.TimeoutSeconds) * time.Second
		}
		if tm.CircuitBreakerThreshold != nil {
			cfg.TM.CircuitBreakerThreshold = *tm.CircuitBreakerThreshold
		}
		if tm.CircuitBreakerCooldownSeconds != nil {
			cfg.TM.CircuitBreakerCooldown = time.Duration(*tm.CircuitBreakerCooldownSeconds) * time.Second
		}
	}

	if sc := overlay.Scoring; sc != nil {
		if sc.VelocityThreshold1h != nil {
			cfg.Scoring.VelocityThreshold1h = *sc.VelocityThreshold1h
		}
		if sc.VelocityThreshold6h != nil {
			cfg.Scoring.VelocityThreshold6h = *sc.VelocityThreshold6h
		}
		if sc.DeclineRatioHigh != nil {
			cfg.Scoring.DeclineRatioHigh = *sc.DeclineRatioHigh
		}
		if sc.DeclineRatioMedium != nil {
			cfg.Scoring.DeclineRatioMedium = *sc.DeclineRatioMedium
		}
		if sc.AmountHighCents != nil {
			cfg.Scoring.AmountHighCents = *sc.AmountHighCents
		}
		if sc.AmountElevatedCents != nil {
			cfg.Scoring.AmountElevatedCents = *sc.AmountElevatedCents
		}
		if sc.ZScoreOutlier != nil {
			cfg.Scoring.ZScoreOutlier = *sc.ZScoreOutlier
		}
		if sc.ZScoreWarning != nil {
			cfg.Scoring.ZScoreWarning = *sc.ZScoreWarning
		}
		if len(sc.UnusualHours) > 0 {
			hours := map[int]bool{}
			for _, h := range sc.UnusualHours {
				hours[h] = true
			}
			cfg.Scoring.UnusualHours = hours
		}
		if len(sc.RoundNumbers) > 0 {
			nums := map[int64]bool{}
			for _, n := range sc.RoundNumbers {
				nums[n] = true
			}
			cfg.Scoring.RoundNumbers = nums
		}
		if sc.SeverityCritical != nil {
			cfg.Scoring.SeverityCritical = *sc.SeverityCritical
		}
		if sc.SeverityHigh != nil {
			cfg.Scoring.SeverityHigh = *sc.SeverityHigh
		}
		if sc.SeverityMedium != nil {
			cfg.Scoring.SeverityMedium = *sc.SeverityMedium
		}
	}

	if s := overlay.Safety; s != nil {
		if s.EnforceHumanApproval != nil {
			cfg.Safety.EnforceHumanApproval = *s.EnforceHumanApproval
		}
		if s.EnableRuleDraftExport != nil {
			cfg.Safety.EnableRuleDraftExport = *s.EnableRuleDraftExport
		}
		if s.SkipJWTValidation != nil {
			cfg.Safety.SkipJWTValidation = *s.SkipJWTValidation
		}
	}

	if d := overlay.Database; d != nil {
		if d.Host != "" {
			cfg.Database.Host = d.Host
		}
		if d.Port != nil {
			cfg.Database.Port = *d.Port
		}
		if d.User != "" {
			cfg.Database.User = d.User
		}
		if d.Database != "" {
			cfg.Database.Database = d.Database
		}
		if d.SSLMode != "" {
			cfg.Database.SSLMode = d.SSLMode
		}
		if d.MaxOpenConns != nil {
			cfg.Database.MaxOpenConns = *d.MaxOpenConns
		}
		if d.MaxIdleConns != nil {
			cfg.Database.MaxIdleConns = *d.MaxIdleConns
		}
		if d.ConnMaxLifetimeSeconds != nil {
			cfg.Database.ConnMaxLifetime = time.Duration(*d.ConnMaxLifetimeSeconds) * time.Second
		}
		if d.ConnMaxIdleTimeSeconds != nil {
			cfg.Database.ConnMaxIdleTime = time.Duration(*d.ConnMaxIdleTimeSeconds) * time.Second
		}
		if d.RetentionDays != nil {
			cfg.Database.RetentionDays = *d.RetentionDays
		}
	}

	return nil
}

// resolveSecrets pulls secret values (API keys, passwords, tokens) out of the
// environment using the *_env indirection names declared in the overlay,
// rather than ever accepting them as plaintext YAML values.
func resolveSecrets(cfg *Config, overlay *fraudYAMLConfig) {
	if overlay.LLM != nil && overlay.LLM.APIKeyEnv != "" {
		cfg.LLM.APIKey = os.Getenv(overlay.LLM.APIKeyEnv)
	}
	if overlay.TM != nil {
		if overlay.TM.M2MClientIDEnv != "" {
			cfg.TM.M2MClientID = os.Getenv(overlay.TM.M2MClientIDEnv)
		}
		if overlay.TM.M2MClientSecretEnv != "" {
			cfg.TM.M2MClientSecret = os.Getenv(overlay.TM.M2MClientSecretEnv)
		}
	}
	if overlay.Database != nil && overlay.Database.PasswordEnv != "" {
		cfg.Database.Password = os.Getenv(overlay.Database.PasswordEnv)
	}
	if overlay.Safety != nil && overlay.Safety.MetricsTokenEnv != "" {
		cfg.Safety.MetricsToken = os.Getenv(overlay.Safety.MetricsTokenEnv)
		cfg.Metrics.Token = cfg.Safety.MetricsToken
	}
	if overlay.Redis != nil && overlay.Redis.URLEnv != "" {
		cfg.Redis.URL = os.Getenv(overlay.Redis.URLEnv)
	}
}

var structValidator = validator.New()

// validateConfig runs struct-tag validation plus the production safety
// invariants: unsafe combinations abort startup eagerly rather than
// degrading silently at request time.
func validateConfig(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		// Config has no validate tags of its own yet beyond nested checks;
		// keep structValidator wired so per-field tags added later are enforced.
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			return fmt.Errorf("field validation failed: %w", verr)
		}
		return err
	}

	if cfg.Timeouts.MaxSteps <= 0 {
		return fmt.Errorf("timeouts.max_steps must be positive, got %d", cfg.Timeouts.MaxSteps)
	}
	if cfg.Timeouts.InvestigationTimeout <= cfg.Timeouts.ToolTimeout {
		return fmt.Errorf("timeouts.investigation_timeout_seconds must exceed tool_timeout_seconds")
	}
	if len(cfg.Planner.FallbackSequence) == 0 {
		return fmt.Errorf("planner.fallback_sequence must not be empty")
	}

	if cfg.Environment == EnvProduction {
		if cfg.Safety.SkipJWTValidation {
			return fmt.Errorf("safety.skip_jwt_validation must not be enabled in production")
		}
		if cfg.Safety.EnableRuleDraftExport && !cfg.Safety.EnforceHumanApproval {
			return fmt.Errorf("safety.enable_rule_draft_export requires safety.enforce_human_approval in production")
		}
		if cfg.Planner.LLMEnabled && cfg.LLM.APIKey == "" {
			return fmt.Errorf("planner.llm_enabled requires an LLM API key in production")
		}
	}

	return nil
}
