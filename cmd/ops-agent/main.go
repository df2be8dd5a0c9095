// Command ops-agent runs the fraud investigation runtime's HTTP API:
// configuration, database, collaborators, the planner/tool-executor graph,
// and the gin-based HTTP shim, wired together the way cmd/tarsy wires the
// teacher's own service layer.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/completion"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/config"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/database"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/embedding"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/executor"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/graph"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/httpapi"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/llm"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/planner"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/promptguard"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/repository"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/service"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/tmclient"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/tools"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()

	facade := buildFacade(cfg, dbClient)

	ginMode := getEnv("GIN_MODE", gin.ReleaseMode)
	gin.SetMode(ginMode)
	server := httpapi.NewServer(facade, dbClient, cfg.Safety.MetricsToken)

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("starting ops-agent", "http_port", httpPort, "config_dir", *configDir, "environment", cfg.Environment)
	if err := server.Engine().Run(":" + httpPort); err != nil {
		slog.Error("http server exited", "error", err)
		os.Exit(1)
	}
}

// buildFacade wires every collaborator, repository, tool, and the graph/
// completion runtime in dependency order: leaf collaborators first, then
// repositories, then tools, then planner/executor/graph/completer, and
// finally the facade that exposes them as a handful of request methods.
func buildFacade(cfg *config.Config, dbClient *database.Client) *service.Facade {
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("failed to parse redis url, falling back to in-process token cache only", "error", err)
		} else {
			redisClient = redis.NewClient(opts)
		}
	}

	tm := tmclient.New(cfg.TM, redisClient)
	guard := promptguard.New(promptguard.DefaultLimits)

	var llmClient llm.Client
	if cfg.Planner.LLMEnabled {
		llmClient = llm.NewAnthropicClient(cfg.LLM.APIKey)
	}

	var embedder embedding.Client
	if cfg.Vector.Enabled {
		langchainEmbedder, err := embedding.NewLangchainClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.Vector.EmbeddingModel)
		if err != nil {
			slog.Error("failed to build embedding client, disabling similarity search", "error", err)
		} else {
			embedder = langchainEmbedder
		}
	}

	investigations := repository.NewInvestigationRepository(dbClient)
	stateStore := repository.NewStateStore(dbClient)
	toolExecutions := repository.NewToolExecutionRepository(dbClient)
	insights := repository.NewInsightRepository(dbClient)
	evidence := repository.NewEvidenceRepository(dbClient)
	recommendations := repository.NewRecommendationRepository(dbClient)
	ruleDrafts := repository.NewRuleDraftRepository(dbClient)
	auditLog := repository.NewAuditLogRepository(dbClient)
	similarity := repository.NewSimilarityRepository(dbClient)

	registry := tools.NewRegistry(
		tools.NewContextTool(tm),
		tools.NewPatternTool(cfg.Scoring),
		tools.NewSimilarityTool(embedder, similarity, cfg.Vector),
		tools.NewReasoningTool(llmClient, guard, cfg.Planner.Model),
		tools.NewRecommendationTool(),
		tools.NewRuleDraftTool(),
	)

	p := planner.New(registry, llmClient, guard, cfg.Planner.Model, cfg.Planner.FallbackSequence)
	e := executor.New(registry, cfg.Timeouts.ToolTimeout)
	g := graph.New(p, e, stateStore, cfg.Timeouts.PlannerTimeout)

	completer := completion.New(completion.Repositories{
		Investigation:  investigations,
		ToolExecution:  toolExecutions,
		Insight:        insights,
		Evidence:       evidence,
		Recommendation: recommendations,
		RuleDraft:      ruleDrafts,
		AuditLog:       auditLog,
	}, completion.SeverityThresholds{
		Critical: cfg.Scoring.SeverityCritical,
		High:     cfg.Scoring.SeverityHigh,
		Medium:   cfg.Scoring.SeverityMedium,
	})

	return service.New(service.Dependencies{
		Config:          cfg,
		Graph:           g,
		Completer:       completer,
		Investigations:  investigations,
		StateStore:      stateStore,
		Insights:        insights,
		Evidence:        evidence,
		Recommendations: recommendations,
		RuleDrafts:      ruleDrafts,
		AuditLog:        auditLog,
	})
}
