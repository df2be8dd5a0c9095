// Package service is the single entry point the HTTP layer calls: it wires
// the graph runtime, the completion node, and the repository layer behind a
// handful of request/response methods, and owns the process-wide concurrency
// cap and per-transaction conflict check that the graph/completion packages
// know nothing about. It mirrors a request validation + orchestration layer
// paired with capacity-gated execution.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/apierr"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/completion"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/config"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/graph"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/repository"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// maxConcurrentInvestigations is the global cap on simultaneously executing
// investigations, enforced via a counting semaphore. It is not a tuning
// knob — it is fixed at 10.
const maxConcurrentInvestigations = 10

// Dependencies are the already-constructed collaborators Facade orchestrates.
// cmd/ops-agent builds every one of these (repositories, tools, planner,
// executor, graph, completer) in dependency order; Facade itself only adds
// request-shaping and capacity control on top.
type Dependencies struct {
	Config          *config.Config
	Graph           *graph.Graph
	Completer       *completion.Completer
	Investigations  *repository.InvestigationRepository
	StateStore      *repository.StateStore
	Insights        *repository.InsightRepository
	Evidence        *repository.EvidenceRepository
	Recommendations *repository.RecommendationRepository
	RuleDrafts      *repository.RuleDraftRepository
	AuditLog        *repository.AuditLogRepository
}

// Facade is the sole entry point the httpapi package depends on.
type Facade struct {
	deps Dependencies
	sem  chan struct{}
}

// New builds a Facade bound to deps.
func New(deps Dependencies) *Facade {
	return &Facade{deps: deps, sem: make(chan struct{}, maxConcurrentInvestigations)}
}

// RunRequest is the input to Run.
type RunRequest struct {
	TransactionID string
	Mode          types.Mode
	CaseID        string
}

// Run starts a new investigation for req.TransactionID and drives it to
// completion (or timeout/step-cap) before returning. It enforces the global
// concurrency cap and rejects a second concurrent run for the same
// transaction_id as a conflict.
func (f *Facade) Run(ctx context.Context, req RunRequest) (*types.InvestigationResponse, error) {
	if req.TransactionID == "" {
		return nil, apierr.New(apierr.KindInvalidRequest, "transaction_id is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = types.ModeFull
	}
	if mode != types.ModeFull && mode != types.ModeQuick {
		return nil, apierr.New(apierr.KindInvalidRequest, fmt.Sprintf("unknown mode %q", mode))
	}

	release, err := f.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if existing, err := f.deps.Investigations.FindInProgress(ctx, req.TransactionID); err == nil {
		return nil, apierr.Conflict("an investigation is already in progress for this transaction",
			map[string]any{"investigation_id": existing.InvestigationID})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("service: check in-progress investigation: %w", err)
	}

	inv := &types.Investigation{
		TransactionID:  req.TransactionID,
		Mode:           mode,
		Status:         types.StatusInProgress,
		Severity:       types.SeverityLow,
		MaxSteps:       f.deps.Config.Timeouts.MaxSteps,
		StartedAt:      time.Now(),
		PlannerModel:   f.deps.Config.Planner.Model,
		CaseID:         req.CaseID,
		IdempotencyKey: types.DeriveIdempotencyKey(req.TransactionID, mode),
	}
	if err := f.deps.Investigations.Create(ctx, inv); err != nil {
		return nil, err
	}

	return f.execute(ctx, f.newInvestigationState(inv))
}

// Resume continues a previously started investigation from its last saved
// snapshot — used after a process restart or a prior timeout.
func (f *Facade) Resume(ctx context.Context, investigationID string) (*types.InvestigationResponse, error) {
	inv, err := f.deps.Investigations.GetByID(ctx, investigationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierr.NotFound("investigation", investigationID)
		}
		return nil, fmt.Errorf("service: get investigation for resume: %w", err)
	}
	if inv.Status != types.StatusInProgress && inv.Status != types.StatusTimedOut {
		return nil, apierr.Conflict("investigation is not resumable", map[string]any{"status": string(inv.Status)})
	}

	state, _, err := f.deps.StateStore.Load(ctx, investigationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierr.NotFound("investigation state", investigationID)
		}
		return nil, fmt.Errorf("service: load investigation state for resume: %w", err)
	}

	release, err := f.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return f.execute(ctx, state)
}

// acquire blocks for a free execution slot, failing fast with a dependency
// error if ctx is done first rather than queuing indefinitely.
func (f *Facade) acquire(ctx context.Context) (func(), error) {
	select {
	case f.sem <- struct{}{}:
		return func() { <-f.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("service: acquire investigation slot: %w", ctx.Err())
	}
}

// execute drives state through the graph under the investigation-level
// timeout, then always runs completion — even on a timeout or step-cap
// error — so partial evidence is still persisted and reported.
func (f *Facade) execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationResponse, error) {
	runCtx, cancel := context.WithTimeout(ctx, f.deps.Config.Timeouts.InvestigationTimeout)
	defer cancel()

	final, graphErr := f.deps.Graph.Run(runCtx, state)
	if graphErr != nil {
		slog.Warn("service: graph run did not reach COMPLETE cleanly", "investigation_id", final.InvestigationID, "error", graphErr)
	}

	// Completion must run even though runCtx may already be expired; detach
	// from its deadline while keeping the caller's cancellation.
	response, err := f.deps.Completer.Finish(detach(ctx), final, graphErr)
	if err != nil {
		return nil, fmt.Errorf("service: finish investigation: %w", err)
	}
	return response, nil
}

// detach keeps parent's cancellation but drops its deadline, so completion's
// writes aren't aborted by the same timeout that stopped the graph loop.
func detach(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// newInvestigationState builds the initial working-memory state for a freshly
// created investigation, snapshotting the feature flags and safeguards that
// were active at start time so the response envelope stays accurate even if
// config changes mid-run.
func (f *Facade) newInvestigationState(inv *types.Investigation) *types.InvestigationState {
	cfg := f.deps.Config
	return &types.InvestigationState{
		InvestigationID: inv.InvestigationID,
		TransactionID:   inv.TransactionID,
		Mode:            inv.Mode,
		Status:          types.StatusInProgress,
		MaxSteps:        inv.MaxSteps,
		StartedAt:       inv.StartedAt,
		PlannerModel:    inv.PlannerModel,
		FeatureFlags: types.FeatureFlags{
			PlannerLLMEnabled:   cfg.Planner.LLMEnabled,
			VectorEnabled:       cfg.Vector.Enabled,
			PromptGuardEnabled:  cfg.LLM.PromptGuardEnabled,
			RuleDraftExportable: cfg.Safety.EnableRuleDraftExport,
		},
		Safeguards: types.Safeguards{
			InvestigationTimeoutSeconds: int(cfg.Timeouts.InvestigationTimeout.Seconds()),
			ToolTimeoutSeconds:          int(cfg.Timeouts.ToolTimeout.Seconds()),
			PlannerTimeoutSeconds:       int(cfg.Timeouts.PlannerTimeout.Seconds()),
			MaxSteps:                    inv.MaxSteps,
		},
		LLMUsage: types.LLMUsage{Model: cfg.Planner.Model},
	}
}
