package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// historyWindowHours is the trailing lookback used for card/merchant
// history: a 72h window, anchored by the TM client to "now" server-side
// (the investigation's own anchoring is recomputed locally by
// computeWindows against the transaction's own timestamp).
const historyWindowHours = 72

// OverviewFetcher is the subset of tmclient.Client the ContextTool depends on.
type OverviewFetcher interface {
	GetOverview(ctx context.Context, transactionID string) (*types.TransactionContext, error)
	CardHistory(ctx context.Context, cardID string, hoursBack int) ([]types.Transaction, error)
	MerchantHistory(ctx context.Context, merchantID string, hoursBack int) ([]types.Transaction, error)
}

// ContextTool gathers the transaction's own record plus card and merchant
// history from the TM collaborator and derives the fixed-size anchored
// activity windows. It is the planner's non-negotiable first step: every
// other tool assumes Context is populated.
type ContextTool struct {
	tm OverviewFetcher
}

// NewContextTool builds a ContextTool bound to tm.
func NewContextTool(tm OverviewFetcher) *ContextTool {
	return &ContextTool{tm: tm}
}

// Name implements Tool.
func (t *ContextTool) Name() string { return types.ToolContext }

// Description implements Tool.
func (t *ContextTool) Description() string {
	return "Fetches the transaction record, card and merchant history, matched rules, and review notes from the transaction management system. Always run this first."
}

// historyResult carries one concurrent history fetch's outcome back to the
// caller over a channel: card/merchant history is fetched in parallel, not
// sequentially.
type historyResult struct {
	kind string
	txns []types.Transaction
	err  error
}

// Execute implements Tool.
func (t *ContextTool) Execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	txnCtx, err := t.tm.GetOverview(ctx, state.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("context_tool: fetch overview: %w", err)
	}

	cardID := txnCtx.Transaction.CardID
	merchantID := txnCtx.Transaction.MerchantID
	results := make(chan historyResult, 2)

	go func() {
		txns, err := t.tm.CardHistory(ctx, cardID, historyWindowHours)
		results <- historyResult{kind: "card_history", txns: txns, err: err}
	}()
	go func() {
		txns, err := t.tm.MerchantHistory(ctx, merchantID, historyWindowHours)
		results <- historyResult{kind: "merchant_history", txns: txns, err: err}
	}()

	endpointsCalled := []string{"overview"}
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			return nil, fmt.Errorf("context_tool: fetch %s: %w", res.kind, res.err)
		}
		endpointsCalled = append(endpointsCalled, res.kind)
		switch res.kind {
		case "card_history":
			txnCtx.CardHistory = res.txns
		case "merchant_history":
			txnCtx.MerchantHistory = res.txns
		}
	}

	computeWindows(txnCtx)

	next := state.Clone()
	next.Context = txnCtx
	next.TMUsage.TotalCalls += len(endpointsCalled)
	next.TMUsage.EndpointsCalled = append(next.TMUsage.EndpointsCalled, endpointsCalled...)
	next.Evidence = append(next.Evidence, types.EvidenceEnvelope{
		Category: "context",
		Tool:     t.Name(),
		Data:     txnCtx,
		Created:  time.Now(),
	})
	return next, nil
}

// computeWindows derives Window1h/6h/24h/72h from CardHistory, anchored to
// the investigated transaction's own timestamp rather than wall-clock time,
// so a resumed or replayed investigation always computes the same windows.
func computeWindows(c *types.TransactionContext) {
	anchor := c.Transaction.Timestamp

	c.Window1h = windowStatsFor(c, anchor, time.Hour)
	c.Window6h = windowStatsFor(c, anchor, 6*time.Hour)
	c.Window24h = windowStatsFor(c, anchor, 24*time.Hour)
	c.Window72h = windowStatsFor(c, anchor, 72*time.Hour)
}

func windowStatsFor(c *types.TransactionContext, anchor time.Time, lookback time.Duration) types.WindowStats {
	var stats types.WindowStats
	merchants := map[string]bool{}
	cutoff := anchor.Add(-lookback)

	for _, txn := range c.CardHistory {
		if txn.Timestamp.Before(cutoff) || txn.Timestamp.After(anchor) {
			continue
		}
		stats.Count++
		stats.TotalAmountCents += txn.AmountCents
		merchants[txn.MerchantID] = true
		if txn.Declined {
			stats.DeclineCount++
		}
	}
	stats.UniqueMerchants = len(merchants)
	return stats
}
