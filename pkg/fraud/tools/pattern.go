package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/config"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// highConfidenceSingleSignal and severityFloorOnHighConfidence ensure a lone
// high-confidence pattern (velocity, cross-merchant spread, card testing)
// is enough to clear the completion node's MEDIUM severity threshold on its
// own, not get diluted away by the weighted blend with every other check
// that legitimately scored zero.
const (
	highConfidenceSingleSignal   = 0.9
	severityFloorOnHighConfidence = 0.4
)

// PatternTool runs a fixed battery of deterministic fraud-pattern checks
// against the context gathered so far. Every check is a pure function of
// state.Context and the configured thresholds, so a replay of the same
// investigation always produces the same scores.
type PatternTool struct {
	cfg config.ScoringConfig
}

// NewPatternTool builds a PatternTool bound to cfg.
func NewPatternTool(cfg config.ScoringConfig) *PatternTool {
	return &PatternTool{cfg: cfg}
}

// Name implements Tool.
func (t *PatternTool) Name() string { return types.ToolPattern }

// Description implements Tool.
func (t *PatternTool) Description() string {
	return "Runs deterministic amount-anomaly, velocity, unusual-hour, cross-merchant-spread, and card-testing checks against the gathered transaction context."
}

// Execute implements Tool.
func (t *PatternTool) Execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	if state.Context.IsEmpty() {
		return nil, fmt.Errorf("pattern_tool: requires context_tool to have run first")
	}

	scores := []types.PatternScore{
		t.amountAnomalyScore(state.Context),
		t.velocityScore(state.Context),
		t.unusualHourScore(state.Context),
		t.crossMerchantScore(state.Context),
		t.cardTestingScore(state.Context),
	}

	var weightedSum, weightTotal float64
	var detected []string
	highConfidence := false
	for _, s := range scores {
		weightedSum += s.Score * s.Weight
		weightTotal += s.Weight
		if s.Score >= 0.5 {
			detected = append(detected, s.Name)
		}
		if s.Score >= highConfidenceSingleSignal {
			highConfidence = true
		}
	}
	overall := 0.0
	if weightTotal > 0 {
		overall = weightedSum / weightTotal
	}
	// A single near-certain signal (e.g. a 12-transaction-in-an-hour velocity
	// burst, or a 10+ distinct-merchant spread) is fraud evidence on its own,
	// even when every other check scores zero and the weighted blend would
	// otherwise dilute it below the medium-severity band.
	if highConfidence && overall < severityFloorOnHighConfidence {
		overall = severityFloorOnHighConfidence
	}

	results := &types.PatternResults{
		Scores:           scores,
		OverallScore:     overall,
		PatternsDetected: detected,
	}

	next := state.Clone()
	next.PatternResults = results
	next.Evidence = append(next.Evidence, types.EvidenceEnvelope{
		Category: "pattern",
		Tool:     t.Name(),
		Data:     results,
		Created:  time.Now(),
	})
	return next, nil
}

// velocityScore flags card activity above the configured 1h/6h thresholds.
func (t *PatternTool) velocityScore(c *types.TransactionContext) types.PatternScore {
	score := 0.0
	switch {
	case c.Window1h.Count >= t.cfg.VelocityThreshold1h:
		score = 1.0
	case c.Window6h.Count >= t.cfg.VelocityThreshold6h:
		score = 0.7
	case c.Window1h.Count >= t.cfg.VelocityThreshold1h/2:
		score = 0.4
	}
	return types.PatternScore{
		Name:   "velocity",
		Score:  score,
		Weight: 0.25,
		Details: map[string]any{
			"window_1h_count": c.Window1h.Count,
			"window_6h_count": c.Window6h.Count,
		},
	}
}

// crossMerchantScore flags a wide spread of distinct merchants charged on
// the same card within the 24h window — a signature of a compromised card
// being used across many storefronts in quick succession.
func (t *PatternTool) crossMerchantScore(c *types.TransactionContext) types.PatternScore {
	n := c.Window24h.UniqueMerchants
	score := 0.0
	switch {
	case n >= 10:
		score = 1.0
	case n >= 6:
		score = 0.7
	case n >= 4:
		score = 0.4
	}
	return types.PatternScore{
		Name:    "cross_merchant",
		Score:   score,
		Weight:  0.15,
		Details: map[string]any{"unique_merchants_24h": n},
	}
}

// cardTestingScore flags runs of consecutive small-amount declines on the
// same card, the classic signature of an attacker probing a stolen card
// number for a limit that will clear.
func (t *PatternTool) cardTestingScore(c *types.TransactionContext) types.PatternScore {
	const testingThresholdCents = 500 // sub-$5 probes are the common "card testing" amount

	history := sortedByTime(c.CardHistory)
	longestRun, currentRun := 0, 0
	for _, txn := range history {
		if txn.Declined && txn.AmountCents <= testingThresholdCents {
			currentRun++
			if currentRun > longestRun {
				longestRun = currentRun
			}
		} else {
			currentRun = 0
		}
	}

	score := 0.0
	switch {
	case longestRun >= 4:
		score = 1.0
	case longestRun >= 2:
		score = 0.6
	}

	// A high overall decline ratio in the 24h window is a secondary signal
	// of the same behavior even when the small-amount declines aren't
	// perfectly consecutive (e.g. interleaved with one successful charge).
	ratio := 0.0
	if c.Window24h.Count > 0 {
		ratio = float64(c.Window24h.DeclineCount) / float64(c.Window24h.Count)
	}
	switch {
	case ratio >= t.cfg.DeclineRatioHigh:
		score = math.Max(score, 0.8)
	case ratio >= t.cfg.DeclineRatioMedium:
		score = math.Max(score, 0.5)
	}

	return types.PatternScore{
		Name:   "card_testing",
		Score:  score,
		Weight: 0.20,
		Details: map[string]any{
			"consecutive_small_declines": longestRun,
			"decline_ratio_24h":          ratio,
		},
	}
}

func sortedByTime(txns []types.Transaction) []types.Transaction {
	out := make([]types.Transaction, len(txns))
	copy(out, txns)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// amountAnomalyScore compares the transaction amount against the card's
// recent history using a simple z-score, plus a minor round-number signal.
func (t *PatternTool) amountAnomalyScore(c *types.TransactionContext) types.PatternScore {
	amounts := make([]float64, 0, len(c.CardHistory))
	for _, txn := range c.CardHistory {
		amounts = append(amounts, float64(txn.AmountCents))
	}

	score := 0.0
	zScore := 0.0
	if len(amounts) >= 3 {
		mean, stddev := meanStddev(amounts)
		if stddev > 0 {
			zScore = (float64(c.Transaction.AmountCents) - mean) / stddev
			switch {
			case math.Abs(zScore) >= t.cfg.ZScoreOutlier:
				score = 1.0
			case math.Abs(zScore) >= t.cfg.ZScoreWarning:
				score = 0.5
			}
		}
	} else {
		switch {
		case c.Transaction.AmountCents >= t.cfg.AmountHighCents:
			score = 0.8
		case c.Transaction.AmountCents >= t.cfg.AmountElevatedCents:
			score = 0.4
		}
	}

	if t.cfg.RoundNumbers[c.Transaction.AmountCents] {
		score = math.Max(score, 0.2)
	}

	return types.PatternScore{
		Name:   "amount_anomaly",
		Score:  score,
		Weight: 0.25,
		Details: map[string]any{
			"amount_cents": c.Transaction.AmountCents,
			"z_score":      zScore,
		},
	}
}

// unusualHourScore flags transactions occurring during configured off-hours.
func (t *PatternTool) unusualHourScore(c *types.TransactionContext) types.PatternScore {
	hour := c.Transaction.Timestamp.UTC().Hour()
	score := 0.0
	if t.cfg.UnusualHours[hour] {
		score = 0.6
	}
	return types.PatternScore{
		Name:    "unusual_hour",
		Score:   score,
		Weight:  0.15,
		Details: map[string]any{"hour_utc": hour},
	}
}

func meanStddev(values []float64) (mean, stddev float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= n
	return mean, math.Sqrt(variance)
}
