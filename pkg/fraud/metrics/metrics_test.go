package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolDuration_ObservesByToolAndStatus(t *testing.T) {
	ToolDuration.WithLabelValues("context_tool", "success").Observe(0.05)

	count := testutil.CollectAndCount(ToolDuration, "ops_agent_tool_duration_seconds")
	assert.GreaterOrEqual(t, count, 1)
}

func TestPlannerFallbackTotal_Increments(t *testing.T) {
	before := testutil.ToFloat64(PlannerFallbackTotal)
	PlannerFallbackTotal.Inc()
	after := testutil.ToFloat64(PlannerFallbackTotal)

	assert.Equal(t, before+1, after)
}

func TestStepCount_RecordsObservation(t *testing.T) {
	StepCount.Observe(6)

	count := testutil.CollectAndCount(StepCount, "ops_agent_investigation_step_count")
	assert.GreaterOrEqual(t, count, 1)
}

func TestInvestigationsTotal_CountsByStatus(t *testing.T) {
	before := testutil.ToFloat64(InvestigationsTotal.WithLabelValues("COMPLETED"))
	InvestigationsTotal.WithLabelValues("COMPLETED").Inc()
	after := testutil.ToFloat64(InvestigationsTotal.WithLabelValues("COMPLETED"))

	require.Equal(t, before+1, after)
}
