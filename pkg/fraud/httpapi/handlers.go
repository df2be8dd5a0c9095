package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/apierr"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/repository"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/service"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// runInvestigationRequest is the bound body for POST .../investigations/run.
type runInvestigationRequest struct {
	TransactionID string     `json:"transaction_id" binding:"required"`
	Mode          types.Mode `json:"mode"`
	CaseID        string     `json:"case_id"`
}

// runInvestigationHandler handles POST /api/v1/ops-agent/investigations/run.
func (s *Server) runInvestigationHandler(c *gin.Context) {
	// 1. Bind request.
	var req runInvestigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.New(apierr.KindInvalidRequest, err.Error()))
		return
	}

	// 2. Call the facade.
	resp, err := s.facade.Run(c.Request.Context(), service.RunRequest{
		TransactionID: req.TransactionID,
		Mode:          req.Mode,
		CaseID:        req.CaseID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	// 3. Return response.
	c.JSON(http.StatusCreated, resp)
}

// getInvestigationHandler handles GET /api/v1/ops-agent/investigations/:id.
func (s *Server) getInvestigationHandler(c *gin.Context) {
	resp, err := s.facade.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// resumeInvestigationHandler handles POST .../investigations/:id/resume.
func (s *Server) resumeInvestigationHandler(c *gin.Context) {
	resp, err := s.facade.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getRuleDraftHandler handles GET .../investigations/:id/rule-draft.
func (s *Server) getRuleDraftHandler(c *gin.Context) {
	draft, err := s.facade.RuleDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// listInsightsHandler handles GET .../transactions/:transaction_id/insights.
func (s *Server) listInsightsHandler(c *gin.Context) {
	insights, err := s.facade.InsightsByTransaction(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

// listWorklistHandler handles GET .../worklist/recommendations.
func (s *Server) listWorklistHandler(c *gin.Context) {
	filters := repository.WorklistFilters{
		Status:   types.RecommendationStatus(c.Query("status")),
		Severity: types.Severity(c.Query("severity")),
		Type:     c.Query("type"),
		Cursor:   c.Query("cursor"),
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filters.Limit = n
		}
	}

	rows, err := s.facade.ListRecommendations(c.Request.Context(), filters)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": rows})
}

// acknowledgeRecommendationRequest is the bound body for the acknowledge endpoint.
type acknowledgeRecommendationRequest struct {
	Action  types.RecommendationStatus `json:"action" binding:"required"`
	Comment string                     `json:"comment"`
}

// acknowledgeRecommendationHandler handles POST .../worklist/recommendations/:id/acknowledge.
func (s *Server) acknowledgeRecommendationHandler(c *gin.Context) {
	var req acknowledgeRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierr.New(apierr.KindInvalidRequest, err.Error()))
		return
	}

	row, err := s.facade.AcknowledgeRecommendation(c.Request.Context(), c.Param("id"), req.Action, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}
