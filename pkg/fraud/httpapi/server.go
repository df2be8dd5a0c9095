// Package httpapi is the thin HTTP shim over service.Facade: bind request,
// validate, call the facade, map the error, return the response. It carries
// no business logic of its own, mirroring a services-as-fields server shape
// with numbered-step handler bodies, built on gin.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/database"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/service"
)

// Server is the HTTP API server wrapping a gin engine.
type Server struct {
	engine       *gin.Engine
	facade       *service.Facade
	dbClient     *database.Client
	metricsToken string
}

// NewServer builds a Server with every route registered. metricsToken is the
// bearer token required on GET /metrics; an empty token disables the
// metrics endpoint entirely rather than leaving it open.
func NewServer(facade *service.Facade, dbClient *database.Client, metricsToken string) *Server {
	s := &Server{
		engine:       gin.New(),
		facade:       facade,
		dbClient:     dbClient,
		metricsToken: metricsToken,
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Engine returns the underlying gin engine, e.g. for http.Server wiring.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	if s.metricsToken != "" {
		s.engine.GET("/metrics", s.metricsAuth, gin.WrapH(promhttp.Handler()))
	}

	v1 := s.engine.Group("/api/v1/ops-agent")
	v1.POST("/investigations/run", s.runInvestigationHandler)
	v1.GET("/investigations/:id", s.getInvestigationHandler)
	v1.POST("/investigations/:id/resume", s.resumeInvestigationHandler)
	v1.GET("/investigations/:id/rule-draft", s.getRuleDraftHandler)
	v1.GET("/transactions/:transaction_id/insights", s.listInsightsHandler)
	v1.GET("/worklist/recommendations", s.listWorklistHandler)
	v1.POST("/worklist/recommendations/:id/acknowledge", s.acknowledgeRecommendationHandler)
}

// metricsAuth enforces the static bearer token configured for scraping.
func (s *Server) metricsAuth(c *gin.Context) {
	const prefix = "Bearer "
	auth := c.GetHeader("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != s.metricsToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope{Error: "missing or invalid metrics token", Code: "OPS_AGENT_SCOPE_FORBIDDEN"})
		return
	}
	c.Next()
}

func (s *Server) healthHandler(c *gin.Context) {
	status, err := s.dbClient.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
