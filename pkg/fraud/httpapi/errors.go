package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/apierr"
)

// errorEnvelope is the canonical HTTP error body: {error, code, details{}}.
type errorEnvelope struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps err to the canonical status/code/details envelope and
// writes it. Anything not already classified via apierr is logged and
// reported as an opaque internal error — callers never see an internal
// message or stack trace.
func writeError(c *gin.Context, err error) {
	if classified, ok := apierr.As(err); ok {
		c.JSON(classified.Kind.HTTPStatus(), errorEnvelope{
			Error:   classified.Message,
			Code:    string(classified.Kind),
			Details: classified.Details,
		})
		return
	}

	slog.Error("httpapi: unclassified service error", "error", err)
	c.JSON(http.StatusInternalServerError, errorEnvelope{
		Error: "internal server error",
		Code:  string(apierr.KindInternal),
	})
}
