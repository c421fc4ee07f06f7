package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	scoringdomain "github.com/sievehq/sieve/internal/scoring/domain"
	"github.com/sievehq/sieve/internal/tenantctx"
)

func (s *Server) scoreInvoice(c *gin.Context) {
	var in scoringdomain.InvoiceIn
	if err := c.ShouldBindJSON(&in); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp, err := s.scoring.ScoreInvoice(ctx, in)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getDecision(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, ok := tenantctx.TenantFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rec, err := s.decisions.Latest(ctx, tenantID, c.Param("invoice_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decision_id":     rec.DecisionID,
		"invoice_id":      rec.InvoiceID,
		"risk_score":      rec.RiskScore,
		"decision":        rec.Decision,
		"reason_codes":    rec.ReasonCodes,
		"top_matches":     rec.TopMatches,
		"explanations":    rec.Explanations,
		"model_id":        rec.ModelID,
		"model_version":   rec.ModelVersion,
		"ruleset_version": rec.RulesetVersion,
		"trace_id":        rec.TraceID,
		"created_at":      rec.CreatedAt,
	})
}

// requestContext applies the configured scoring deadline so in-flight I/O
// aborts instead of outliving the request.
func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()
	timeout := time.Duration(s.cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
