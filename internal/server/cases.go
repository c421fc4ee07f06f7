package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/sievehq/sieve/internal/audit/domain"
	"github.com/sievehq/sieve/internal/tenantctx"
)

type dispositionRequest struct {
	Disposition string `json:"disposition"`
	Note        string `json:"note"`
}

func (s *Server) disposeCase(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, ok := tenantctx.TenantFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req dispositionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Disposition) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	caseID := c.Param("case_id")
	actor := tenantctx.ActorFromContext(ctx)
	if err := s.cases.Dispose(ctx, tenantID, caseID, req.Disposition, req.Note, actor); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.audit.Append(ctx, nil, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionDisposition,
		TargetType: "case",
		TargetID:   caseID,
		Metadata: map[string]any{
			"disposition": req.Disposition,
			"note":        req.Note,
		},
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"case_id": caseID, "status": "CLOSED"})
}

func (s *Server) listAudit(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, ok := tenantctx.TenantFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := s.audit.List(ctx, auditdomain.ListFilter{
		TenantID:   tenantID,
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		Limit:      limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": entries})
}
