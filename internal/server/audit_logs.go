package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultAuditLogLimit = 50
	maxAuditLogLimit     = 200
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"), defaultAuditLogLimit)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	if limit > maxAuditLogLimit {
		limit = maxAuditLogLimit
	}

	logs, err := s.auditSvc.List(c.Request.Context(), companyID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
