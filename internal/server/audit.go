package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/saurav5380/apicompass/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if start, err := dateParam(c.Query("start_date")); err == nil {
		req.StartAt = start
	} else {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if end, err := dateParam(c.Query("end_date")); err == nil {
		req.EndAt = end
	} else {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// record writes an audit entry without failing the request on error.
func (s *Server) record(c *gin.Context, action, targetType, targetID string, metadata map[string]any) {
	var target *string
	if targetID != "" {
		target = &targetID
	}
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, string(auditdomain.ActorTypeUser), nil, action, targetType, target, metadata)
}
