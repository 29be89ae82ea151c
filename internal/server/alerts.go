package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	alertdomain "github.com/saurav5380/apicompass/internal/alert/domain"
	"github.com/saurav5380/apicompass/internal/orgcontext"
)

func (s *Server) ListAlertEvents(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = n
	}

	events, err := s.alertSvc.ListEvents(c.Request.Context(), orgID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if events == nil {
		events = []alertdomain.AlertEvent{}
	}
	c.JSON(http.StatusOK, events)
}
