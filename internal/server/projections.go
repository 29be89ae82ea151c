package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saurav5380/apicompass/internal/orgcontext"
	projectiondomain "github.com/saurav5380/apicompass/internal/projection/domain"
)

func (s *Server) GetProjections(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	environment, err := environmentParam(c.Query("environment"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	provider, err := providerParam(c.Query("provider"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summaries, err := s.projectionSvc.Projections(c.Request.Context(), projectiondomain.Query{
		OrgID:       orgID,
		Environment: environment,
		Provider:    provider,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if provider != nil && len(summaries) == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}
	if summaries == nil {
		summaries = []projectiondomain.Summary{}
	}

	c.JSON(http.StatusOK, summaries)
}
