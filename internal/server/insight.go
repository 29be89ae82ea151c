package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
	insightdomain "github.com/saurav5380/apicompass/internal/insight/domain"
	"github.com/saurav5380/apicompass/internal/orgcontext"
)

// GetTips returns cost-saving suggestions; orgs whose plan excludes
// tips get an empty list rather than an error.
func (s *Server) GetTips(c *gin.Context) {
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

	snapshot, err := s.entitlementSvc.Get(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := entitlementdomain.EnsureFeature(snapshot, "tips"); err != nil {
		c.JSON(http.StatusOK, []insightdomain.Tip{})
		return
	}

	tips, err := s.insightSvc.Tips(c.Request.Context(), orgID, environment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tips == nil {
		tips = []insightdomain.Tip{}
	}
	c.JSON(http.StatusOK, tips)
}

func (s *Server) rangeQuery(c *gin.Context) (insightdomain.RangeQuery, error) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		return insightdomain.RangeQuery{}, ErrUnauthorized
	}
	start, err := dateParam(c.Query("start_date"))
	if err != nil {
		return insightdomain.RangeQuery{}, ErrInvalidRequest
	}
	end, err := dateParam(c.Query("end_date"))
	if err != nil {
		return insightdomain.RangeQuery{}, ErrInvalidRequest
	}
	provider, err := providerParam(c.Query("provider"))
	if err != nil {
		return insightdomain.RangeQuery{}, err
	}
	return insightdomain.RangeQuery{
		OrgID:     orgID,
		StartDate: start,
		EndDate:   end,
		Provider:  provider,
	}, nil
}

func (s *Server) GetOverview(c *gin.Context) {
	q, err := s.rangeQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	overview, err := s.insightSvc.Overview(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *Server) GetTrends(c *gin.Context) {
	q, err := s.rangeQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	points, err := s.insightSvc.Trends(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if points == nil {
		points = []insightdomain.TrendPoint{}
	}
	c.JSON(http.StatusOK, points)
}
