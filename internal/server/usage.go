package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/saurav5380/apicompass/internal/orgcontext"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type ingestSample struct {
	Metric   string           `json:"metric" binding:"required"`
	Unit     string           `json:"unit" binding:"required"`
	Quantity decimal.Decimal  `json:"quantity" binding:"required"`
	UnitCost *decimal.Decimal `json:"unit_cost"`
	Currency string           `json:"currency"`
	TS       time.Time        `json:"ts" binding:"required"`
	Metadata map[string]any   `json:"metadata"`
}

type ingestRequest struct {
	ConnectionID string         `json:"connection_id" binding:"required"`
	Source       string         `json:"source"`
	Samples      []ingestSample `json:"samples" binding:"required,min=1"`
}

// IngestUsage accepts a validated batch of samples for one connection.
// Replays are safe: duplicates are counted, not re-applied.
func (s *Server) IngestUsage(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	conn, err := s.connRepo.Get(c.Request.Context(), parseID(req.ConnectionID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if conn.OrgID != orgID {
		AbortWithError(c, ErrNotFound)
		return
	}

	source := req.Source
	if source == "" {
		source = "api-ingest"
	}
	connID := conn.ID
	samples := make([]usagedomain.UsageSample, 0, len(req.Samples))
	for _, sample := range req.Samples {
		samples = append(samples, usagedomain.UsageSample{
			OrgID:        orgID,
			ConnectionID: &connID,
			Provider:     conn.Provider,
			Environment:  conn.Environment,
			Metric:       sample.Metric,
			Unit:         sample.Unit,
			Quantity:     sample.Quantity,
			UnitCost:     sample.UnitCost,
			Currency:     sample.Currency,
			TS:           sample.TS,
			Source:       source,
			Metadata:     sample.Metadata,
		})
	}

	result, err := s.usageSvc.Ingest(c.Request.Context(), samples)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}
