package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	"github.com/saurav5380/apicompass/internal/orgcontext"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type upsertBudgetRequest struct {
	Provider         *string         `json:"provider"`
	Environment      *string         `json:"environment"`
	MonthlyCap       decimal.Decimal `json:"monthly_cap" binding:"required"`
	Currency         string          `json:"currency"`
	ThresholdPercent int             `json:"threshold_percent"`
	Notes            string          `json:"notes"`
}

func (s *Server) ListBudgets(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	budgets, err := s.budgetSvc.List(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if budgets == nil {
		budgets = []budgetdomain.Budget{}
	}
	c.JSON(http.StatusOK, budgets)
}

func (s *Server) UpsertBudget(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req upsertBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var provider *usagedomain.Provider
	if req.Provider != nil && *req.Provider != "" {
		p, err := usagedomain.ParseProvider(*req.Provider)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		provider = &p
	}
	var environment *usagedomain.Environment
	if req.Environment != nil && *req.Environment != "" {
		env, err := usagedomain.ParseEnvironment(*req.Environment)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		environment = &env
	}

	budget, err := s.budgetSvc.Upsert(c.Request.Context(), orgID, budgetdomain.UpsertRequest{
		Provider:         provider,
		Environment:      environment,
		MonthlyCap:       req.MonthlyCap,
		Currency:         req.Currency,
		ThresholdPercent: req.ThresholdPercent,
		Notes:            req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.record(c, "budget.upserted", "budget", budget.ID.String(), map[string]any{
		"monthly_cap": budget.MonthlyCap.String(),
		"currency":    budget.Currency,
	})

	c.JSON(http.StatusCreated, budget)
}

func (s *Server) DeleteBudget(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	budgetID := parseID(c.Param("id"))
	if budgetID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.budgetSvc.Delete(c.Request.Context(), orgID, budgetID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.record(c, "budget.deleted", "budget", budgetID.String(), nil)

	c.Status(http.StatusNoContent)
}
