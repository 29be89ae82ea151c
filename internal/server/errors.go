package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	auditdomain "github.com/saurav5380/apicompass/internal/audit/domain"
	budgetdomain "github.com/saurav5380/apicompass/internal/budget/domain"
	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	entitlementdomain "github.com/saurav5380/apicompass/internal/entitlement/domain"
	orgdomain "github.com/saurav5380/apicompass/internal/organization/domain"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var planLimit *entitlementdomain.PlanLimitError
	var featureDisabled *entitlementdomain.FeatureDisabledError

	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, auditdomain.ErrInvalidOrganization):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.As(err, &planLimit), errors.As(err, &featureDisabled), errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: err.Error()}
	case errors.Is(err, connectiondomain.ErrDuplicateScope), errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "conflict"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, budgetdomain.ErrBudgetNotFound) ||
		errors.Is(err, connectiondomain.ErrConnectionNotFound) ||
		errors.Is(err, orgdomain.ErrOrgNotFound)
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, usagedomain.ErrInvalidProvider) ||
		errors.Is(err, usagedomain.ErrInvalidEnvironment) ||
		errors.Is(err, usagedomain.ErrInvalidMetric) ||
		errors.Is(err, usagedomain.ErrInvalidQuantity) ||
		errors.Is(err, usagedomain.ErrInvalidTimestamp) ||
		errors.Is(err, budgetdomain.ErrInvalidCap) ||
		errors.Is(err, budgetdomain.ErrInvalidPercent) ||
		errors.Is(err, connectiondomain.ErrInvalidStatus) ||
		errors.Is(err, auditdomain.ErrInvalidPageToken) ||
		errors.Is(err, auditdomain.ErrInvalidTimeRange) ||
		errors.Is(err, auditdomain.ErrInvalidAction)
}
