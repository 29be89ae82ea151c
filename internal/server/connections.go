package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saurav5380/apicompass/internal/audit/masking"
	connectiondomain "github.com/saurav5380/apicompass/internal/connection/domain"
	"github.com/saurav5380/apicompass/internal/orgcontext"
	usagedomain "github.com/saurav5380/apicompass/internal/usage/domain"
)

type createConnectionRequest struct {
	Provider    string `json:"provider" binding:"required"`
	Environment string `json:"environment"`
	DisplayName string `json:"display_name"`
	APIKey      string `json:"api_key"`
	LocalAgent  bool   `json:"local_agent"`
}

type connectionResponse struct {
	connectiondomain.Connection
	MaskedKey string `json:"masked_key"`
	// AgentToken is returned exactly once, at creation time.
	AgentToken string `json:"agent_token,omitempty"`
}

func connectionView(conn connectiondomain.Connection, agentToken string) connectionResponse {
	masked := "****"
	if conn.Metadata != nil {
		if preview, ok := conn.Metadata["masked_preview"].(string); ok && preview != "" {
			masked = preview
		}
	}
	return connectionResponse{Connection: conn, MaskedKey: masked, AgentToken: agentToken}
}

func (s *Server) ListConnections(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	conns, err := s.connRepo.ListByOrg(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]connectionResponse, 0, len(conns))
	for _, conn := range conns {
		views = append(views, connectionView(conn, ""))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) CreateConnection(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	provider, err := usagedomain.ParseProvider(req.Provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	environment := usagedomain.EnvProd
	if req.Environment != "" {
		environment, err = usagedomain.ParseEnvironment(req.Environment)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	if _, err := s.entitlementSvc.EnsureConnectionSlot(ctx, orgID); err != nil {
		AbortWithError(c, err)
		return
	}

	now := s.clock.Now().UTC()
	metadata := map[string]any{"scopes_version": "minimal"}
	var blob []byte
	var agentToken string
	if req.LocalAgent {
		agentToken, err = connectiondomain.GenerateAgentToken()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		blob, err = s.sealer.Seal(map[string]any{
			"mode":        "local_agent",
			"agent_token": agentToken,
			"issued_at":   now.Format(time.RFC3339),
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		metadata["masked_preview"] = connectiondomain.AgentTokenPreview(agentToken)
		metadata["local_mode"] = true
	} else {
		if req.APIKey == "" {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		blob, err = s.sealer.Seal(map[string]any{
			"api_key":     req.APIKey,
			"provider":    string(provider),
			"captured_at": now.Format(time.RFC3339),
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		metadata["masked_preview"] = masking.MaskSecret(req.APIKey)
		metadata["local_mode"] = false
	}

	conn := connectiondomain.Connection{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		Provider:          provider,
		Environment:       environment,
		Status:            connectiondomain.StatusActive,
		DisplayName:       req.DisplayName,
		LocalAgent:        req.LocalAgent,
		EncryptedAuthBlob: blob,
		Metadata:          metadata,
	}
	if err := s.connRepo.Create(ctx, conn); err != nil {
		AbortWithError(c, err)
		return
	}

	s.record(c, "connection.created", "connection", conn.ID.String(), map[string]any{
		"provider":    string(conn.Provider),
		"environment": string(conn.Environment),
		"local_agent": conn.LocalAgent,
	})

	c.JSON(http.StatusCreated, connectionView(conn, agentToken))
}

func (s *Server) RevokeConnection(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	connID := parseID(c.Param("id"))
	if connID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	conn, err := s.connRepo.Revoke(ctx, orgID, connID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Best effort: a cancellation marker stops any in-flight poll.
	if s.claims != nil {
		_ = s.claims.Cancel(ctx, int64(conn.ID), time.Minute)
	}

	s.record(c, "connection.revoked", "connection", conn.ID.String(), map[string]any{
		"provider":    string(conn.Provider),
		"environment": string(conn.Environment),
	})

	c.JSON(http.StatusOK, connectionView(*conn, ""))
}
