package organizations

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/pkg/response"
)

// Handler handles onboarding and API key endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// OnboardRequest is the body for POST /onboarding.
type OnboardRequest struct {
	Name         string `json:"name" binding:"required,max=255"`
	Mission      string `json:"mission" binding:"required"`
	Website      string `json:"website" binding:"omitempty,url"`
	ContactEmail string `json:"contact_email" binding:"required,email"`
}

// OnboardResponse is returned once at onboarding.
type OnboardResponse struct {
	NGOID        string           `json:"ngo_id"`
	APIKey       string           `json:"api_key"`
	APIEndpoints models.Endpoints `json:"api_endpoints"`
}

// APIKeyResponse is the body of GET /apikeys/:id.
type APIKeyResponse struct {
	APIKey    string           `json:"api_key"`
	Endpoints models.Endpoints `json:"endpoints"`
}

// Onboard handles POST /onboarding. Creates the organization and issues its credential.
func (h *Handler) Onboard(c *gin.Context) {
	var body OnboardRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	org := &models.Organization{
		Name:         strings.TrimSpace(body.Name),
		Mission:      strings.TrimSpace(body.Mission),
		Website:      strings.TrimSpace(body.Website),
		ContactEmail: strings.TrimSpace(body.ContactEmail),
		APIKey:       NewAPIKey(),
	}
	if err := h.repo.Create(c.Request.Context(), org); err != nil {
		h.logger.Error("create organization failed", zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}
	h.logger.Info("organization onboarded", zap.String("ngo_id", org.ID))
	response.Created(c, OnboardResponse{NGOID: org.ID, APIKey: org.APIKey, APIEndpoints: models.DefaultEndpoints})
}

// GetAPIKeys handles GET /apikeys/:id.
func (h *Handler) GetAPIKeys(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	org, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "NGO not found")
			return
		}
		h.logger.Error("load organization failed", zap.Error(err), zap.String("ngo_id", id))
		response.Internal(c, "failed to load organization")
		return
	}
	response.OK(c, APIKeyResponse{APIKey: org.APIKey, Endpoints: models.DefaultEndpoints})
}
