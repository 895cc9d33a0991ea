package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ngo-platform/backend/internal/identity"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/pkg/response"
)

const (
	// HeaderAPIKey carries the organization credential.
	HeaderAPIKey = "api-key"
	// ContextOrganization is the key for the authenticated organization in gin context.
	ContextOrganization = "organization"
)

// RequireCredential returns a middleware that resolves the caller's credential through the identity
// gate and sets the organization in context. Accepts the api-key header or "Authorization: Bearer <key>".
func RequireCredential(gate *identity.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := c.GetHeader(HeaderAPIKey)
		if credential == "" {
			if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
				credential = parts[1]
			}
		}
		org, err := gate.Authenticate(c.Request.Context(), credential)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Set(ContextOrganization, org)
		c.Next()
	}
}

// Organization returns the organization set by RequireCredential, or nil.
func Organization(c *gin.Context) *models.Organization {
	v, ok := c.Get(ContextOrganization)
	if !ok {
		return nil
	}
	org, _ := v.(*models.Organization)
	return org
}
