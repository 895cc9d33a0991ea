// Package identity resolves API credentials to organizations and enforces that a caller only acts on
// its own organization. Both checks run before any external resource is touched.
package identity

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/internal/organizations"
)

// OrganizationLookup finds an organization by its credential.
type OrganizationLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*models.Organization, error)
}

// Gate is the Identity Gate.
type Gate struct {
	orgs   OrganizationLookup
	logger *zap.Logger
}

// NewGate creates an identity gate.
func NewGate(orgs OrganizationLookup, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{orgs: orgs, logger: logger}
}

// Authenticate resolves credential to its organization.
func (g *Gate) Authenticate(ctx context.Context, credential string) (*models.Organization, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, apperr.Unauthenticated("missing API key")
	}
	org, err := g.orgs.GetByAPIKey(ctx, credential)
	if err != nil {
		if errors.Is(err, organizations.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid API key")
		}
		g.logger.Error("credential lookup failed", zap.Error(err))
		return nil, apperr.StorageFailure("failed to verify API key", err)
	}
	return org, nil
}

// Authorize checks that org is the organization the caller claims to act for.
func (g *Gate) Authorize(org *models.Organization, ngoID string) error {
	if org == nil {
		return apperr.Unauthenticated("missing organization context")
	}
	if strings.TrimSpace(ngoID) != org.ID {
		return apperr.Forbidden("not authorized for this NGO")
	}
	return nil
}
