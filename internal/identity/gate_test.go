package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/internal/organizations"
)

type lookupFunc func(ctx context.Context, key string) (*models.Organization, error)

func (f lookupFunc) GetByAPIKey(ctx context.Context, key string) (*models.Organization, error) {
	return f(ctx, key)
}

func fixedOrgs(orgs ...*models.Organization) lookupFunc {
	return func(_ context.Context, key string) (*models.Organization, error) {
		for _, o := range orgs {
			if o.APIKey == key {
				return o, nil
			}
		}
		return nil, organizations.ErrNotFound
	}
}

func TestAuthenticateKnownCredential(t *testing.T) {
	org1 := &models.Organization{ID: "org1", APIKey: "key1"}
	gate := NewGate(fixedOrgs(org1), nil)

	got, err := gate.Authenticate(context.Background(), " key1 ")
	require.NoError(t, err)
	assert.Equal(t, "org1", got.ID)
}

func TestAuthenticateRejectsUnknownAndEmpty(t *testing.T) {
	gate := NewGate(fixedOrgs(&models.Organization{ID: "org1", APIKey: "key1"}), nil)

	for _, cred := range []string{"", "   ", "key2"} {
		_, err := gate.Authenticate(context.Background(), cred)
		assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err), "credential %q", cred)
	}
}

func TestAuthenticateStoreFailure(t *testing.T) {
	gate := NewGate(lookupFunc(func(context.Context, string) (*models.Organization, error) {
		return nil, errors.New("connection refused")
	}), nil)

	_, err := gate.Authenticate(context.Background(), "key1")
	assert.Equal(t, apperr.KindStorageFailure, apperr.KindOf(err))
}

func TestAuthorize(t *testing.T) {
	gate := NewGate(fixedOrgs(), nil)
	org2 := &models.Organization{ID: "org2", APIKey: "key2"}

	assert.NoError(t, gate.Authorize(org2, "org2"))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(gate.Authorize(org2, "org1")))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(gate.Authorize(org2, "")))
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(gate.Authorize(nil, "org2")))
}
