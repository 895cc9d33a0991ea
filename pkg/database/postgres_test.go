package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPostgresPoolRejectsBadDSN(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "postgres://%zz", 0, nil)
	assert.ErrorContains(t, err, "parse pgx config")
}
