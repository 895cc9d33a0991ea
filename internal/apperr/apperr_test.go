package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("process donor: %w", Forbidden("not authorized for this NGO"))
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, "not authorized for this NGO", MessageOf(err))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("connection reset by peer 10.0.0.3")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	err := AnalysisUnavailable(context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindAnalysisUnavailable, KindOf(err))
	assert.NotContains(t, MessageOf(err), "deadline")
}
