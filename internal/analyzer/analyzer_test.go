package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/internal/textgen"
)

type GeneratorMock struct {
	mock.Mock
}

func (g *GeneratorMock) Generate(ctx context.Context, req textgen.Request) (string, error) {
	args := g.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func TestAnalyzeStructuredAnswer(t *testing.T) {
	gen := &GeneratorMock{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req textgen.Request) bool {
		return req.JSON && len(req.Messages) == 2 &&
			req.Messages[0].Role == textgen.RoleSystem &&
			assert.Contains(t, req.Messages[1].Content, "eviction notice\nmedical bill")
	})).Return(`{"severity":"HIGH","rationale":"eviction within 7 days"}`, nil)

	got, err := New(gen).Analyze(context.Background(), []string{"eviction notice", "medical bill"})
	require.NoError(t, err)
	assert.Equal(t, models.Analysis{Severity: models.SeverityHigh, Rationale: "eviction within 7 days", Available: true}, got)
	gen.AssertExpectations(t)
}

func TestAnalyzeFreeTextFallback(t *testing.T) {
	gen := &GeneratorMock{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("Severity: Medium. The applicant has partial support.", nil)

	got, err := New(gen).Analyze(context.Background(), []string{"doc"})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, got.Severity)
	assert.True(t, got.Available)
}

func TestAnalyzeUnrecognizedAnswer(t *testing.T) {
	gen := &GeneratorMock{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(`{"severity":"critical"}`, nil)

	_, err := New(gen).Analyze(context.Background(), []string{"doc"})
	assert.Equal(t, apperr.KindAnalysisUnavailable, apperr.KindOf(err))
}

func TestAnalyzeBackendFailure(t *testing.T) {
	gen := &GeneratorMock{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded)

	_, err := New(gen).Analyze(context.Background(), []string{"doc"})
	assert.Equal(t, apperr.KindAnalysisUnavailable, apperr.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAnalyzeEmptyDocumentsSkipsBackend(t *testing.T) {
	gen := &GeneratorMock{}

	_, err := New(gen).Analyze(context.Background(), []string{"", "  "})
	assert.Equal(t, apperr.KindAnalysisUnavailable, apperr.KindOf(err))
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestParseJSONWithUnknownSeverityIgnoresRationale(t *testing.T) {
	_, err := parse(`{"severity":"critical","rationale":"family is low on food and faces eviction"}`)
	assert.ErrorIs(t, err, errNoSeverity)
}

func TestParseJSONWithoutSeverity(t *testing.T) {
	_, err := parse(`{"rationale":"high need"}`)
	assert.ErrorIs(t, err, errNoSeverity)
}

func TestParseFreeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want models.Severity
	}{
		{"label wins over earlier keyword", "This is not a high priority case. Severity: low.", models.SeverityLow},
		{"negated keyword skipped", "This is not a high priority case, medium at most.", models.SeverityMedium},
		{"plain keyword", "I would rate this HIGH given the eviction.", models.SeverityHigh},
		{"label with is", "The severity is medium overall.", models.SeverityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Severity)
			assert.True(t, got.Available)
		})
	}
}

func TestParseFreeTextOnlyNegated(t *testing.T) {
	_, err := parse("This is not a high priority request.")
	assert.ErrorIs(t, err, errNoSeverity)
}
