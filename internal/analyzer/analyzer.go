// Package analyzer judges the severity of an assistance request from its supporting documents.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/internal/textgen"
)

const systemInstruction = "You are an AI assistant analyzing assistance request documents and determining priority/severity."

const userPrompt = `Analyze these documents and determine the severity (low/medium/high) and urgency based on the provided proof.
Respond with a JSON object of the form {"severity": "low|medium|high", "rationale": "<short explanation>"}.
Documents:
%s`

var (
	errNoDocuments  = errors.New("no document text to analyze")
	errNoSeverity   = errors.New("response carries no recognizable severity")
	severityKeyword = regexp.MustCompile(`(?i)\b(high|medium|low)\b`)
	severityLabel   = regexp.MustCompile(`(?i)\bseverity\s*(?:is|[:=-])?\s*\**\s*"?(high|medium|low)\b`)
	negation        = regexp.MustCompile(`(?i)\b(?:not|no|isn't|never)\s+(?:an?\s+|the\s+|very\s+|so\s+)?$`)
)

// Analyzer is the Content Analyzer.
type Analyzer struct {
	gen textgen.Generator
}

// New creates an analyzer backed by gen.
func New(gen textgen.Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze concatenates documents with newlines and asks the backend for a severity judgment.
// Any failure is reported as AnalysisUnavailable.
func (a *Analyzer) Analyze(ctx context.Context, documents []string) (models.Analysis, error) {
	text := strings.TrimSpace(strings.Join(documents, "\n"))
	if text == "" {
		return models.Analysis{}, apperr.AnalysisUnavailable(errNoDocuments)
	}
	out, err := a.gen.Generate(ctx, textgen.Request{
		Messages: []textgen.Message{
			{Role: textgen.RoleSystem, Content: systemInstruction},
			{Role: textgen.RoleUser, Content: fmt.Sprintf(userPrompt, text)},
		},
		JSON: true,
	})
	if err != nil {
		return models.Analysis{}, apperr.AnalysisUnavailable(err)
	}
	analysis, err := parse(out)
	if err != nil {
		return models.Analysis{}, apperr.AnalysisUnavailable(err)
	}
	return analysis, nil
}

// parse reads the structured answer. A JSON answer must name a known severity. Free text is read
// from an explicit "severity:" label first, then from the first keyword that is not negated.
func parse(out string) (models.Analysis, error) {
	var structured struct {
		Severity  string `json:"severity"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &structured); err == nil {
		sev, ok := models.ParseSeverity(structured.Severity)
		if !ok {
			return models.Analysis{}, errNoSeverity
		}
		return models.Analysis{Severity: sev, Rationale: strings.TrimSpace(structured.Rationale), Available: true}, nil
	}
	if m := severityLabel.FindStringSubmatch(out); m != nil {
		sev, _ := models.ParseSeverity(m[1])
		return models.Analysis{Severity: sev, Rationale: strings.TrimSpace(out), Available: true}, nil
	}
	for _, loc := range severityKeyword.FindAllStringIndex(out, -1) {
		if negation.MatchString(out[:loc[0]]) {
			continue
		}
		sev, _ := models.ParseSeverity(out[loc[0]:loc[1]])
		return models.Analysis{Severity: sev, Rationale: strings.TrimSpace(out), Available: true}, nil
	}
	return models.Analysis{}, errNoSeverity
}
