// Package correspondence writes the message sent back to a donor or recipient.
package correspondence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/internal/textgen"
)

var instructions = map[models.TemplateCategory]string{
	models.CategoryDonationAcknowledgment: "You are an AI assistant generating personalized emails for NGO communications. " +
		"Write a warm, engaging acknowledgment of a donation. Mention the amount and purpose, thank the donor by name " +
		"and sign off on behalf of the organization. Return only the email body.",
	models.CategoryAssistanceResponse: "You are an AI assistant generating personalized emails for NGO communications. " +
		"Write a respectful, reassuring response to a request for assistance. Acknowledge the request type, set " +
		"expectations according to the assessed priority without disclosing internal scoring, and sign off on behalf " +
		"of the organization. Return only the email body.",
}

// Generator is the Correspondence Generator.
type Generator struct {
	gen textgen.Generator
}

// New creates a correspondence generator backed by gen.
func New(gen textgen.Generator) *Generator {
	return &Generator{gen: gen}
}

// Compose produces a message body for category from data.
func (g *Generator) Compose(ctx context.Context, category models.TemplateCategory, data map[string]string) (string, error) {
	instruction, ok := instructions[category]
	if !ok {
		return "", apperr.InvalidInput(fmt.Sprintf("unknown template category %q", category))
	}
	prompt := fmt.Sprintf("Generate a personalized engaging email for a %s based on this information:\n%s", category, Render(data))
	out, err := g.gen.Generate(ctx, textgen.Request{
		Messages: []textgen.Message{
			{Role: textgen.RoleSystem, Content: instruction},
			{Role: textgen.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", apperr.CorrespondenceUnavailable(err)
	}
	return out, nil
}

// Render lists data as "key: value" lines in key order.
func Render(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		if data[k] == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, data[k])
	}
	return b.String()
}
