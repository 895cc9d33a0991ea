package models

import (
	"time"
)

// TemplateCategory is the correspondence category tied to a submission type.
type TemplateCategory string

const (
	CategoryDonationAcknowledgment TemplateCategory = "donation_acknowledgment"
	CategoryAssistanceResponse     TemplateCategory = "assistance_response"
)

// Organization represents an onboarded non-profit (tenant).
type Organization struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Mission      string    `json:"mission" bson:"mission"`
	Website      string    `json:"website,omitempty" bson:"website"`
	ContactEmail string    `json:"contact_email" bson:"contact_email"`
	APIKey       string    `json:"-" bson:"api_key"`
	Templates    Templates `json:"templates" bson:"templates"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// Templates holds the per-submission-type template configuration.
type Templates struct {
	Donor     *TemplateConfig `json:"donor,omitempty" bson:"donor,omitempty"`
	Recipient *TemplateConfig `json:"recipient,omitempty" bson:"recipient,omitempty"`
}

// TemplateConfig references an uploaded template file and, when agreements are enabled, the
// e-signature template created from it.
type TemplateConfig struct {
	URL             string           `json:"url" bson:"url"`
	Category        TemplateCategory `json:"type" bson:"type"`
	ESignTemplateID string           `json:"esign_template_id,omitempty" bson:"esign_template_id,omitempty"`
}

// For returns the template configured for a submission kind, or nil.
func (t Templates) For(kind SubmissionKind) *TemplateConfig {
	switch kind {
	case KindDonor:
		return t.Donor
	case KindRecipient:
		return t.Recipient
	}
	return nil
}

// ESignTemplateID returns the e-signature template id for kind, or "" if none is configured.
func (o *Organization) ESignTemplateID(kind SubmissionKind) string {
	if tc := o.Templates.For(kind); tc != nil {
		return tc.ESignTemplateID
	}
	return ""
}

// Endpoints lists the submission endpoints handed to an organization at onboarding.
type Endpoints struct {
	Donor     string `json:"donor"`
	Recipient string `json:"recipient"`
}

// DefaultEndpoints are the submission routes served by cmd/server.
var DefaultEndpoints = Endpoints{Donor: "/donor", Recipient: "/recipient"}
