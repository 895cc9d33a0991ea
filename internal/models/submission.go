package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SubmissionKind tags the submission variant.
type SubmissionKind string

const (
	KindDonor     SubmissionKind = "donor"
	KindRecipient SubmissionKind = "recipient"
)

// Category returns the correspondence category for the kind.
func (k SubmissionKind) Category() TemplateCategory {
	if k == KindRecipient {
		return CategoryAssistanceResponse
	}
	return CategoryDonationAcknowledgment
}

// Stage is the last processing stage a submission completed. Stages only move forward.
type Stage string

const (
	StageReceived Stage = "received"
	StageAnalyzed Stage = "analyzed"
	StageComposed Stage = "composed"
	StageRecorded Stage = "recorded"
)

var stageOrder = map[Stage]int{
	StageReceived: 0,
	StageAnalyzed: 1,
	StageComposed: 2,
	StageRecorded: 3,
}

// Status summarises the outcome of processing. Failure statuses name the first stage that failed.
type Status string

const (
	StatusProcessed            Status = "processed"
	StatusAgreementSent        Status = "agreement_sent"
	StatusDocumentUploadFailed Status = "document_upload_failed"
	StatusAnalysisFailed       Status = "analysis_failed"
	StatusCorrespondenceFailed Status = "correspondence_failed"
	StatusAgreementFailed      Status = "agreement_failed"
)

// Delivery states for generated correspondence.
const (
	DeliveryQueued = "queued"
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Severity is the urgency tag attached to recipient submissions.
type Severity string

const (
	SeverityLow        Severity = "low"
	SeverityMedium     Severity = "medium"
	SeverityHigh       Severity = "high"
	SeverityUnassessed Severity = "unassessed"
)

// ParseSeverity normalises s to a known severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	}
	return "", false
}

// DonationDetails is the donor payload.
type DonationDetails struct {
	Amount   float64 `json:"amount" bson:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency,omitempty" bson:"currency,omitempty" validate:"omitempty,len=3"`
	Purpose  string  `json:"purpose" bson:"purpose" validate:"required,max=500"`
	Name     string  `json:"name" bson:"name" validate:"required,max=200"`
	Email    string  `json:"email" bson:"email" validate:"required,email"`
	Message  string  `json:"message,omitempty" bson:"message,omitempty" validate:"max=2000"`
}

// AssistanceRequest is the recipient payload.
type AssistanceRequest struct {
	Name            string  `json:"name" bson:"name" validate:"required,max=200"`
	Email           string  `json:"email" bson:"email" validate:"required,email"`
	AssistanceType  string  `json:"assistance_type" bson:"assistance_type" validate:"required,max=200"`
	Description     string  `json:"description,omitempty" bson:"description,omitempty" validate:"max=5000"`
	AmountRequested float64 `json:"amount_requested,omitempty" bson:"amount_requested,omitempty" validate:"gte=0"`
}

// DocumentRef points at a supporting document kept in the object store.
type DocumentRef struct {
	Filename    string `json:"filename" bson:"filename"`
	ContentType string `json:"content_type" bson:"content_type"`
	Size        int64  `json:"size" bson:"size"`
	URL         string `json:"url,omitempty" bson:"url,omitempty"`
}

// Analysis is the Content Analyzer outcome. Available is false when the analyzer failed and the
// severity is unassessed.
type Analysis struct {
	Severity  Severity `json:"severity" bson:"severity"`
	Rationale string   `json:"rationale,omitempty" bson:"rationale,omitempty"`
	Available bool     `json:"available" bson:"available"`
}

// StageFailure records a stage that failed without aborting the submission.
type StageFailure struct {
	Stage   string `json:"stage" bson:"stage"`
	Kind    string `json:"kind" bson:"kind"`
	Message string `json:"message" bson:"message"`
}

// Submission is a donor or recipient record owned by an organization.
type Submission struct {
	ID                  string             `json:"id" bson:"_id"`
	OrganizationID      string             `json:"ngo_id" bson:"ngo_id"`
	Kind                SubmissionKind     `json:"kind" bson:"kind"`
	DonationDetails     *DonationDetails   `json:"donation_details,omitempty" bson:"donation_details,omitempty"`
	AssistanceRequest   *AssistanceRequest `json:"assistance_request,omitempty" bson:"assistance_request,omitempty"`
	Documents           []DocumentRef      `json:"documents,omitempty" bson:"documents,omitempty"`
	Analysis            *Analysis          `json:"analysis,omitempty" bson:"analysis,omitempty"`
	CorrespondenceInput map[string]string  `json:"correspondence_input,omitempty" bson:"correspondence_input,omitempty"`
	EmailContent        string             `json:"email_content" bson:"email_content"`
	EnvelopeID          string             `json:"envelope_id,omitempty" bson:"docusign_envelope_id,omitempty"`
	Stage               Stage              `json:"stage" bson:"stage"`
	Status              Status             `json:"status" bson:"status"`
	Failures            []StageFailure     `json:"failures,omitempty" bson:"failures,omitempty"`
	DeliveryStatus      string             `json:"delivery_status,omitempty" bson:"delivery_status,omitempty"`
	CreatedAt           time.Time          `json:"created_at" bson:"created_at"`
	RecordedAt          time.Time          `json:"recorded_at" bson:"recorded_at"`
}

// Advance moves the submission to stage if it is further along than the current one.
// It reports whether the stage changed.
func (s *Submission) Advance(stage Stage) bool {
	next, ok := stageOrder[stage]
	if !ok {
		return false
	}
	if cur, ok := stageOrder[s.Stage]; ok && cur >= next {
		return false
	}
	s.Stage = stage
	return true
}

// Fail appends a stage failure. The first failure decides the status.
func (s *Submission) Fail(stage string, status Status, kind, message string) {
	if len(s.Failures) == 0 {
		s.Status = status
	}
	s.Failures = append(s.Failures, StageFailure{Stage: stage, Kind: kind, Message: message})
}

// Degraded reports whether any stage failed.
func (s *Submission) Degraded() bool { return len(s.Failures) > 0 }

// SignerEmail returns the submitter's contact email.
func (s *Submission) SignerEmail() string {
	switch {
	case s.DonationDetails != nil:
		return s.DonationDetails.Email
	case s.AssistanceRequest != nil:
		return s.AssistanceRequest.Email
	}
	return ""
}

// SignerName returns the submitter's name.
func (s *Submission) SignerName() string {
	switch {
	case s.DonationDetails != nil:
		return s.DonationDetails.Name
	case s.AssistanceRequest != nil:
		return s.AssistanceRequest.Name
	}
	return ""
}

var validate = validator.New()

// Validate checks a payload's validate tags.
func Validate(v interface{}) error {
	return validate.Struct(v)
}
