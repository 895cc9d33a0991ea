// Package submissions runs the donor and recipient workflows and records their outcome.
package submissions

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ngo-platform/backend/config"
	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/esign"
	"github.com/ngo-platform/backend/internal/models"
)

// Listing bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

// Stage names used in failure records.
const (
	stageDocumentUpload = "document_upload"
	stageAnalysis       = "analysis"
	stageCorrespondence = "correspondence"
	stageAgreement      = "agreement"
)

// Authorizer checks that an authenticated organization acts on its own behalf.
type Authorizer interface {
	Authorize(org *models.Organization, ngoID string) error
}

// Analyzer assesses the severity of supporting documents.
type Analyzer interface {
	Analyze(ctx context.Context, documents []string) (models.Analysis, error)
}

// Composer writes correspondence for a category.
type Composer interface {
	Compose(ctx context.Context, category models.TemplateCategory, data map[string]string) (string, error)
}

// AgreementSender dispatches a signature request.
type AgreementSender interface {
	SendAgreement(ctx context.Context, req esign.AgreementRequest) (string, error)
}

// DocumentStore keeps supporting documents.
type DocumentStore interface {
	UploadDocument(ctx context.Context, ngoID, submissionID, filename, contentType string, body io.Reader, size int64) (string, error)
}

// DeliveryQueue schedules delivery of recorded correspondence.
type DeliveryQueue interface {
	EnqueueDelivery(ctx context.Context, submissionID string) error
}

// Document is one uploaded supporting document. Content is UTF-8 text.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

// DonorInput is a donor submission as received.
type DonorInput struct {
	NGOID   string
	Details models.DonationDetails
}

// RecipientInput is a recipient submission as received.
type RecipientInput struct {
	NGOID     string
	Request   models.AssistanceRequest
	Documents []Document
}

// Processor runs the submission workflows. Agreements, documents and delivery are optional
// collaborators; a nil value disables that step.
type Processor struct {
	auth       Authorizer
	analyzer   Analyzer
	composer   Composer
	agreements AgreementSender
	documents  DocumentStore
	store      Store
	delivery   DeliveryQueue
	timeouts   config.WorkflowConfig
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures optional Processor collaborators.
type Option func(*Processor)

// WithAgreements enables agreement dispatch. Every submission then requires an e-signature template
// for its kind.
func WithAgreements(s AgreementSender) Option {
	return func(p *Processor) { p.agreements = s }
}

// WithDocumentStore keeps recipient supporting documents in an object store.
func WithDocumentStore(d DocumentStore) Option {
	return func(p *Processor) { p.documents = d }
}

// WithDelivery enqueues recorded correspondence for delivery.
func WithDelivery(q DeliveryQueue) Option {
	return func(p *Processor) { p.delivery = q }
}

// NewProcessor creates a submission processor.
func NewProcessor(auth Authorizer, analyzer Analyzer, composer Composer, store Store, timeouts config.WorkflowConfig, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		auth:     auth,
		analyzer: analyzer,
		composer: composer,
		store:    store,
		timeouts: withDefaults(timeouts),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func withDefaults(t config.WorkflowConfig) config.WorkflowConfig {
	if t.AITimeout <= 0 {
		t.AITimeout = 30 * time.Second
	}
	if t.ESignTimeout <= 0 {
		t.ESignTimeout = 20 * time.Second
	}
	if t.StorageTimeout <= 0 {
		t.StorageTimeout = 15 * time.Second
	}
	return t
}

// Authorize checks that org may submit for ngoID.
func (p *Processor) Authorize(org *models.Organization, ngoID string) error {
	return p.auth.Authorize(org, ngoID)
}

// ProcessDonor composes the acknowledgment, dispatches the agreement and records the submission.
func (p *Processor) ProcessDonor(ctx context.Context, org *models.Organization, in DonorInput) (*models.Submission, error) {
	if err := p.auth.Authorize(org, in.NGOID); err != nil {
		return nil, err
	}
	if err := models.Validate(in.Details); err != nil {
		return nil, apperr.InvalidInput("invalid donation_details: " + err.Error())
	}
	templateID, err := p.agreementTemplate(org, models.KindDonor)
	if err != nil {
		return nil, err
	}

	sub := p.newSubmission(org, models.KindDonor)
	details := in.Details
	sub.DonationDetails = &details
	sub.CorrespondenceInput = donorData(org, details)

	p.composeAndSend(ctx, sub, templateID, map[string]string{
		"donationAmount":  formatAmount(details.Amount),
		"donationPurpose": details.Purpose,
		"ngoName":         org.Name,
	})
	return p.record(ctx, sub)
}

// ProcessRecipient stores the supporting documents, assesses them, then composes the response and
// dispatches the agreement with the assessed priority.
func (p *Processor) ProcessRecipient(ctx context.Context, org *models.Organization, in RecipientInput) (*models.Submission, error) {
	if err := p.auth.Authorize(org, in.NGOID); err != nil {
		return nil, err
	}
	if err := models.Validate(in.Request); err != nil {
		return nil, apperr.InvalidInput("invalid assistance_request: " + err.Error())
	}
	if len(in.Documents) == 0 {
		return nil, apperr.InvalidInput("at least one supporting_document is required")
	}
	templateID, err := p.agreementTemplate(org, models.KindRecipient)
	if err != nil {
		return nil, err
	}

	sub := p.newSubmission(org, models.KindRecipient)
	req := in.Request
	sub.AssistanceRequest = &req

	p.storeDocuments(ctx, sub, in.Documents)

	texts := make([]string, len(in.Documents))
	for i, d := range in.Documents {
		texts[i] = string(d.Content)
	}
	actx, cancel := context.WithTimeout(ctx, p.timeouts.AITimeout)
	analysis, err := p.analyzer.Analyze(actx, texts)
	cancel()
	if err != nil {
		p.stageFailed(sub, stageAnalysis, models.StatusAnalysisFailed, err)
		analysis = models.Analysis{Severity: models.SeverityUnassessed}
	} else {
		sub.Advance(models.StageAnalyzed)
	}
	sub.Analysis = &analysis

	sub.CorrespondenceInput = recipientData(org, req, analysis.Severity)
	p.composeAndSend(ctx, sub, templateID, map[string]string{
		"assistanceType": req.AssistanceType,
		"priority":       string(analysis.Severity),
		"ngoName":        org.Name,
	})
	return p.record(ctx, sub)
}

// ListDonors returns the organization's donor submissions, newest first.
func (p *Processor) ListDonors(ctx context.Context, org *models.Organization, ngoID string, limit int) ([]models.Submission, error) {
	return p.list(ctx, org, ngoID, models.KindDonor, limit)
}

// ListRecipients returns the organization's recipient submissions, newest first.
func (p *Processor) ListRecipients(ctx context.Context, org *models.Organization, ngoID string, limit int) ([]models.Submission, error) {
	return p.list(ctx, org, ngoID, models.KindRecipient, limit)
}

func (p *Processor) list(ctx context.Context, org *models.Organization, ngoID string, kind models.SubmissionKind, limit int) ([]models.Submission, error) {
	if err := p.auth.Authorize(org, ngoID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.StorageTimeout)
	defer cancel()
	subs, err := p.store.List(ctx, org.ID, kind, ClampLimit(limit))
	if err != nil {
		p.logger.Error("list submissions failed", zap.String("ngo_id", org.ID), zap.String("kind", string(kind)), zap.Error(err))
		return nil, apperr.StorageFailure("failed to list submissions", err)
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	return subs, nil
}

// ClampLimit bounds a requested page size to [1, MaxListLimit]; zero or less selects the default.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// agreementTemplate returns the e-signature template for kind, or "" when agreements are disabled.
// It fails before any external call is made.
func (p *Processor) agreementTemplate(org *models.Organization, kind models.SubmissionKind) (string, error) {
	if p.agreements == nil {
		return "", nil
	}
	id := org.ESignTemplateID(kind)
	if id == "" {
		return "", apperr.TemplateNotConfigured("no " + string(kind) + " agreement template configured")
	}
	return id, nil
}

func (p *Processor) newSubmission(org *models.Organization, kind models.SubmissionKind) *models.Submission {
	return &models.Submission{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		Kind:           kind,
		Stage:          models.StageReceived,
		CreatedAt:      p.now(),
	}
}

func (p *Processor) storeDocuments(ctx context.Context, sub *models.Submission, docs []Document) {
	sub.Documents = make([]models.DocumentRef, len(docs))
	for i, d := range docs {
		sub.Documents[i] = models.DocumentRef{Filename: d.Filename, ContentType: d.ContentType, Size: int64(len(d.Content))}
	}
	if p.documents == nil {
		return
	}
	for i, d := range docs {
		uctx, cancel := context.WithTimeout(ctx, p.timeouts.StorageTimeout)
		url, err := p.documents.UploadDocument(uctx, sub.OrganizationID, sub.ID, d.Filename, d.ContentType, bytes.NewReader(d.Content), int64(len(d.Content)))
		cancel()
		if err != nil {
			p.stageFailed(sub, stageDocumentUpload, models.StatusDocumentUploadFailed, apperr.StorageFailure("failed to store "+d.Filename, err))
			continue
		}
		sub.Documents[i].URL = url
	}
}

// composeAndSend runs correspondence and agreement dispatch concurrently. Neither failure aborts the
// other; both are merged into sub once they finish.
func (p *Processor) composeAndSend(ctx context.Context, sub *models.Submission, templateID string, fields map[string]string) {
	var (
		g                   errgroup.Group
		email, envelopeID   string
		composeErr, sendErr error
	)
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(ctx, p.timeouts.AITimeout)
		defer cancel()
		email, composeErr = p.composer.Compose(cctx, sub.Kind.Category(), sub.CorrespondenceInput)
		return nil
	})
	if p.agreements != nil {
		g.Go(func() error {
			ectx, cancel := context.WithTimeout(ctx, p.timeouts.ESignTimeout)
			defer cancel()
			envelopeID, sendErr = p.agreements.SendAgreement(ectx, esign.AgreementRequest{
				TemplateID:  templateID,
				SignerEmail: sub.SignerEmail(),
				SignerName:  sub.SignerName(),
				Fields:      fields,
			})
			return nil
		})
	}
	_ = g.Wait()

	if composeErr == nil && email == "" {
		composeErr = apperr.CorrespondenceUnavailable(nil)
	}
	if composeErr != nil {
		p.stageFailed(sub, stageCorrespondence, models.StatusCorrespondenceFailed, composeErr)
	} else {
		sub.EmailContent = email
		sub.Advance(models.StageComposed)
	}
	if sendErr != nil {
		p.stageFailed(sub, stageAgreement, models.StatusAgreementFailed, apperr.Wrap(apperr.KindInternal, "agreement dispatch failed", sendErr))
	} else {
		sub.EnvelopeID = envelopeID
	}
}

func (p *Processor) stageFailed(sub *models.Submission, stage string, status models.Status, err error) {
	p.logger.Warn("submission stage failed",
		zap.String("submission_id", sub.ID),
		zap.String("ngo_id", sub.OrganizationID),
		zap.String("stage", stage),
		zap.Error(err))
	sub.Fail(stage, status, string(apperr.KindOf(err)), apperr.MessageOf(err))
}

// record writes the final submission. The write is detached from request cancellation so an
// abandoned request still persists what it completed.
func (p *Processor) record(ctx context.Context, sub *models.Submission) (*models.Submission, error) {
	if !sub.Degraded() {
		sub.Status = models.StatusProcessed
		if sub.EnvelopeID != "" {
			sub.Status = models.StatusAgreementSent
		}
	}
	queued := p.delivery != nil && sub.EmailContent != "" && sub.SignerEmail() != ""
	if queued {
		sub.DeliveryStatus = models.DeliveryQueued
	}
	sub.RecordedAt = p.now()
	// The stored row is written as recorded; a failed insert discards the submission.
	sub.Advance(models.StageRecorded)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeouts.StorageTimeout)
	defer cancel()
	if err := p.store.Insert(wctx, sub); err != nil {
		p.logger.Error("record submission failed",
			zap.String("submission_id", sub.ID),
			zap.String("ngo_id", sub.OrganizationID),
			zap.Error(err))
		return nil, apperr.StorageFailure("failed to record submission", err)
	}
	p.logger.Info("submission recorded",
		zap.String("submission_id", sub.ID),
		zap.String("ngo_id", sub.OrganizationID),
		zap.String("kind", string(sub.Kind)),
		zap.String("status", string(sub.Status)))

	if queued {
		if err := p.delivery.EnqueueDelivery(wctx, sub.ID); err != nil {
			p.logger.Warn("enqueue delivery failed", zap.String("submission_id", sub.ID), zap.Error(err))
			sub.DeliveryStatus = models.DeliveryFailed
			if uerr := p.store.UpdateDelivery(wctx, sub.ID, models.DeliveryFailed); uerr != nil {
				p.logger.Warn("update delivery status failed", zap.String("submission_id", sub.ID), zap.Error(uerr))
			}
		}
	}
	return sub, nil
}

func donorData(org *models.Organization, d models.DonationDetails) map[string]string {
	return map[string]string{
		"ngo_name": org.Name,
		"name":     d.Name,
		"email":    d.Email,
		"amount":   formatAmount(d.Amount),
		"currency": d.Currency,
		"purpose":  d.Purpose,
		"message":  d.Message,
	}
}

func recipientData(org *models.Organization, r models.AssistanceRequest, severity models.Severity) map[string]string {
	data := map[string]string{
		"ngo_name":        org.Name,
		"name":            r.Name,
		"email":           r.Email,
		"assistance_type": r.AssistanceType,
		"description":     r.Description,
		"severity":        string(severity),
	}
	if r.AmountRequested > 0 {
		data["amount_requested"] = formatAmount(r.AmountRequested)
	}
	return data
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
