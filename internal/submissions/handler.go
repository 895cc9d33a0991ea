package submissions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/middleware"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/pkg/response"
)

const (
	maxIdempotencyKeyLen = 255

	// maxSupportingDocuments caps supporting_document parts per recipient submission.
	maxSupportingDocuments = 10
	// multipartOverhead allows for form fields and part headers beyond the document contents.
	multipartOverhead = 1 << 20
)

// Handler serves the submission endpoints.
type Handler struct {
	proc      *Processor
	idem      Idempotency
	maxUpload int64
	logger    *zap.Logger
}

// NewHandler creates a submissions handler. idem may be nil, in which case Idempotency-Key headers
// are ignored.
func NewHandler(proc *Processor, idem Idempotency, maxUpload int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{proc: proc, idem: idem, maxUpload: maxUpload, logger: logger}
}

// DonorRequest is the body for POST /donor.
type DonorRequest struct {
	NGOID           string                 `json:"ngo_id" binding:"required"`
	DonationDetails models.DonationDetails `json:"donation_details"`
}

// SubmissionResponse summarises a processed submission.
type SubmissionResponse struct {
	SubmissionID   string                `json:"submission_id"`
	Status         models.Status         `json:"status"`
	Stage          models.Stage          `json:"stage"`
	EnvelopeID     string                `json:"envelope_id,omitempty"`
	Severity       models.Severity       `json:"severity,omitempty"`
	DeliveryStatus string                `json:"delivery_status,omitempty"`
	Failures       []models.StageFailure `json:"failures,omitempty"`
}

func newSubmissionResponse(sub *models.Submission) SubmissionResponse {
	out := SubmissionResponse{
		SubmissionID:   sub.ID,
		Status:         sub.Status,
		Stage:          sub.Stage,
		EnvelopeID:     sub.EnvelopeID,
		DeliveryStatus: sub.DeliveryStatus,
		Failures:       sub.Failures,
	}
	if sub.Analysis != nil {
		out.Severity = sub.Analysis.Severity
	}
	return out
}

type processFunc func(ctx context.Context) (*models.Submission, error)

// Donor handles POST /donor.
func (h *Handler) Donor(c *gin.Context) {
	var body DonorRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	org := middleware.Organization(c)
	h.submit(c, models.KindDonor, body.NGOID, func() (processFunc, error) {
		in := DonorInput{NGOID: body.NGOID, Details: body.DonationDetails}
		return func(ctx context.Context) (*models.Submission, error) {
			return h.proc.ProcessDonor(ctx, org, in)
		}, nil
	})
}

// Recipient handles POST /recipient (multipart: ngo_id, assistance_request JSON, supporting_document files).
func (h *Handler) Recipient(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSupportingDocuments*h.maxUpload+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		response.BadRequest(c, "invalid multipart form: "+err.Error())
		return
	}
	ngoID := c.PostForm("ngo_id")
	if ngoID == "" {
		response.BadRequest(c, "ngo_id is required")
		return
	}
	org := middleware.Organization(c)
	h.submit(c, models.KindRecipient, ngoID, func() (processFunc, error) {
		in, err := h.recipientInput(c, ngoID)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*models.Submission, error) {
			return h.proc.ProcessRecipient(ctx, org, in)
		}, nil
	})
}

func (h *Handler) recipientInput(c *gin.Context, ngoID string) (RecipientInput, error) {
	in := RecipientInput{NGOID: ngoID}
	raw := c.PostForm("assistance_request")
	if strings.TrimSpace(raw) == "" {
		return in, apperr.InvalidInput("assistance_request is required")
	}
	if err := json.Unmarshal([]byte(raw), &in.Request); err != nil {
		return in, apperr.InvalidInput("assistance_request must be a JSON object: " + err.Error())
	}
	files := c.Request.MultipartForm.File["supporting_document"]
	if len(files) == 0 {
		return in, apperr.InvalidInput("supporting_document is required")
	}
	if len(files) > maxSupportingDocuments {
		return in, apperr.InvalidInput(fmt.Sprintf("at most %d supporting_document files are allowed", maxSupportingDocuments))
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return in, apperr.InvalidInput(fmt.Sprintf("cannot read supporting_document %q", fh.Filename))
		}
		content, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
		f.Close()
		if err != nil {
			return in, apperr.InvalidInput(fmt.Sprintf("cannot read supporting_document %q", fh.Filename))
		}
		if int64(len(content)) > h.maxUpload {
			return in, apperr.InvalidInput(fmt.Sprintf("supporting_document %q is too large", fh.Filename))
		}
		if !utf8.Valid(content) {
			return in, apperr.InvalidInput(fmt.Sprintf("supporting_document %q is not UTF-8 text", fh.Filename))
		}
		in.Documents = append(in.Documents, Document{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		})
	}
	return in, nil
}

// submit authorizes the caller, builds the workflow input and runs it, honouring Idempotency-Key.
func (h *Handler) submit(c *gin.Context, kind models.SubmissionKind, ngoID string, build func() (processFunc, error)) {
	org := middleware.Organization(c)
	if err := h.proc.Authorize(org, ngoID); err != nil {
		response.Error(c, err)
		return
	}
	process, err := build()
	if err != nil {
		response.Error(c, err)
		return
	}
	ctx := c.Request.Context()

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if h.idem == nil || key == "" {
		sub, err := process(ctx)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, newSubmissionResponse(sub))
		return
	}
	if len(key) > maxIdempotencyKeyLen {
		response.BadRequest(c, "Idempotency-Key is too long")
		return
	}

	scope := org.ID + ":" + string(kind)
	replay, err := h.idem.Begin(ctx, scope, key)
	if err != nil {
		response.Error(c, err)
		return
	}
	if replay != nil {
		c.Header(HeaderReplayed, "true")
		c.Data(replay.Status, "application/json; charset=utf-8", replay.Body)
		return
	}

	sub, err := process(ctx)
	detached := context.WithoutCancel(ctx)
	if err != nil {
		if rerr := h.idem.Release(detached, scope, key); rerr != nil {
			h.logger.Warn("release idempotency key failed", zap.String("ngo_id", org.ID), zap.Error(rerr))
		}
		response.Error(c, err)
		return
	}
	body, err := json.Marshal(response.Body{Success: true, Data: newSubmissionResponse(sub)})
	if err != nil {
		response.Error(c, err)
		return
	}
	if cerr := h.idem.Complete(detached, scope, key, http.StatusOK, body); cerr != nil {
		h.logger.Warn("store idempotent response failed", zap.String("submission_id", sub.ID), zap.Error(cerr))
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

type listFunc func(ctx context.Context, org *models.Organization, ngoID string, limit int) ([]models.Submission, error)

// ListDonors handles GET /donors/:id.
func (h *Handler) ListDonors(c *gin.Context) { h.list(c, "donors", h.proc.ListDonors) }

// ListRecipients handles GET /recipients/:id.
func (h *Handler) ListRecipients(c *gin.Context) { h.list(c, "recipients", h.proc.ListRecipients) }

func (h *Handler) list(c *gin.Context, field string, fn listFunc) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	subs, err := fn(c.Request.Context(), middleware.Organization(c), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{field: subs})
}
