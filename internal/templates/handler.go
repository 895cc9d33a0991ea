// Package templates serves the template upload endpoint.
package templates

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngo-platform/backend/config"
	"github.com/ngo-platform/backend/internal/apperr"
	"github.com/ngo-platform/backend/internal/esign"
	"github.com/ngo-platform/backend/internal/middleware"
	"github.com/ngo-platform/backend/internal/models"
	"github.com/ngo-platform/backend/pkg/response"
)

// multipartOverhead allows for form fields and part headers beyond the file contents.
const multipartOverhead = 1 << 20

// Authorizer checks that an authenticated organization acts on its own behalf.
type Authorizer interface {
	Authorize(org *models.Organization, ngoID string) error
}

// FileStore keeps uploaded template files.
type FileStore interface {
	UploadTemplate(ctx context.Context, ngoID, filename, contentType string, body io.Reader, size int64) (string, error)
	DeleteTemplate(ctx context.Context, ngoID, filename string) error
}

// Creator registers a template with the e-signature backend.
type Creator interface {
	CreateTemplate(ctx context.Context, req esign.TemplateRequest) (string, error)
}

// Updater persists an organization's template configuration.
type Updater interface {
	UpdateTemplates(ctx context.Context, id string, templates models.Templates) error
}

// Handler handles POST /templates/:id.
type Handler struct {
	auth      Authorizer
	files     FileStore
	creator   Creator
	orgs      Updater
	timeouts  config.WorkflowConfig
	maxUpload int64
	logger    *zap.Logger
}

// NewHandler creates a templates handler. creator may be nil when agreements are disabled; files may be
// nil when no object store is configured, in which case uploads fail with a storage error.
func NewHandler(auth Authorizer, files FileStore, creator Creator, orgs Updater, timeouts config.WorkflowConfig, maxUpload int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeouts.StorageTimeout <= 0 {
		timeouts.StorageTimeout = 15 * time.Second
	}
	if timeouts.ESignTimeout <= 0 {
		timeouts.ESignTimeout = 20 * time.Second
	}
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{auth: auth, files: files, creator: creator, orgs: orgs, timeouts: timeouts, maxUpload: maxUpload, logger: logger}
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Status    string           `json:"status"`
	Templates models.Templates `json:"templates"`
}

type templateFile struct {
	kind        models.SubmissionKind
	filename    string
	contentType string
	content     []byte
	esignID     string
}

// key is the object name a template file is stored under.
func (f templateFile) key() string { return string(f.kind) + "_" + f.filename }

// Upload handles POST /templates/:id (multipart: donor_template, recipient_template, optional
// donor_esign_template_id and recipient_esign_template_id).
func (h *Handler) Upload(c *gin.Context) {
	org := middleware.Organization(c)
	if err := h.auth.Authorize(org, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxUpload+multipartOverhead)
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		response.BadRequest(c, "invalid multipart form: "+err.Error())
		return
	}
	var files []templateFile
	for _, kind := range []models.SubmissionKind{models.KindDonor, models.KindRecipient} {
		f, err := h.readFile(c, kind)
		if err != nil {
			response.Error(c, err)
			return
		}
		files = append(files, f)
	}
	if h.files == nil {
		response.Error(c, apperr.StorageFailure("template storage is not configured", nil))
		return
	}

	ctx := c.Request.Context()
	templates := org.Templates
	var stored []templateFile
	for _, f := range files {
		tc, err := h.store(ctx, org, f)
		if tc != nil {
			stored = append(stored, f)
		}
		if err != nil {
			h.discard(ctx, org.ID, stored)
			response.Error(c, err)
			return
		}
		switch f.kind {
		case models.KindDonor:
			templates.Donor = tc
		case models.KindRecipient:
			templates.Recipient = tc
		}
	}

	uctx, cancel := context.WithTimeout(ctx, h.timeouts.StorageTimeout)
	defer cancel()
	if err := h.orgs.UpdateTemplates(uctx, org.ID, templates); err != nil {
		h.logger.Error("update templates failed", zap.String("ngo_id", org.ID), zap.Error(err))
		h.discard(ctx, org.ID, stored)
		response.Error(c, apperr.StorageFailure("failed to save templates", err))
		return
	}
	h.logger.Info("templates uploaded", zap.String("ngo_id", org.ID))
	response.OK(c, UploadResponse{Status: "Templates uploaded successfully", Templates: templates})
}

// discard removes template objects of an upload that did not complete. Cleanup outlives the request.
func (h *Handler) discard(ctx context.Context, ngoID string, files []templateFile) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range files {
		dctx, cancel := context.WithTimeout(ctx, h.timeouts.StorageTimeout)
		if err := h.files.DeleteTemplate(dctx, ngoID, f.key()); err != nil {
			h.logger.Warn("discard template failed", zap.String("ngo_id", ngoID), zap.String("file", f.key()), zap.Error(err))
		}
		cancel()
	}
}

func (h *Handler) readFile(c *gin.Context, kind models.SubmissionKind) (templateFile, error) {
	field := string(kind) + "_template"
	fh, err := c.FormFile(field)
	if err != nil {
		return templateFile{}, apperr.InvalidInput(field + " is required")
	}
	content, err := readAll(fh, h.maxUpload)
	if err != nil {
		return templateFile{}, apperr.InvalidInput(fmt.Sprintf("%s: %v", field, err))
	}
	return templateFile{
		kind:        kind,
		filename:    fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
		content:     content,
		esignID:     strings.TrimSpace(c.PostForm(string(kind) + "_esign_template_id")),
	}, nil
}

func readAll(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	return content, nil
}

// store uploads one template file and, when agreements are enabled and no id was supplied, creates its
// e-signature template. A non-nil config with an error means the file was stored but the agreement
// template was not.
func (h *Handler) store(ctx context.Context, org *models.Organization, f templateFile) (*models.TemplateConfig, error) {
	fctx, cancel := context.WithTimeout(ctx, h.timeouts.StorageTimeout)
	url, err := h.files.UploadTemplate(fctx, org.ID, f.key(), f.contentType, bytes.NewReader(f.content), int64(len(f.content)))
	cancel()
	if err != nil {
		h.logger.Error("template upload failed", zap.String("ngo_id", org.ID), zap.String("kind", string(f.kind)), zap.Error(err))
		return nil, apperr.StorageFailure("failed to store "+string(f.kind)+" template", err)
	}
	tc := &models.TemplateConfig{URL: url, Category: f.kind.Category(), ESignTemplateID: f.esignID}
	if tc.ESignTemplateID != "" || h.creator == nil {
		return tc, nil
	}

	ectx, cancel := context.WithTimeout(ctx, h.timeouts.ESignTimeout)
	defer cancel()
	id, err := h.creator.CreateTemplate(ectx, esign.TemplateRequest{
		Name:     org.Name + " " + string(f.kind) + " agreement",
		Filename: f.filename,
		Content:  f.content,
	})
	if err != nil {
		h.logger.Error("create e-signature template failed", zap.String("ngo_id", org.ID), zap.String("kind", string(f.kind)), zap.Error(err))
		return tc, apperr.Wrap(apperr.KindInternal, "failed to create "+string(f.kind)+" agreement template", err)
	}
	tc.ESignTemplateID = id
	return tc, nil
}
