package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngo-platform/backend/config"
	"github.com/ngo-platform/backend/internal/esign"
	"github.com/ngo-platform/backend/internal/identity"
	"github.com/ngo-platform/backend/internal/middleware"
	"github.com/ngo-platform/backend/internal/models"
)

type memFiles struct {
	uploads map[string][]byte
	deleted []string
	err     error
	failOn  string // filename whose upload fails
}

func (m *memFiles) UploadTemplate(_ context.Context, ngoID, filename, _ string, body io.Reader, _ int64) (string, error) {
	if m.err != nil || (m.failOn != "" && filename == m.failOn) {
		return "", errors.New("s3 down")
	}
	raw, _ := io.ReadAll(body)
	if m.uploads == nil {
		m.uploads = map[string][]byte{}
	}
	m.uploads[filename] = raw
	return "https://templates.example/" + ngoID + "/" + filename, nil
}

func (m *memFiles) DeleteTemplate(_ context.Context, _, filename string) error {
	m.deleted = append(m.deleted, filename)
	delete(m.uploads, filename)
	return nil
}

type fakeCreator struct {
	reqs []esign.TemplateRequest
	err  error
}

func (f *fakeCreator) CreateTemplate(_ context.Context, req esign.TemplateRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return "tpl-" + req.Filename, nil
}

type memUpdater struct {
	saved map[string]models.Templates
	err   error
}

func (m *memUpdater) UpdateTemplates(_ context.Context, id string, t models.Templates) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = map[string]models.Templates{}
	}
	m.saved[id] = t
	return nil
}

func router(h *Handler, org *models.Organization) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/templates/:id", func(c *gin.Context) {
		c.Set(middleware.ContextOrganization, org)
		c.Next()
	}, h.Upload)
	return r
}

func uploadRequest(t *testing.T, ngoID string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, name := range files {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/templates/"+ngoID, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var bothFiles = map[string]string{"donor_template": "thanks.docx", "recipient_template": "reply.docx"}

func org() *models.Organization {
	return &models.Organization{ID: "org-a", Name: "Helping Hands"}
}

func TestUploadCreatesAgreementTemplates(t *testing.T) {
	files, creator, updater := &memFiles{}, &fakeCreator{}, &memUpdater{}
	h := NewHandler(identity.NewGate(nil, nil), files, creator, updater, config.WorkflowConfig{}, 0, nil)

	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	saved := updater.saved["org-a"]
	require.NotNil(t, saved.Donor)
	require.NotNil(t, saved.Recipient)
	assert.Equal(t, "https://templates.example/org-a/donor_thanks.docx", saved.Donor.URL)
	assert.Equal(t, models.CategoryDonationAcknowledgment, saved.Donor.Category)
	assert.Equal(t, "tpl-thanks.docx", saved.Donor.ESignTemplateID)
	assert.Equal(t, models.CategoryAssistanceResponse, saved.Recipient.Category)
	assert.Equal(t, "tpl-reply.docx", saved.Recipient.ESignTemplateID)
	assert.Equal(t, []byte("content of reply.docx"), files.uploads["recipient_reply.docx"])
	assert.Len(t, creator.reqs, 2)

	var env struct {
		Data UploadResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "Templates uploaded successfully", env.Data.Status)
}

func TestUploadKeepsSuppliedTemplateIDs(t *testing.T) {
	creator, updater := &fakeCreator{}, &memUpdater{}
	h := NewHandler(identity.NewGate(nil, nil), &memFiles{}, creator, updater, config.WorkflowConfig{}, 0, nil)

	req := uploadRequest(t, "org-a", map[string]string{
		"donor_esign_template_id":     "existing-donor",
		"recipient_esign_template_id": "existing-recipient",
	}, bothFiles)
	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, creator.reqs)
	assert.Equal(t, "existing-donor", updater.saved["org-a"].Donor.ESignTemplateID)
	assert.Equal(t, "existing-recipient", updater.saved["org-a"].Recipient.ESignTemplateID)
}

func TestUploadWithoutAgreements(t *testing.T) {
	updater := &memUpdater{}
	h := NewHandler(identity.NewGate(nil, nil), &memFiles{}, nil, updater, config.WorkflowConfig{}, 0, nil)

	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, updater.saved["org-a"].Donor.ESignTemplateID)
}

func TestUploadForbiddenTouchesNothing(t *testing.T) {
	files, creator, updater := &memFiles{}, &fakeCreator{}, &memUpdater{}
	h := NewHandler(identity.NewGate(nil, nil), files, creator, updater, config.WorkflowConfig{}, 0, nil)

	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-b", nil, bothFiles))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, files.uploads)
	assert.Empty(t, creator.reqs)
	assert.Empty(t, updater.saved)
}

func TestUploadRequiresBothFiles(t *testing.T) {
	files := &memFiles{}
	h := NewHandler(identity.NewGate(nil, nil), files, nil, &memUpdater{}, config.WorkflowConfig{}, 0, nil)

	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, map[string]string{"donor_template": "a.docx"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "recipient_template is required")
	assert.Empty(t, files.uploads)
}

func TestUploadStorageFailures(t *testing.T) {
	h := NewHandler(identity.NewGate(nil, nil), &memFiles{err: errors.New("s3 down")}, nil, &memUpdater{}, config.WorkflowConfig{}, 0, nil)
	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h = NewHandler(identity.NewGate(nil, nil), &memFiles{}, nil, &memUpdater{err: errors.New("db down")}, config.WorkflowConfig{}, 0, nil)
	w = httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h = NewHandler(identity.NewGate(nil, nil), nil, nil, &memUpdater{}, config.WorkflowConfig{}, 0, nil)
	w = httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUploadAgreementTemplateFailure(t *testing.T) {
	files, updater := &memFiles{}, &memUpdater{}
	h := NewHandler(identity.NewGate(nil, nil), files, &fakeCreator{err: errors.New("docusign 400")}, updater, config.WorkflowConfig{}, 0, nil)

	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, updater.saved)
	assert.Equal(t, []string{"donor_thanks.docx"}, files.deleted)
	assert.Empty(t, files.uploads)
}

func TestUploadDiscardsStoredFilesOnLaterFailure(t *testing.T) {
	files := &memFiles{failOn: "recipient_reply.docx"}
	h := NewHandler(identity.NewGate(nil, nil), files, nil, &memUpdater{}, config.WorkflowConfig{}, 0, nil)

	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, []string{"donor_thanks.docx"}, files.deleted)
	assert.Empty(t, files.uploads)

	files = &memFiles{}
	h = NewHandler(identity.NewGate(nil, nil), files, nil, &memUpdater{err: errors.New("db down")}, config.WorkflowConfig{}, 0, nil)
	w = httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.ElementsMatch(t, []string{"donor_thanks.docx", "recipient_reply.docx"}, files.deleted)
}

// deadlineCreator records how long its context had left.
type deadlineCreator struct {
	left time.Duration
}

func (d *deadlineCreator) CreateTemplate(ctx context.Context, req esign.TemplateRequest) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		d.left = time.Until(dl)
	}
	return "tpl-" + req.Filename, nil
}

func TestCreateTemplateUsesESignTimeout(t *testing.T) {
	creator := &deadlineCreator{}
	timeouts := config.WorkflowConfig{StorageTimeout: 50 * time.Millisecond, ESignTimeout: time.Minute}
	h := NewHandler(identity.NewGate(nil, nil), &memFiles{}, creator, &memUpdater{}, timeouts, 0, nil)

	w := httptest.NewRecorder()
	router(h, org()).ServeHTTP(w, uploadRequest(t, "org-a", nil, bothFiles))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Greater(t, creator.left, 30*time.Second)
}
