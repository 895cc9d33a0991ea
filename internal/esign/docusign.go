// Package esign dispatches agreements for signature through DocuSign.
package esign

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2/jwt"
)

const (
	signerRole   = "signer"
	apiVersion   = "/restapi/v2.1"
	maxErrorBody = 4 << 10
)

// Config holds the DocuSign account and signing identity.
type Config struct {
	AccountID      string
	IntegrationKey string
	UserID         string
	PrivateKey     string // base64-encoded RSA PEM
	BasePath       string // REST host, e.g. https://demo.docusign.net
	OAuthHost      string // e.g. account-d.docusign.com
	TokenTTL       time.Duration
	Timeout        time.Duration // bounds every call, the token fetch included
}

// AgreementRequest describes one envelope sent from a template.
type AgreementRequest struct {
	TemplateID  string
	SignerEmail string
	SignerName  string
	Fields      map[string]string // text tab label -> value
}

// TemplateRequest creates a server-side template from an uploaded document.
type TemplateRequest struct {
	Name     string
	Filename string
	Content  []byte
}

// DocuSign is the e-signature backend.
type DocuSign struct {
	client    *http.Client
	tokens    *tokenCache
	baseURL   string
	accountID string
	logger    *zap.Logger
}

// NewDocuSign creates a client authenticated by JWT grant. The access token is cached until it
// expires.
func NewDocuSign(cfg Config, logger *zap.Logger) (*DocuSign, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pemBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if _, err := gojwt.ParseRSAPrivateKeyFromPEM(pemBytes); err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	tokenURL, audience, err := oauthEndpoints(cfg.OAuthHost)
	if err != nil {
		return nil, err
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &DocuSign{
		client: &http.Client{Timeout: timeout},
		tokens: &tokenCache{
			conf: &jwt.Config{
				Email:      cfg.IntegrationKey,
				Subject:    cfg.UserID,
				PrivateKey: pemBytes,
				Scopes:     strings.Fields(consentScope),
				TokenURL:   tokenURL,
				Audience:   audience,
				Expires:    ttl,
			},
			timeout: timeout,
		},
		baseURL:   strings.TrimRight(cfg.BasePath, "/"),
		accountID: cfg.AccountID,
		logger:    logger,
	}, nil
}

type textTab struct {
	TabLabel string `json:"tabLabel"`
	Value    string `json:"value"`
}

type templateRole struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleName string `json:"roleName"`
	Tabs     struct {
		TextTabs []textTab `json:"textTabs,omitempty"`
	} `json:"tabs"`
}

type envelopeDefinition struct {
	Status        string         `json:"status"`
	TemplateID    string         `json:"templateId"`
	TemplateRoles []templateRole `json:"templateRoles"`
}

type envelopeSummary struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
}

// SendAgreement sends an envelope from req.TemplateID to the signer and returns its tracking id.
func (d *DocuSign) SendAgreement(ctx context.Context, req AgreementRequest) (string, error) {
	role := templateRole{Email: req.SignerEmail, Name: req.SignerName, RoleName: signerRole}
	labels := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, k := range labels {
		role.Tabs.TextTabs = append(role.Tabs.TextTabs, textTab{TabLabel: k, Value: req.Fields[k]})
	}
	def := envelopeDefinition{Status: "sent", TemplateID: req.TemplateID, TemplateRoles: []templateRole{role}}

	var out envelopeSummary
	if err := d.post(ctx, "envelopes", def, &out); err != nil {
		return "", fmt.Errorf("create envelope: %w", err)
	}
	if out.EnvelopeID == "" {
		return "", fmt.Errorf("create envelope: response carries no envelopeId")
	}
	d.logger.Info("agreement sent", zap.String("envelope_id", out.EnvelopeID), zap.String("template_id", req.TemplateID))
	return out.EnvelopeID, nil
}

type templateDocument struct {
	DocumentBase64 string `json:"documentBase64"`
	DocumentID     string `json:"documentId"`
	FileExtension  string `json:"fileExtension,omitempty"`
	Name           string `json:"name"`
}

type templateSigner struct {
	RoleName     string `json:"roleName"`
	RecipientID  string `json:"recipientId"`
	RoutingOrder string `json:"routingOrder"`
}

type templateDefinition struct {
	Name         string             `json:"name"`
	EmailSubject string             `json:"emailSubject"`
	Documents    []templateDocument `json:"documents"`
	Recipients   struct {
		Signers []templateSigner `json:"signers"`
	} `json:"recipients"`
}

type templateSummary struct {
	TemplateID string `json:"templateId"`
}

// CreateTemplate registers an uploaded document as a reusable template with one signer role.
func (d *DocuSign) CreateTemplate(ctx context.Context, req TemplateRequest) (string, error) {
	def := templateDefinition{
		Name:         req.Name,
		EmailSubject: "Please sign: " + req.Name,
		Documents: []templateDocument{{
			DocumentBase64: base64.StdEncoding.EncodeToString(req.Content),
			DocumentID:     "1",
			FileExtension:  strings.TrimPrefix(path.Ext(req.Filename), "."),
			Name:           req.Filename,
		}},
	}
	def.Recipients.Signers = []templateSigner{{RoleName: signerRole, RecipientID: "1", RoutingOrder: "1"}}

	var out templateSummary
	if err := d.post(ctx, "templates", def, &out); err != nil {
		return "", fmt.Errorf("create template: %w", err)
	}
	if out.TemplateID == "" {
		return "", fmt.Errorf("create template: response carries no templateId")
	}
	return out.TemplateID, nil
}

type apiError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (d *DocuSign) post(ctx context.Context, resource string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s%s/accounts/%s/%s", d.baseURL, apiVersion, d.accountID, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tok, err := d.tokens.token(ctx)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.ErrorCode != "" {
			return fmt.Errorf("docusign error (status %d): %s: %s", resp.StatusCode, ae.ErrorCode, ae.Message)
		}
		return fmt.Errorf("docusign error (status %d)", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
