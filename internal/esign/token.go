package esign

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	consentScope   = "signature impersonation"
)

// oauthEndpoints splits the configured oauth host into the token URL and the assertion audience.
// host may be a bare host (account-d.docusign.com) or a full URL.
func oauthEndpoints(host string) (tokenURL, audience string, err error) {
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid oauth host %q", host)
	}
	return strings.TrimRight(u.String(), "/") + "/oauth/token", u.Host, nil
}

// tokenCache holds the JWT-grant access token. A fetch runs under the caller's deadline capped by
// timeout; the token is reused until it expires.
type tokenCache struct {
	conf    *jwt.Config
	timeout time.Duration

	mu  sync.Mutex
	tok *oauth2.Token
}

func (c *tokenCache) token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok.Valid() {
		return c.tok, nil
	}

	limit := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < limit {
			limit = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, context.DeadlineExceeded
	}
	hc := &http.Client{Timeout: limit}
	tok, err := c.conf.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, hc)).Token()
	if err != nil {
		return nil, fmt.Errorf("jwt grant: %w", err)
	}
	c.tok = tok
	return tok, nil
}
