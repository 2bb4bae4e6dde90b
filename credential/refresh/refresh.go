// Package refresh exchanges a refresh token for access tokens at the
// authority's OAuth2 token endpoint.
package refresh

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/demoray/azure-identity-helpers/credential"
)

// DefaultAuthorityHost is used when the request does not name an authority.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// Credential exchanges a refresh token via the grant_type=refresh_token
// flow. The authority may rotate the refresh token on each exchange; the
// most recent rotation is tracked per requested scope set, since a refresh
// token is only guaranteed to cover the scopes it was issued alongside.
type Credential struct {
	tenantID     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu      sync.Mutex
	initial string
	rotated map[string]string
}

// Option configures a Credential.
type Option func(*Credential)

// WithClientSecret sets the client secret sent with the exchange, for
// confidential clients.
func WithClientSecret(secret string) Option {
	return func(c *Credential) {
		c.clientSecret = secret
	}
}

// WithHTTPClient overrides the HTTP client used for the exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Credential) {
		c.httpClient = client
	}
}

// New creates a refresh token credential for the given tenant and client.
func New(tenantID, clientID, refreshToken string, opts ...Option) *Credential {
	c := &Credential{
		tenantID: tenantID,
		clientID: clientID,
		initial:  refreshToken,
		rotated:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ credential.Provider = (*Credential)(nil)

func (c *Credential) Name() string {
	return "refresh-token"
}

// Available reports whether a refresh token was supplied.
func (c *Credential) Available() bool {
	return c.initial != ""
}

func (c *Credential) GetToken(ctx context.Context, req credential.TokenRequest) (credential.AccessToken, error) {
	refreshToken := c.current(req)
	if refreshToken == "" {
		return credential.AccessToken{}, fmt.Errorf("no refresh token available")
	}

	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL(req),
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: req.Scopes,
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return credential.AccessToken{}, fmt.Errorf("refresh token exchange failed: %w", err)
	}

	// the authority may have rotated the refresh token; the new one must
	// replace the old for this scope set
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		c.rotate(req, token.RefreshToken)
	}

	return credential.AccessToken{
		Token:     token.AccessToken,
		ExpiresOn: token.Expiry,
	}, nil
}

func (c *Credential) tokenURL(req credential.TokenRequest) string {
	host := req.AuthorityHost
	if host == "" {
		host = DefaultAuthorityHost
	}

	tenant := req.TenantID
	if tenant == "" {
		tenant = c.tenantID
	}

	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimSuffix(host, "/"), tenant)
}

func (c *Credential) current(req credential.TokenRequest) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rotated, ok := c.rotated[string(req.Key())]; ok {
		return rotated
	}
	return c.initial
}

func (c *Credential) rotate(req credential.TokenRequest, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotated[string(req.Key())] = refreshToken
}
