// Package devicecode acquires tokens interactively through the OAuth2
// device authorization grant: the user is shown a verification URL and a
// short code, and the provider polls the token endpoint until they sign in.
package devicecode

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/oauth2"

	"github.com/demoray/azure-identity-helpers/credential"
)

// DefaultAuthorityHost is used when the request does not name an authority.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// Credential implements the device authorization grant. A refresh token
// returned by a completed flow is kept per requested scope set, so later
// acquisitions for the same scopes exchange it silently instead of
// prompting the user again.
type Credential struct {
	tenantID   string
	clientID   string
	httpClient *http.Client
	prompt     func(message string)

	interactive func() bool

	mu            sync.Mutex
	refreshTokens map[string]string
}

// Option configures a Credential.
type Option func(*Credential)

// WithHTTPClient overrides the HTTP client used for the flow.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Credential) {
		c.httpClient = client
	}
}

// WithPrompt overrides how the sign-in instruction is shown to the user.
// The default writes to stderr.
func WithPrompt(prompt func(message string)) Option {
	return func(c *Credential) {
		c.prompt = prompt
	}
}

// New creates a device code credential for the given tenant and client.
func New(tenantID, clientID string, opts ...Option) *Credential {
	c := &Credential{
		tenantID: tenantID,
		clientID: clientID,
		prompt: func(message string) {
			fmt.Fprintln(os.Stderr, message)
		},
		interactive: func() bool {
			return isatty.IsTerminal(os.Stderr.Fd())
		},
		refreshTokens: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ credential.Provider = (*Credential)(nil)

func (c *Credential) Name() string {
	return "device-code"
}

// Available reports whether a user is present to complete the flow: the
// process must be attached to a terminal.
func (c *Credential) Available() bool {
	return c.clientID != "" && c.interactive()
}

// GetToken runs the device authorization grant, or exchanges the refresh
// token remembered from a previous flow for the same scope set. A refresh
// token is consumed on use: when the exchange fails the next acquisition
// falls back to a fresh interactive flow.
func (c *Credential) GetToken(ctx context.Context, req credential.TokenRequest) (credential.AccessToken, error) {
	conf := c.config(req)

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	if refreshToken, ok := c.take(req); ok {
		token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return credential.AccessToken{}, fmt.Errorf("refresh token exchange failed: %w", err)
		}

		c.remember(req, token.RefreshToken)
		return credential.AccessToken{
			Token:     token.AccessToken,
			ExpiresOn: token.Expiry,
		}, nil
	}

	auth, err := conf.DeviceAuth(ctx)
	if err != nil {
		return credential.AccessToken{}, fmt.Errorf("device authorization failed: %w", err)
	}

	c.prompt(fmt.Sprintf(
		"To sign in, use a web browser to open the page %s and enter the code %s to authenticate.",
		auth.VerificationURI, auth.UserCode,
	))

	token, err := conf.DeviceAccessToken(ctx, auth)
	if err != nil {
		return credential.AccessToken{}, fmt.Errorf("device code flow failed: %w", err)
	}

	c.remember(req, token.RefreshToken)
	return credential.AccessToken{
		Token:     token.AccessToken,
		ExpiresOn: token.Expiry,
	}, nil
}

func (c *Credential) config(req credential.TokenRequest) *oauth2.Config {
	host := req.AuthorityHost
	if host == "" {
		host = DefaultAuthorityHost
	}
	host = strings.TrimSuffix(host, "/")

	tenant := req.TenantID
	if tenant == "" {
		tenant = c.tenantID
	}

	return &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: fmt.Sprintf("%s/%s/oauth2/v2.0/devicecode", host, tenant),
			TokenURL:      fmt.Sprintf("%s/%s/oauth2/v2.0/token", host, tenant),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
		Scopes: req.Scopes,
	}
}

// take removes and returns the refresh token remembered for the request's
// scope set.
func (c *Credential) take(req credential.TokenRequest) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(req.Key())
	refreshToken, ok := c.refreshTokens[key]
	if ok {
		delete(c.refreshTokens, key)
	}
	return refreshToken, ok
}

func (c *Credential) remember(req credential.TokenRequest, refreshToken string) {
	if refreshToken == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshTokens[string(req.Key())] = refreshToken
}
