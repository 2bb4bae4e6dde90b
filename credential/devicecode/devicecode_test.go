package devicecode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demoray/azure-identity-helpers/credential"
)

// authority fakes the device authorization and token endpoints.
type authority struct {
	t *testing.T

	deviceAuthCalls int
	refreshCalls    int
	refuseRefresh   bool
}

func (a *authority) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(a.t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/the-tenant/oauth2/v2.0/devicecode":
			a.deviceAuthCalls++
			json.NewEncoder(w).Encode(map[string]any{
				"device_code":      "the-device-code",
				"user_code":        "ABCD-1234",
				"verification_uri": "https://microsoft.com/devicelogin",
				"expires_in":       900,
				"interval":         1,
			})

		case r.PostForm.Get("grant_type") == "urn:ietf:params:oauth:grant-type:device_code":
			assert.Equal(a.t, "the-device-code", r.PostForm.Get("device_code"))
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "flow-access-token",
				"token_type":    "Bearer",
				"expires_in":    3599,
				"refresh_token": "flow-refresh-token",
			})

		case r.PostForm.Get("grant_type") == "refresh_token":
			a.refreshCalls++
			if a.refuseRefresh {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "refreshed-access-token",
				"token_type":    "Bearer",
				"expires_in":    3599,
				"refresh_token": "rotated-refresh-token",
			})

		default:
			a.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}
}

func newTestCredential(server *httptest.Server, prompts *[]string) *Credential {
	cred := New("the-tenant", "the-client",
		WithHTTPClient(server.Client()),
		WithPrompt(func(message string) {
			*prompts = append(*prompts, message)
		}),
	)
	cred.interactive = func() bool { return true }
	return cred
}

func TestAvailable(t *testing.T) {
	cred := New("tenant", "client")

	cred.interactive = func() bool { return true }
	assert.True(t, cred.Available())

	cred.interactive = func() bool { return false }
	assert.False(t, cred.Available(), "no terminal means no user to complete the flow")

	cred = New("tenant", "")
	cred.interactive = func() bool { return true }
	assert.False(t, cred.Available())
}

func TestGetToken_DeviceFlow(t *testing.T) {
	auth := &authority{t: t}
	server := httptest.NewServer(auth.handler())
	defer server.Close()

	var prompts []string
	cred := newTestCredential(server, &prompts)

	req := credential.TokenRequest{
		Scopes:        []string{"https://management.azure.com/.default"},
		AuthorityHost: server.URL,
	}

	token, err := cred.GetToken(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "flow-access-token", token.Token)
	assert.False(t, token.ExpiresOn.IsZero())

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "https://microsoft.com/devicelogin")
	assert.Contains(t, prompts[0], "ABCD-1234")
}

func TestGetToken_RefreshTokenReusedAcrossAcquisitions(t *testing.T) {
	auth := &authority{t: t}
	server := httptest.NewServer(auth.handler())
	defer server.Close()

	var prompts []string
	cred := newTestCredential(server, &prompts)

	req := credential.TokenRequest{
		Scopes:        []string{"scope"},
		AuthorityHost: server.URL,
	}

	_, err := cred.GetToken(context.Background(), req)
	require.NoError(t, err)

	token, err := cred.GetToken(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "refreshed-access-token", token.Token)
	assert.Equal(t, 1, auth.deviceAuthCalls, "second acquisition must not prompt again")
	assert.Equal(t, 1, auth.refreshCalls)
	assert.Len(t, prompts, 1)
}

func TestGetToken_RefreshTokensAreScopedToRequest(t *testing.T) {
	auth := &authority{t: t}
	server := httptest.NewServer(auth.handler())
	defer server.Close()

	var prompts []string
	cred := newTestCredential(server, &prompts)

	_, err := cred.GetToken(context.Background(), credential.TokenRequest{
		Scopes:        []string{"scope-a"},
		AuthorityHost: server.URL,
	})
	require.NoError(t, err)

	// a different scope set cannot reuse scope-a's refresh token
	_, err = cred.GetToken(context.Background(), credential.TokenRequest{
		Scopes:        []string{"scope-b"},
		AuthorityHost: server.URL,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, auth.deviceAuthCalls)
	assert.Equal(t, 0, auth.refreshCalls)
}

func TestGetToken_FailedExchangeFallsBackToDeviceFlow(t *testing.T) {
	auth := &authority{t: t, refuseRefresh: true}
	server := httptest.NewServer(auth.handler())
	defer server.Close()

	var prompts []string
	cred := newTestCredential(server, &prompts)

	req := credential.TokenRequest{
		Scopes:        []string{"scope"},
		AuthorityHost: server.URL,
	}

	cred.remember(req, "stale-refresh-token")

	_, err := cred.GetToken(context.Background(), req)
	require.Error(t, err)
	assert.ErrorContains(t, err, "refresh token exchange failed")

	// the stale token was consumed: the next acquisition prompts afresh
	token, err := cred.GetToken(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "flow-access-token", token.Token)
	assert.Equal(t, 1, auth.deviceAuthCalls)
	assert.Equal(t, 1, auth.refreshCalls)
}

func TestConfig_Endpoints(t *testing.T) {
	cred := New("configured-tenant", "client")

	conf := cred.config(credential.TokenRequest{})
	assert.Equal(t, "https://login.microsoftonline.com/configured-tenant/oauth2/v2.0/devicecode", conf.Endpoint.DeviceAuthURL)
	assert.Equal(t, "https://login.microsoftonline.com/configured-tenant/oauth2/v2.0/token", conf.Endpoint.TokenURL)

	conf = cred.config(credential.TokenRequest{
		TenantID:      "request-tenant",
		AuthorityHost: "https://login.microsoftonline.us/",
	})
	assert.Equal(t, "https://login.microsoftonline.us/request-tenant/oauth2/v2.0/devicecode", conf.Endpoint.DeviceAuthURL)
}
