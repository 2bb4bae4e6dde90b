// Package credential implements token acquisition for an identity platform:
// an ordered chain of credential providers, and an expiry-aware token cache
// with single-flight population.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"
)

// AccessToken is an issued bearer token together with its lifetime. Values
// are immutable once created: a request past expiry produces a replacement
// token rather than mutating the cached one.
type AccessToken struct {
	// Token is the opaque secret value presented to the resource.
	Token string `json:"token"`

	// ExpiresOn is the absolute instant the token stops being valid.
	ExpiresOn time.Time `json:"expiresOn"`

	// RefreshOn, when non-zero, marks the instant from which the token
	// should be proactively replaced even though it has not yet expired.
	RefreshOn time.Time `json:"refreshOn,omitzero"`
}

// LiveAt reports whether the token is still usable at the given instant,
// requiring at least margin of remaining validity. Tokens past their
// RefreshOn instant are reported as no longer live so that a replacement is
// requested ahead of expiry.
func (t AccessToken) LiveAt(now time.Time, margin time.Duration) bool {
	if t.Token == "" {
		return false
	}
	if !t.RefreshOn.IsZero() && !now.Before(t.RefreshOn) {
		return false
	}
	return now.Before(t.ExpiresOn.Add(-margin))
}

// ExpiresOnUnix renders the expiry as unix seconds, the format used by CLI
// credential tools.
func (t AccessToken) ExpiresOnUnix() string {
	return strconv.FormatInt(t.ExpiresOn.UTC().Unix(), 10)
}

// TokenRequest identifies the token a caller needs. Scopes are the
// permission boundaries requested; TenantID and AuthorityHost select the
// issuing boundary; Claims carries an optional claims challenge returned by
// a resource.
type TokenRequest struct {
	Scopes        []string
	TenantID      string
	AuthorityHost string
	Claims        string
}

// CacheKey identifies a cache entry. Requests that are logically identical
// produce equal keys.
type CacheKey string

// Key derives the cache key for the request. Scope order is normalized so
// that requests differing only in ordering share an entry. The key is a URN
// of the form:
//
//	token://{tenant}@{authority}/{scope,scope,...}
//
// with a digest of the claims challenge appended when one is present, since
// challenge contents are arbitrary and may not be key-safe.
func (r TokenRequest) Key() CacheKey {
	scopes := slices.Clone(r.Scopes)
	slices.Sort(scopes)
	scopes = slices.Compact(scopes)

	var b strings.Builder
	b.WriteString("token://")
	b.WriteString(r.TenantID)
	b.WriteString("@")
	b.WriteString(r.AuthorityHost)
	b.WriteString("/")
	b.WriteString(strings.Join(scopes, ","))

	if r.Claims != "" {
		sum := sha256.Sum256([]byte(r.Claims))
		b.WriteString("#")
		b.WriteString(hex.EncodeToString(sum[:8]))
	}

	return CacheKey(b.String())
}
