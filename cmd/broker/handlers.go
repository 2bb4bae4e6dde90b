package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/demoray/azure-identity-helpers/credential"
	"github.com/demoray/azure-identity-helpers/internal/audit"
	"github.com/demoray/azure-identity-helpers/internal/config"
)

// tokenIssuer is the part of the chain the token handler needs.
type tokenIssuer interface {
	GetToken(ctx context.Context, req credential.TokenRequest) (credential.AccessToken, error)
}

// invalidator is the part of the cache the invalidate handler needs.
type invalidator interface {
	Invalidate(ctx context.Context, key credential.CacheKey) error
}

// tokenRequestBody is the JSON body for POST /token and DELETE /token.
type tokenRequestBody struct {
	Scopes []string `json:"scopes"`
	Claims string   `json:"claims,omitempty"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error    string        `json:"error"`
	Attempts []attemptBody `json:"attempts,omitempty"`
}

type attemptBody struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
}

// buildTokenRequest folds the configured identity boundary into the
// caller's requested scopes and claims.
func buildTokenRequest(cfg config.ChainConfig, body tokenRequestBody) credential.TokenRequest {
	return credential.TokenRequest{
		Scopes:        body.Scopes,
		TenantID:      cfg.TenantID,
		AuthorityHost: cfg.AuthorityHost,
		Claims:        body.Claims,
	}
}

func handlePostToken(cfg config.ChainConfig, issuer tokenIssuer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		entry := audit.Log(r.Context())

		body, err := readRequestBody(r)
		if err != nil {
			log.Info().Msgf("invalid token request: %v", err)
			entry.Error = err.Error()
			writeJSONError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		entry.Scopes = body.Scopes

		token, err := issuer.GetToken(r.Context(), buildTokenRequest(cfg, body))
		if err != nil {
			log.Info().Msgf("token acquisition failed: %v", err)
			entry.Error = err.Error()

			// chain exhaustion surfaces the per-provider outcomes so the
			// caller can tell which mechanisms were attempted and why each
			// did not succeed
			var exhausted *credential.ExhaustedError
			if errors.As(err, &exhausted) {
				writeJSONError(w, http.StatusBadGateway,
					"no credential provider produced a token", exhausted.Attempts)
				return
			}

			writeJSONError(w, http.StatusInternalServerError,
				http.StatusText(http.StatusInternalServerError), nil)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(token); err != nil {
			// trying to respond to the client at this point will likely
			// fail: record to log only
			log.Info().Msgf("failed to write response: %v", err)
		}
	})
}

func handleInvalidateToken(cfg config.ChainConfig, inv invalidator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		entry := audit.Log(r.Context())

		body, err := readRequestBody(r)
		if err != nil {
			log.Info().Msgf("invalid invalidate request: %v", err)
			entry.Error = err.Error()
			writeJSONError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		entry.Scopes = body.Scopes

		key := buildTokenRequest(cfg, body).Key()
		if err := inv.Invalidate(r.Context(), key); err != nil {
			log.Info().Msgf("invalidate failed: %v", err)
			entry.Error = err.Error()
			writeJSONError(w, http.StatusInternalServerError,
				http.StatusText(http.StatusInternalServerError), nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func readRequestBody(r *http.Request) (tokenRequestBody, error) {
	var body tokenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, errors.New("request body must be JSON")
	}
	if len(body.Scopes) == 0 {
		return body, errors.New("at least one scope is required")
	}
	return body, nil
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string, attempts []credential.Attempt) {
	response := ErrorResponse{Error: message}
	for _, a := range attempts {
		response.Attempts = append(response.Attempts, attemptBody{
			Provider: a.Provider,
			Status:   a.Status.String(),
			Reason:   a.Reason(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// drainRequestBody drains the request body by reading and discarding the
// contents, which is important for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
