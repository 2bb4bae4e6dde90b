// Package audit writes one structured log entry per broker request,
// recording the request identity and the outcome of any token operation it
// performed. The entry travels in the request context so handlers can
// annotate it as they work.
package audit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the level audit entries are written at.
const Level = zerolog.InfoLevel

type contextKey struct{}

// Entry is the audit record accumulated over the life of a request.
type Entry struct {
	Method    string
	Path      string
	UserAgent string
	SourceIP  string
	Status    int
	Error     string

	// Scopes is set by the token handlers once the request body is read.
	Scopes []string
}

// Context returns a context carrying an audit entry, creating one when
// absent, along with the entry itself.
func Context(ctx context.Context) (context.Context, *Entry) {
	if entry, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return ctx, entry
	}

	entry := &Entry{}
	return context.WithValue(ctx, contextKey{}, entry), entry
}

// Log returns the context's audit entry. A detached entry is returned when
// the middleware is not active, so annotation is always safe.
func Log(ctx context.Context) *Entry {
	_, entry := Context(ctx)
	return entry
}

// Begin captures the request attributes available before the handler runs.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()
	e.SourceIP = r.RemoteAddr
	e.Status = http.StatusOK
}

// End returns a func that writes the entry. Run it deferred: a panic in the
// handler is recorded on the entry and re-raised after the write.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		if p := recover(); p != nil {
			if e.Error != "" {
				e.Error = fmt.Sprintf("%s; panic: %v", e.Error, p)
			} else {
				e.Error = fmt.Sprintf("panic: %v", p)
			}
			e.write(ctx)
			panic(p)
		}

		e.write(ctx)
	}
}

func (e *Entry) write(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	ev := logger.WithLevel(Level).
		Str("method", e.Method).
		Str("path", e.Path).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent).
		Int("status", e.Status)

	if len(e.Scopes) > 0 {
		ev = ev.Strs("scopes", e.Scopes)
	}
	if e.Error != "" {
		ev = ev.Str("error", e.Error)
	}

	ev.Msg("audit")
}

// Middleware attaches an audit entry to each request and writes it when the
// handler completes, panics included.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)
			defer entry.End(ctx)()

			sw := &statusWriter{ResponseWriter: w, entry: entry}
			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

// statusWriter records the response status on the audit entry.
type statusWriter struct {
	http.ResponseWriter
	entry *Entry
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.entry.Status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
