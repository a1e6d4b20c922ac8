package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	SessionName      = "cart-session"
	SessionHeader    = "X-Cart-Session"
	sessionIDKey     = "session_id"
	checkoutDraftKey = "checkout_draft"
)

type contextKey string

const (
	requestIDCtxKey contextKey = "request_id"
	sessionIDCtxKey contextKey = "session_id"
	sessionCtxKey   contextKey = "session"
)

// NewSessionStore returns the cookie store that identifies cart sessions.
func NewSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   60 * 60 * 24 * 30, // 30 days
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// SessionMiddleware resolves the cart session for every request. The
// X-Cart-Session header wins over the cookie; otherwise the cookie's id is
// used, and a fresh one is issued when there is none.
func SessionMiddleware(store sessions.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, SessionName)
			if err != nil {
				// corrupted or signed with an old secret
				session = sessions.NewSession(store, SessionName)
				session.IsNew = true
			}

			sessionID := r.Header.Get(SessionHeader)
			if sessionID == "" {
				id, ok := session.Values[sessionIDKey].(string)
				if !ok || id == "" {
					id = uuid.NewString()
					session.Values[sessionIDKey] = id
					if err := session.Save(r, w); err != nil {
						logger.Error("failed to save session", zap.Error(err))
						respondError(w, logger, http.StatusInternalServerError, "session_error", "failed to save session")
						return
					}
				}
				sessionID = id
			}

			ctx := context.WithValue(r.Context(), sessionIDCtxKey, sessionID)
			ctx = context.WithValue(ctx, sessionCtxKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDCtxKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggerMiddleware writes one access log line per request.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", getRequestID(r.Context())))
		})
	}
}

func getSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDCtxKey).(string); ok {
		return sessionID
	}
	return ""
}

func getSession(ctx context.Context) *sessions.Session {
	if session, ok := ctx.Value(sessionCtxKey).(*sessions.Session); ok {
		return session
	}
	return nil
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return requestID
	}
	return ""
}
