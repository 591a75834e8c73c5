package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/garnizeh/iisa/internal/session"
	"github.com/gorilla/mux"
)

type ctxKey string

const CtxSessionUser ctxKey = "session_user"

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// SessionMiddleware admits a request only while the gate is logged in and
// the session cookie carries a valid token issued to the gate's current
// user. Browsers are redirected to the login page; JSON clients get 401.
func SessionMiddleware(gate *session.Gate, tokens *session.Tokens) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dest := r.URL.RequestURI()
			ok, redirect := gate.Guard(dest)
			if ok {
				user, _ := gate.CurrentUser()
				if sub, err := tokenSubject(r, tokens); err == nil && sub == user {
					ctx := context.WithValue(r.Context(), CtxSessionUser, sub)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				} else if err != nil {
					logger.Warn("session token rejected", slog.String("path", r.URL.Path), slog.Any("err", err))
				}
				redirect = session.LoginRedirect(dest)
			}

			if wantsJSON(r) {
				writeJSON(w, map[string]string{"error": "login required", "redirect": redirect}, http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, redirect, http.StatusFound)
		})
	}
}

func tokenSubject(r *http.Request, tokens *session.Tokens) (string, error) {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return "", err
	}
	return tokens.Subject(c.Value)
}
