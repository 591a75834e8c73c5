package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/garnizeh/iisa/internal/session"
)

type SessionHandler struct {
	gate   *session.Gate
	tokens *session.Tokens
	secure bool
}

// NewSessionHandler wires the login endpoints. secure marks the session
// cookie Secure, for deployments behind TLS.
func NewSessionHandler(gate *session.Gate, tokens *session.Tokens, secure bool) *SessionHandler {
	return &SessionHandler{gate: gate, tokens: tokens, secure: secure}
}

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	RedirectURL string `json:"redirectUrl"`
}

type loginResponse struct {
	LoggedIn    bool   `json:"loggedIn"`
	CurrentUser string `json:"currentUser"`
	Redirect    string `json:"redirect"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.RedirectURL == "" {
		req.RedirectURL = r.URL.Query().Get(session.RedirectParam)
	}

	if !h.gate.Login(r.Context(), req.Username, req.Password) {
		h.clearCookie(w)
		writeError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := h.tokens.Issue(req.Username)
	if err != nil {
		logger.Error("issue session token", slog.Any("err", err))
		writeError(w, "failed to start session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, loginResponse{
		LoggedIn:    true,
		CurrentUser: req.Username,
		Redirect:    session.ResumeTarget(req.RedirectURL),
	}, http.StatusOK)
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.gate.Logout(r.Context())
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.gate.State(), http.StatusOK)
}

func (h *SessionHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
