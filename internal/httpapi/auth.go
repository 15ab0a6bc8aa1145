package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/F1kro/Ngantri-DPMPTSP/internal/store"
)

var errNoSession = errors.New("no session in request")

// sessionCookieName holds the staff session id. HttpOnly so dashboard
// scripts never see it.
const sessionCookieName = "admin_session"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	session, user, err := h.store.Login(r.Context(), req.Email, req.Password, time.Now().UTC().Add(sessionTTL))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.SessionID, session.ExpiresAt))
	writeJSON(w, http.StatusOK, loginResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.store.Logout(r.Context(), sessionID); err != nil {
		writeError(w, "", http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	http.SetCookie(w, h.sessionCookie("", time.Time{}))
	w.WriteHeader(http.StatusNoContent)
}

// sessionCookie builds the session cookie. An empty value expires it.
func (h *Handler) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	} else {
		cookie.Expires = expires
	}
	return cookie
}

func (h *Handler) sessionFromRequest(r *http.Request) (store.Session, error) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		return store.Session{}, errNoSession
	}
	return h.store.GetSession(r.Context(), sessionID)
}

// requireAdmin guards staff endpoints. A missing or expired session is
// 401; a valid session held by a non-admin is 403.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	session, err := h.sessionFromRequest(r)
	if err != nil {
		if errors.Is(err, errNoSession) {
			writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
			return store.Session{}, false
		}
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, "", http.StatusUnauthorized, "unauthorized", "invalid session")
			return store.Session{}, false
		}
		writeError(w, "", http.StatusInternalServerError, "internal_error", "internal server error")
		return store.Session{}, false
	}
	if session.Role != "admin" {
		writeError(w, "", http.StatusForbidden, "access_denied", "admin access required")
		return store.Session{}, false
	}
	return session, true
}

// sessionIDFromRequest prefers the session cookie; the header forms
// stay supported for non-browser callers.
func sessionIDFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
