package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mentorlink/realtime/internal/api/middleware"
	"github.com/mentorlink/realtime/internal/crypto"
	"github.com/mentorlink/realtime/internal/models"
)

// RefreshCookie is the cookie carrying the opaque refresh token.
// Scoped to /auth so it only travels with auth endpoints.
const RefreshCookie = "refresh_token"

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID.String(), Email: u.Email, Name: u.Name, Role: u.Role}
}

// Register handles account creation.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email")
		return
	}
	if len(req.Password) < 8 {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	role := req.Role
	if role != "mentor" && role != "mentee" {
		role = "mentee"
	}

	existing, err := h.data.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "password hashing failed")
		return
	}

	user, err := h.data.CreateUser(r.Context(), req.Email, string(hash), sanitizeName(req.Name), role)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.JSON(w, http.StatusCreated, userResponse(user))
}

// Login verifies credentials and issues access + refresh cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.data.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.Blocked {
		h.Error(w, http.StatusForbidden, "account blocked")
		return
	}

	if err := h.issueTokens(w, r, user); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	h.JSON(w, http.StatusOK, userResponse(user))
}

// Refresh rotates the refresh token and issues a fresh access cookie.
// Any invalid, expired or replayed token answers 401.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		h.Error(w, http.StatusUnauthorized, "refresh token missing")
		return
	}
	if err := crypto.ValidateToken(cookie.Value); err != nil {
		h.Error(w, http.StatusUnauthorized, "refresh token invalid")
		return
	}

	hash := crypto.HashToken(cookie.Value)
	token, err := h.data.GetRefreshToken(r.Context(), hash)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if token == nil || token.Expired(time.Now()) {
		h.Error(w, http.StatusUnauthorized, "refresh token expired")
		return
	}

	user, err := h.data.GetUserByID(r.Context(), token.UserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	if user.Blocked {
		h.Error(w, http.StatusForbidden, "account blocked")
		return
	}

	// Rotation: the presented token is spent regardless of what follows.
	if err := h.data.DeleteRefreshToken(r.Context(), hash); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := h.issueTokens(w, r, user); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, userResponse(user))
}

// Logout revokes the session and all refresh tokens, then clears cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if cookie, err := r.Cookie(middleware.AccessCookie); err == nil && cookie.Value != "" {
		_ = h.sessions.DeleteSession(r.Context(), crypto.HashToken(cookie.Value))
	}
	if err := h.data.DeleteUserRefreshTokens(r.Context(), user.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.clearAuthCookies(w)
	h.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// issueTokens mints an access token into the session cache and a refresh
// token into the data store, then sets both cookies.
func (h *Handler) issueTokens(w http.ResponseWriter, r *http.Request, user *models.User) error {
	access, err := crypto.NewToken()
	if err != nil {
		return err
	}
	refresh, err := crypto.NewToken()
	if err != nil {
		return err
	}

	if err := h.sessions.PutSession(r.Context(), crypto.HashToken(access), user.ID, h.cfg.AccessTokenTTL); err != nil {
		return err
	}
	if err := h.data.CreateRefreshToken(r.Context(), user.ID, crypto.HashToken(refresh), time.Now().Add(h.cfg.RefreshTokenTTL)); err != nil {
		return err
	}

	secure := !h.cfg.IsDevelopment()
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    access,
		Path:     "/",
		MaxAge:   int(h.cfg.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refresh,
		Path:     "/auth",
		MaxAge:   int(h.cfg.RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: middleware.AccessCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})
}
