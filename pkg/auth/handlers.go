package auth

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodialabs/custodia/pkg/httputil"
	"github.com/custodialabs/custodia/pkg/observability"
)

// Handlers exposes the auth HTTP endpoints
type Handlers struct {
	store  Store
	tokens *TokenService
	logger *observability.Logger
}

// NewHandlers creates auth handlers
func NewHandlers(store Store, tokens *TokenService, logger *observability.Logger) *Handlers {
	return &Handlers{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

// RegisterRoutes mounts the auth endpoints. Login, register and refresh are
// public; me requires a verified access token.
func (h *Handlers) RegisterRoutes(public, protected *mux.Router) {
	public.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	public.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	public.HandleFunc("/auth/refresh", h.Refresh).Methods(http.MethodPost)
	protected.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
}

// Login authenticates email/password credentials and returns a token pair.
// Unknown email and wrong password produce the same response to avoid user
// enumeration.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.GetActiveByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteUnauthorized(w, "Invalid credentials")
			return
		}
		h.logger.WithError(err).Error("failed to load user for login")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		httputil.WriteUnauthorized(w, "Invalid credentials")
		return
	}

	h.writeAuthResponse(w, http.StatusOK, user)
}

// Register creates a new account and logs it in
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") || !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w, "Password hashing failed")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Email, string(hash), req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			httputil.WriteConflict(w, "User already exists")
			return
		}
		h.logger.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	h.writeAuthResponse(w, http.StatusCreated, user)
}

// Refresh exchanges a valid refresh token for a new access token. The account
// must still be active.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "Missing refresh_token")
		return
	}

	claims, err := h.tokens.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		httputil.WriteUnauthorized(w, "Invalid refresh token")
		return
	}

	user, err := h.store.GetActiveByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteUnauthorized(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("failed to load user for refresh")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	token, err := h.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue access token")
		httputil.WriteInternalError(w, "Token creation failed")
		return
	}

	httputil.WriteSuccess(w, RefreshResponse{Token: token})
}

// Me returns the profile of the authenticated user
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	user, err := h.store.GetActiveByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("failed to load current user")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	httputil.WriteSuccess(w, user.Info())
}

func (h *Handlers) writeAuthResponse(w http.ResponseWriter, status int, user *User) {
	token, err := h.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue access token")
		httputil.WriteInternalError(w, "Token creation failed")
		return
	}
	refreshToken, err := h.tokens.IssueRefreshToken(user.ID, user.Email)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue refresh token")
		httputil.WriteInternalError(w, "Token creation failed")
		return
	}

	httputil.WriteJSON(w, status, AuthResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         user.Info(),
	})
}
