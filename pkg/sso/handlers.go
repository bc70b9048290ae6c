package sso

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/httputil"
	"github.com/custodialabs/custodia/pkg/observability"
)

// Handlers exposes the OIDC login endpoints. A nil provider means the
// bridge is not configured and both endpoints report that.
type Handlers struct {
	provider    Provider
	users       auth.Store
	tokens      *auth.TokenService
	frontendURL string
	logger      *observability.Logger
}

// NewHandlers creates OIDC handlers. provider may be nil when the
// deployment has no identity provider configured.
func NewHandlers(provider Provider, users auth.Store, tokens *auth.TokenService, frontendURL string, logger *observability.Logger) *Handlers {
	return &Handlers{
		provider:    provider,
		users:       users,
		tokens:      tokens,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// RegisterRoutes mounts the OIDC endpoints on the public router; the
// browser arrives here without a bearer token
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/oidc/authorize", h.Authorize).Methods(http.MethodGet)
	router.HandleFunc("/auth/oidc/callback", h.Callback).Methods(http.MethodGet)
}

// Authorize redirects the browser to the identity provider's
// authorization endpoint
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		httputil.WriteBadRequest(w, "OIDC not configured")
		return
	}

	authURL, err := h.provider.AuthCodeURL(uuid.NewString())
	if err != nil {
		h.logger.WithError(err).Error("OIDC discovery failed")
		httputil.WriteInternalError(w, "OIDC discovery failed")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the login: it redeems the authorization code,
// resolves or creates the local account and redirects to the frontend
// with a fresh token pair in the query string.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		httputil.WriteBadRequest(w, "OIDC not configured")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "Missing authorization code")
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, ErrNoEmail) {
			httputil.WriteBadRequest(w, "Email not provided by OIDC provider")
			return
		}
		h.logger.WithError(err).Error("OIDC code exchange failed")
		httputil.WriteInternalError(w, "Token exchange failed")
		return
	}

	user, err := h.users.GetOrCreateOIDCUser(r.Context(), identity.Email, identity.FirstName, identity.LastName)
	if err != nil {
		h.logger.WithError(err).Error("failed to resolve OIDC user")
		httputil.WriteInternalError(w, "Database error")
		return
	}

	accessToken, err := h.tokens.IssueAccessToken(user.ID, user.Email)
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

	redirectURL := fmt.Sprintf("%s/auth/callback?token=%s&refresh_token=%s",
		h.frontendURL, url.QueryEscape(accessToken), url.QueryEscape(refreshToken))
	http.Redirect(w, r, redirectURL, http.StatusFound)
}
