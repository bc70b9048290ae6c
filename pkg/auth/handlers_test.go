package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodialabs/custodia/pkg/observability"
)

// mockStore implements Store with configurable behavior per test
type mockStore struct {
	createUser          func(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*User, error)
	getActiveByEmail    func(ctx context.Context, email string) (*User, error)
	getActiveByID       func(ctx context.Context, id uuid.UUID) (*User, error)
	getOrCreateOIDCUser func(ctx context.Context, email string, firstName, lastName *string) (*User, error)
}

func (m *mockStore) CreateUser(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*User, error) {
	return m.createUser(ctx, email, passwordHash, firstName, lastName)
}

func (m *mockStore) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	return m.getActiveByEmail(ctx, email)
}

func (m *mockStore) GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return m.getActiveByID(ctx, id)
}

func (m *mockStore) GetOrCreateOIDCUser(ctx context.Context, email string, firstName, lastName *string) (*User, error) {
	return m.getOrCreateOIDCUser(ctx, email, firstName, lastName)
}

func testHandlers(store Store) *Handlers {
	tokens := NewTokenService("test-secret", time.Hour)
	logger := observability.NewLogger(observability.DebugLevel, io.Discard)
	return NewHandlers(store, tokens, logger)
}

func testUser(password string) *User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLogin_Success(t *testing.T) {
	user := testUser("correct-password")
	store := &mockStore{
		getActiveByEmail: func(ctx context.Context, email string) (*User, error) {
			assert.Equal(t, user.Email, email)
			return user, nil
		},
	}
	h := testHandlers(store)

	rec := postJSON(t, h.Login, "/auth/login", LoginRequest{Email: user.Email, Password: "correct-password"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, user.ID, resp.User.ID)

	// The issued token decodes back to the same user.
	claims, err := h.tokens.VerifyAccessToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestLogin_WrongPassword(t *testing.T) {
	user := testUser("correct-password")
	store := &mockStore{
		getActiveByEmail: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}
	h := testHandlers(store)

	rec := postJSON(t, h.Login, "/auth/login", LoginRequest{Email: user.Email, Password: "wrong"})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())
}

func TestLogin_UnknownUserSameResponse(t *testing.T) {
	store := &mockStore{
		getActiveByEmail: func(ctx context.Context, email string) (*User, error) {
			return nil, ErrUserNotFound
		},
	}
	h := testHandlers(store)

	rec := postJSON(t, h.Login, "/auth/login", LoginRequest{Email: "nobody@example.com", Password: "pw"})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())
}

// Accounts provisioned via OIDC carry a bcrypt hash of a fixed constant, so
// a password login supplying that constant is accepted. Documented at
// oidcPasswordPlaceholder.
func TestLogin_OIDCPlaceholderPasswordAccepted(t *testing.T) {
	user := testUser(oidcPasswordPlaceholder)
	store := &mockStore{
		getActiveByEmail: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}
	h := testHandlers(store)

	rec := postJSON(t, h.Login, "/auth/login", LoginRequest{Email: user.Email, Password: oidcPasswordPlaceholder})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_Success(t *testing.T) {
	store := &mockStore{
		createUser: func(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*User, error) {
			// The handler must store a bcrypt hash, not the raw password.
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte("pw1")))
			now := time.Now().UTC()
			return &User{
				ID:           uuid.New(),
				Email:        email,
				PasswordHash: passwordHash,
				FirstName:    firstName,
				LastName:     lastName,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}, nil
		},
	}
	h := testHandlers(store)

	rec := postJSON(t, h.Register, "/auth/register", RegisterRequest{Email: "a@x.com", Password: "pw1"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	store := &mockStore{
		createUser: func(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*User, error) {
			return nil, ErrUserExists
		},
	}
	h := testHandlers(store)

	rec := postJSON(t, h.Register, "/auth/register", RegisterRequest{Email: "a@x.com", Password: "pw2"})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"User already exists"}`, rec.Body.String())
}

func TestRegister_MissingFields(t *testing.T) {
	h := testHandlers(&mockStore{})

	rec := postJSON(t, h.Register, "/auth/register", RegisterRequest{Email: "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Register, "/auth/register", RegisterRequest{Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh_Success(t *testing.T) {
	user := testUser("pw")
	store := &mockStore{
		getActiveByID: func(ctx context.Context, id uuid.UUID) (*User, error) {
			assert.Equal(t, user.ID, id)
			return user, nil
		},
	}
	h := testHandlers(store)

	refresh, err := h.tokens.IssueRefreshToken(user.ID, user.Email)
	require.NoError(t, err)

	rec := postJSON(t, h.Refresh, "/auth/refresh", RefreshRequest{RefreshToken: refresh})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	claims, err := h.tokens.VerifyAccessToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	user := testUser("pw")
	h := testHandlers(&mockStore{})

	access, err := h.tokens.IssueAccessToken(user.ID, user.Email)
	require.NoError(t, err)

	rec := postJSON(t, h.Refresh, "/auth/refresh", RefreshRequest{RefreshToken: access})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid refresh token"}`, rec.Body.String())
}

func TestRefresh_DeactivatedUser(t *testing.T) {
	user := testUser("pw")
	store := &mockStore{
		getActiveByID: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return nil, ErrUserNotFound
		},
	}
	h := testHandlers(store)

	refresh, err := h.tokens.IssueRefreshToken(user.ID, user.Email)
	require.NoError(t, err)

	rec := postJSON(t, h.Refresh, "/auth/refresh", RefreshRequest{RefreshToken: refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh_MissingToken(t *testing.T) {
	h := testHandlers(&mockStore{})

	rec := postJSON(t, h.Refresh, "/auth/refresh", map[string]string{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing refresh_token"}`, rec.Body.String())
}

func TestMe_Success(t *testing.T) {
	user := testUser("pw")
	store := &mockStore{
		getActiveByID: func(ctx context.Context, id uuid.UUID) (*User, error) {
			return user, nil
		},
	}
	h := testHandlers(store)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	claims := &Claims{UserID: user.ID, Email: user.Email, TokenType: TokenTypeAccess}
	req = req.WithContext(ContextWithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info UserInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, user.ID, info.ID)
	assert.Equal(t, user.Email, info.Email)
}

func TestMe_Unauthenticated(t *testing.T) {
	h := testHandlers(&mockStore{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
