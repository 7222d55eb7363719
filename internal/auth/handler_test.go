package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/loomline/loomline/internal/auth"
	"github.com/loomline/loomline/internal/shared"
	"github.com/loomline/loomline/internal/tenancy"
	_ "github.com/loomline/loomline/testing"
)

type stubRepo struct {
	user   *auth.User
	logins []auth.LoginRecord
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.user == nil || s.user.Username != username {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	s.user.PasswordHash = hash
	return nil
}

func (s *stubRepo) RecordLogin(ctx context.Context, rec auth.LoginRecord) error {
	s.logins = append(s.logins, rec)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	tenantID := int64(7)
	return &auth.User{
		ID:           42,
		TenantID:     &tenantID,
		Username:     "mina",
		PasswordHash: string(hash),
		RoleName:     "operator",
		PermRange:    tenancy.RangeOwn,
		IsActive:     true,
	}
}

func newAuthRouter(t *testing.T, repo auth.Repository) (chi.Router, *auth.TokenCodec) {
	t.Helper()
	codec, err := auth.NewTokenCodec("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	logger := testLogger()
	service := auth.NewService(repo, codec, nil, logger, time.Hour)
	handler := auth.NewHandler(logger, service)
	mw := auth.NewMiddleware(codec, nil, nil, logger)

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Route("/auth", handler.MountRoutes)
	return r, codec
}

func TestLoginEndpoint(t *testing.T) {
	repo := &stubRepo{user: newTestUser(t, "hunter22")}
	router, codec := newAuthRouter(t, repo)

	body, _ := json.Marshal(map[string]string{"username": "mina", "password": "hunter22"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.UserID)

	sub := codec.Verify(resp.Token)
	require.NotNil(t, sub)
	assert.Equal(t, "mina", sub.Username)
	require.NotNil(t, sub.TenantID)
	assert.Equal(t, int64(7), *sub.TenantID)

	require.Len(t, repo.logins, 1)
	assert.True(t, repo.logins[0].Succeeded)
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	repo := &stubRepo{user: newTestUser(t, "hunter22")}
	router, _ := newAuthRouter(t, repo)

	cases := []map[string]string{
		{"username": "mina", "password": "wrong-password"},
		{"username": "nobody", "password": "hunter22"},
	}
	for _, payload := range cases {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Both failures were audited.
	assert.Len(t, repo.logins, 2)
}

func TestLoginEndpointRejectsInactiveUser(t *testing.T) {
	user := newTestUser(t, "hunter22")
	user.IsActive = false
	router, _ := newAuthRouter(t, &stubRepo{user: user})

	body, _ := json.Marshal(map[string]string{"username": "mina", "password": "hunter22"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	repo := &stubRepo{user: newTestUser(t, "hunter22")}
	router, codec := newAuthRouter(t, repo)

	token, err := codec.Issue(auth.Subject{UserID: 42, Username: "mina"}, time.Hour)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"current": "hunter22", "next": "correct-horse-battery"})
	req := httptest.NewRequest(http.MethodPost, "/auth/password", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.user.PasswordHash), []byte("correct-horse-battery")))
}

func TestChangePasswordRequiresAuth(t *testing.T) {
	router, _ := newAuthRouter(t, &stubRepo{user: newTestUser(t, "hunter22")})

	body, _ := json.Marshal(map[string]string{"current": "hunter22", "next": "correct-horse-battery"})
	req := httptest.NewRequest(http.MethodPost, "/auth/password", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	router, codec := newAuthRouter(t, &stubRepo{user: newTestUser(t, "hunter22")})

	tenantID := int64(7)
	token, err := codec.Issue(auth.Subject{
		UserID:    42,
		Username:  "mina",
		RoleName:  "operator",
		PermRange: tenancy.RangeOwn,
		TenantID:  &tenantID,
	}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UserID    int64  `json:"user_id"`
		DataScope string `json:"data_scope"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.UserID)
	assert.Equal(t, "own", resp.DataScope)
}
