package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/procura-erp/procura-erp/internal/auth"
	"github.com/procura-erp/procura-erp/internal/shared"
)

type stubAuthRepo struct {
	user *auth.User
}

func (r stubAuthRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if r.user != nil && r.user.Email == email {
		return r.user, nil
	}
	return nil, shared.ErrNotFound
}

func (r stubAuthRepo) CreateSession(context.Context, string, int64, time.Time, string, string) error {
	return nil
}

func (r stubAuthRepo) DeleteSession(context.Context, string) error { return nil }

// A client with no session starts with no CSRF token either; the token
// endpoint is a GET so it passes the verification gate and hands one
// out, which then unlocks login.
func TestFreshClientCanObtainCSRFTokenAndLogIn(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(redisClient, "procura_session", "session-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	authService := auth.NewService(stubAuthRepo{user: &auth.User{
		ID:           7,
		Email:        "head@school.edu",
		Name:         "Head",
		Role:         shared.RoleOfficeHead,
		PasswordHash: string(hash),
		IsActive:     true,
	}})
	authHandler := auth.NewHandler(logger, authService, sessions, csrf)

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		SessionManager: sessions,
		CSRFManager:    csrf,
	}) {
		r.Use(mw)
	}
	r.Route("/auth", authHandler.MountRoutes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	loginBody := `{"email":"head@school.edu","password":"correct horse"}`

	// Without a token the login gate rejects the request.
	resp, err := client.Post(srv.URL+"/auth/login", "application/json", strings.NewReader(loginBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// The GET sets the session cookie and returns the token.
	resp, err = client.Get(srv.URL + "/auth/csrf")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var issued struct {
		Token string `json:"csrf_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))
	require.NoError(t, resp.Body.Close())
	require.NotEmpty(t, issued.Token)

	// Cookie plus token unlocks login.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login", strings.NewReader(loginBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.CSRFHeader, issued.Token)
	resp, err = client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		UserID int64  `json:"user_id"`
		Role   string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.Equal(t, int64(7), login.UserID)
	require.Equal(t, shared.RoleOfficeHead, login.Role)
}
