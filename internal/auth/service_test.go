package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/procura-erp/procura-erp/internal/shared"
)

type memoryAuthRepo struct {
	users    map[string]*User
	sessions map[string]int64
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{users: make(map[string]*User), sessions: make(map[string]int64)}
}

func (r *memoryAuthRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	r.sessions[id] = userID
	return nil
}

func (r *memoryAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

func TestAuthenticate(t *testing.T) {
	repo := newMemoryAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["head@school.edu"] = &User{
		ID:           7,
		Email:        "head@school.edu",
		Role:         shared.RoleOfficeHead,
		PasswordHash: string(hash),
		IsActive:     true,
	}

	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "head@school.edu", "correct horse")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)
	require.Equal(t, shared.RoleOfficeHead, user.Role)

	_, err = svc.Authenticate(ctx, "head@school.edu", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@school.edu", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	repo := newMemoryAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["old@school.edu"] = &User{
		ID:           8,
		Email:        "old@school.edu",
		PasswordHash: string(hash),
		IsActive:     false,
	}

	_, err = NewService(repo).Authenticate(context.Background(), "old@school.edu", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
