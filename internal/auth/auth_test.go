package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/olivoil/projectboard/internal/backend"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	store, err := backend.Open(filepath.Join(dir, "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	client := backend.NewClient(store, zap.NewNop())
	return NewService(client, []byte("test-secret"), time.Hour, filepath.Join(dir, "session"), zap.NewNop())
}

func TestSignUpSignInCurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	p, err := s.SignUp(ctx, SignUpInput{Email: " Ada@Example.com ", Password: "hunter22", Name: "Ada", RoleName: "pm"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, "pm", p.RoleName)
	assert.NotEmpty(t, p.AuthID)

	_, err = s.Current(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	sess, err := s.SignIn(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, p.ID, sess.Profile.ID)

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, p, cur)
	assert.True(t, cur.CanManageProjects())
	assert.False(t, cur.CanManageTeam())

	require.NoError(t, s.SignOut())
	require.NoError(t, s.SignOut())
	_, err = s.Current(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	_, err := s.SignUp(ctx, SignUpInput{Email: "not-an-email", Password: "hunter22", Name: "A"})
	assert.ErrorIs(t, err, backend.ErrInvalid)
	_, err = s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "short", Name: "A"})
	assert.ErrorIs(t, err, backend.ErrInvalid)
	_, err = s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: " "})
	assert.ErrorIs(t, err, backend.ErrInvalid)
	_, err = s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A", RoleName: "owner"})
	assert.ErrorIs(t, err, backend.ErrNotFound)

	p, err := s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, "dev", p.RoleName)

	_, err = s.SignUp(ctx, SignUpInput{Email: "A@EXAMPLE.COM", Password: "hunter22", Name: "B"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A"})
	require.NoError(t, err)

	_, err = s.SignIn(ctx, "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.SignIn(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestExpiredSession(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A"})
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Current(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTamperedSession(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A"})
	require.NoError(t, err)
	sess, err := s.SignIn(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	other := NewService(s.client, []byte("other-secret"), time.Hour, s.sessionPath, zap.NewNop())
	_, err = other.Verify(sess.Token)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, os.WriteFile(s.sessionPath, []byte("garbage"), 0o600))
	_, err = s.Current(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRemovedMemberLosesSession(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	p, err := s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A", RoleName: "admin"})
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	got, err := s.Require(ctx, Profile.CanManageTeam)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	require.NoError(t, s.client.RemoveMember(ctx, p.ID))
	_, err = s.Current(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRequireForbidden(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A"})
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	_, err = s.Require(ctx, Profile.CanManageProjects)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAddMemberKeepsAdminSession(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	admin, err := s.SignUp(ctx, SignUpInput{Email: "root@example.com", Password: "hunter22", Name: "Root", RoleName: "admin"})
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "root@example.com", "hunter22")
	require.NoError(t, err)

	p, err := s.AddMember(ctx, SignUpInput{Email: "Dev@Example.com", Password: "hunter22", Name: "Dev", RoleName: "pm"})
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", p.Email)
	assert.Equal(t, "pm", p.RoleName)

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, cur.ID, "session unchanged")

	_, err = s.AddMember(ctx, SignUpInput{Email: "dev@example.com", Password: "hunter22", Name: "Again"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.SignIn(ctx, "dev@example.com", "hunter22")
	require.NoError(t, err)
	_, err = s.AddMember(ctx, SignUpInput{Email: "x@example.com", Password: "hunter22", Name: "X"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.SignUp(ctx, SignUpInput{Email: "taken@example.com", Password: "hunter22", Name: "T"})
	require.NoError(t, err)

	_, err = s.UpdateProfile(ctx, ProfileUpdate{Name: "Nobody"})
	require.ErrorIs(t, err, ErrNoSession)

	p, err := s.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "hunter22", Name: "A"})
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	got, err := s.UpdateProfile(ctx, ProfileUpdate{Name: " Ada ", Email: "Ada@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, p.RoleName, got.RoleName)

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, cur)

	_, err = s.UpdateProfile(ctx, ProfileUpdate{Email: "TAKEN@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = s.UpdateProfile(ctx, ProfileUpdate{Email: "nope"})
	assert.ErrorIs(t, err, backend.ErrInvalid)
	_, err = s.UpdateProfile(ctx, ProfileUpdate{Name: "  "})
	assert.ErrorIs(t, err, backend.ErrInvalid)

	_, err = s.SignIn(ctx, "ada@example.com", "hunter22")
	assert.NoError(t, err, "signs in with the new email")
}
