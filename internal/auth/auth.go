// Package auth signs team members up and in against the users table and
// keeps the signed-in session as a JWT in the state directory.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/olivoil/projectboard/internal/backend"
)

const (
	issuer          = "projectboard"
	minPasswordLen  = 6
	defaultRoleName = "dev"
)

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoSession          = errors.New("not signed in")
	ErrForbidden          = errors.New("permission denied")
)

// Profile is the signed-in team member.
type Profile struct {
	ID       string `json:"id" yaml:"id"`
	AuthID   string `json:"auth_id" yaml:"auth_id"`
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	RoleID   string `json:"role_id" yaml:"role_id"`
	RoleName string `json:"role_name" yaml:"role_name"`
}

// CanManageProjects reports whether the member may create, edit and delete
// projects and modules.
func (p Profile) CanManageProjects() bool {
	return p.RoleName == "admin" || p.RoleName == "pm"
}

// CanManageTeam reports whether the member may remove team members.
func (p Profile) CanManageTeam() bool {
	return p.RoleName == "admin"
}

// Session is an issued sign-in token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Profile   Profile
}

// SignUpInput is the input of SignUp.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	RoleName string // admin, pm or dev; dev when empty
}

// Service issues and verifies sessions.
type Service struct {
	client      *backend.Client
	secret      []byte
	ttl         time.Duration
	sessionPath string
	log         *zap.Logger
	now         func() time.Time
}

// NewService creates a Service. Sessions are signed with secret, last ttl
// and are kept at sessionPath.
func NewService(client *backend.Client, secret []byte, ttl time.Duration, sessionPath string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		client:      client,
		secret:      secret,
		ttl:         ttl,
		sessionPath: sessionPath,
		log:         log,
		now:         time.Now,
	}
}

// SignUp registers a new team member.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Profile, error) {
	email, err := parseEmail(in.Email)
	if err != nil {
		return Profile{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Profile{}, fmt.Errorf("%w: name is required", backend.ErrInvalid)
	}
	if len(in.Password) < minPasswordLen {
		return Profile{}, fmt.Errorf("%w: password must be at least %d characters", backend.ErrInvalid, minPasswordLen)
	}
	roleName := in.RoleName
	if strings.TrimSpace(roleName) == "" {
		roleName = defaultRoleName
	}
	role, err := s.client.RoleByName(ctx, roleName)
	if err != nil {
		return Profile{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Profile{}, fmt.Errorf("hash password: %w", err)
	}

	p := Profile{
		AuthID:   uuid.NewString(),
		Name:     name,
		Email:    email,
		RoleID:   role.ID,
		RoleName: role.Name,
	}
	p.ID, err = s.client.Store().Insert(ctx, backend.TableUsers, backend.Row{
		"auth_id":       p.AuthID,
		"name":          p.Name,
		"email":         p.Email,
		"role_id":       p.RoleID,
		"password_hash": string(hash),
	})
	if errors.Is(err, backend.ErrAlreadyExists) {
		return Profile{}, ErrEmailTaken
	}
	if err != nil {
		return Profile{}, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("member signed up", zap.String("id", p.ID), zap.String("role", p.RoleName))
	return p, nil
}

// SignIn checks the password, issues a session and stores it.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	id, hash, err := s.client.Store().Credentials(ctx, strings.TrimSpace(email))
	if errors.Is(err, backend.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	profile, err := s.profile(ctx, id)
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	expires := now.Add(s.ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   id,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.sessionPath), 0o700); err != nil {
		return Session{}, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(s.sessionPath, []byte(token+"\n"), 0o600); err != nil {
		return Session{}, fmt.Errorf("write session: %w", err)
	}
	s.log.Info("member signed in", zap.String("id", id))
	return Session{Token: token, ExpiresAt: expires, Profile: profile}, nil
}

// SignOut removes the stored session.
func (s *Service) SignOut() error {
	err := os.Remove(s.sessionPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Current returns the profile of the stored session.
func (s *Service) Current(ctx context.Context) (Profile, error) {
	b, err := os.ReadFile(s.sessionPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Profile{}, ErrNoSession
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read session: %w", err)
	}
	id, err := s.Verify(strings.TrimSpace(string(b)))
	if err != nil {
		return Profile{}, err
	}
	p, err := s.profile(ctx, id)
	if errors.Is(err, backend.ErrNotFound) {
		// The member was removed after signing in.
		return Profile{}, ErrNoSession
	}
	return p, err
}

// Verify checks a session token and returns its user id.
func (s *Service) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrNoSession)
	}
	return claims.Subject, nil
}

// Require returns the current profile, or ErrForbidden when allowed
// rejects it.
// AddMember creates an account on behalf of the signed-in admin. The
// admin's session is left as it is.
func (s *Service) AddMember(ctx context.Context, in SignUpInput) (Profile, error) {
	admin, err := s.Require(ctx, Profile.CanManageTeam)
	if err != nil {
		return Profile{}, err
	}
	p, err := s.SignUp(ctx, in)
	if err != nil {
		return Profile{}, err
	}
	s.log.Info("member added", zap.String("id", p.ID), zap.String("by", admin.ID))
	return p, nil
}

// ProfileUpdate holds the profile fields a member may change. Empty fields
// are left unchanged.
type ProfileUpdate struct {
	Name  string
	Email string
}

// UpdateProfile changes the signed-in member's name or email and returns
// the updated profile.
func (s *Service) UpdateProfile(ctx context.Context, in ProfileUpdate) (Profile, error) {
	p, err := s.Require(ctx, nil)
	if err != nil {
		return Profile{}, err
	}

	patch := backend.Row{}
	if name := strings.TrimSpace(in.Name); name != "" {
		patch["name"] = name
	}
	if strings.TrimSpace(in.Email) != "" {
		email, err := parseEmail(in.Email)
		if err != nil {
			return Profile{}, err
		}
		patch["email"] = email
	}
	if len(patch) == 0 {
		return Profile{}, fmt.Errorf("%w: nothing to update", backend.ErrInvalid)
	}

	err = s.client.Store().Update(ctx, backend.TableUsers, p.ID, patch)
	if errors.Is(err, backend.ErrAlreadyExists) {
		return Profile{}, ErrEmailTaken
	}
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	s.log.Info("profile updated", zap.String("id", p.ID))
	return s.profile(ctx, p.ID)
}

func (s *Service) Require(ctx context.Context, allowed func(Profile) bool) (Profile, error) {
	p, err := s.Current(ctx)
	if err != nil {
		return Profile{}, err
	}
	if allowed != nil && !allowed(p) {
		return p, fmt.Errorf("%w: role %s", ErrForbidden, p.RoleName)
	}
	return p, nil
}

func (s *Service) profile(ctx context.Context, userID string) (Profile, error) {
	rows, err := s.client.Store().Query(ctx, backend.TableUsers, backend.Eq("id", userID))
	if err != nil {
		return Profile{}, err
	}
	users := backend.DecodeRows[backend.Member](rows)
	if len(users) == 0 {
		return Profile{}, fmt.Errorf("user %s: %w", userID, backend.ErrNotFound)
	}
	u := users[0]

	p := Profile{ID: u.ID, AuthID: u.AuthID, Name: u.Name, Email: u.Email, RoleID: u.RoleID}
	roles, err := s.client.Store().Query(ctx, backend.TableRoles, backend.Eq("id", u.RoleID))
	if err != nil {
		return Profile{}, err
	}
	if rs := backend.DecodeRows[backend.Role](roles); len(rs) > 0 {
		p.RoleName = rs[0].Name
	}
	return p, nil
}

func parseEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: email: %v", backend.ErrInvalid, err)
	}
	return strings.ToLower(addr.Address), nil
}
