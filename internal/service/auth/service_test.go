package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dglav/reddit-clone-server/internal/domain"
	"github.com/dglav/reddit-clone-server/internal/repository"
	"github.com/dglav/reddit-clone-server/pkg/config"
	"github.com/dglav/reddit-clone-server/pkg/crypto"
)

type stubUserRepository struct {
	byLogin map[string]domain.User
	created []domain.User
	fail    error
}

func (s *stubUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if s.fail != nil {
		return s.fail
	}
	user.ID = int64(len(s.created) + 1)
	s.created = append(s.created, *user)
	return nil
}

func (s *stubUserRepository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	for _, u := range s.created {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	if u, ok := s.byLogin[login]; ok {
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) ListUsersByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	return nil, nil
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

func newService(repo repository.UserRepository) Service {
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), testConfig())
}

func TestRegisterValidations(t *testing.T) {
	svc := newService(&stubUserRepository{})
	cases := []struct {
		name     string
		username string
		email    string
		password string
		field    string
	}{
		{"short username", "ab", "a@b.c", "secret", "username"},
		{"at sign in username", "a@b", "a@b.c", "secret", "username"},
		{"bad email", "alice", "not-an-email", "secret", "email"},
		{"short password", "alice", "a@b.c", "ab", "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, fieldErrs := svc.Register(context.Background(), tc.username, tc.email, tc.password)
			if len(fieldErrs) != 1 || fieldErrs[0].Field != tc.field {
				t.Fatalf("expected error on %q, got %+v", tc.field, fieldErrs)
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := &stubUserRepository{fail: repository.ErrDuplicate}
	svc := newService(repo)
	_, _, fieldErrs := svc.Register(context.Background(), "alice", "a@b.c", "secret")
	if len(fieldErrs) != 1 || fieldErrs[0].Field != "username" || fieldErrs[0].Message != "that username already exists" {
		t.Fatalf("unexpected field errors: %+v", fieldErrs)
	}
}

func TestRegisterStorageFailureIsGeneric(t *testing.T) {
	repo := &stubUserRepository{fail: errors.New("connection refused")}
	svc := newService(repo)
	_, _, fieldErrs := svc.Register(context.Background(), "alice", "a@b.c", "secret")
	if len(fieldErrs) != 1 || fieldErrs[0].Field != "unknown" || fieldErrs[0].Message != "an unknown error has occurred" {
		t.Fatalf("internals leaked: %+v", fieldErrs)
	}
}

func TestRegisterThenAuthorize(t *testing.T) {
	repo := &stubUserRepository{}
	svc := newService(repo)

	user, tokens, fieldErrs := svc.Register(context.Background(), "alice", "a@b.c", "secret")
	if len(fieldErrs) > 0 {
		t.Fatalf("register failed: %+v", fieldErrs)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected issued tokens")
	}

	got, err := svc.Authorize(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got.ID != user.ID || got.Username != "alice" {
		t.Fatalf("authorize returned wrong user: %+v", got)
	}
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	hash, err := crypto.HashPassword("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	account := domain.User{ID: 1, Username: "alice", Email: "a@b.c", PasswordHash: hash}
	repo := &stubUserRepository{
		byLogin: map[string]domain.User{"alice": account, "a@b.c": account},
		created: []domain.User{account},
	}
	svc := newService(repo)

	for _, login := range []string{"alice", "a@b.c"} {
		user, _, err := svc.Login(context.Background(), login, "secret")
		if err != nil {
			t.Fatalf("login by %q: %v", login, err)
		}
		if user.ID != 1 {
			t.Fatalf("wrong user for %q: %+v", login, user)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	hash, _ := crypto.HashPassword("secret")
	repo := &stubUserRepository{byLogin: map[string]domain.User{
		"alice": {ID: 1, Username: "alice", PasswordHash: hash},
	}}
	svc := newService(repo)

	if _, _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
}
