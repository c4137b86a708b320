package authservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/erpctl/internal/apiclient"
	"github.com/florianilch/erpctl/internal/session"
)

// ERP authentication endpoints.
const (
	PathLogin        = "/auth/login"
	PathRefresh      = apiclient.DefaultRefreshPath
	PathLogout       = "/auth/logout"
	PathRevokeAll    = "/auth/revoke-all"
	PathActiveTokens = "/auth/active-tokens"
)

// ErrInvalidCredentials is returned when the ERP rejects a login.
var ErrInvalidCredentials = errors.New("invalid username or password")

// API is the subset of apiclient.Client the service issues calls through.
type API interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Compile-time check to ensure apiclient.Client satisfies API
var _ API = (*apiclient.Client)(nil)

// Credentials are the username and password submitted on login.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is the token pair and identity returned by login and refresh.
type Session struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         *session.User `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Service issues authentication calls against the ERP API.
type Service struct {
	api      API
	validate *validator.Validate
}

// Compile-time check to ensure Service satisfies apiclient.Refresher
var _ apiclient.Refresher = (*Service)(nil)

// New creates a Service calling through api.
func New(api API) *Service {
	return &Service{
		api:      api,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Login exchanges username and password for a session.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Session, error) {
	if err := s.validate.Struct(creds); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("invalid credentials: %s is required", jsonFieldName(verrs[0]))
		}
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	var resp apiclient.Response[Session]
	if err := s.api.PostJSON(ctx, PathLogin, creds, &resp); err != nil {
		var se *apiclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, se)
		}
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.Data.AccessToken == "" || resp.Data.RefreshToken == "" {
		return nil, errors.New("login failed: response is missing tokens")
	}
	return &resp.Data, nil
}

// Refresh exchanges a refresh token for a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var resp apiclient.Response[Session]
	if err := s.api.PostJSON(ctx, PathRefresh, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return &resp.Data, nil
}

// RefreshTokens implements apiclient.Refresher.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (string, string, error) {
	sess, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		return "", "", err
	}
	return sess.AccessToken, sess.RefreshToken, nil
}

// Logout revokes refreshToken on the server.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := s.api.PostJSON(ctx, PathLogout, refreshRequest{RefreshToken: refreshToken}, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// RevokeAll revokes every refresh token of the current user.
func (s *Service) RevokeAll(ctx context.Context) error {
	if err := s.api.PostJSON(ctx, PathRevokeAll, nil, nil); err != nil {
		return fmt.Errorf("revoking tokens failed: %w", err)
	}
	return nil
}

// ActiveTokens lists the current user's active tokens. The ERP does not
// document the element shape, so entries are returned undecoded.
func (s *Service) ActiveTokens(ctx context.Context) ([]json.RawMessage, error) {
	var resp apiclient.Response[[]json.RawMessage]
	if err := s.api.GetJSON(ctx, PathActiveTokens, &resp); err != nil {
		return nil, fmt.Errorf("listing active tokens failed: %w", err)
	}
	return resp.Data, nil
}

func jsonFieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Username":
		return "username"
	case "Password":
		return "password"
	default:
		return fe.Field()
	}
}
