package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/bookstore/internal/apperr"
	"github.com/Skotchmaster/bookstore/internal/auth/repo"
	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/hash"
	"github.com/Skotchmaster/bookstore/internal/logging"
	"github.com/Skotchmaster/bookstore/internal/models"
	"github.com/Skotchmaster/bookstore/internal/mykafka"
	"github.com/Skotchmaster/bookstore/internal/tokens"
)

var ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", apperr.ErrUnauthorized)

type AuthService struct {
	Repo   *repo.GormRepo
	Tokens *tokens.Issuer
	Events mykafka.Publisher
}

type RegisterInput struct {
	Username string
	Password string
	Role     string
	Email    string
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	User         models.User
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Password == "" || in.Role == "" || in.Email == "" {
		return nil, fmt.Errorf("%w: username, password, role and email are required", apperr.ErrValidation)
	}
	if !authz.ValidRole(in.Role) {
		return nil, fmt.Errorf("%w: invalid role %q", apperr.ErrValidation, in.Role)
	}

	pwHash, err := hash.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     in.Username,
		PasswordHash: pwHash,
		Role:         in.Role,
		Email:        in.Email,
	}
	if err := s.Repo.CreateUserIfNotExists(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			return nil, fmt.Errorf("%w: username already taken", apperr.ErrConflict)
		}
		return nil, err
	}

	l.Info("user_registered", "user_id", user.ID, "role", user.Role)
	mykafka.Publish(ctx, s.Events, mykafka.TopicUserEvents, strconv.FormatUint(uint64(user.ID), 10),
		mykafka.NewEvent("user_registered", map[string]any{
			"userID":   user.ID,
			"username": user.Username,
			"role":     user.Role,
		}))

	return &user, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperr.ErrValidation)
	}

	user, err := s.Repo.CheckCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidCredentials) {
			return nil, fmt.Errorf("%w: invalid username or password", apperr.ErrUnauthorized)
		}
		return nil, err
	}

	res, err := s.issuePair(ctx, user, "", "")
	if err != nil {
		return nil, err
	}

	l.Info("login_successful", "user_id", user.ID)
	return res, nil
}

// issuePair signs a new access/refresh pair. When oldJTI is set, that
// refresh token is revoked in the same transaction that stores the new one.
func (s *AuthService) issuePair(ctx context.Context, user *models.User, oldJTI, oldRaw string) (*LoginResult, error) {
	access, accessExp, err := s.Tokens.NewAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, jti, refreshExp, err := s.Tokens.NewRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	stored := &models.RefreshToken{
		UserID:    user.ID,
		JTI:       jti,
		Token:     tokens.Sha256Hex(refresh),
		ExpiresAt: refreshExp.Unix(),
	}

	if oldJTI == "" {
		err = s.Repo.AddRefreshToken(ctx, stored)
	} else {
		err = s.Repo.RotateRefreshToken(ctx, oldJTI, oldRaw, stored)
	}
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		User:         *user,
	}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.Tokens.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	userID, err := tokens.SubjectID(claims.RegisteredClaims)
	if err != nil || claims.ID == "" {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	res, err := s.issuePair(ctx, user, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, repo.ErrRefreshExpiredOrRevoked) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	l.Info("refresh_successful", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) LogOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.Repo.LogOut(ctx, refreshToken)
}

func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.Repo.ListUsers(ctx)
}
