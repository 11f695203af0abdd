package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/pkg/apierror"
)

const defaultBcryptCost = 12

type AuthService struct {
	users      repository.UserStore
	tokens     repository.TokenStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(users repository.UserStore, tokens repository.TokenStore, jwtSecret string, accessTTL time.Duration, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		bcryptCost: defaultBcryptCost,
		now:        time.Now,
	}
}

// EnsureBootstrapAdmin creates the first admin when no user exists yet. An
// empty password is replaced by a random one that is logged once.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, tenantID string, password string) error {
	count, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("check existing users: %w", err)
	}
	if count > 0 {
		return nil
	}

	generated := false
	if strings.TrimSpace(password) == "" {
		password, err = randomPassword()
		if err != nil {
			return err
		}
		generated = true
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	now := s.now().UTC()
	admin := model.User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Username:     "admin",
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	if generated {
		slog.Warn("bootstrap admin created with a generated password; change it after first login",
			"tenant_id", tenantID, "username", admin.Username, "password", password)
	} else {
		slog.Info("bootstrap admin created", "tenant_id", tenantID, "username", admin.Username)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.TokenPair, error) {
	if err := req.Validate(); err != nil {
		return model.TokenPair{}, err
	}

	user, err := s.users.FindByUsername(ctx, req.TenantID, req.Username)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, apierror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return model.TokenPair{}, apierror.Unauthorized("invalid credentials")
	}

	pair, refreshToken, err := s.issueTokenPair(user)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := s.tokens.Store(ctx, refreshToken, user.ID, s.now().UTC().Add(s.refreshTTL)); err != nil {
		return model.TokenPair{}, err
	}
	return pair, nil
}

// Refresh rotates the refresh token. A token can be used once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken, "refresh")
	if err != nil {
		return model.TokenPair{}, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, apierror.Unauthorized("user not found")
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	pair, newToken, err := s.issueTokenPair(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	err = s.tokens.Rotate(ctx, refreshToken, newToken, user.ID, s.now().UTC().Add(s.refreshTTL))
	if errors.Is(err, model.ErrTokenNotFound) {
		return model.TokenPair{}, apierror.Unauthorized("refresh token is invalid")
	}
	if err != nil {
		return model.TokenPair{}, err
	}
	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

func (s *AuthService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.Unauthorized("invalid token signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, apierror.Unauthorized("invalid token")
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.Unauthorized("invalid token claims")
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, apierror.Unauthorized("invalid token type")
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Username, _ = claimsMap["username"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TenantID, _ = claimsMap["tid"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, apierror.Unauthorized("invalid token subject")
	}
	if claims.TenantID == "" {
		return nil, apierror.Unauthorized("invalid token tenant")
	}

	return claims, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return authUser(user), nil
}

// CleanExpiredTokens drops refresh tokens past their expiry.
func (s *AuthService) CleanExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.CleanExpired(ctx)
}

func (s *AuthService) issueTokenPair(user model.User) (model.TokenPair, string, error) {
	now := s.now().UTC()

	accessToken, err := s.signToken(jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"role":     user.Role,
		"tid":      user.TenantID,
		"typ":      "access",
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, "", err
	}

	refreshToken, err := s.signToken(jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"role":     user.Role,
		"tid":      user.TenantID,
		"typ":      "refresh",
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.refreshTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, "", err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		User:         authUser(user),
	}, refreshToken, nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func authUser(user model.User) model.AuthUser {
	return model.AuthUser{ID: user.ID, TenantID: user.TenantID, Username: user.Username, Role: user.Role}
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate bootstrap password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
