package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"crm-api/internal/model"
	"crm-api/internal/repository"
	"crm-api/pkg/apierror"
)

func newAuthService(t *testing.T) (*AuthService, *repository.MockUserStore, *repository.MockTokenStore) {
	t.Helper()

	users := new(repository.MockUserStore)
	tokens := new(repository.MockTokenStore)
	svc := NewAuthService(users, tokens, "test-secret-test-secret-test-secret", 15*time.Minute, time.Hour)
	svc.bcryptCost = bcrypt.MinCost
	return svc, users, tokens
}

func testUser(t *testing.T, password string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return model.User{ID: "user-1", TenantID: tenant, Username: "alice", PasswordHash: string(hash), Role: model.RoleSales}
}

func TestAuthService_Login(t *testing.T) {
	t.Run("issues tenant scoped tokens", func(t *testing.T) {
		svc, users, tokens := newAuthService(t)
		user := testUser(t, "s3cret!")

		users.On("FindByUsername", mock.Anything, tenant, "alice").Return(user, nil).Once()
		tokens.On("Store", mock.Anything, mock.AnythingOfType("string"), "user-1", mock.AnythingOfType("time.Time")).Return(nil).Once()

		pair, err := svc.Login(context.Background(), model.LoginRequest{TenantID: tenant, Username: "alice", Password: "s3cret!"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer", pair.TokenType)
		assert.Equal(t, tenant, pair.User.TenantID)

		claims, err := svc.ValidateToken(pair.AccessToken, "access")
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, tenant, claims.TenantID)
		assert.True(t, claims.CanWrite())

		_, err = svc.ValidateToken(pair.AccessToken, "refresh")
		require.Error(t, err)

		tokens.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, users, tokens := newAuthService(t)
		users.On("FindByUsername", mock.Anything, tenant, "alice").Return(testUser(t, "s3cret!"), nil).Once()

		_, err := svc.Login(context.Background(), model.LoginRequest{TenantID: tenant, Username: "alice", Password: "nope"})

		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
		tokens.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, users, _ := newAuthService(t)
		users.On("FindByUsername", mock.Anything, "globex", "alice").Return(model.User{}, model.ErrUserNotFound).Once()

		_, err := svc.Login(context.Background(), model.LoginRequest{TenantID: "globex", Username: "alice", Password: "s3cret!"})

		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 401, apiErr.HTTPStatus)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	svc, users, tokens := newAuthService(t)
	user := testUser(t, "s3cret!")

	users.On("FindByUsername", mock.Anything, tenant, "alice").Return(user, nil)
	users.On("FindByID", mock.Anything, "user-1").Return(user, nil)
	tokens.On("Store", mock.Anything, mock.Anything, "user-1", mock.Anything).Return(nil)

	pair, err := svc.Login(context.Background(), model.LoginRequest{TenantID: tenant, Username: "alice", Password: "s3cret!"})
	require.NoError(t, err)

	t.Run("rotates", func(t *testing.T) {
		tokens.On("Rotate", mock.Anything, pair.RefreshToken, mock.AnythingOfType("string"), "user-1", mock.Anything).Return(nil).Once()

		next, err := svc.Refresh(context.Background(), pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	})

	t.Run("reused token is rejected", func(t *testing.T) {
		tokens.On("Rotate", mock.Anything, pair.RefreshToken, mock.Anything, "user-1", mock.Anything).Return(model.ErrTokenNotFound).Once()

		_, err := svc.Refresh(context.Background(), pair.RefreshToken)
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "refresh token is invalid", apiErr.Message)
	})

	t.Run("access token cannot refresh", func(t *testing.T) {
		_, err := svc.Refresh(context.Background(), pair.AccessToken)
		require.Error(t, err)
	})
}

func TestAuthService_ValidateTokenExpiry(t *testing.T) {
	svc, users, tokens := newAuthService(t)
	users.On("FindByUsername", mock.Anything, tenant, "alice").Return(testUser(t, "pw"), nil)
	tokens.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	pair, err := svc.Login(context.Background(), model.LoginRequest{TenantID: tenant, Username: "alice", Password: "pw"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.ValidateToken(pair.AccessToken, "access")
	require.Error(t, err)
}

func TestAuthService_EnsureBootstrapAdmin(t *testing.T) {
	t.Run("seeds when empty", func(t *testing.T) {
		svc, users, _ := newAuthService(t)
		users.On("Count", mock.Anything).Return(0, nil).Once()
		users.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			return u.Username == "admin" && u.Role == model.RoleAdmin && u.TenantID == "default" &&
				bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("changeme")) == nil
		})).Return(nil).Once()

		require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), "default", "changeme"))
		users.AssertExpectations(t)
	})

	t.Run("generates a password when none is configured", func(t *testing.T) {
		svc, users, _ := newAuthService(t)
		users.On("Count", mock.Anything).Return(0, nil).Once()
		users.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			return u.PasswordHash != ""
		})).Return(nil).Once()

		require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), "default", ""))
		users.AssertExpectations(t)
	})

	t.Run("skips when users exist", func(t *testing.T) {
		svc, users, _ := newAuthService(t)
		users.On("Count", mock.Anything).Return(3, nil).Once()

		require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), "default", "changeme"))
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}
