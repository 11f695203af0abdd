package model

import "time"

const (
	RoleAdmin  = "admin"
	RoleSales  = "sales"
	RoleViewer = "viewer"
)

type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AuthClaims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID string `json:"tid"`
	Type     string `json:"typ"`
	TokenID  string `json:"jti"`
}

// CanWrite reports whether the role may create, change or delete records.
func (c AuthClaims) CanWrite() bool {
	return c.Role == RoleAdmin || c.Role == RoleSales
}

type AuthUser struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         AuthUser `json:"user"`
}
