package model

import (
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
)

type LoginRequest struct {
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("tenant_id", r.TenantID, required),
		criterio.Run("username", r.Username, required),
		criterio.Run("password", r.Password, required),
	)
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	return criterio.Run("refresh_token", r.RefreshToken, required)
}

func required(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}
