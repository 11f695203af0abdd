package apierror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	assert.Equal(t, "UNAUTHORIZED: invalid credentials", Unauthorized("invalid credentials").Error())
	assert.Equal(t, "BAD_REQUEST: invalid JSON body (unexpected EOF)", BadRequest("invalid JSON body", "unexpected EOF").Error())

	var nilErr *APIError
	assert.Empty(t, nilErr.Error())
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("undo lead: %w", Conflict("ALREADY_COMMITTED", "too late", ""))

	apiErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "ALREADY_COMMITTED", apiErr.Code)
	assert.Equal(t, http.StatusConflict, apiErr.HTTPStatus)

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}
