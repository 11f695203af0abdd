package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestStageNamesFollowBoardOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"prospecting", "qualification", "proposal", "negotiation", "closed_won", "closed_lost",
	}, stageNames())
}

func TestTagsOrEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{}, tagsOrEmpty(nil))
	assert.Equal(t, []string{"a"}, tagsOrEmpty([]string{"a"}))
}
