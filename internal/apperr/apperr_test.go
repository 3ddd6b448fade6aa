package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := Gone("message %s was deleted", "abc")

	assert.True(t, errors.Is(err, ErrGone))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, KindGone, KindOf(err))
	assert.Equal(t, "message abc was deleted", err.Error())
}

func TestKindSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("edit: %w", Forbidden("not the author"))

	assert.True(t, errors.Is(wrapped, ErrForbidden))
	assert.Equal(t, KindForbidden, KindOf(wrapped))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "append message")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Contains(t, err.Error(), "connection reset")
}
