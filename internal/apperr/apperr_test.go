package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindAndReasonSurviveWrapping(t *testing.T) {
	base := Conflict(ReasonHasChildren, "node %d has children", 7)
	wrapped := fmt.Errorf("delete: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, ReasonHasChildren, ReasonOf(wrapped))
	assert.True(t, errors.Is(wrapped, Conflict(ReasonHasChildren, "")))
	assert.True(t, errors.Is(wrapped, Conflict("", "")))
	assert.False(t, errors.Is(wrapped, Conflict(ReasonHasFiles, "")))
	assert.Contains(t, base.Error(), "node 7 has children")
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	cause := errors.New("boom")
	e := As(cause)
	require.NotNil(t, e)
	assert.Equal(t, KindInternal, e.Kind)
	assert.ErrorIs(t, e, cause)
	assert.Nil(t, As(nil))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWithDetail(t *testing.T) {
	e := Invalid(ReasonValidation, "bad").WithDetail("name", "required").WithDetail("type", "unknown")
	assert.Equal(t, map[string]string{"name": "required", "type": "unknown"}, e.Details)
}
