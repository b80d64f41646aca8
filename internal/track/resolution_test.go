package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

func TestBindResolve(t *testing.T) {
	rt := NewResolutionTable()

	_, err := rt.Resolve("a")
	assert.ErrorIs(t, err, domain.ErrUnresolvedOrder)

	require.NoError(t, rt.Bind("a", 42))

	id, err := rt.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	cloid, ok := rt.CloidOf(42)
	require.True(t, ok)
	assert.Equal(t, "a", cloid)

	_, ok = rt.CloidOf(99)
	assert.False(t, ok)
}

func TestBindIsPermanent(t *testing.T) {
	rt := NewResolutionTable()
	require.NoError(t, rt.Bind("a", 42))

	// Same pair again is a no-op.
	assert.NoError(t, rt.Bind("a", 42))

	// A different id for the same cloid is rejected and the original
	// binding survives.
	err := rt.Bind("a", 43)
	assert.ErrorIs(t, err, domain.ErrAlreadyBound)

	id, err := rt.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, 1, rt.Len())
}

func TestBindRejectsEmpty(t *testing.T) {
	rt := NewResolutionTable()
	assert.ErrorIs(t, rt.Bind("", 1), domain.ErrInvalidOrder)
	assert.ErrorIs(t, rt.Bind("a", 0), domain.ErrInvalidOrder)
}
