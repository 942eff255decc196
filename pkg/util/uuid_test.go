package util

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashUUID_Stable(t *testing.T) {
	a := HashUUID([]float32{0, 0.5, 1})
	b := HashUUID([]float32{0, 0.5, 1})
	c := HashUUID([]float32{0, 0.5, 0.9})
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestHashUUID_Unmarshallable(t *testing.T) {
	assert.Empty(t, HashUUID(math.NaN()))
}

func TestNewRunID(t *testing.T) {
	assert.NotEqual(t, NewRunID(), NewRunID())
}
