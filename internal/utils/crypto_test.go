package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("SA0380000000608010167519")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "608010167519")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "SA0380000000608010167519", plain)
}

func TestSealer_WrongKey(t *testing.T) {
	a, err := NewSealer(testKey)
	require.NoError(t, err)
	b, err := NewSealer(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrUnsealFailed)

	_, err = a.Open("not-base64!")
	assert.ErrorIs(t, err, ErrUnsealFailed)
}

func TestNewSealer_RejectsBadKeys(t *testing.T) {
	_, err := NewSealer("zz")
	assert.Error(t, err)
	_, err = NewSealer("0011")
	assert.Error(t, err)
}
