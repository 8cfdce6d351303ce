package identity

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifier(t *testing.T) {
	ctx := context.Background()
	v := NewHMACVerifier("test-secret")

	t.Run("round trip", func(t *testing.T) {
		token := v.Sign("subject-1")

		subject, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "subject-1", subject)
	})

	t.Run("tampered subject is rejected", func(t *testing.T) {
		token := v.Sign("subject-1")
		_, sig, ok := strings.Cut(token, ".")
		require.True(t, ok)

		// Signature for subject-1 glued onto a different subject.
		forged := base64.RawURLEncoding.EncodeToString([]byte("subject-2")) + "." + sig
		_, err := v.Verify(ctx, forged)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		token := NewHMACVerifier("other-secret").Sign("subject-1")

		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("malformed tokens are rejected", func(t *testing.T) {
		for _, token := range []string{"", "no-dot", "bad base64.!!!", "."} {
			_, err := v.Verify(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidIdentity, "token %q", token)
		}
	})
}

func TestInsecureVerifier(t *testing.T) {
	ctx := context.Background()
	v := InsecureVerifier{}

	subject, err := v.Verify(ctx, "anyone")
	require.NoError(t, err)
	assert.Equal(t, "anyone", subject)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}
