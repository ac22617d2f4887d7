package resume

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSigner_RequiresSecret(t *testing.T) {
	_, err := NewSigner("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingKey)

	s, err := NewSigner("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, s.ttl)
}

func TestSignVerify_RoundTrip(t *testing.T) {
	s, err := NewSigner("secret", time.Hour)
	require.NoError(t, err)

	in := State{OrderID: "REF-BOGUSEXPRESS-1", Backend: "bogus_express", Amount: "19.90", Currency: "USD"}
	raw, err := s.Sign(in)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(raw, "."))

	out, err := s.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestVerify_Rejections(t *testing.T) {
	s, err := NewSigner("secret", time.Hour)
	require.NoError(t, err)
	raw, err := s.Sign(State{OrderID: "REF-1", Backend: "b"})
	require.NoError(t, err)

	t.Run("Tampered", func(t *testing.T) {
		parts := strings.Split(raw, ".")
		parts[1] = parts[1] + "x"
		_, err := s.Verify(strings.Join(parts, "."))
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, _ := NewSigner("other", time.Hour)
		_, err := other.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("Expired", func(t *testing.T) {
		later := *s
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := s.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, stateClaims{
			State:            State{OrderID: "REF-1"},
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("MissingOrderID", func(t *testing.T) {
		empty, err := s.Sign(State{Backend: "b"})
		require.NoError(t, err)
		_, err = s.Verify(empty)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}
