package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/types"
)

func TestVerifier_IssueAndResolve(t *testing.T) {
	t.Parallel()

	v := NewVerifier("s3cret", "quest-arena")
	token, err := v.Issue(types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleGM}, time.Hour)
	require.NoError(t, err)

	ident, err := v.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, types.Identity{UserID: "alice", Name: "Alice", Role: types.RoleGM}, ident)
	assert.True(t, ident.CanModerate())
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()

	v := NewVerifier("s3cret", "quest-arena")
	good, err := v.Issue(types.Identity{UserID: "alice", Role: types.RolePlayer}, time.Hour)
	require.NoError(t, err)

	other := NewVerifier("other", "quest-arena")
	forged, err := other.Issue(types.Identity{UserID: "alice", Role: types.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	wrongIssuer := NewVerifier("s3cret", "someone-else")
	foreign, err := wrongIssuer.Issue(types.Identity{UserID: "alice"}, time.Hour)
	require.NoError(t, err)

	expired := NewVerifier("s3cret", "quest-arena")
	expired.SetClockForTest(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	stale, err := expired.Issue(types.Identity{UserID: "alice"}, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "alice", Role: "ADMIN"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", "  "},
		{"garbage", "not.a.jwt"},
		{"wrong secret", forged},
		{"wrong issuer", foreign},
		{"expired", stale},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Resolve(tt.token)
			assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		})
	}

	_, err = v.Resolve(good)
	assert.NoError(t, err)
}

func TestVerifier_RoleAndSubject(t *testing.T) {
	t.Parallel()

	v := NewVerifier("s3cret", "")
	sign := func(c Claims) string {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		return s
	}

	ident, err := v.Resolve(sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}}))
	require.NoError(t, err)
	assert.Equal(t, "bob", ident.UserID)
	assert.Equal(t, "bob", ident.Name)
	assert.Equal(t, types.RolePlayer, ident.Role, "missing role defaults to PLAYER")

	ident, err = v.Resolve(sign(Claims{UserID: "carol", Role: "admin"}))
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, ident.Role)

	_, err = v.Resolve(sign(Claims{UserID: "dave", Role: "OVERLORD"}))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = v.Resolve(sign(Claims{}))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}
