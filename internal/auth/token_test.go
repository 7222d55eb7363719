package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomline/loomline/internal/tenancy"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret, time.Hour)
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodecSecretPolicy(t *testing.T) {
	_, err := NewTokenCodec("", time.Hour)
	assert.ErrorIs(t, err, ErrSecretMissing)

	_, err = NewTokenCodec("   ", time.Hour)
	assert.ErrorIs(t, err, ErrSecretMissing)

	_, err = NewTokenCodec("dev-secret-change-me", time.Hour)
	assert.ErrorIs(t, err, ErrSecretPlaceholder)

	_, err = NewTokenCodec("too-short", time.Hour)
	assert.ErrorIs(t, err, ErrSecretTooShort)

	_, err = NewTokenCodec(testSecret, 0)
	assert.NoError(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	tenantID := int64(9)

	sub := Subject{
		UserID:      42,
		Username:    "mina",
		RoleID:      "3",
		RoleName:    "operator",
		OpenID:      "wx-open-1",
		PermRange:   tenancy.RangeTeam,
		TenantID:    &tenantID,
		TenantOwner: false,
		TeamID:      6,
		PwdVersion:  2,
	}
	token, err := codec.Issue(sub, time.Hour)
	require.NoError(t, err)

	got := codec.Verify(token)
	require.NotNil(t, got)
	assert.Equal(t, sub, *got)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Issue(Subject{UserID: 1, Username: "a"}, time.Hour)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, codec.Verify(""))
	})
	t.Run("garbage", func(t *testing.T) {
		assert.Nil(t, codec.Verify("not.a.token"))
	})
	t.Run("tampered", func(t *testing.T) {
		assert.Nil(t, codec.Verify(token+"x"))
	})
	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenCodec("ffffffffffffffffffffffffffffffff", time.Hour)
		require.NoError(t, err)
		assert.Nil(t, other.Verify(token))
	})
	t.Run("expired", func(t *testing.T) {
		short, err := codec.Issue(Subject{UserID: 1}, time.Millisecond)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		assert.Nil(t, codec.Verify(short))
	})
}

func TestVerifyLegacyPermRangeDefault(t *testing.T) {
	codec := newTestCodec(t)

	issue := func(sub Subject) *Subject {
		token, err := codec.Issue(sub, time.Hour)
		require.NoError(t, err)
		return codec.Verify(token)
	}

	t.Run("plain user narrows to own", func(t *testing.T) {
		got := issue(Subject{UserID: 1, RoleName: "operator"})
		require.NotNil(t, got)
		assert.Equal(t, tenancy.RangeOwn, got.PermRange)
	})

	t.Run("tenant owner widens to all", func(t *testing.T) {
		got := issue(Subject{UserID: 1, TenantOwner: true})
		require.NotNil(t, got)
		assert.Equal(t, tenancy.RangeAll, got.PermRange)
	})

	t.Run("admin role widens to all", func(t *testing.T) {
		got := issue(Subject{UserID: 1, RoleName: "workshop admin"})
		require.NotNil(t, got)
		assert.Equal(t, tenancy.RangeAll, got.PermRange)
	})

	t.Run("explicit range kept", func(t *testing.T) {
		got := issue(Subject{UserID: 1, PermRange: tenancy.RangeTeam})
		require.NotNil(t, got)
		assert.Equal(t, tenancy.RangeTeam, got.PermRange)
	})
}
