package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("test-signing-secret")

	token, err := issueAccessToken(secret, "acct-1", 15*time.Minute)
	require.NoError(t, err)

	accountID, err := parseAccessToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := issueAccessToken([]byte("right-secret"), "acct-1", 15*time.Minute)
	require.NoError(t, err)

	_, err = parseAccessToken([]byte("wrong-secret"), token)
	assert.Error(t, err)
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := issueAccessToken([]byte("secret"), "acct-1", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = parseAccessToken([]byte("secret"), token)
	assert.Error(t, err)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		_, err := parseAccessToken([]byte("secret"), token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	store := newAccountStore(time.Hour)
	acct := &account{}
	acct.User.ID = "acct-1"
	acct.User.Email = "collector@example.com"
	require.True(t, store.create(acct))

	raw, err := store.issueRefresh("acct-1")
	require.NoError(t, err)

	redeemed, ok := store.redeemRefresh(raw)
	require.True(t, ok)
	assert.Equal(t, "acct-1", redeemed.User.ID)

	// Single use: a second redemption fails.
	_, ok = store.redeemRefresh(raw)
	assert.False(t, ok)
}

func TestRefreshTokenExpiry(t *testing.T) {
	store := newAccountStore(time.Millisecond)
	acct := &account{}
	acct.User.ID = "acct-1"
	acct.User.Email = "collector@example.com"
	require.True(t, store.create(acct))

	raw, err := store.issueRefresh("acct-1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, ok := store.redeemRefresh(raw)
	assert.False(t, ok)
}
