package authservice_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "github.com/Matidza/Auth-Service"
)

func testAccount() *authservice.Account {
	return &authservice.Account{ID: "acc-1", Email: "alice@example.com", Role: authservice.RoleMentee}
}

func TestTokenIssuer_Defaults(t *testing.T) {
	tokens := (&authservice.TokenIssuer{}).EnsureDefaults()
	assert.Equal(t, 30*time.Minute, tokens.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, tokens.RefreshTTL)
	assert.Equal(t, 6*time.Hour, tokens.FederatedTTL)

	_, err := tokens.IssueAccess(testAccount())
	assert.Error(t, err, "signing without a secret must fail")
}

func TestTokenIssuer_Pair(t *testing.T) {
	clock := newTestClock()
	tokens := &authservice.TokenIssuer{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), Now: clock.Now}

	pair, err := tokens.IssuePair(testAccount())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(30*time.Minute), pair.Access.ExpiresAt)
	assert.Equal(t, clock.Now().Add(7*24*time.Hour), pair.Refresh.ExpiresAt)

	access, err := tokens.ParseAccess(pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", access.AccountID)
	assert.Equal(t, authservice.TokenTypeAccess, access.Type)
	assert.NotEmpty(t, access.ID)

	refresh, err := tokens.ParseRefresh(pair.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, authservice.TokenTypeRefresh, refresh.Type)
	assert.NotEqual(t, access.ID, refresh.ID)

	// Neither token stands in for the other.
	_, err = tokens.ParseAccess(pair.Refresh.Value)
	assert.ErrorIs(t, err, authservice.ErrUnauthorized)
	_, err = tokens.ParseRefresh(pair.Access.Value)
	assert.ErrorIs(t, err, authservice.ErrInvalidToken)
}

func TestTokenIssuer_Expiry(t *testing.T) {
	clock := newTestClock()
	tokens := &authservice.TokenIssuer{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), Now: clock.Now}

	federated, err := tokens.IssueFederated(testAccount())
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, federated.TTL)

	access, err := tokens.IssueAccess(testAccount())
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = tokens.ParseAccess(access.Value)
	assert.ErrorIs(t, err, authservice.ErrUnauthorized)
	_, err = tokens.ParseAccess(federated.Value)
	assert.NoError(t, err)

	clock.Advance(6 * time.Hour)
	_, err = tokens.ParseAccess(federated.Value)
	assert.ErrorIs(t, err, authservice.ErrUnauthorized)
}

func TestTokenIssuer_RejectsForeignTokens(t *testing.T) {
	tokens := &authservice.TokenIssuer{AccessSecret: []byte("a"), RefreshSecret: []byte("r")}
	other := &authservice.TokenIssuer{AccessSecret: []byte("other"), RefreshSecret: []byte("r2")}

	forged, err := other.IssueAccess(testAccount())
	require.NoError(t, err)
	_, err = tokens.ParseAccess(forged.Value)
	assert.ErrorIs(t, err, authservice.ErrUnauthorized)

	wrongIssuer := &authservice.TokenIssuer{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), Issuer: "someone-else"}
	foreign, err := wrongIssuer.IssueAccess(testAccount())
	require.NoError(t, err)
	_, err = tokens.ParseAccess(foreign.Value)
	assert.ErrorIs(t, err, authservice.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "acc-1", "accountId": "acc-1", "type": "access"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.ParseAccess(unsigned)
	assert.ErrorIs(t, err, authservice.ErrUnauthorized)

	_, err = tokens.ParseAccess("")
	assert.ErrorIs(t, err, authservice.ErrUnauthorized)
}
