package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xorpgo/fabric/identity"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	m := identity.NewMinter([]byte("test-key"), 1)

	cookie, err := m.Mint("bgp-1", "bgp")
	require.NoError(t, err)

	claims, err := m.Verify(cookie)
	require.NoError(t, err)
	require.Equal(t, "bgp-1", claims.Target)
	require.Equal(t, "bgp", claims.Class)
	require.Equal(t, uint64(1), claims.Generation)
}

func TestVerifyForTargetRejectsMismatch(t *testing.T) {
	m := identity.NewMinter([]byte("test-key"), 1)

	cookie, err := m.Mint("bgp-1", "bgp")
	require.NoError(t, err)

	_, err = m.VerifyForTarget(cookie, "bgp-2")
	require.ErrorIs(t, err, identity.ErrInvalidCookie)
}

func TestVerifyRejectsStaleGeneration(t *testing.T) {
	oldMinter := identity.NewMinter([]byte("same-key"), 1)
	cookie, err := oldMinter.Mint("bgp-1", "bgp")
	require.NoError(t, err)

	newMinter := identity.NewMinter([]byte("same-key"), 2)
	_, err = newMinter.Verify(cookie)
	require.ErrorIs(t, err, identity.ErrInvalidCookie)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	m1 := identity.NewMinter([]byte("key-one"), 1)
	cookie, err := m1.Mint("bgp-1", "bgp")
	require.NoError(t, err)

	m2 := identity.NewMinter([]byte("key-two"), 1)
	_, err = m2.Verify(cookie)
	require.ErrorIs(t, err, identity.ErrInvalidCookie)
}

func TestVerifyRejectsExpiredCookie(t *testing.T) {
	m := identity.NewMinter([]byte("test-key"), 1)
	m.SetTTLForTesting(-time.Second) // Already expired by the time it's minted.

	cookie, err := m.Mint("bgp-1", "bgp")
	require.NoError(t, err)

	_, err = m.Verify(cookie)
	require.ErrorIs(t, err, identity.ErrInvalidCookie)
}
