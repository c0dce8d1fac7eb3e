package carrier_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xorpgo/fabric/carrier"
)

func TestPermitListHostPreferredAlwaysPermitted(t *testing.T) {
	var self = net.ParseIP("10.0.0.1")
	var pl = carrier.NewPermitList(self)
	require.True(t, pl.Permitted(self))
	require.False(t, pl.Permitted(net.ParseIP("10.0.0.2")))
}

func TestPermitListHostsAndPrefixes(t *testing.T) {
	var pl = carrier.NewPermitList(nil)
	pl.PermitHost(net.ParseIP("192.168.1.5"))
	_, prefix, _ := net.ParseCIDR("10.0.0.0/8")
	pl.PermitPrefix(prefix)

	require.True(t, pl.Permitted(net.ParseIP("192.168.1.5")))
	require.True(t, pl.Permitted(net.ParseIP("10.1.2.3")))
	require.False(t, pl.Permitted(net.ParseIP("172.16.0.1")))

	pl.UnpermitHost(net.ParseIP("192.168.1.5"))
	require.False(t, pl.Permitted(net.ParseIP("192.168.1.5")))

	pl.UnpermitPrefix(prefix)
	require.False(t, pl.Permitted(net.ParseIP("10.1.2.3")))
}
