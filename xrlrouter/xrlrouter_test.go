package xrlrouter_test

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xorpgo/fabric/carrier"
	"github.com/xorpgo/fabric/cmdmap"
	"github.com/xorpgo/fabric/finder"
	"github.com/xorpgo/fabric/messenger"
	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
	"github.com/xorpgo/fabric/xrlrouter"
)

func carrierConfig() carrier.Config { return carrier.Config{} }

// startFinder runs a real Finder over a loopback TCP listener, accepting
// connections the way cmd/finder does: one fresh per-connection CommandMap
// bound to that connection's own Messenger.
func startFinder(t *testing.T) (addr string, f *finder.Finder) {
	t.Helper()
	f = finder.New([]byte("test-key"), 1, nil, nil)
	srv := finder.NewServer(f)
	f.SetNotifier(srv)
	f.SetCacheInvalidator(srv)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			cmds := cmdmap.New()
			m := messenger.New(conn, carrierConfig(), cmds, f, "finder-conn")
			if err := finder.BindConnection(cmds, f, m); err != nil {
				panic(err)
			}
			m.Start()
		}
	}()
	return ln.Addr().String(), f
}

func newRouter(t *testing.T, entity, class string) *xrlrouter.Router {
	t.Helper()
	r, err := xrlrouter.New(xrlrouter.Config{
		EntityName:    entity,
		Class:         class,
		ListenAddr:    "127.0.0.1:0",
		CarrierConfig: carrierConfig(),
	})
	require.NoError(t, err)
	return r
}

func sendAndWait(t *testing.T, r *xrlrouter.Router, x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
	t.Helper()
	var done = make(chan struct{})
	var code wire.ErrorCode
	var note string
	var args []xrl.Atom
	r.Send(x, func(c wire.ErrorCode, n string, a []xrl.Atom) {
		code, note, args = c, n, a
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("send timed out")
	}
	return code, note, args
}

func TestEndToEndResolveAndDispatch(t *testing.T) {
	finderAddr, _ := startFinder(t)

	server := newRouter(t, "echo-1", "echo")
	require.NoError(t, server.CommandMap().Add("ping", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		return wire.OKAY, "", []xrl.Atom{xrl.NewTxtAtom("pong", "yes")}
	}))
	require.NoError(t, server.Start(finderAddr))

	client := newRouter(t, "caller-1", "callers")
	require.NoError(t, client.Start(finderAddr))

	code, _, args := sendAndWait(t, client, xrl.New("echo-1", "ping"))
	require.Equal(t, wire.OKAY, code)
	require.Len(t, args, 1)
	require.Equal(t, "yes", args[0].Txt())
}

func TestCacheAvoidsSecondResolve(t *testing.T) {
	finderAddr, _ := startFinder(t)

	server := newRouter(t, "echo-2", "echo")
	var calls int
	require.NoError(t, server.CommandMap().Add("ping", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		calls++
		return wire.OKAY, "", nil
	}))
	require.NoError(t, server.Start(finderAddr))

	client := newRouter(t, "caller-2", "callers")
	require.NoError(t, client.Start(finderAddr))

	for i := 0; i < 3; i++ {
		code, _, _ := sendAndWait(t, client, xrl.New("echo-2", "ping"))
		require.Equal(t, wire.OKAY, code)
	}
	require.Equal(t, 3, calls)
	require.EqualValues(t, 0, client.PendingResolveCount())
}

func TestPurgeCacheForcesReresolveOnNextSend(t *testing.T) {
	finderAddr, _ := startFinder(t)

	server := newRouter(t, "echo-3", "echo")
	require.NoError(t, server.CommandMap().Add("ping", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		return wire.OKAY, "", nil
	}))
	require.NoError(t, server.Start(finderAddr))

	client := newRouter(t, "caller-3", "callers")
	require.NoError(t, client.Start(finderAddr))

	code, _, _ := sendAndWait(t, client, xrl.New("echo-3", "ping"))
	require.Equal(t, wire.OKAY, code)

	// Simulates the invalidate_xrl handler's effect (the Finder broadcasts
	// this on remove_xrl; exercised directly here to assert the cache side
	// of that contract: a purged entry is re-resolved on the next Send,
	// not served stale).
	client.PurgeCache("echo-3", "ping")

	code, _, _ = sendAndWait(t, client, xrl.New("echo-3", "ping"))
	require.Equal(t, wire.OKAY, code)
}

// Start must install the Finder-assigned resolved (suffixed) name as a
// dispatch alias: inbound resolved requests carry that name, not the
// bare one the handler was registered under.
func TestStartInstallsResolvedAliasForDispatch(t *testing.T) {
	finderAddr, _ := startFinder(t)

	server := newRouter(t, "alias-1", "echo")
	require.NoError(t, server.CommandMap().Add("ping", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		return wire.OKAY, "", nil
	}))
	require.NoError(t, server.Start(finderAddr))

	var alias string
	for _, n := range server.CommandMap().Names() {
		if n != "ping" {
			alias = n
		}
	}
	require.NotEmpty(t, alias, "expected a resolved alias alongside the base name")
	require.True(t, strings.HasPrefix(alias, "ping+"))

	code, _, _ := server.CommandMap().Dispatch(xrl.New("alias-1", alias))
	require.Equal(t, wire.OKAY, code)
}

// Two participants register under distinct names; one calls the other's
// zero-arg hello 1000 times in a loop. Every call must succeed and leave
// no orphaned bookkeeping behind.
func TestHelloRoundTripLeavesNoOrphans(t *testing.T) {
	finderAddr, _ := startFinder(t)

	b := newRouter(t, "B", "echo")
	var invocations int
	require.NoError(t, b.CommandMap().Add("hello", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		invocations++
		return wire.OKAY, "", nil
	}))
	require.NoError(t, b.Start(finderAddr))

	a := newRouter(t, "A", "callers")
	require.NoError(t, a.Start(finderAddr))

	for i := 0; i < 1000; i++ {
		code, _, args := sendAndWait(t, a, xrl.New("B", "hello"))
		require.Equal(t, wire.OKAY, code)
		require.Empty(t, args)
	}
	require.Equal(t, 1000, invocations)
	require.EqualValues(t, 0, a.PendingSendCount())
	require.EqualValues(t, 0, a.PendingResolveCount())
}

func TestIntegerEchoReply(t *testing.T) {
	finderAddr, _ := startFinder(t)

	server := newRouter(t, "A-int", "echo")
	require.NoError(t, server.CommandMap().Add("get_int32", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		return wire.OKAY, "", []xrl.Atom{xrl.NewI32Atom("an_int32", 123456)}
	}))
	require.NoError(t, server.Start(finderAddr))

	client := newRouter(t, "B-int", "callers")
	require.NoError(t, client.Start(finderAddr))

	code, _, args := sendAndWait(t, client, xrl.New("A-int", "get_int32"))
	require.Equal(t, wire.OKAY, code)
	require.Len(t, args, 1)
	require.Equal(t, "an_int32", args[0].Name())
	require.Equal(t, xrl.TypeI32, args[0].Type())
	require.EqualValues(t, 123456, args[0].I32())
}

func TestFailingCallCarriesCodeAndNote(t *testing.T) {
	finderAddr, _ := startFinder(t)

	server := newRouter(t, "A-fail", "echo")
	require.NoError(t, server.CommandMap().Add("no_execute", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		return wire.COMMAND_FAILED, "Random arbitrary noise", nil
	}))
	require.NoError(t, server.Start(finderAddr))

	client := newRouter(t, "B-fail", "callers")
	require.NoError(t, client.Start(finderAddr))

	code, note, _ := sendAndWait(t, client, xrl.New("A-fail", "no_execute"))
	require.Equal(t, wire.COMMAND_FAILED, code)
	require.Equal(t, "Random arbitrary noise", note)
}

func TestSendFailsFastWhenNotYetConnectedToFinder(t *testing.T) {
	r := newRouter(t, "lonely-1", "callers")
	code, _, _ := sendAndWait(t, r, xrl.New("nobody", "ping"))
	require.Equal(t, wire.RESOLVE_FAILED, code)
}
