package finder_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/xorpgo/fabric/carrier"
	"github.com/xorpgo/fabric/cmdmap"
	"github.com/xorpgo/fabric/finder"
	"github.com/xorpgo/fabric/messenger"
	"github.com/xorpgo/fabric/xrl"
)

func carrierConfig() carrier.Config { return carrier.Config{} }

// newTestMessenger returns a live Messenger over a loopback pair, used
// only as an identity token for ownership checks in these tests; the peer
// end is left otherwise idle.
func newTestMessenger(t *testing.T, label string) *messenger.Messenger {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	defer ln.Close()

	var peerCh = make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		peerCh <- c
	}()
	conn, err := net.Dial(ln.Addr().Network(), ln.Addr().String())
	require.NoError(t, err)
	peer := <-peerCh

	messenger.NewOverCarrier(peer, carrierConfig(), cmdmap.New(), discardManager{}, label+"-peer")
	return messenger.NewOverCarrier(conn, carrierConfig(), cmdmap.New(), discardManager{}, label)
}

type discardManager struct{}

func (discardManager) OnMessengerDeath(*messenger.Messenger, error) {}

type recordingNotifier struct {
	events chan notifyCall
}

type notifyCall struct {
	watcher string
	ev      finder.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan notifyCall, 64)}
}

func (n *recordingNotifier) NotifyEvent(watcher string, ev finder.Event) {
	n.events <- notifyCall{watcher: watcher, ev: ev}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	f := finder.New([]byte("k"), 1, newRecordingNotifier(), nil)
	before := f.Snapshot()

	owner := newTestMessenger(t, "bgp-1")
	cookie, ferr := f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)
	require.NotEmpty(t, cookie)

	require.Nil(t, f.UnregisterClient(owner, "bgp-1"))
	after := f.Snapshot()

	require.Equal(t, before, after)
}

func TestSingletonViolation(t *testing.T) {
	f := finder.New([]byte("k"), 1, newRecordingNotifier(), nil)

	owner1 := newTestMessenger(t, "rib-1")
	_, ferr := f.RegisterClient(owner1, "rib-1", "rib", true, "")
	require.Nil(t, ferr)

	owner2 := newTestMessenger(t, "rib-2")
	_, ferr = f.RegisterClient(owner2, "rib-2", "rib", true, "")
	require.NotNil(t, ferr)
	require.Contains(t, ferr.Note, finder.NoteSingletonViolation)
}

func TestNotOwnedRejectsForeignCaller(t *testing.T) {
	f := finder.New([]byte("k"), 1, newRecordingNotifier(), nil)

	owner := newTestMessenger(t, "bgp-1")
	_, ferr := f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)

	stranger := newTestMessenger(t, "stranger")
	ferr = f.SetClientEnabled(stranger, "bgp-1", true)
	require.NotNil(t, ferr)
	require.Contains(t, ferr.Note, finder.NoteNotOwned)
}

func TestAddXrlThenResolveXrl(t *testing.T) {
	f := finder.New([]byte("k"), 1, newRecordingNotifier(), nil)

	owner := newTestMessenger(t, "bgp-1")
	_, ferr := f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)
	require.Nil(t, f.SetClientEnabled(owner, "bgp-1", true))

	u, err := xrl.Parse("bgp-1/get_routes")
	require.NoError(t, err)

	resolvedName, ferr := f.AddXrl(owner, "bgp-1", u, "tcp", "127.0.0.1:19999")
	require.Nil(t, ferr)
	require.NotEqual(t, "get_routes", resolvedName) // unguessable suffix appended
	require.Contains(t, resolvedName, "get_routes")

	resolution, ferr := f.ResolveXrl("bgp-1", u)
	require.Nil(t, ferr)
	require.Len(t, resolution, 1)
	require.Equal(t, "tcp", resolution[0].Protocol)
	require.Equal(t, "127.0.0.1:19999", resolution[0].ProtocolArgs)
	require.Equal(t, resolvedName, resolution[0].Command)
}

func TestAddXrlIsIdempotentForDuplicateResolution(t *testing.T) {
	f := finder.New([]byte("k"), 1, newRecordingNotifier(), nil)
	owner := newTestMessenger(t, "bgp-1")
	_, ferr := f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)

	u, err := xrl.Parse("bgp-1/get_routes")
	require.NoError(t, err)

	name1, ferr := f.AddXrl(owner, "bgp-1", u, "tcp", "127.0.0.1:19999")
	require.Nil(t, ferr)
	name2, ferr := f.AddXrl(owner, "bgp-1", u, "tcp", "127.0.0.1:19999")
	require.Nil(t, ferr)
	require.Equal(t, name1, name2)
}

func TestResolveXrlRequiresEnabled(t *testing.T) {
	f := finder.New([]byte("k"), 1, newRecordingNotifier(), nil)
	owner := newTestMessenger(t, "bgp-1")
	_, ferr := f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)

	u, err := xrl.Parse("bgp-1/get_routes")
	require.NoError(t, err)
	_, ferr = f.AddXrl(owner, "bgp-1", u, "tcp", "127.0.0.1:19999")
	require.Nil(t, ferr)

	_, ferr = f.ResolveXrl("bgp-1", u)
	require.NotNil(t, ferr)
	require.Contains(t, ferr.Note, finder.NoteNotEnabled)
}

func TestWatchClassBeforeInstanceExistsThenReplaysBirth(t *testing.T) {
	notifier := newRecordingNotifier()
	f := finder.New([]byte("k"), 1, notifier, nil)

	watcher := newTestMessenger(t, "watcher-1")
	_, ferr := f.RegisterClient(watcher, "watcher-1", "watchers", false, "")
	require.Nil(t, ferr)

	// Before any instance exists, watcher watches class "bgp".
	require.Nil(t, f.WatchClass("watcher-1", "bgp"))

	owner := newTestMessenger(t, "bgp-1")
	_, ferr = f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)
	require.Nil(t, f.SetClientEnabled(owner, "bgp-1", true))

	select {
	case call := <-notifier.events:
		require.Equal(t, "watcher-1", call.watcher)
		require.Equal(t, finder.Birth, call.ev.Kind)
		require.Equal(t, "bgp", call.ev.Class)
		require.Equal(t, "bgp-1", call.ev.Instance)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe BIRTH event")
	}
}

func TestUnregisterCascadesDeathToWatcher(t *testing.T) {
	notifier := newRecordingNotifier()
	f := finder.New([]byte("k"), 1, notifier, nil)

	owner := newTestMessenger(t, "bgp-1")
	_, ferr := f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)
	require.Nil(t, f.SetClientEnabled(owner, "bgp-1", true))

	watcher := newTestMessenger(t, "watcher-1")
	_, ferr = f.RegisterClient(watcher, "watcher-1", "watchers", false, "")
	require.Nil(t, ferr)
	require.Nil(t, f.WatchInstance("watcher-1", "bgp-1"))

	// Drain the replayed BIRTH from WatchInstance before unregistering.
	select {
	case call := <-notifier.events:
		require.Equal(t, finder.Birth, call.ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("missing replayed birth")
	}

	require.Nil(t, f.UnregisterClient(owner, "bgp-1"))

	select {
	case call := <-notifier.events:
		require.Equal(t, finder.Death, call.ev.Kind)
		require.Equal(t, "bgp-1", call.ev.Instance)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe DEATH event on unregister")
	}
}

func TestMessengerDeathCascadesTargetRemoval(t *testing.T) {
	f := finder.New([]byte("k"), 1, newRecordingNotifier(), nil)

	owner := newTestMessenger(t, "bgp-1")
	_, ferr := f.RegisterClient(owner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)

	before := f.Snapshot()
	require.Contains(t, before, "bgp-1")

	f.OnMessengerDeath(owner, nil)

	// Registering a fresh instance under the same class should now
	// succeed without ALREADY_REGISTERED, proving the prior entry is gone.
	newOwner := newTestMessenger(t, "bgp-1-again")
	_, ferr = f.RegisterClient(newOwner, "bgp-1", "bgp", false, "")
	require.Nil(t, ferr)
}
