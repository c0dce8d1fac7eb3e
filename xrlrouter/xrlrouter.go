// Package xrlrouter implements the per-process L3 façade:
// it owns a listener for inbound resolved RPCs, registers this process's
// identity and command surface with the Finder, and resolves/dispatches
// outbound Xrl sends, caching resolutions in a bounded LRU.
package xrlrouter

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/xorpgo/fabric/carrier"
	"github.com/xorpgo/fabric/cmdmap"
	"github.com/xorpgo/fabric/messenger"
	"github.com/xorpgo/fabric/ops"
	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// DefaultCacheSize bounds the resolution cache's entry count. A bounded
// LRU keeps memory flat in a long-running daemon with many distinct
// peers; eviction is an early, harmless forget that forces a future
// re-resolve.
const DefaultCacheSize = 4096

// SendCallback receives the outcome of a resolved RPC, same shape as
// messenger.Callback.
type SendCallback = messenger.Callback

// Config tunes a Router's behavior.
type Config struct {
	EntityName    string // this process's target instance name
	Class         string // the Finder class this process registers under
	Singleton     bool
	ListenAddr    string // local address the Router's own listener binds, e.g. "127.0.0.1:0"
	CacheSize     int    // 0 means DefaultCacheSize
	CarrierConfig carrier.Config
}

// Router is the per-process XrlRouter façade.
type Router struct {
	cfg Config

	commandMap *cmdmap.CommandMap
	listener   *carrier.Listener

	finderDialAddr string
	finderConn     *messenger.Messenger
	finderMu       sync.Mutex
	reconnecting   bool

	cache *lru.Cache[string, xrl.Resolution]

	connMu sync.Mutex
	conns  map[string]*messenger.Messenger // resolved protocolArgs -> live connection

	pendingResolve sync.Map // unresolved key -> []queuedSend
	pendingCount   atomic.Int64
	sendCount      atomic.Int64

	aliasMu sync.Mutex
	aliases map[string]string // base command name -> installed resolved alias

	watchMu       sync.Mutex
	watchCallback WatchCallback

	log *log.Entry
}

type queuedSend struct {
	x        xrl.Xrl
	callback SendCallback
}

// New constructs a Router. Call Start to dial the Finder and begin
// serving.
func New(cfg Config) (*Router, error) {
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, xrl.Resolution](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("xrlrouter: constructing resolution cache: %w", err)
	}
	r := &Router{
		cfg:        cfg,
		commandMap: cmdmap.New(),
		cache:      cache,
		conns:      make(map[string]*messenger.Messenger),
		aliases:    make(map[string]string),
		log:        ops.Component("xrlrouter").WithField("entity", cfg.EntityName),
	}
	return r, nil
}

// CommandMap returns the command map inbound RPCs against this process's
// advertised endpoint are dispatched through; callers Add their commands
// before calling Start so every command has a handler at advertise time.
func (r *Router) CommandMap() *cmdmap.CommandMap { return r.commandMap }

// Listener returns the bound listener, valid only after Start.
func (r *Router) Listener() *carrier.Listener { return r.listener }

// PendingResolveCount returns the number of sends currently blocked on a
// resolve_xrl round trip.
func (r *Router) PendingResolveCount() int64 { return r.pendingCount.Load() }

// PendingSendCount returns the number of sends awaiting a reply from a
// resolved target.
func (r *Router) PendingSendCount() int64 { return r.sendCount.Load() }

// Start opens the local listener, dials and registers with the Finder at
// finderAddr, then advertises (via add_xrl) every command already present
// in r.CommandMap().
func (r *Router) Start(finderAddr string) error {
	r.finderDialAddr = finderAddr

	permits := carrier.NewPermitList(net.ParseIP("127.0.0.1"))
	ln, err := carrier.Listen("tcp", r.cfg.ListenAddr, permits, r.cfg.CarrierConfig)
	if err != nil {
		return fmt.Errorf("xrlrouter: listen %s: %w", r.cfg.ListenAddr, err)
	}
	r.listener = ln
	go func() {
		if err := ln.Serve(r.acceptInbound); err != nil {
			r.log.WithError(err).Info("xrlrouter: listener stopped")
		}
	}()

	if err := r.dialFinder(); err != nil {
		ln.Close()
		return err
	}

	cookie, ferr := r.registerClient()
	if ferr != nil {
		return ferr
	}
	r.log.WithField("cookie_len", len(cookie)).Info("xrlrouter: registered with finder")

	if err := r.setEnabled(true); err != nil {
		return err
	}

	for _, name := range r.baseCommands() {
		if err := r.advertiseCommand(name); err != nil {
			return fmt.Errorf("xrlrouter: advertising %s: %w", name, err)
		}
	}
	return nil
}

// advertiseCommand advertises name with the Finder and installs the
// resolved (suffixed) name add_xrl returns as a dispatch alias for the
// same handler. Inbound requests arrive addressed by the resolved name,
// so without the alias every resolved dispatch would miss the map and
// fail NO_SUCH_METHOD. A stale alias from an earlier registration is
// replaced.
func (r *Router) advertiseCommand(name string) error {
	h, ok := r.commandMap.Lookup(name)
	if !ok {
		return fmt.Errorf("xrlrouter: advertising unregistered command %q", name)
	}
	u := xrl.New(r.cfg.EntityName, name)
	resolved, err := r.addXrl(u, "tcp", r.listener.Addr().String())
	if err != nil {
		return err
	}

	r.aliasMu.Lock()
	defer r.aliasMu.Unlock()
	prev, had := r.aliases[name]
	if had && prev == resolved {
		return nil // Re-advertised idempotently; alias already installed.
	}
	if had {
		r.commandMap.Remove(prev)
		delete(r.aliases, name)
	}
	if resolved == name {
		return nil
	}
	if err := r.commandMap.Add(resolved, h); err != nil {
		return err
	}
	r.aliases[name] = resolved
	return nil
}

// baseCommands returns the commands registered by the caller, excluding
// the resolved-name aliases advertiseCommand installed alongside them.
func (r *Router) baseCommands() []string {
	r.aliasMu.Lock()
	aliased := make(map[string]bool, len(r.aliases))
	for _, a := range r.aliases {
		aliased[a] = true
	}
	r.aliasMu.Unlock()

	var out []string
	for _, name := range r.commandMap.Names() {
		if !aliased[name] {
			out = append(out, name)
		}
	}
	return out
}

// acceptInbound matches carrier.AcceptHandler. newCarrier is a factory the
// listener offers for building a Carrier over conn; it is not used here
// because messenger.NewOverCarrier builds its own Carrier over the same
// conn, and invoking both would race two readers against one socket.
func (r *Router) acceptInbound(conn net.Conn, newCarrier func(carrier.MessageHandler, carrier.CloseHandler) *carrier.Carrier) {
	label := conn.RemoteAddr().String()
	messenger.NewOverCarrier(conn, r.cfg.CarrierConfig, r.commandMap, discardManager{}, label)
}

type discardManager struct{}

func (discardManager) OnMessengerDeath(*messenger.Messenger, error) {}

// finderManager implements messenger.Manager for the Router's connection
// to the Finder: losing it marks the Router "reconnecting" (every Send not
// served from the resolution cache fails fast with NO_FINDER) and
// spawns a background redial/re-registration loop.
type finderManager struct{ r *Router }

func (fm finderManager) OnMessengerDeath(m *messenger.Messenger, reason error) {
	r := fm.r
	r.finderMu.Lock()
	if r.finderConn != m {
		r.finderMu.Unlock()
		return // Already superseded by a newer connection.
	}
	r.reconnecting = true
	r.finderMu.Unlock()

	r.log.WithError(reason).Warn("xrlrouter: lost connection to finder, reconnecting")
	go r.reconnectFinderLoop()
}

// reconnectFinderLoop redials the Finder with a backoff that doubles from
// one second up to 30 seconds until it succeeds in both connecting and
// re-registering this process's identity, then clears reconnecting so
// Sends that need resolution go to the Finder again.
func (r *Router) reconnectFinderLoop() {
	for backoff := time.Second; ; backoff = minDuration(backoff*2, 30*time.Second) {
		if err := r.dialFinder(); err != nil {
			r.log.WithError(err).Warn("xrlrouter: finder redial failed, retrying")
			time.Sleep(backoff)
			continue
		}
		if _, err := r.registerClient(); err != nil {
			r.log.WithError(err).Warn("xrlrouter: finder re-registration failed, retrying")
			time.Sleep(backoff)
			continue
		}
		if err := r.setEnabled(true); err != nil {
			r.log.WithError(err).Warn("xrlrouter: finder re-enable failed, retrying")
			time.Sleep(backoff)
			continue
		}
		for _, name := range r.baseCommands() {
			if err := r.advertiseCommand(name); err != nil {
				r.log.WithError(err).WithField("command", name).Warn("xrlrouter: re-advertising command failed")
			}
		}

		r.finderMu.Lock()
		r.reconnecting = false
		r.finderMu.Unlock()
		r.log.Info("xrlrouter: reconnected to finder")
		return
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// dialFinder opens a fresh Messenger to the Finder, replacing any prior
// connection.
func (r *Router) dialFinder() error {
	conn, err := net.Dial("tcp", r.finderDialAddr)
	if err != nil {
		return fmt.Errorf("xrlrouter: dialing finder at %s: %w", r.finderDialAddr, err)
	}
	cmds := cmdmap.New()
	r.setupFinderCallbacks(cmds)
	m := messenger.New(conn, r.cfg.CarrierConfig, cmds, finderManager{r: r}, "finder")
	m.Start()

	r.finderMu.Lock()
	r.finderConn = m
	r.finderMu.Unlock()
	return nil
}

// setupFinderCallbacks registers the handlers the Finder pushes
// notifications through (notify_event, invalidate_xrl, invalidate_target),
// wiring cache invalidation straight into the resolution cache.
func (r *Router) setupFinderCallbacks(cmds *cmdmap.CommandMap) {
	cmds.Add("invalidate_xrl", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		target := argTxt(x, "target")
		command := argTxt(x, "command")
		r.PurgeCache(target, command)
		return wire.OKAY, "", nil
	})
	cmds.Add("invalidate_target", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		r.PurgeCacheForTarget(argTxt(x, "target"))
		return wire.OKAY, "", nil
	})
	cmds.Add("notify_event", func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		r.deliverEvent(x)
		return wire.OKAY, "", nil
	})
}

func argTxt(x xrl.Xrl, name string) string {
	a, ok := x.Arg(name)
	if !ok {
		return ""
	}
	return a.Txt()
}

// deliverEvent forwards a Finder-pushed BIRTH/DEATH notification to any
// watch callback this process registered via Watch. Processes that never
// call Watch simply drop events on the floor.
func (r *Router) deliverEvent(x xrl.Xrl) {
	r.watchMu.Lock()
	cb := r.watchCallback
	r.watchMu.Unlock()
	if cb == nil {
		return
	}
	kind := argTxt(x, "kind")
	cb(kind == "BIRTH", argTxt(x, "class"), argTxt(x, "instance"))
}

// WatchCallback receives a BIRTH (alive=true) or DEATH (alive=false)
// notification for a watched class or instance.
type WatchCallback func(alive bool, class, instance string)

// Watch installs the single callback notify_event deliveries are routed
// through; call WatchClass/WatchInstance against the Finder to begin
// receiving events. A later call replaces any previously installed
// callback.
func (r *Router) Watch(cb WatchCallback) {
	r.watchMu.Lock()
	r.watchCallback = cb
	r.watchMu.Unlock()
}

// callFinder sends x to the Finder connection and blocks for its reply.
func (r *Router) callFinder(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom, error) {
	r.finderMu.Lock()
	conn := r.finderConn
	r.finderMu.Unlock()
	if conn == nil {
		return 0, "", nil, fmt.Errorf("xrlrouter: not connected to finder")
	}

	type result struct {
		code wire.ErrorCode
		note string
		args []xrl.Atom
	}
	done := make(chan result, 1)
	conn.Send(x, func(code wire.ErrorCode, note string, args []xrl.Atom) {
		done <- result{code, note, args}
	})
	select {
	case res := <-done:
		return res.code, res.note, res.args, nil
	case <-time.After(finderCallTimeout):
		return 0, "", nil, fmt.Errorf("xrlrouter: finder call %s timed out", x.Command())
	}
}

const finderCallTimeout = 10 * time.Second

// registerClient registers this process's identity with the Finder,
// returning the minted cookie.
func (r *Router) registerClient() (string, error) {
	req := xrl.New("finder", "register_client",
		xrl.NewTxtAtom("target", r.cfg.EntityName),
		xrl.NewTxtAtom("class", r.cfg.Class),
		xrl.NewBoolAtom("singleton", r.cfg.Singleton),
		xrl.NewTxtAtom("in_cookie", ""),
	)
	code, note, args, err := r.callFinder(req)
	if err != nil {
		return "", err
	}
	if code != wire.OKAY {
		return "", fmt.Errorf("xrlrouter: register_client failed: %s %s", code, note)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("xrlrouter: register_client reply missing cookie")
	}
	return args[0].Txt(), nil
}

// setEnabled toggles this process's enabled state with the Finder,
// triggering the BIRTH/DEATH event other watchers observe.
func (r *Router) setEnabled(enabled bool) error {
	req := xrl.New("finder", "set_client_enabled",
		xrl.NewTxtAtom("target", r.cfg.EntityName),
		xrl.NewBoolAtom("enabled", enabled),
	)
	code, note, _, err := r.callFinder(req)
	if err != nil {
		return err
	}
	if code != wire.OKAY {
		return fmt.Errorf("xrlrouter: set_client_enabled failed: %s %s", code, note)
	}
	return nil
}

// addXrl advertises u as reachable via protocol/protocolArgs, returning
// the Finder-assigned resolved command name.
func (r *Router) addXrl(u xrl.Xrl, protocol, protocolArgs string) (string, error) {
	req := xrl.New("finder", "add_xrl",
		xrl.NewTxtAtom("target", r.cfg.EntityName),
		xrl.NewTxtAtom("unresolved", u.String()),
		xrl.NewTxtAtom("protocol", protocol),
		xrl.NewTxtAtom("protocol_args", protocolArgs),
	)
	code, note, args, err := r.callFinder(req)
	if err != nil {
		return "", err
	}
	if code != wire.OKAY {
		return "", fmt.Errorf("xrlrouter: add_xrl failed: %s %s", code, note)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("xrlrouter: add_xrl reply missing resolved command")
	}
	return args[0].Txt(), nil
}

// resolveXrl asks the Finder to resolve x, invoking done with the
// resolution (or an error) once the round trip completes.
func (r *Router) resolveXrl(x xrl.Xrl, done func(xrl.Resolution, error)) {
	req := xrl.New("finder", "resolve_xrl",
		xrl.NewTxtAtom("target", x.Target()),
		xrl.NewTxtAtom("unresolved", x.String()),
	)

	r.finderMu.Lock()
	conn := r.finderConn
	r.finderMu.Unlock()
	if conn == nil {
		done(nil, fmt.Errorf("xrlrouter: not connected to finder"))
		return
	}

	conn.Send(req, func(code wire.ErrorCode, note string, args []xrl.Atom) {
		if code != wire.OKAY {
			done(nil, fmt.Errorf("xrlrouter: resolve_xrl failed: %s %s", code, note))
			return
		}
		if len(args) == 0 {
			done(xrl.Resolution(nil), nil)
			return
		}
		var resolution xrl.Resolution
		for _, elem := range args[0].List() {
			resolved, perr := xrl.ParseResolved(elem.Txt())
			if perr != nil {
				done(nil, fmt.Errorf("xrlrouter: parsing resolution: %w", perr))
				return
			}
			resolution = append(resolution, resolved)
		}
		done(resolution, nil)
	})
}

// Send resolves xrl (via cache or a resolve_xrl round trip to the
// Finder) and dispatches it to the matching protocol-family connection,
// invoking callback exactly once with the outcome.
func (r *Router) Send(x xrl.Xrl, callback SendCallback) {
	var key = x.Key()

	if cached, ok := r.cache.Get(key); ok {
		r.dispatch(cached, x, callback)
		return
	}

	r.pendingCount.Add(1)
	ops.XrlRouterPendingResolves.Set(float64(r.pendingCount.Load()))

	r.finderMu.Lock()
	var disconnected = r.reconnecting
	r.finderMu.Unlock()
	if disconnected {
		r.pendingCount.Add(-1)
		ops.XrlRouterPendingResolves.Set(float64(r.pendingCount.Load()))
		callback(wire.NO_FINDER, "xrlrouter: finder disconnected", nil)
		return
	}

	if v, loaded := r.pendingResolve.LoadOrStore(key, &[]queuedSend{{x: x, callback: callback}}); loaded {
		list := v.(*[]queuedSend)
		*list = append(*list, queuedSend{x: x, callback: callback})
		return // A resolve for this key is already in flight; piggyback.
	}

	r.resolveXrl(x, func(resolution xrl.Resolution, ferr error) {
		v, _ := r.pendingResolve.LoadAndDelete(key)
		var queued = *(v.(*[]queuedSend))

		r.pendingCount.Add(-int64(len(queued)))
		ops.XrlRouterPendingResolves.Set(float64(r.pendingCount.Load()))

		if ferr != nil {
			for _, q := range queued {
				q.callback(wire.RESOLVE_FAILED, ferr.Error(), nil)
			}
			return
		}
		r.cache.Add(key, resolution)
		for _, q := range queued {
			r.dispatch(resolution, q.x, q.callback)
		}
	})
}

func (r *Router) dispatch(resolution xrl.Resolution, x xrl.Xrl, callback SendCallback) {
	head, ok := resolution.Head()
	if !ok {
		callback(wire.RESOLVE_FAILED, "xrlrouter: empty resolution", nil)
		return
	}

	conn, err := r.connectionFor(head)
	if err != nil {
		callback(wire.TRANSPORT_FAILED, err.Error(), nil)
		return
	}

	r.sendCount.Add(1)
	ops.XrlRouterPendingSends.Set(float64(r.sendCount.Load()))

	var resolved = xrl.New(head.Target, head.Command, x.Args()...)
	conn.Send(resolved, func(code wire.ErrorCode, note string, args []xrl.Atom) {
		r.sendCount.Add(-1)
		ops.XrlRouterPendingSends.Set(float64(r.sendCount.Load()))
		callback(code, note, args)
	})
}

// connectionFor returns a live Messenger to head's protocol endpoint,
// dialing and caching a new one if needed. Only the "tcp" protocol family
// is implemented.
func (r *Router) connectionFor(head xrl.Resolved) (*messenger.Messenger, error) {
	if head.Protocol != "tcp" {
		return nil, fmt.Errorf("xrlrouter: unsupported protocol family %q", head.Protocol)
	}

	r.connMu.Lock()
	defer r.connMu.Unlock()

	if m, ok := r.conns[head.ProtocolArgs]; ok {
		return m, nil
	}

	conn, err := net.Dial("tcp", head.ProtocolArgs)
	if err != nil {
		return nil, fmt.Errorf("xrlrouter: dialing %s: %w", head.ProtocolArgs, err)
	}
	var addr = head.ProtocolArgs
	var mgr = &connPoolManager{r: r, addr: addr}
	m := messenger.NewOverCarrier(conn, r.cfg.CarrierConfig, cmdmap.New(), mgr, addr)
	r.conns[addr] = m
	return m, nil
}

// connPoolManager evicts a dead connection from Router.conns so a future
// Send redials rather than reusing a closed Messenger.
type connPoolManager struct {
	r    *Router
	addr string
}

func (m *connPoolManager) OnMessengerDeath(*messenger.Messenger, error) {
	m.r.connMu.Lock()
	delete(m.r.conns, m.addr)
	m.r.connMu.Unlock()
}

// PurgeCache drops the cached resolution for target/command, causing a
// future Send to re-resolve. This is the effect of a Finder-pushed
// remove-from-cache hint or target death.
func (r *Router) PurgeCache(target, command string) {
	r.cache.Remove(xrl.New(target, command).Key())
}

// PurgeCacheForTarget drops every cached resolution for target.
func (r *Router) PurgeCacheForTarget(target string) {
	for _, key := range r.cache.Keys() {
		if keyTarget(key) == target {
			r.cache.Remove(key)
		}
	}
}

func keyTarget(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i]
		}
	}
	return key
}
