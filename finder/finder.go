// Package finder implements the Finder registry: the
// directory and event bus every other component resolves names and
// watches class/instance birth and death through.
package finder

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xorpgo/fabric/identity"
	"github.com/xorpgo/fabric/messenger"
	"github.com/xorpgo/fabric/ops"
	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// Error is the typed outcome of a rejected Finder operation.
type Error struct {
	Code wire.ErrorCode
	Note string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Note) }

func errf(code wire.ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Note: fmt.Sprintf(format, args...)}
}

// Finder-specific error codes beyond the shared wire.ErrorCode enum are
// expressed as COMMAND_FAILED with a distinguishing note, keeping the
// shared enum to the transport-level codes; ALREADY_REGISTERED,
// SINGLETON_VIOLATION, NOT_OWNED, BAD_XRL, UNKNOWN, NO_TARGET, NOT_ENABLED,
// NO_RESOLUTION, NO_CLASS and NO_INSTANCE are all reported this way.
const (
	NoteAlreadyRegistered   = "ALREADY_REGISTERED"
	NoteSingletonViolation  = "SINGLETON_VIOLATION"
	NoteNotOwned            = "NOT_OWNED"
	NoteBadXrl              = "BAD_XRL"
	NoteUnknown             = "UNKNOWN"
	NoteNoTarget            = "NO_TARGET"
	NoteNotEnabled          = "NOT_ENABLED"
	NoteNoResolution        = "NO_RESOLUTION"
	NoteNoClass             = "NO_CLASS"
	NoteNoInstance          = "NO_INSTANCE"
)

// EventKind distinguishes a target lifecycle event.
type EventKind int

const (
	Birth EventKind = iota
	Death
)

func (k EventKind) String() string {
	if k == Birth {
		return "BIRTH"
	}
	return "DEATH"
}

// Event is a pending class/instance lifecycle notification, queued FIFO
// and drained to every matching watcher.
type Event struct {
	Kind     EventKind
	Class    string
	Instance string
}

// targetEntry is one row of the target table.
type targetEntry struct {
	class   string
	cookie  string
	enabled bool
	owner   *messenger.Messenger // the messenger that registered this target

	// resolutions maps an unresolved command name to the ordered list of
	// resolved Xrls registered against it via add_xrl.
	resolutions map[string][]xrl.Resolved

	classWatches    map[string]bool // classes this target watches
	instanceWatches map[string]bool // instances this target watches
}

// classEntry is one row of the class table.
type classEntry struct {
	singleton bool
	instances []string // retained in registration order
}

// Notifier delivers a lifecycle event to one watching target. The Finder
// is transport-agnostic about how a notification reaches a watcher: in
// this repo it is always routed back out through that watcher's owning
// Messenger as an outbound RPC, but tests may install a Notifier that
// just records events.
type Notifier interface {
	NotifyEvent(watcherTarget string, ev Event)
}

// CacheInvalidator broadcasts a resolution-cache invalidation hint to
// every live messenger, independent of watch registrations: remove_xrl
// broadcasts a remove-from-cache hint, and target removal broadcasts a
// remove-all-xrls-for-target hint. XrlRouter implements this to purge
// its resolution cache.
type CacheInvalidator interface {
	InvalidateXrl(target, command string)
	InvalidateTarget(target string)
}

// Finder is the registry and event bus. The zero value is not usable;
// construct with New.
type Finder struct {
	mu sync.Mutex

	targets map[string]*targetEntry
	classes map[string]*classEntry

	events []Event

	minter      *identity.Minter
	notifier    Notifier
	invalidator CacheInvalidator

	// ownedByMessenger indexes target names by owning messenger for O(1)
	// cascade removal on messenger death.
	ownedByMessenger map[*messenger.Messenger]map[string]bool

	log *log.Entry
}

// New returns an empty Finder. signingKey and generation seed the
// identity.Minter that mints per-registration cookies; notifier receives watch/birth/death deliveries; invalidator
// (may be nil) receives resolution-cache invalidation broadcasts.
func New(signingKey []byte, generation uint64, notifier Notifier, invalidator CacheInvalidator) *Finder {
	return &Finder{
		targets:          make(map[string]*targetEntry),
		classes:          make(map[string]*classEntry),
		minter:           identity.NewMinter(signingKey, generation),
		notifier:         notifier,
		invalidator:      invalidator,
		ownedByMessenger: make(map[*messenger.Messenger]map[string]bool),
		log:              ops.Component("finder"),
	}
}

// SetNotifier installs the Notifier used for watch/birth/death delivery.
// Needed because the usual Notifier implementation (Server) itself wraps
// a *Finder, so it must be constructed after New.
func (f *Finder) SetNotifier(n Notifier) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifier = n
}

// SetCacheInvalidator installs the CacheInvalidator used for remove-xrl
// and target-removal cache-invalidation broadcasts.
func (f *Finder) SetCacheInvalidator(inv CacheInvalidator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidator = inv
}

// ownerMessenger returns the Messenger that owns target's registration,
// used by Server to route a push notification back to the right
// connection.
func (f *Finder) ownerMessenger(target string) (*messenger.Messenger, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[target]
	if !ok || t.owner == nil {
		return nil, false
	}
	return t.owner, true
}

// randomSuffix returns an unguessable hex suffix appended to a resolved
// command name at registration time.
func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// OnMessengerDeath implements messenger.Manager: losing a messenger
// removes every target it owned, cascading DEATH events.
func (f *Finder) OnMessengerDeath(m *messenger.Messenger, reason error) {
	f.mu.Lock()
	owned := f.ownedByMessenger[m]
	delete(f.ownedByMessenger, m)
	var names = make([]string, 0, len(owned))
	for name := range owned {
		names = append(names, name)
	}
	f.mu.Unlock()

	for _, name := range names {
		f.log.WithField("target", name).Info("finder: owning messenger died, removing target")
		f.removeTarget(name)
	}
}

// drainEvents broadcasts all currently-queued events to every watcher,
// then empties the queue. Called with f.mu NOT held (it locks f.mu itself
// while popping each event and collecting its watchers, and releases it
// before notifying) after any state transition that enqueued events.
func (f *Finder) drainEvents() {
	for {
		f.mu.Lock()
		if len(f.events) == 0 {
			f.mu.Unlock()
			return
		}
		ev := f.events[0]
		f.events = f.events[1:]
		ops.FinderEventQueueDepth.Set(float64(len(f.events)))

		var watchers []string
		for name, t := range f.targets {
			if t.classWatches[ev.Class] || t.instanceWatches[ev.Instance] {
				watchers = append(watchers, name)
			}
		}
		f.mu.Unlock()

		for _, w := range watchers {
			if f.notifier != nil {
				f.notifier.NotifyEvent(w, ev)
			}
		}
	}
}

func (f *Finder) enqueueEvent(ev Event) {
	f.events = append(f.events, ev)
	ops.FinderEventQueueDepth.Set(float64(len(f.events)))
}

// Snapshot renders a deterministic text summary of the target and class
// tables, sorted by key. No RPC exposes it; tests use it to assert the
// registry round-trips to its pre-registration state: register then
// unregister leaves it byte-identical to the pre-register snapshot.
func (f *Finder) Snapshot() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var targetNames = make([]string, 0, len(f.targets))
	for name := range f.targets {
		targetNames = append(targetNames, name)
	}
	sort.Strings(targetNames)

	var classNames = make([]string, 0, len(f.classes))
	for name := range f.classes {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)

	var sb strings.Builder
	for _, name := range targetNames {
		t := f.targets[name]
		var cmdNames = make([]string, 0, len(t.resolutions))
		for c := range t.resolutions {
			cmdNames = append(cmdNames, c)
		}
		sort.Strings(cmdNames)
		fmt.Fprintf(&sb, "target %s class=%s enabled=%v resolutions=%v\n", name, t.class, t.enabled, cmdNames)
	}
	for _, name := range classNames {
		c := f.classes[name]
		fmt.Fprintf(&sb, "class %s singleton=%v instances=%v\n", name, c.singleton, c.instances)
	}
	return sb.String()
}
