package finder

import (
	"github.com/xorpgo/fabric/messenger"
	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// RegisterClient implements register_client(target, class, singleton,
// in_cookie). in_cookie, if non-empty and still valid for
// target/class under this Finder's current generation, lets a client that
// reconnected after a transient carrier drop re-register idempotently
// rather than being rejected as ALREADY_REGISTERED.
func (f *Finder) RegisterClient(owner *messenger.Messenger, target, class string, singleton bool, inCookie string) (cookie string, err *Error) {
	f.mu.Lock()

	if existing, ok := f.targets[target]; ok {
		if inCookie != "" {
			if _, verr := f.minter.VerifyForTarget(inCookie, target); verr == nil && existing.class == class {
				existing.owner = owner
				f.indexOwner(owner, target)
				f.mu.Unlock()
				return existing.cookie, nil
			}
		}
		f.mu.Unlock()
		return "", errf(wire.COMMAND_FAILED, "%s: target %q", NoteAlreadyRegistered, target)
	}

	cls, ok := f.classes[class]
	if !ok {
		cls = &classEntry{}
		f.classes[class] = cls
	}
	if cls.singleton && len(cls.instances) > 0 {
		f.mu.Unlock()
		return "", errf(wire.COMMAND_FAILED, "%s: class %q already has an instance", NoteSingletonViolation, class)
	}
	if singleton && len(cls.instances) > 0 {
		f.mu.Unlock()
		return "", errf(wire.COMMAND_FAILED, "%s: class %q already has an instance", NoteSingletonViolation, class)
	}

	minted, merr := f.minter.Mint(target, class)
	if merr != nil {
		f.mu.Unlock()
		return "", errf(wire.INTERNAL_ERROR, "minting cookie: %v", merr)
	}

	cls.singleton = singleton
	cls.instances = append(cls.instances, target)
	f.targets[target] = &targetEntry{
		class:           class,
		cookie:          minted,
		owner:           owner,
		resolutions:     make(map[string][]xrl.Resolved),
		classWatches:    make(map[string]bool),
		instanceWatches: make(map[string]bool),
	}
	f.indexOwner(owner, target)
	f.mu.Unlock()

	return minted, nil
}

func (f *Finder) indexOwner(owner *messenger.Messenger, target string) {
	if owner == nil {
		return
	}
	set, ok := f.ownedByMessenger[owner]
	if !ok {
		set = make(map[string]bool)
		f.ownedByMessenger[owner] = set
	}
	set[target] = true
}

func (f *Finder) unindexOwner(owner *messenger.Messenger, target string) {
	if owner == nil {
		return
	}
	if set, ok := f.ownedByMessenger[owner]; ok {
		delete(set, target)
	}
}

// UnregisterClient implements unregister_client(target):
// removes target if caller owns it, emits DEATH if it was enabled, revokes
// resolutions, and purges any watches target itself held.
func (f *Finder) UnregisterClient(caller *messenger.Messenger, target string) *Error {
	f.mu.Lock()
	t, ok := f.targets[target]
	if !ok {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: target %q", NoteUnknown, target)
	}
	if t.owner != caller {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: target %q", NoteNotOwned, target)
	}
	f.mu.Unlock()

	f.removeTarget(target)
	return nil
}

// removeTarget is the common tail of UnregisterClient and the messenger-
// death cascade: remove from target/class tables, enqueue DEATH if it was
// enabled, broadcast a remove-all-xrls-for-target invalidation.
func (f *Finder) removeTarget(target string) {
	f.mu.Lock()
	t, ok := f.targets[target]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(f.targets, target)
	f.unindexOwner(t.owner, target)

	if cls, ok := f.classes[t.class]; ok {
		cls.instances = removeString(cls.instances, target)
		if len(cls.instances) == 0 {
			delete(f.classes, t.class)
		}
	}

	var wasEnabled = t.enabled
	var class = t.class
	if wasEnabled {
		f.enqueueEvent(Event{Kind: Death, Class: class, Instance: target})
	}
	f.mu.Unlock()

	if wasEnabled {
		f.drainEvents()
	}
	if f.invalidator != nil {
		f.invalidator.InvalidateTarget(target)
	}
}

func removeString(ss []string, s string) []string {
	var out = ss[:0]
	for _, x := range ss {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

// SetClientEnabled implements set_client_enabled(target, flag): toggles enabled state; a transition generates BIRTH or DEATH.
func (f *Finder) SetClientEnabled(caller *messenger.Messenger, target string, enabled bool) *Error {
	f.mu.Lock()
	t, ok := f.targets[target]
	if !ok {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: target %q", NoteUnknown, target)
	}
	if t.owner != caller {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: target %q", NoteNotOwned, target)
	}
	if t.enabled == enabled {
		f.mu.Unlock()
		return nil // No transition, no event, idempotent.
	}
	t.enabled = enabled
	var class = t.class
	if enabled {
		f.enqueueEvent(Event{Kind: Birth, Class: class, Instance: target})
	} else {
		f.enqueueEvent(Event{Kind: Death, Class: class, Instance: target})
	}
	f.mu.Unlock()

	f.drainEvents()
	return nil
}

// AddXrl implements add_xrl(unresolved, protocol, args):
// appends a resolution for caller's target, returning the resolved
// command name with an unguessable suffix.
func (f *Finder) AddXrl(caller *messenger.Messenger, target string, unresolved xrl.Xrl, protocol, protocolArgs string) (resolvedCommand string, ferr *Error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.targets[target]
	if !ok {
		return "", errf(wire.COMMAND_FAILED, "%s: target %q", NoteUnknown, target)
	}
	if t.owner != caller {
		return "", errf(wire.COMMAND_FAILED, "%s: target %q", NoteNotOwned, target)
	}
	if unresolved.Command() == "" {
		return "", errf(wire.COMMAND_FAILED, "%s: empty command", NoteBadXrl)
	}

	var command = unresolved.Command()

	// Duplicate (same target, unresolved, resolved) is idempotent.
	for _, r := range t.resolutions[command] {
		if r.Protocol == protocol && r.ProtocolArgs == protocolArgs {
			return r.Command, nil
		}
	}

	suffix, err := randomSuffix()
	if err != nil {
		return "", errf(wire.INTERNAL_ERROR, "generating suffix: %v", err)
	}
	var resolved = command + "+" + suffix

	t.resolutions[command] = append(t.resolutions[command], xrl.Resolved{
		Protocol:     protocol,
		ProtocolArgs: protocolArgs,
		Target:       target,
		Command:      resolved,
		Args:         unresolved.Args(),
	})

	return resolved, nil
}

// RemoveXrl implements remove_xrl(unresolved): removes all
// resolutions for unresolved under caller's target, broadcasting a
// remove-from-cache hint to every messenger.
func (f *Finder) RemoveXrl(caller *messenger.Messenger, target string, unresolved xrl.Xrl) *Error {
	f.mu.Lock()
	t, ok := f.targets[target]
	if !ok {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: target %q", NoteUnknown, target)
	}
	if t.owner != caller {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: target %q", NoteNotOwned, target)
	}
	var command = unresolved.Command()
	if _, ok := t.resolutions[command]; !ok {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: command %q", NoteUnknown, command)
	}
	delete(t.resolutions, command)
	f.mu.Unlock()

	if f.invalidator != nil {
		f.invalidator.InvalidateXrl(target, command)
	}
	return nil
}

// ResolveXrl implements resolve_xrl(unresolved): returns
// the resolution list for target's command if target exists and is
// enabled.
func (f *Finder) ResolveXrl(target string, unresolved xrl.Xrl) (xrl.Resolution, *Error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.targets[target]
	if !ok {
		return nil, errf(wire.COMMAND_FAILED, "%s: target %q", NoteNoTarget, target)
	}
	if !t.enabled {
		return nil, errf(wire.COMMAND_FAILED, "%s: target %q", NoteNotEnabled, target)
	}
	resolved, ok := t.resolutions[unresolved.Command()]
	if !ok || len(resolved) == 0 {
		return nil, errf(wire.COMMAND_FAILED, "%s: command %q", NoteNoResolution, unresolved.Command())
	}
	return append(xrl.Resolution(nil), resolved...), nil
}

// WatchClass implements watch_class(class): adds watcher
// to class's watcher set and immediately replays a BIRTH per current
// enabled instance.
func (f *Finder) WatchClass(watcher, class string) *Error {
	f.mu.Lock()
	w, ok := f.targets[watcher]
	if !ok {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: watcher target %q", NoteUnknown, watcher)
	}
	// A class may be watched before its first instance ever registers;
	// vivify it lazily rather than rejecting with
	// NO_CLASS, which is reserved for an invalid (empty) class name.
	if class == "" {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: empty class name", NoteNoClass)
	}
	cls, ok := f.classes[class]
	if !ok {
		cls = &classEntry{}
		f.classes[class] = cls
	}
	w.classWatches[class] = true

	var replay []string
	for _, inst := range cls.instances {
		if t, ok := f.targets[inst]; ok && t.enabled {
			replay = append(replay, inst)
		}
	}
	f.mu.Unlock()

	for _, inst := range replay {
		if f.notifier != nil {
			f.notifier.NotifyEvent(watcher, Event{Kind: Birth, Class: class, Instance: inst})
		}
	}
	return nil
}

// WatchInstance implements watch_instance(instance).
func (f *Finder) WatchInstance(watcher, instance string) *Error {
	f.mu.Lock()
	w, ok := f.targets[watcher]
	if !ok {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: watcher target %q", NoteUnknown, watcher)
	}
	target, ok := f.targets[instance]
	if !ok {
		f.mu.Unlock()
		return errf(wire.COMMAND_FAILED, "%s: instance %q", NoteNoInstance, instance)
	}
	w.instanceWatches[instance] = true
	var class = target.class
	var enabled = target.enabled
	f.mu.Unlock()

	if enabled && f.notifier != nil {
		f.notifier.NotifyEvent(watcher, Event{Kind: Birth, Class: class, Instance: instance})
	}
	return nil
}

// UnwatchClass implements unwatch_class(class).
func (f *Finder) UnwatchClass(watcher, class string) *Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.targets[watcher]
	if !ok {
		return errf(wire.COMMAND_FAILED, "%s: watcher target %q", NoteUnknown, watcher)
	}
	delete(w.classWatches, class)
	return nil
}

// UnwatchInstance implements unwatch_instance(instance).
func (f *Finder) UnwatchInstance(watcher, instance string) *Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.targets[watcher]
	if !ok {
		return errf(wire.COMMAND_FAILED, "%s: watcher target %q", NoteUnknown, watcher)
	}
	delete(w.instanceWatches, instance)
	return nil
}
