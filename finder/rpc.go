package finder

import (
	"github.com/xorpgo/fabric/cmdmap"
	"github.com/xorpgo/fabric/messenger"
	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// BindConnection registers the Finder's RPC surface into cmds, scoped
// to caller: every handler treats
// caller as the owning identity for ownership checks (NOT_OWNED). One
// CommandMap is built per accepted connection (see cmd/finder), since the
// Finder's caller-ownership model requires each connection's handlers to
// close over that connection's own Messenger.
func BindConnection(cmds *cmdmap.CommandMap, f *Finder, caller *messenger.Messenger) error {
	var adds = []struct {
		name string
		h    cmdmap.Handler
	}{
		{"register_client", f.rpcRegisterClient(caller)},
		{"unregister_client", f.rpcUnregisterClient(caller)},
		{"set_client_enabled", f.rpcSetClientEnabled(caller)},
		{"add_xrl", f.rpcAddXrl(caller)},
		{"remove_xrl", f.rpcRemoveXrl(caller)},
		{"resolve_xrl", f.rpcResolveXrl()},
		{"watch_class", f.rpcWatchClass()},
		{"watch_instance", f.rpcWatchInstance()},
		{"unwatch_class", f.rpcUnwatchClass()},
		{"unwatch_instance", f.rpcUnwatchInstance()},
	}
	for _, a := range adds {
		if err := cmds.Add(a.name, a.h); err != nil {
			return err
		}
	}
	return nil
}

func argTxt(x xrl.Xrl, name string) string {
	a, ok := x.Arg(name)
	if !ok {
		return ""
	}
	return a.Txt()
}

func argBool(x xrl.Xrl, name string) bool {
	a, ok := x.Arg(name)
	if !ok {
		return false
	}
	return a.Bool()
}

func finderErrReply(err *Error) (wire.ErrorCode, string, []xrl.Atom) {
	return err.Code, err.Note, nil
}

func (f *Finder) rpcRegisterClient(caller *messenger.Messenger) cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		target := argTxt(x, "target")
		class := argTxt(x, "class")
		singleton := argBool(x, "singleton")
		inCookie := argTxt(x, "in_cookie")

		cookie, err := f.RegisterClient(caller, target, class, singleton, inCookie)
		if err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", []xrl.Atom{xrl.NewTxtAtom("cookie", cookie)}
	}
}

func (f *Finder) rpcUnregisterClient(caller *messenger.Messenger) cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		if err := f.UnregisterClient(caller, argTxt(x, "target")); err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", nil
	}
}

func (f *Finder) rpcSetClientEnabled(caller *messenger.Messenger) cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		if err := f.SetClientEnabled(caller, argTxt(x, "target"), argBool(x, "enabled")); err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", nil
	}
}

func (f *Finder) rpcAddXrl(caller *messenger.Messenger) cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		unresolved, perr := xrl.Parse(argTxt(x, "unresolved"))
		if perr != nil {
			return wire.BAD_ARGS, perr.Error(), nil
		}
		resolved, err := f.AddXrl(caller, argTxt(x, "target"), unresolved, argTxt(x, "protocol"), argTxt(x, "protocol_args"))
		if err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", []xrl.Atom{xrl.NewTxtAtom("resolved", resolved)}
	}
}

func (f *Finder) rpcRemoveXrl(caller *messenger.Messenger) cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		unresolved, perr := xrl.Parse(argTxt(x, "unresolved"))
		if perr != nil {
			return wire.BAD_ARGS, perr.Error(), nil
		}
		if err := f.RemoveXrl(caller, argTxt(x, "target"), unresolved); err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", nil
	}
}

func (f *Finder) rpcResolveXrl() cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		unresolved, perr := xrl.Parse(argTxt(x, "unresolved"))
		if perr != nil {
			return wire.BAD_ARGS, perr.Error(), nil
		}
		resolution, err := f.ResolveXrl(argTxt(x, "target"), unresolved)
		if err != nil {
			return finderErrReply(err)
		}
		var elems = make([]xrl.Atom, len(resolution))
		for i, r := range resolution {
			elems[i] = xrl.NewTxtAtom("", r.String())
		}
		return wire.OKAY, "", []xrl.Atom{xrl.NewListAtom("resolution", elems)}
	}
}

func (f *Finder) rpcWatchClass() cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		if err := f.WatchClass(argTxt(x, "target"), argTxt(x, "class")); err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", nil
	}
}

func (f *Finder) rpcWatchInstance() cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		if err := f.WatchInstance(argTxt(x, "target"), argTxt(x, "instance")); err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", nil
	}
}

func (f *Finder) rpcUnwatchClass() cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		if err := f.UnwatchClass(argTxt(x, "target"), argTxt(x, "class")); err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", nil
	}
}

func (f *Finder) rpcUnwatchInstance() cmdmap.Handler {
	return func(x xrl.Xrl) (wire.ErrorCode, string, []xrl.Atom) {
		if err := f.UnwatchInstance(argTxt(x, "target"), argTxt(x, "instance")); err != nil {
			return finderErrReply(err)
		}
		return wire.OKAY, "", nil
	}
}
