package xrl

import (
	"fmt"
	"strings"
)

// Xrl is the request identifier used on the wire and in APIs: a structured
// name target/command(args). Xrls are immutable after construction.
type Xrl struct {
	target  string
	command string
	args    []Atom
}

// New constructs an unresolved Xrl. The arg slice is copied so the
// returned Xrl cannot be mutated through the caller's backing array.
func New(target, command string, args ...Atom) Xrl {
	return Xrl{target: target, command: command, args: append([]Atom(nil), args...)}
}

func (x Xrl) Target() string  { return x.target }
func (x Xrl) Command() string { return x.command }

// Args returns a copy of the Xrl's argument list, preserving order.
func (x Xrl) Args() []Atom { return append([]Atom(nil), x.args...) }

// Arg returns the first atom with the given name.
func (x Xrl) Arg(name string) (Atom, bool) {
	for _, a := range x.args {
		if a.name == name {
			return a, true
		}
	}
	return Atom{}, false
}

// Key returns the "target/command" resolution key used by the Finder and
// XrlRouter resolution cache.
func (x Xrl) Key() string { return x.target + "/" + x.command }

// Equal reports whether two Xrls have the same target, command and
// argument list (name, type, value and order).
func (x Xrl) Equal(o Xrl) bool {
	if x.target != o.target || x.command != o.command || len(x.args) != len(o.args) {
		return false
	}
	for i := range x.args {
		if !x.args[i].Equal(o.args[i]) {
			return false
		}
	}
	return true
}

// String renders the Xrl using the unresolved wire syntax:
// target_name/command_name?name1:type1=value1&name2:type2=value2&...
func (x Xrl) String() string {
	var sb strings.Builder
	sb.WriteString(x.target)
	sb.WriteByte('/')
	sb.WriteString(x.command)
	if len(x.args) > 0 {
		sb.WriteByte('?')
		for i, a := range x.args {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(a.String())
		}
	}
	return sb.String()
}

// Resolved is a resolved Xrl: a concrete protocol-family endpoint plus the
// resolved command name (with the Finder's unguessable suffix
// appended).
type Resolved struct {
	Protocol     string
	ProtocolArgs string
	Target       string
	Command      string // resolved command name, including suffix
	Args         []Atom
}

// Xrl reconstructs an Xrl addressed at the resolved endpoint: the
// resolved (suffixed) command name against the original target.
func (r Resolved) Xrl() Xrl {
	return New(r.Target, r.Command, r.Args...)
}

// String renders the resolved wire syntax:
// protocol_family://protocol_args/target_name/command_name?args...
func (r Resolved) String() string {
	var inner = Xrl{target: r.Target, command: r.Command, args: r.Args}
	return fmt.Sprintf("%s://%s/%s", r.Protocol, r.ProtocolArgs, inner.String())
}

// FormatArgs renders an atom list using the same "name:type=value&..."
// syntax used for an Xrl's argument section, without a target/command
// prefix. Used to serialize REPLY args on the wire (see package wire).
func FormatArgs(args []Atom) string {
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(a.String())
	}
	return sb.String()
}

// ParseArgs parses the inverse of FormatArgs.
func ParseArgs(s string) ([]Atom, error) {
	if s == "" {
		return nil, nil
	}
	var out []Atom
	for _, field := range splitUnescaped(s, '&') {
		a, err := parseAtom(field)
		if err != nil {
			return nil, fmt.Errorf("xrl: parsing args %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Resolution is an ordered list of resolved Xrls for one unresolved key.
// Multiple resolutions are retained in insertion order;
// dispatchers take the head.
type Resolution []Resolved

// Head returns the first resolution, or false if the resolution is empty.
func (r Resolution) Head() (Resolved, bool) {
	if len(r) == 0 {
		return Resolved{}, false
	}
	return r[0], true
}
