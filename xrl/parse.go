package xrl

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Parse parses the unresolved Xrl wire syntax:
// target_name/command_name?name1:type1=value1&name2:type2=value2&...
func Parse(s string) (Xrl, error) {
	var slash = strings.IndexByte(s, '/')
	if slash < 0 {
		return Xrl{}, fmt.Errorf("xrl: missing '/' separating target from command in %q", s)
	}
	var target = s[:slash]
	var rest = s[slash+1:]

	var command, argsPart string
	if q := strings.IndexByte(rest, '?'); q >= 0 {
		command, argsPart = rest[:q], rest[q+1:]
	} else {
		command = rest
	}
	if target == "" {
		return Xrl{}, fmt.Errorf("xrl: empty target in %q", s)
	}
	if command == "" {
		return Xrl{}, fmt.Errorf("xrl: empty command in %q", s)
	}

	var args []Atom
	if argsPart != "" {
		for _, field := range splitUnescaped(argsPart, '&') {
			a, err := parseAtom(field)
			if err != nil {
				return Xrl{}, fmt.Errorf("xrl: parsing %q: %w", s, err)
			}
			args = append(args, a)
		}
	}
	return New(target, command, args...), nil
}

// ParseResolved parses the resolved Xrl wire syntax:
// protocol_family://protocol_args/target_name/command_name?args...
func ParseResolved(s string) (Resolved, error) {
	var schemeSep = strings.Index(s, "://")
	if schemeSep < 0 {
		return Resolved{}, fmt.Errorf("xrl: missing '://' in resolved xrl %q", s)
	}
	var protocol = s[:schemeSep]
	var rest = s[schemeSep+3:]

	var slash = strings.IndexByte(rest, '/')
	if slash < 0 {
		return Resolved{}, fmt.Errorf("xrl: missing protocol-args terminator in %q", s)
	}
	var protoArgs = rest[:slash]

	inner, err := Parse(rest[slash+1:])
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{
		Protocol:     protocol,
		ProtocolArgs: protoArgs,
		Target:       inner.target,
		Command:      inner.command,
		Args:         inner.args,
	}, nil
}

// splitUnescaped splits s on sep, except inside a bracketed [...] list
// value. A txt atom value never holds a raw '&' because escapeTxt
// percent-encodes it; other characters are not treated specially.
func splitUnescaped(s string, sep byte) []string {
	var out []string
	var start int
	var depth int // bracket depth, for list<T> atom values containing sep-like chars
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		default:
			if s[i] == sep && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// parseAtom parses a single "name:type=value" field.
func parseAtom(field string) (Atom, error) {
	var colon = strings.IndexByte(field, ':')
	if colon < 0 {
		return Atom{}, fmt.Errorf("atom %q missing ':'", field)
	}
	var name = field[:colon]
	var rest = field[colon+1:]

	var eq = strings.IndexByte(rest, '=')
	if eq < 0 {
		return Atom{}, fmt.Errorf("atom %q missing '='", field)
	}
	var typeStr, valueStr = rest[:eq], rest[eq+1:]

	typ, err := typeFromString(typeStr)
	if err != nil {
		return Atom{}, err
	}
	return parseAtomValue(name, typ, valueStr)
}

func parseAtomValue(name string, typ Type, value string) (Atom, error) {
	switch typ {
	case TypeI32:
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewI32Atom(name, int32(v)), nil
	case TypeU32:
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewU32Atom(name, uint32(v)), nil
	case TypeI64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewI64Atom(name, v), nil
	case TypeBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewBoolAtom(name, v), nil
	case TypeIPv4:
		ip := net.ParseIP(value)
		if ip == nil || ip.To4() == nil {
			return Atom{}, fmt.Errorf("atom %q: invalid ipv4 %q", name, value)
		}
		return NewIPv4Atom(name, ip), nil
	case TypeIPv6:
		ip := net.ParseIP(value)
		if ip == nil {
			return Atom{}, fmt.Errorf("atom %q: invalid ipv6 %q", name, value)
		}
		return NewIPv6Atom(name, ip), nil
	case TypeIPv4Net, TypeIPv6Net:
		_, ipn, err := net.ParseCIDR(value)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		if typ == TypeIPv4Net {
			return NewIPv4NetAtom(name, ipn), nil
		}
		return NewIPv6NetAtom(name, ipn), nil
	case TypeMAC:
		mac, err := net.ParseMAC(value)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewMACAtom(name, mac), nil
	case TypeTxt:
		s, err := unescapeTxt(value)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewTxtAtom(name, s), nil
	case TypeBinary:
		if !strings.HasPrefix(value, "0x") {
			return Atom{}, fmt.Errorf("atom %q: binary value must start with 0x", name)
		}
		b, err := hexDecode(value[2:])
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewBinaryAtom(name, b), nil
	case TypeList:
		elems, err := parseListValue(value)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %q: %w", name, err)
		}
		return NewListAtom(name, elems), nil
	default:
		return Atom{}, fmt.Errorf("atom %q: unsupported type %s", name, typ)
	}
}

// parseListValue parses "[e1,e2,...]" where each element is itself a
// "type=value" pair without a name (list elements are unnamed atoms
// sharing the list atom's declared element type isn't tracked separately
// here; each element instead carries its own type tag, matching the
// heterogeneous typed-atom model).
func parseListValue(value string) ([]Atom, error) {
	value = strings.TrimSpace(value)
	if len(value) < 2 || value[0] != '[' || value[len(value)-1] != ']' {
		return nil, fmt.Errorf("list value %q must be bracketed", value)
	}
	var inner = value[1 : len(value)-1]
	if inner == "" {
		return nil, nil
	}
	var fields = splitUnescaped(inner, ',')
	var out = make([]Atom, len(fields))
	for i, f := range fields {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			return nil, fmt.Errorf("list element %q must be type=value", f)
		}
		typ, err := typeFromString(f[:eq])
		if err != nil {
			return nil, err
		}
		a, err := parseAtomValue("", typ, f[eq+1:])
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}
