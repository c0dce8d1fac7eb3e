// Package wire implements the message kinds carried inside each carrier
// frame: REQUEST, REPLY, HELLO and BYE. Each message is a
// short type tag followed by gogo/protobuf's standalone varint codec
// (proto.EncodeVarint/DecodeVarint) length-prefixing the fields that
// follow — the same length-delimited-field idiom protobuf wire format
// uses, without requiring any generated code (see DESIGN.md).
package wire

import (
	"fmt"

	"github.com/gogo/protobuf/proto"

	"github.com/xorpgo/fabric/xrl"
)

// Kind identifies the message carried in a single carrier frame.
type Kind uint8

const (
	KindRequest Kind = iota
	KindReply
	KindHello
	KindBye
)

// Request is an outbound RPC request: {seqno, xrl}.
type Request struct {
	Seqno uint32
	Xrl   xrl.Xrl
}

// ReplyMsg is {seqno, error, note, args}.
type ReplyMsg struct {
	Seqno uint32
	Error ErrorCode
	Note  string
	Args  []xrl.Atom
}

// Bye carries a free-form disconnect reason.
type Bye struct {
	Reason string
}

// EncodeRequest serializes a Request frame payload.
func EncodeRequest(r Request) []byte {
	var out = []byte{byte(KindRequest)}
	out = appendVarint(out, uint64(r.Seqno))
	out = appendString(out, r.Xrl.String())
	return out
}

// EncodeReply serializes a ReplyMsg frame payload.
func EncodeReply(r ReplyMsg) []byte {
	var out = []byte{byte(KindReply)}
	out = appendVarint(out, uint64(r.Seqno))
	out = appendVarint(out, uint64(r.Error))
	out = appendString(out, r.Note)
	out = appendString(out, xrl.FormatArgs(r.Args))
	return out
}

// EncodeHello serializes a HELLO frame payload (empty body).
func EncodeHello() []byte {
	return []byte{byte(KindHello)}
}

// EncodeBye serializes a BYE frame payload.
func EncodeBye(b Bye) []byte {
	var out = []byte{byte(KindBye)}
	out = appendString(out, b.Reason)
	return out
}

// Decode inspects the frame's kind tag and parses the corresponding
// message. The returned value is one of Request, ReplyMsg, struct{}{} (a
// zero-value marker for HELLO) or Bye.
func Decode(frame []byte) (Kind, interface{}, error) {
	if len(frame) == 0 {
		return 0, nil, fmt.Errorf("wire: empty frame")
	}
	var kind = Kind(frame[0])
	var rest = frame[1:]

	switch kind {
	case KindRequest:
		seqno, rest, err := readVarint(rest)
		if err != nil {
			return kind, nil, err
		}
		xrlText, _, err := readString(rest)
		if err != nil {
			return kind, nil, err
		}
		x, err := xrl.Parse(xrlText)
		if err != nil {
			return kind, nil, fmt.Errorf("wire: decoding request xrl: %w", err)
		}
		return kind, Request{Seqno: uint32(seqno), Xrl: x}, nil

	case KindReply:
		seqno, rest, err := readVarint(rest)
		if err != nil {
			return kind, nil, err
		}
		errCode, rest, err := readVarint(rest)
		if err != nil {
			return kind, nil, err
		}
		note, rest, err := readString(rest)
		if err != nil {
			return kind, nil, err
		}
		argsText, _, err := readString(rest)
		if err != nil {
			return kind, nil, err
		}
		args, err := xrl.ParseArgs(argsText)
		if err != nil {
			return kind, nil, fmt.Errorf("wire: decoding reply args: %w", err)
		}
		return kind, ReplyMsg{
			Seqno: uint32(seqno),
			Error: ErrorCode(errCode),
			Note:  note,
			Args:  args,
		}, nil

	case KindHello:
		return kind, struct{}{}, nil

	case KindBye:
		reason, _, err := readString(rest)
		if err != nil {
			return kind, nil, err
		}
		return kind, Bye{Reason: reason}, nil

	default:
		return kind, nil, fmt.Errorf("wire: unknown message kind %d", kind)
	}
}

func appendVarint(b []byte, v uint64) []byte {
	return append(b, proto.EncodeVarint(v)...)
}

func appendString(b []byte, s string) []byte {
	b = appendVarint(b, uint64(len(s)))
	return append(b, s...)
}

func readVarint(b []byte) (uint64, []byte, error) {
	v, n := proto.DecodeVarint(b)
	if n == 0 {
		return 0, nil, fmt.Errorf("wire: truncated varint")
	}
	return v, b[n:], nil
}

func readString(b []byte) (string, []byte, error) {
	l, rest, err := readVarint(b)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < l {
		return "", nil, fmt.Errorf("wire: truncated string field (want %d, have %d)", l, len(rest))
	}
	return string(rest[:l]), rest[l:], nil
}
