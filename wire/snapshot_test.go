package wire_test

import (
	"fmt"
	"testing"

	"github.com/bradleyjkemp/cupaloy"

	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// These pin the on-wire byte layout: any accidental change to field
// order, varint framing, or tag values shows up as a snapshot diff
// instead of silently producing bytes an older participant can no
// longer decode.
func TestEncodeRequestSnapshot(t *testing.T) {
	req := wire.Request{Seqno: 42, Xrl: xrl.New("bgp", "get_best_route")}
	cupaloy.SnapshotT(t, fmt.Sprintf("% x", wire.EncodeRequest(req)))
}

func TestEncodeReplySnapshot(t *testing.T) {
	rep := wire.ReplyMsg{
		Seqno: 7,
		Error: wire.COMMAND_FAILED,
		Note:  "destination unreachable",
		Args:  []xrl.Atom{xrl.NewI32Atom("code", 501)},
	}
	cupaloy.SnapshotT(t, fmt.Sprintf("% x", wire.EncodeReply(rep)))
}

func TestEncodeHelloSnapshot(t *testing.T) {
	cupaloy.SnapshotT(t, fmt.Sprintf("% x", wire.EncodeHello()))
}

func TestEncodeByeSnapshot(t *testing.T) {
	cupaloy.SnapshotT(t, fmt.Sprintf("% x", wire.EncodeBye(wire.Bye{Reason: "shutting down"})))
}
