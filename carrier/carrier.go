// Package carrier implements the L0 framed message carrier:
// a reliable, ordered byte stream (TCP) carrying length-prefixed messages,
// with backpressure and graceful, single-use teardown.
package carrier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// ErrBackpressure is returned by Send when the configured high-water mark
// of buffered-but-unwritten bytes would be exceeded.
var ErrBackpressure = errors.New("carrier: backpressure: high-water mark exceeded")

// DefaultMaxPayload is the default frame payload ceiling.
const DefaultMaxPayload = 8 * 1024

// DefaultHighWaterMark bounds the writer queue before Send starts
// rejecting with ErrBackpressure.
const DefaultHighWaterMark = 1 << 20 // 1 MiB

const lengthPrefixSize = 4

// Config tunes a Carrier's framing limits.
type Config struct {
	// MaxPayload is the largest payload accepted on read, or sent on
	// write; frames over this size cause the carrier to reject-and-close.
	// Zero means DefaultMaxPayload.
	MaxPayload uint32
	// HighWaterMark is the buffered-byte threshold above which Send
	// returns ErrBackpressure rather than enqueueing more. Zero means
	// DefaultHighWaterMark.
	HighWaterMark int64
}

func (c Config) withDefaults() Config {
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	if c.HighWaterMark == 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
	return c
}

// MessageHandler is invoked, in order, exactly once per fully-assembled
// inbound message.
type MessageHandler func(payload []byte)

// CloseHandler is invoked exactly once, after any prior inbound messages,
// once the carrier has torn down (locally or by the peer).
type CloseHandler func(reason error)

// Carrier is one endpoint of a framed byte-stream connection. A Carrier is
// single-use: once closed (locally, by the peer, or by a protocol error)
// it must be discarded.
//
// Callers must not mutate a buffer passed
// to Send after Send returns. Send itself copies the payload into a fresh
// frame before returning, so the writer goroutine never reads the
// caller's buffer.
type Carrier struct {
	conn net.Conn
	cfg  Config

	onMessage MessageHandler
	onClose   CloseHandler

	writeCh   chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	buffered atomic.Int64
	closed   atomic.Bool

	log *log.Entry
}

// New wraps conn as a Carrier. Start must be called once to begin pumping
// reads and writes.
func New(conn net.Conn, cfg Config, onMessage MessageHandler, onClose CloseHandler) *Carrier {
	cfg = cfg.withDefaults()
	return &Carrier{
		conn:      conn,
		cfg:       cfg,
		onMessage: onMessage,
		onClose:   onClose,
		writeCh:   make(chan []byte, 64),
		closeCh:   make(chan struct{}),
		log: log.WithFields(log.Fields{
			"component":  "carrier",
			"remoteAddr": conn.RemoteAddr(),
		}),
	}
}

// Start launches the reader and writer goroutines. The carrier is ready
// to Send and to deliver MessageHandler/CloseHandler callbacks once this
// returns.
func (c *Carrier) Start() {
	go c.writeLoop()
	go c.readLoop()
}

// Send enqueues payload for transmission. It fails with ErrBackpressure
// only if the high-water mark would be exceeded. The writer queue holds
// at most 64 frames: while it is full, Send blocks until the writer
// goroutine takes a frame or the carrier closes, and does not return
// ErrBackpressure for that. The caller must not mutate payload after
// calling Send.
func (c *Carrier) Send(payload []byte) error {
	if c.closed.Load() {
		return fmt.Errorf("carrier: send on closed carrier")
	}
	if uint32(len(payload)) > c.cfg.MaxPayload {
		return fmt.Errorf("carrier: payload of %d bytes exceeds max %d", len(payload), c.cfg.MaxPayload)
	}
	if c.buffered.Add(int64(len(payload))) > c.cfg.HighWaterMark {
		c.buffered.Add(-int64(len(payload)))
		return ErrBackpressure
	}

	var framed = make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(framed, uint32(len(payload)))
	copy(framed[lengthPrefixSize:], payload)

	select {
	case c.writeCh <- framed:
		return nil
	case <-c.closeCh:
		c.buffered.Add(-int64(len(payload)))
		return fmt.Errorf("carrier: send on closed carrier")
	}
}

// Close tears the carrier down from the local side. It is safe to call
// more than once and safe to call concurrently with Send.
func (c *Carrier) Close() error {
	return c.closeWithReason(nil)
}

func (c *Carrier) closeWithReason(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeCh)
		err = c.conn.Close()
		if c.onClose != nil {
			c.onClose(reason)
		}
	})
	return err
}

func (c *Carrier) writeLoop() {
	for {
		select {
		case framed := <-c.writeCh:
			c.buffered.Add(-int64(len(framed) - lengthPrefixSize))
			if _, err := c.conn.Write(framed); err != nil {
				c.closeWithReason(fmt.Errorf("carrier: write: %w", err))
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Carrier) readLoop() {
	var lenBuf [lengthPrefixSize]byte
	for {
		if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
			c.closeWithReason(closeReason(err))
			return
		}
		var length = binary.BigEndian.Uint32(lenBuf[:])
		if length > c.cfg.MaxPayload {
			c.log.WithField("length", length).Warn("carrier: inbound frame exceeds max payload, closing")
			c.closeWithReason(fmt.Errorf("carrier: inbound frame of %d bytes exceeds max %d", length, c.cfg.MaxPayload))
			return
		}

		var payload = make([]byte, length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			c.closeWithReason(closeReason(err))
			return
		}
		if c.onMessage != nil {
			c.onMessage(payload)
		}
	}
}

func closeReason(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("carrier: read: %w", err)
}
