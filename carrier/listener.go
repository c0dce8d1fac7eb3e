package carrier

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

// AcceptHandler is invoked for each inbound connection that passes the
// permit list, with a factory that builds a not-yet-Start()-ed Carrier
// over conn from the caller's own MessageHandler/CloseHandler.
type AcceptHandler func(conn net.Conn, newCarrier func(MessageHandler, CloseHandler) *Carrier)

// Listener binds a local address and accepts inbound connections, gating
// each on a PermitList.
type Listener struct {
	ln      net.Listener
	permits *PermitList
	cfg     Config
	log     *log.Entry
}

// Listen binds addr (host:port) and returns a Listener gated by permits.
func Listen(network, addr string, permits *PermitList, cfg Config) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("carrier: listen %s: %w", addr, err)
	}
	return &Listener{
		ln:      ln,
		permits: permits,
		cfg:     cfg.withDefaults(),
		log:     log.WithField("component", "carrier.listener"),
	}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until the listener is closed, invoking accept
// for each one that passes the permit list. Connections that don't are
// logged and closed immediately.
func (l *Listener) Serve(accept AcceptHandler) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}

		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		var remoteIP = net.ParseIP(host)
		if err != nil || remoteIP == nil || !l.permits.Permitted(remoteIP) {
			l.log.WithField("remoteAddr", conn.RemoteAddr()).Warn("carrier: rejecting connection from non-permitted peer")
			conn.Close()
			continue
		}

		accept(conn, func(onMessage MessageHandler, onClose CloseHandler) *Carrier {
			return New(conn, l.cfg, onMessage, onClose)
		})
	}
}
