// Command finder runs the Finder registry daemon: a single well-known
// process every other participant connects to in order to register
// itself and resolve XRL targets.
package main

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"

	"github.com/xorpgo/fabric/carrier"
	"github.com/xorpgo/fabric/cmdmap"
	"github.com/xorpgo/fabric/config"
	"github.com/xorpgo/fabric/finder"
	"github.com/xorpgo/fabric/messenger"
)

type options struct {
	config.DaemonOptions
	Listen string `short:"L" long:"listen" description:"address to listen on for participant connections" default:":19999"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	if code, err := config.Parse(&opts, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return code
	}

	permits := carrier.NewPermitList(nil)
	_, anyV4, _ := net.ParseCIDR("0.0.0.0/0")
	_, anyV6, _ := net.ParseCIDR("::/0")
	permits.PermitPrefix(anyV4)
	permits.PermitPrefix(anyV6)

	ln, err := carrier.Listen("tcp", opts.Listen, permits, carrier.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "finder: listen on %s: %v\n", opts.Listen, err)
		return config.ExitInternalError
	}
	defer ln.Close()

	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		fmt.Fprintf(os.Stderr, "finder: generating cookie signing key: %v\n", err)
		return config.ExitInternalError
	}
	f := finder.New(signingKey, 1, nil, nil)
	srv := finder.NewServer(f)
	f.SetNotifier(srv)
	f.SetCacheInvalidator(srv)

	config.PrintBanner("finder", "registry", opts.Finder, ln.Addr().String())

	acceptErr := ln.Serve(func(conn net.Conn, _ func(carrier.MessageHandler, carrier.CloseHandler) *carrier.Carrier) {
		cmds := cmdmap.New()
		m := messenger.New(conn, carrier.Config{}, cmds, f, "finder-conn:"+conn.RemoteAddr().String())
		if err := finder.BindConnection(cmds, f, m); err != nil {
			fmt.Fprintf(os.Stderr, "finder: bind connection from %s: %v\n", conn.RemoteAddr(), err)
			conn.Close()
			return
		}
		m.Start()
	})
	if acceptErr != nil {
		fmt.Fprintf(os.Stderr, "finder: accept loop: %v\n", acceptErr)
		return config.ExitInternalError
	}
	return config.ExitClean
}
