// Package config is every daemon's `-F host[:port]` / `-h` CLI surface:
// a go-flags struct-tag config parsed once at process startup.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/fatih/color"
	flags "github.com/jessevdk/go-flags"
)

// DefaultFinderHost and DefaultFinderPort are the Finder endpoint
// defaults: loopback, port 19999.
const (
	DefaultFinderHost = "127.0.0.1"
	DefaultFinderPort = 19999
)

// Exit status codes: 0 on clean shutdown, 1 on argument error, 2 on
// internal error.
const (
	ExitClean         = 0
	ExitArgumentError = 1
	ExitInternalError = 2
)

// DaemonOptions is the CLI surface every participating process accepts:
// -F host[:port] names the Finder to register with, -h is handled by
// go-flags itself (flags.HelpFlag).
type DaemonOptions struct {
	Finder string `short:"F" long:"finder" description:"Finder host[:port] to register with" default:"127.0.0.1:19999"`
}

// FinderAddr returns opts.Finder normalized to host:port, filling in
// DefaultFinderPort if the user supplied a bare host.
func (o DaemonOptions) FinderAddr() (string, error) {
	host, port, err := net.SplitHostPort(o.Finder)
	if err != nil {
		// No port supplied at all (SplitHostPort's "missing port" case):
		// treat the whole value as a bare host and apply the default port.
		host = o.Finder
		port = strconv.Itoa(DefaultFinderPort)
	}
	if host == "" {
		host = DefaultFinderHost
	}
	return net.JoinHostPort(host, port), nil
}

// Parse parses args into opts (typically a struct embedding DaemonOptions
// plus any daemon-specific flags) using go-flags, returning
// ExitArgumentError as the process exit code a caller should
// use on failure. A requested --help is reported via flags.ErrHelp and
// also maps to ExitArgumentError, matching go-flags' own convention that
// help output is not a successful parse.
func Parse(opts interface{}, args []string) (exitCode int, err error) {
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return ExitArgumentError, err
	}
	return 0, nil
}

// PrintBanner writes a colorized startup banner to stderr: entity name,
// class, Finder endpoint, and listener address — a diagnostics nicety
// on top of the daemon's own structured logging, not an interactive CLI
// front end.
func PrintBanner(entityName, class, finderAddr, listenAddr string) {
	bold := color.New(color.Bold)
	addr := color.New(color.FgCyan)
	fmt.Fprintf(os.Stderr, "%s %s (%s)\n", bold.Sprint("starting"), entityName, class)
	fmt.Fprintf(os.Stderr, "  finder:   %s\n", addr.Sprint(finderAddr))
	fmt.Fprintf(os.Stderr, "  listener: %s\n", addr.Sprint(listenAddr))
}

// PrintPermitRejection highlights a carrier-level permit-list rejection
// on stderr.
func PrintPermitRejection(remoteAddr string) {
	warn := color.New(color.FgRed, color.Bold)
	fmt.Fprintf(os.Stderr, "%s connection from %s rejected by permit list\n", warn.Sprint("REJECTED"), remoteAddr)
}
