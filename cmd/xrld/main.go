// Command xrld is the generic XrlRouter participant bootstrap: it opens a
// listener, registers an entity name/class with the Finder, and then
// blocks serving whatever commands have been wired into its CommandMap.
// It is the only daemon in this repo that starts a Router; the bgp and
// ripout packages are libraries and do not start one themselves.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xorpgo/fabric/config"
	"github.com/xorpgo/fabric/xrlrouter"
)

type options struct {
	config.DaemonOptions
	Entity string `short:"e" long:"entity" description:"this process's target instance name" required:"true"`
	Class  string `short:"c" long:"class" description:"Finder class to register under" required:"true"`
	Listen string `short:"L" long:"listen" description:"local address for this entity's own listener" default:"127.0.0.1:0"`
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

	finderAddr, _ := opts.FinderAddr()

	router, err := xrlrouter.New(xrlrouter.Config{
		EntityName: opts.Entity,
		Class:      opts.Class,
		ListenAddr: opts.Listen,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "xrld: constructing router: %v\n", err)
		return config.ExitInternalError
	}

	if err := router.Start(finderAddr); err != nil {
		fmt.Fprintf(os.Stderr, "xrld: %v\n", err)
		return config.ExitInternalError
	}

	config.PrintBanner(opts.Entity, opts.Class, finderAddr, router.Listener().Addr().String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return config.ExitClean
}
