// Package main implements kith, the command-line tool for kith stores.
//
// The demo command runs the friends scenario against an embedded store.
// Every other command talks to a running kithd over HTTP.
//
// Example usage:
//
//	kith demo --store.path var/kith
//	kith user add "Ed Mauget"
//	kith befriend "Ed Mauget" "Molly Mauget"
//	kith friends "Ed Mauget"
//	kith stats
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
