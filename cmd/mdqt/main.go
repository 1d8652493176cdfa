// mdqt is a command-line client for MDQ metadata services.
//
// Usage:
//
//	mdqt get <entity-id>... [flags]
//	mdqt list
//	mdqt exists <entity-id>...
//	mdqt check <file>...
//	mdqt --help
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driving/cli"
	"github.com/ausaccessfed/aaf-mdqt/internal/buildinfo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, buildinfo.Version, os.Args[1:])
	stop()
	os.Exit(code)
}
