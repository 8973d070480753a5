// Command gateway runs the Virtual Gateway Core, aggregating a set of
// tool-invocation backends behind one routing surface.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/stacklok/mcp-gateway/cmd/gateway/app"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

func main() {
	glog.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		glog.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
