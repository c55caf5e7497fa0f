// Command admitcored is a thin daemon binary wiring the admission
// core's packages into a runnable service: it loads configuration,
// opens the four pattern indices, constructs the Gate Pipeline and
// the Handoff Orchestrator, starts the async auditor, and serves both
// the MCP transport and the HTTP health endpoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/admission-core/cmd/admitcored/daemon"
)

func main() {
	if err := daemon.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
