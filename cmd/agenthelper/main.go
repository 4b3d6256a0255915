// Command agenthelper is the unprivileged helper process spawned by the
// service in no-desktop mode: it dials back into the service's local IPC
// pipe and runs the same session multiplexer the service would run
// directly, giving the service PTY/screen/input access inside a real
// interactive desktop session. Grounded on
// original_source/agent/crates/agent-bin/src/helper.rs's run_helper_mode.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nodecastle/edgeagent/internal/helper"
)

func main() {
	var pipeName string

	root := &cobra.Command{
		Use:   "agenthelper",
		Short: "edgeagent helper — session-side PTY/screen/input worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return helper.RunWorker(helper.SocketPath(pipeName))
		},
	}
	root.Flags().StringVar(&pipeName, "pipe-name", "edgeagent", "IPC pipe/socket name to dial back into")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
