// Command aegis-agent runs the host telemetry and ransomware-detection
// agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:     "aegis-agent",
		Short:   "Host telemetry sampling and ransomware-behavior detection agent",
		Version: version,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	root.AddCommand(newRunCmd(&verbose))
	root.AddCommand(newBaselineCmd())

	return root
}
