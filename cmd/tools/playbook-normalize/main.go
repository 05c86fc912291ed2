// Command playbook-normalize inspects captured agent responses and the saved
// playbook history outside of a running worker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "playbook-normalize",
		Short:         "Normalize agent responses and manage saved ABM playbooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		NormalizeCmd(),
		HistoryCmd(),
	)
	return root
}
