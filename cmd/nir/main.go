// Command ir is the nir compiler driver: load a textual IR function,
// run it through the pass pipeline, and report or export the result.
// Structured as one root cobra.Command with per-concern subcommands,
// one command per top-level verb, flag vars bound directly via
// Flags().*Var.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nir-project/nir/cmd/nir/commands"
	"github.com/nir-project/nir/internal/buildinfo"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "ir",
		Short:   "nir — a sea-of-nodes JIT IR compiler driver",
		Version: buildinfo.String(),
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.AddCommand(
		commands.NewCompileCmd(),
		commands.NewCheckCmd(),
		commands.NewRunCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
