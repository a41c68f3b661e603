// Package main provides the kiln CLI for inspecting, building, and
// verifying accelerator context-cache models.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kiln",
		Short:         "Work with accelerator context-cache models",
		Long:          "kiln inspects, builds, extracts, and verifies ONNX-style models that cache accelerator-compiled context binaries in EPContext nodes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newInspectCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newPackCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newVersionCmd())

	return root
}
