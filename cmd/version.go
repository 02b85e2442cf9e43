package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quic-interop/quic-interop-runner/internal/testcase"
)

// newVersionCmd creates the Cobra command for displaying the harness
// version plus the QUIC version it advertises to implementations.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the harness version and advertised QUIC version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "interop version %s\n", rootCmd.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "quic version: %s\n", testcase.QUICVersion)
		},
	}
}
