// Package cmd implements the interop CLI surface (spec §6): the `run`
// subcommand that drives one full interoperability/performance session,
// plus `version` and `self-update`.
//
// The package-level flag-variable style (bound in init(), read by Run)
// follows the teacher's cmd/root.go / cmd/test.go convention.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes. ExitCodeSuccess and ExitCodeError follow common CLI
// conventions; a run with failed outcomes exits with the failed count
// itself, per spec §6 ("Exit code equals the number of failed outcomes").
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when interop is invoked without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "interop",
	Short: "QUIC/WebTransport interoperability and performance test harness",
	Long: `interop orchestrates containerized QUIC (and optionally WebTransport)
implementations through a catalogue of scripted network scenarios, classifying
each (client, server, test) run as succeeded, failed, or unsupported, and
reducing repeated performance measurements to mean ± standard deviation.`,
	SilenceUsage: true,
}

// SetVersion sets the version reported by `interop version` and `--version`.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the version previously set by SetVersion.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and translates its outcome into a process
// exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "interop version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		if fe, ok := err.(*failedCountError); ok {
			os.Exit(fe.count)
		}
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// failedCountError carries the number of failed matrix cells out of runE so
// Execute can use it verbatim as the process exit code.
type failedCountError struct {
	count int
}

func (e *failedCountError) Error() string {
	return "interop: run completed with failed outcomes"
}
