package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDir   string
	flagAgent string
)

var rootCmd = &cobra.Command{
	Use:   "corral",
	Short: "Task-claim coordinator for concurrent agents",
	Long: `Corral coordinates multiple agent processes working a shared backlog of
tasks grouped into sessions. Agents claim tasks with exclusive ownership,
report progress, and complete them through a validation pipeline; sessions
close only once no task is still held.

All state lives as durable records under the resolved project directory
(.corral, found via --dir, CORRAL_DIR, or ancestor search). Coordination is
optimistic: concurrent claims on the same task resolve to exactly one winner.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code mapped from the error
// kind, so callers can script against conflicts and busy sessions.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "corral: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Project directory (overrides CORRAL_DIR and marker search)")
	rootCmd.PersistentFlags().StringVar(&flagAgent, "agent", "", "Agent identifier (default: CORRAL_AGENT or a generated id)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(failCmd)
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
