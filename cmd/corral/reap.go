package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reapSession string

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Force-release stale claims",
	Long: `Release claims whose owners have gone quiet for longer than
claim.stale_after. This is crash recovery: the previous owner is recorded in
the audit trail and the task returns to ready for other agents.

Staleness is checked lazily by whoever runs this; there is no background
reaper process.`,
	RunE: runReap,
}

func init() {
	reapCmd.Flags().StringVarP(&reapSession, "session", "s", "", "Limit to one session")
}

func runReap(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	reaped, err := env.claims.ReapStale(reapSession)
	if err != nil {
		return err
	}

	if len(reaped) == 0 {
		fmt.Println("No stale claims.")
		return nil
	}
	for _, r := range reaped {
		fmt.Printf("Released %s (was held by %s, idle %s)\n", r.TaskID, r.PrevOwner, r.IdleFor.Truncate(time.Second))
	}
	return nil
}
