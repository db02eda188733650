package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var claimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Take exclusive ownership of a ready task",
	Long: `Claim a task for this agent. The claim succeeds only if the task is
ready, unowned, and all its dependencies are done. When two agents race for
the same task, exactly one wins; the loser exits with the claim-conflict
code and should pick different work.`,
	Args: cobra.ExactArgs(1),
	RunE: runClaim,
}

var startCmd = &cobra.Command{
	Use:   "start <task-id>",
	Short: "Report that work on a claimed task has begun",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat <task-id>",
	Short: "Refresh a claim so it is not reaped as stale",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeartbeat,
}

var releaseCmd = &cobra.Command{
	Use:   "release <task-id>",
	Short: "Give up a claim and return the task to ready",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

func runClaim(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	agent := agentID()
	t, err := env.claims.Claim(args[0], agent)
	if err != nil {
		return err
	}

	fmt.Printf("Claimed %s as %s\n", t.ID, agent)
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	t, err := env.claims.Start(args[0], agentID())
	if err != nil {
		return err
	}

	fmt.Printf("Task %s is %s\n", t.ID, colorTaskStatus(t.Status))
	return nil
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	t, err := env.claims.Heartbeat(args[0], agentID())
	if err != nil {
		return err
	}

	fmt.Printf("Heartbeat recorded for %s\n", t.ID)
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	t, err := env.claims.Release(args[0], agentID())
	if err != nil {
		return err
	}

	fmt.Printf("Released %s, now %s\n", t.ID, colorTaskStatus(t.Status))
	return nil
}
