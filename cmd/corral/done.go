package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/corralhq/corral/internal/claim"
	"github.com/corralhq/corral/internal/validation"
)

var failReason string

var doneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Validate a held task and mark it done",
	Long: `Run the task's configured validators and, if they all pass and every
dependency is done, transition it to done.

Validators run in order and do not short-circuit: every failure is reported
in one round trip, and the full report is persisted on the task either way.
On failure the task keeps its current status.`,
	Args: cobra.ExactArgs(1),
	RunE: runDone,
}

var failCmd = &cobra.Command{
	Use:   "fail <task-id>",
	Short: "Mark a held task as failed",
	Args:  cobra.ExactArgs(1),
	RunE:  runFail,
}

func init() {
	failCmd.Flags().StringVar(&failReason, "reason", "", "Why the task failed")
}

func runDone(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	t, err := env.store.GetTask(args[0])
	if err != nil {
		return err
	}

	pipeline, err := validation.FromSpecs(t.Validators, env.dir, env.settings.Validation.Timeout)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	updated, err := env.claims.Complete(ctx, t.ID, agentID(), pipeline)
	if err != nil {
		var vf *claim.ValidationFailedError
		if errors.As(err, &vf) {
			fmt.Printf("%s %d of %d validator(s) failed:\n", color.RedString("Validation failed."), len(vf.Report.Failures), pipeline.Len())
			for _, f := range vf.Report.Failures {
				msg := f.Message
				if i := strings.IndexByte(msg, '\n'); i >= 0 {
					msg = msg[:i] + " ..."
				}
				fmt.Printf("  [%s] %s\n", f.Validator, msg)
			}
			fmt.Printf("Task %s keeps status %s; see 'corral task show %s' for the full report.\n",
				t.ID, colorTaskStatus(t.Status), t.ID)
		}
		return err
	}

	fmt.Printf("Task %s is %s\n", updated.ID, colorTaskStatus(updated.Status))
	return nil
}

func runFail(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	t, err := env.claims.Fail(args[0], agentID(), failReason)
	if err != nil {
		return err
	}

	fmt.Printf("Task %s is %s\n", t.ID, colorTaskStatus(t.Status))
	return nil
}
