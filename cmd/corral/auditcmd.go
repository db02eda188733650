package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	auditLimit int
	auditPrune bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the coordinator audit trail",
	Long: `List recent audit events: claims, releases, forced releases of stale
claims (with the previous owner), completions, failures and session closes.

With --prune, events older than audit.retain are deleted first.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of events to show")
	auditCmd.Flags().BoolVar(&auditPrune, "prune", false, "Delete events older than audit.retain")
}

func runAudit(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	if env.audit == nil {
		fmt.Println("Auditing is disabled (audit.enabled: false).")
		return nil
	}

	if auditPrune {
		removed, err := env.audit.Prune(env.settings.Audit.Retain)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d event(s) older than %s\n", removed, env.settings.Audit.Retain)
	}

	events, err := env.audit.List(auditLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No audit events.")
		return nil
	}

	for _, ev := range events {
		line := fmt.Sprintf("%s  %-15s", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Kind)
		if ev.TaskID != "" {
			line += " task=" + ev.TaskID
		}
		if ev.SessionID != "" {
			line += " session=" + ev.SessionID
		}
		if ev.AgentID != "" {
			line += " agent=" + ev.AgentID
		}
		if ev.PrevOwner != "" {
			line += " prev_owner=" + ev.PrevOwner
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	}
	return nil
}
