package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved project directory and settings",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	fmt.Printf("Project directory: %s (from %s)\n", env.dir.Path, env.dir.Source)
	fmt.Printf("Generated output:  %s\n", env.dir.Generated())
	fmt.Printf("Settings file:     %s\n", env.dir.SettingsPath())
	fmt.Println()
	fmt.Printf("claim.stale_after:   %s\n", env.settings.Claim.StaleAfter)
	fmt.Printf("claim.max_retries:   %d\n", env.settings.Claim.MaxRetries)
	fmt.Printf("claim.retry_backoff: %s\n", env.settings.Claim.RetryBackoff)
	fmt.Printf("validation.timeout:  %s\n", env.settings.Validation.Timeout)
	fmt.Printf("audit.enabled:       %t\n", env.settings.Audit.Enabled)
	fmt.Printf("audit.retain:        %s\n", env.settings.Audit.Retain)
	return nil
}
