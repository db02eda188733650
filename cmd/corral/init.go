package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a corral project directory",
	Long: `Initialize a corral project in the current directory.

Creates the .corral marker directory (or the directory given with --dir),
a default config.yaml, and the generated-state layout. Safe to re-run.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// init is the one operation allowed to fall back to cwd/.corral, and
	// it creates the directory resolution otherwise only probes. An
	// explicit --dir is created up front so a fresh path can bootstrap.
	if flagDir != "" {
		if err := os.MkdirAll(flagDir, 0755); err != nil {
			return fmt.Errorf("create project directory: %w", err)
		}
	}
	dir, err := config.Resolve(flagDir, cwd, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir.Path, 0755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	if _, err := store.New(dir); err != nil {
		return err
	}

	settingsPath := dir.SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettingsYAML), 0644); err != nil {
			return fmt.Errorf("write default settings: %w", err)
		}
	}

	fmt.Printf("Initialized corral project at %s\n", dir.Path)
	return nil
}

const defaultSettingsYAML = `# corral settings. Unknown keys are rejected.
claim:
  stale_after: 15m
  max_retries: 3
  retry_backoff: 50ms
validation:
  timeout: 5m
audit:
  enabled: true
  retain: 720h
`
