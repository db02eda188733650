package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corralhq/corral/internal/graph"
	"github.com/corralhq/corral/internal/store"
	"github.com/corralhq/corral/pkg/models"
)

var (
	taskSession    string
	taskTitle      string
	taskDesc       string
	taskDeps       []string
	taskArtifacts  []string
	taskValidators []string
	taskCommand    []string
	listStatus     string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a task to an open session",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task record, including its last validation report",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func init() {
	taskAddCmd.Flags().StringVarP(&taskSession, "session", "s", "", "Session id (required)")
	taskAddCmd.Flags().StringVarP(&taskTitle, "title", "t", "", "Task title (required)")
	taskAddCmd.Flags().StringVar(&taskDesc, "description", "", "Task description")
	taskAddCmd.Flags().StringSliceVar(&taskDeps, "depends-on", nil, "Task ids that must be done first")
	taskAddCmd.Flags().StringSliceVar(&taskArtifacts, "artifact", nil, "Expected artifact paths, relative to the project directory")
	taskAddCmd.Flags().StringSliceVar(&taskValidators, "validator", nil, "Validators to run before done (artifact_exists, artifact_nonempty, command)")
	taskAddCmd.Flags().StringSliceVar(&taskCommand, "command", nil, "Argv for the command validator")
	taskAddCmd.MarkFlagRequired("session")
	taskAddCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringVarP(&taskSession, "session", "s", "", "Filter by session id")
	taskListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	var specs []models.ValidatorSpec
	for _, name := range taskValidators {
		spec := models.ValidatorSpec{Name: name}
		if name == "command" {
			spec.Command = taskCommand
		}
		specs = append(specs, spec)
	}

	t := &models.Task{
		ID:          newID("t"),
		SessionID:   taskSession,
		Title:       taskTitle,
		Description: taskDesc,
		Status:      models.TaskStatusReady,
		DependsOn:   taskDeps,
		Artifacts:   taskArtifacts,
		Validators:  specs,
	}
	if _, err := env.sessions.AddTask(t); err != nil {
		return err
	}

	fmt.Printf("Added task %s to session %s\n", t.ID, t.SessionID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	filter := store.TaskFilter{SessionID: taskSession}
	if listStatus != "" {
		status := models.TaskStatus(listStatus)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", listStatus)
		}
		filter.Status = status
	}

	tasks, err := env.store.ListTasks(filter)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	for _, t := range tasks {
		owner := ""
		if t.Owner != "" {
			owner = " owner=" + t.Owner
		}
		fmt.Printf("%s  %-12s %s%s\n", t.ID, colorTaskStatus(t.Status), t.Title, owner)
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	t, err := env.store.GetTask(args[0])
	if err != nil {
		return err
	}

	printTask(t)

	// Show which tasks in the session this one blocks.
	siblings, err := env.store.ListTasks(store.TaskFilter{SessionID: t.SessionID})
	if err != nil {
		return err
	}
	if g, err := graph.Build(siblings); err == nil {
		if dependents := g.Dependents(t.ID); len(dependents) > 0 {
			fmt.Printf("  Blocks: %s\n", strings.Join(dependents, ", "))
		}
	}
	return nil
}

func printTask(t *models.Task) {
	fmt.Printf("Task %s: %s\n", t.ID, colorTaskStatus(t.Status))
	fmt.Printf("  Title: %s\n", t.Title)
	if t.Description != "" {
		fmt.Printf("  Description: %s\n", t.Description)
	}
	fmt.Printf("  Session: %s\n", t.SessionID)
	if t.Owner != "" {
		fmt.Printf("  Owner: %s\n", t.Owner)
	}
	if len(t.DependsOn) > 0 {
		fmt.Printf("  Depends on: %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Artifacts) > 0 {
		fmt.Printf("  Artifacts: %s\n", strings.Join(t.Artifacts, ", "))
	}
	if len(t.Validators) > 0 {
		names := make([]string, 0, len(t.Validators))
		for _, v := range t.Validators {
			names = append(names, v.Name)
		}
		fmt.Printf("  Validators: %s\n", strings.Join(names, ", "))
	}
	if t.Error != "" {
		fmt.Printf("  Error: %s\n", t.Error)
	}
	if t.LastValidation != nil {
		r := t.LastValidation
		if r.Passed {
			fmt.Printf("  Last validation: passed at %s\n", r.RanAt.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("  Last validation: failed at %s\n", r.RanAt.Format("2006-01-02 15:04:05"))
			for _, f := range r.Failures {
				fmt.Printf("    [%s] %s\n", f.Validator, f.Message)
			}
		}
	}
	fmt.Printf("  Version: %d, updated %s\n", t.Version, t.UpdatedAt.Format("2006-01-02 15:04:05"))
}
