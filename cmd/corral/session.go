package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/corralhq/corral/internal/graph"
	"github.com/corralhq/corral/internal/lifecycle"
	"github.com/corralhq/corral/pkg/models"
)

var (
	sessionManifest string
	sessionWait     bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage task sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session from a manifest",
	Long: `Create a session and its tasks from a YAML manifest.

The manifest lists tasks in order, with optional dependencies, expected
artifacts, and the ordered validator list to run before completion:

  title: refactor storage layer
  tasks:
    - id: t1
      title: extract interface
      artifacts: [out/iface.go]
      validators:
        - name: artifact_exists
    - title: port callers
      depends_on: [t1]
      validators:
        - name: command
          command: [go, build, ./...]

Task ids are generated when omitted.`,
	RunE: runSessionNew,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show task counts and lifecycle state for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStatus,
}

var sessionNextCmd = &cobra.Command{
	Use:   "next <session-id>",
	Short: "Show the next claimable task without claiming it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionNext,
}

var sessionWatchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Block until a session is closed",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionWatch,
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session once no task is still held",
	Long: `Request session close. An open session moves to closing immediately.
The session reaches closed only when no contained task is claimed or
in_progress; until then the command exits with the session-busy code.
With --wait, blocks until the session is closed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionClose,
}

func init() {
	sessionNewCmd.Flags().StringVarP(&sessionManifest, "file", "f", "", "Manifest file (required)")
	sessionNewCmd.MarkFlagRequired("file")
	sessionCloseCmd.Flags().BoolVar(&sessionWait, "wait", false, "Block until the session is closed")

	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionNextCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
	sessionCmd.AddCommand(sessionWatchCmd)
}

// manifest is the opaque input from the schema/config layer: ordered tasks
// with dependency declarations and validator lists.
type manifest struct {
	Title string         `yaml:"title"`
	Tasks []manifestTask `yaml:"tasks"`
}

type manifestTask struct {
	ID          string                 `yaml:"id"`
	Title       string                 `yaml:"title"`
	Description string                 `yaml:"description"`
	DependsOn   []string               `yaml:"depends_on"`
	Artifacts   []string               `yaml:"artifacts"`
	Validators  []models.ValidatorSpec `yaml:"validators"`
}

func runSessionNew(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(sessionManifest)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("parse manifest %s: %w", sessionManifest, err)
	}
	if len(m.Tasks) == 0 {
		return fmt.Errorf("manifest %s has no tasks", sessionManifest)
	}

	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	sess := &models.Session{
		ID:     newID("s"),
		Title:  m.Title,
		Status: models.SessionOpen,
	}

	tasks := make([]*models.Task, 0, len(m.Tasks))
	byID := make(map[string]*models.Task, len(m.Tasks))
	for i := range m.Tasks {
		mt := &m.Tasks[i]
		if mt.ID == "" {
			mt.ID = newID("t")
		}
		t := &models.Task{
			ID:          mt.ID,
			SessionID:   sess.ID,
			Title:       mt.Title,
			Description: mt.Description,
			Status:      models.TaskStatusReady,
			DependsOn:   mt.DependsOn,
			Artifacts:   mt.Artifacts,
			Validators:  mt.Validators,
		}
		tasks = append(tasks, t)
		byID[t.ID] = t
	}

	// Order the session so dependencies come first; a manifest that depends
	// on itself can never drain and is rejected up front.
	g, err := graph.Build(tasks)
	if err != nil {
		return fmt.Errorf("manifest %s: %w", sessionManifest, err)
	}
	sess.TaskIDs = g.TopologicalOrder()

	if err := env.store.CreateSession(sess); err != nil {
		return err
	}
	for _, id := range sess.TaskIDs {
		if err := env.store.CreateTask(byID[id]); err != nil {
			return err
		}
	}

	fmt.Printf("Created session %s with %d task(s)\n", sess.ID, len(sess.TaskIDs))
	for _, id := range sess.TaskIDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	st, err := env.sessions.Status(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session %s: %s\n", st.Session.ID, colorSessionStatus(st.Session.Status))
	if st.Session.Title != "" {
		fmt.Printf("  Title: %s\n", st.Session.Title)
	}
	fmt.Printf("  Tasks: %d\n", len(st.Session.TaskIDs))

	statuses := make([]string, 0, len(st.Counts))
	for s := range st.Counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("    %s: %d\n", colorTaskStatus(models.TaskStatus(s)), st.Counts[models.TaskStatus(s)])
	}
	if len(st.Missing) > 0 {
		fmt.Printf("    missing: %d (%v)\n", len(st.Missing), st.Missing)
	}
	if st.Session.Status == models.SessionClosing {
		if st.CloseEligible {
			fmt.Println("  Close: eligible, re-run close to finish")
		} else {
			fmt.Printf("  Close: blocked by %d held task(s)\n", st.Held)
		}
	}
	return nil
}

func runSessionNext(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	t, err := env.sessions.Next(args[0])
	if err != nil {
		if errors.Is(err, lifecycle.ErrNoReadyTask) {
			fmt.Println("No claimable task right now.")
		}
		return err
	}

	printTask(t)
	return nil
}

func runSessionClose(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	sess, err := env.sessions.Close(args[0])
	if err != nil {
		var busy *lifecycle.SessionBusyError
		if errors.As(err, &busy) && sessionWait {
			fmt.Printf("Session %s is closing, waiting on %d held task(s)...\n", sess.ID, len(busy.HeldTasks))
			return waitForClose(env, args[0])
		}
		if errors.As(err, &busy) {
			fmt.Printf("Session %s is closing; still held: %v\n", sess.ID, busy.HeldTasks)
		}
		return err
	}

	fmt.Printf("Session %s is %s\n", sess.ID, colorSessionStatus(sess.Status))
	return nil
}

func runSessionWatch(cmd *cobra.Command, args []string) error {
	env, err := openEnv(false)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, stop := interruptContext()
	defer stop()

	sess, err := env.sessions.WaitClosed(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Session %s is %s\n", sess.ID, colorSessionStatus(sess.Status))
	return nil
}

func waitForClose(env *runEnv, sessionID string) error {
	ctx, stop := interruptContext()
	defer stop()

	// Reaping stale claims first lets a crashed agent's session drain.
	if _, err := env.claims.ReapStale(sessionID); err != nil {
		return err
	}

	sess, err := env.sessions.CloseWait(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s is %s\n", sess.ID, colorSessionStatus(sess.Status))
	return nil
}

func colorSessionStatus(s models.SessionStatus) string {
	switch s {
	case models.SessionOpen:
		return color.GreenString(string(s))
	case models.SessionClosing:
		return color.YellowString(string(s))
	case models.SessionClosed:
		return color.HiBlackString(string(s))
	default:
		return string(s)
	}
}

func colorTaskStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusReady:
		return color.GreenString(string(s))
	case models.TaskStatusClaimed, models.TaskStatusInProgress:
		return color.YellowString(string(s))
	case models.TaskStatusDone:
		return color.CyanString(string(s))
	case models.TaskStatusFailed, models.TaskStatusBlocked:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
