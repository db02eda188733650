package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"

	"github.com/corralhq/corral/internal/audit"
	"github.com/corralhq/corral/internal/claim"
	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/internal/lifecycle"
	"github.com/corralhq/corral/internal/store"
)

// runEnv bundles the resolved directory and the components every command
// needs. The resolved Dir is threaded through explicitly; there is no
// process-wide project root.
type runEnv struct {
	dir      *config.Dir
	settings *config.Settings
	store    *store.Store
	audit    *audit.Log // nil when auditing is disabled
	claims   *claim.Coordinator
	sessions *lifecycle.Manager
}

// openEnv resolves the project directory and opens the stores. Commands that
// may bootstrap state (init) pass allowDefault.
func openEnv(allowDefault bool) (*runEnv, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	dir, err := config.Resolve(flagDir, cwd, allowDefault)
	if err != nil {
		return nil, err
	}

	settings, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	st, err := store.New(dir)
	if err != nil {
		return nil, err
	}

	env := &runEnv{dir: dir, settings: settings, store: st}

	var rec audit.Recorder = audit.Nop{}
	if settings.Audit.Enabled {
		log, err := audit.Open(dir.AuditDBPath())
		if err != nil {
			return nil, err
		}
		if err := log.Migrate(); err != nil {
			log.Close()
			return nil, err
		}
		env.audit = log
		rec = log
	}

	env.claims = claim.New(st, rec, settings.Claim)
	env.sessions = lifecycle.New(st, rec, settings.Claim)
	return env, nil
}

// close releases resources held by the environment.
func (e *runEnv) close() {
	if e.audit != nil {
		e.audit.Close()
	}
}

// agentID returns the acting agent identifier: the --agent flag, the
// CORRAL_AGENT environment variable, or a generated short id.
func agentID() string {
	if flagAgent != "" {
		return flagAgent
	}
	if env := os.Getenv("CORRAL_AGENT"); env != "" {
		return env
	}
	return "agent-" + uuid.New().String()[:8]
}

// newID returns a short unique id for tasks and sessions.
func newID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

// interruptContext returns a context canceled on SIGINT.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
