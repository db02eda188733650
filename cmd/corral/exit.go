package main

import (
	"errors"

	"github.com/corralhq/corral/internal/claim"
	"github.com/corralhq/corral/internal/config"
	"github.com/corralhq/corral/internal/lifecycle"
)

// Exit codes per error kind, stable for scripting.
const (
	exitGeneric          = 1
	exitConfigNotFound   = 2
	exitClaimConflict    = 10
	exitSessionBusy      = 11
	exitNoReadyTask      = 12
	exitValidationFailed = 13
	exitNotOwner         = 14
)

// exitCode maps a command error to its process exit code.
func exitCode(err error) int {
	var (
		conflict   *claim.ConflictError
		notOwner   *claim.NotOwnerError
		validation *claim.ValidationFailedError
		busy       *lifecycle.SessionBusyError
	)

	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		return exitConfigNotFound
	case errors.As(err, &conflict):
		return exitClaimConflict
	case errors.As(err, &busy):
		return exitSessionBusy
	case errors.Is(err, lifecycle.ErrNoReadyTask):
		return exitNoReadyTask
	case errors.As(err, &validation):
		return exitValidationFailed
	case errors.As(err, &notOwner):
		return exitNotOwner
	default:
		return exitGeneric
	}
}
