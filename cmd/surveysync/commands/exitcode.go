package commands

import (
	"errors"
	"surveysync/internal/coordinator"
)

const (
	ExitOk      = 0
	ExitGeneral = 1
	ExitList    = 2
	ExitFetch   = 3
	ExitPersist = 4
)

// ExitCode maps the error a command returned onto the process exit status.
// Anything that is not a run failure, ex. a bad config, is ExitGeneral.
func ExitCode(err error) int {
	if err == nil {
		return ExitOk
	}

	var listErr *coordinator.ListError
	if errors.As(err, &listErr) {
		return ExitList
	}
	var fetchErr *coordinator.FetchError
	if errors.As(err, &fetchErr) {
		return ExitFetch
	}
	var persistErr *coordinator.PersistError
	if errors.As(err, &persistErr) {
		return ExitPersist
	}
	return ExitGeneral
}
