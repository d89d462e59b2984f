package common

import (
	"context"

	"atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"
	"atsbeaters/internal/workspace"
)

// TaskRun describes one text task invocation from the command line
type TaskRun struct {
	Workspace *workspace.Workspace
	Inputs    []string
	Output    CommandConfig

	// Session receives the result when Save is set
	Session *session.Session
	Save    bool
	// OnSaved is called after a successful save
	OnSaved func(ctx context.Context, entry *session.HistoryEntry)
}

// RunTask submits the workspace with the given inputs, writes the result
// and optionally saves it to the user's history.
func RunTask(ctx context.Context, logger *errors.Logger, out *OutputHandler, run TaskRun) (results.Result, error) {
	for i, in := range run.Inputs {
		run.Workspace.SetInput(i, in)
	}

	task := run.Workspace.Snapshot().Task
	if logger != nil {
		logger.Info("Running task", "task", task, "inputs", len(run.Inputs), "format", run.Output.OutputFormat)
	}

	result, err := run.Workspace.Submit(ctx)
	if err != nil {
		return nil, err
	}

	if err := out.HandleOutput(result, run.Output); err != nil {
		return result, err
	}

	if !run.Save || run.Session == nil {
		return result, nil
	}
	entry, err := run.Workspace.SaveToHistory(ctx, run.Session)
	if err != nil {
		return result, err
	}
	if entry == nil {
		if logger != nil {
			logger.Warn("Not logged in, result not saved", "task", task)
		}
		return result, nil
	}
	if logger != nil {
		logger.Info("Saved to history", "task", task, "id", entry.ID)
	}
	if run.OnSaved != nil {
		run.OnSaved(ctx, entry)
	}
	return result, nil
}
