package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/common"
	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/tasks"
	"atsbeaters/internal/utils"
	"atsbeaters/internal/watch"
	"atsbeaters/internal/workspace"
)

// keyRotator is implemented by gateways that can swap their API key
type keyRotator interface {
	SetAPIKey(apiKey string)
}

func newWatchCmd() *cobra.Command {
	var out common.CommandConfig

	cmd := &cobra.Command{
		Use:   "watch <task> <input-file>...",
		Short: "Re-run a task whenever its input files change",
		Long: `Run a task, then run it again every time one of its input files is saved.
Stop with Ctrl-C. When Vault is enabled the Gemini API key is re-read as it
rotates, so long sessions survive key rotation.`,
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: tasks.IDs(),
		PreRunE:   outputPreRun(&out),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], args[1:], out)
		}),
	}
	addOutputFlags(cmd, &out)
	return cmd
}

func runWatch(cmd *cobra.Command, task string, paths []string, out common.CommandConfig) error {
	ctx := cmd.Context()
	rt := getRuntimeFromContext(ctx)
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	def, err := tasks.MustLookup(task)
	if err != nil {
		return err
	}
	if len(paths) > len(def.Inputs) {
		return errors.NewValidationError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("too many inputs: %s takes %s", def.ID, taskUsage(def)), nil)
	}
	if slices.Contains(paths, utils.StdinName) {
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "watch needs files, not standard input", nil)
	}

	gateway, err := rt.gatewayFor()
	if err != nil {
		return err
	}
	sess, err := rt.session(ctx)
	if err != nil {
		return err
	}

	if stop := startKeyRotation(ctx, rt, cfg, gateway, logger); stop != nil {
		defer stop()
	}

	changes := make(chan []string, 1)
	fw, err := watch.NewFileWatcher(paths, cfg.Watch.DebounceDelay, func(changed []string) {
		select {
		case changes <- changed:
		default:
		}
	}, logger)
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		return err
	}
	defer func() { _ = fw.Stop() }()

	ws := workspace.New(def, cfg, gateway, sess, rt.workspaceOptions()...)
	files := rt.files()
	output := rt.output()

	run := func() {
		inputs, err := files.ValidateAndReadFiles(paths...)
		if err == nil {
			_, err = common.RunTask(ctx, logger, output, common.TaskRun{Workspace: ws, Inputs: inputs, Output: out})
		}
		if err != nil {
			// keep watching; the next save may fix it
			logger.LogError(err, "Watched run failed", "task", def.ID)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s failed: %v\n", def.ID, err)
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d file(s) for %s. Press Ctrl-C to stop.\n", len(paths), def.ID)
	run()
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-changes:
			logger.Info("Inputs changed, re-running", "task", def.ID, "files", changed)
			run()
		}
	}
}

// startKeyRotation polls Vault for a rotated Gemini key when configured.
// It returns a stop function, or nil when rotation is off.
func startKeyRotation(ctx context.Context, rt *runtime, cfg *config.Config, gateway ai.Gateway, logger *errors.Logger) func() {
	rotator, ok := gateway.(keyRotator)
	if !ok || rt.vault == nil || !cfg.Vault.Enabled || cfg.Vault.Secrets.GeminiKey == "" || cfg.Watch.VaultPollInterval <= 0 {
		return nil
	}

	vw := config.NewVaultWatcher(rt.vault, cfg.Vault.Secrets.GeminiKey, cfg.Watch.VaultPollInterval,
		func(apiKey string, err error) {
			if err == nil {
				rotator.SetAPIKey(apiKey)
			}
			rt.obs.SecretReloaded(ctx, err)
		}, logger)
	if err := vw.Start(); err != nil {
		logger.LogError(err, "Vault key rotation disabled")
		return nil
	}
	return vw.Stop
}
