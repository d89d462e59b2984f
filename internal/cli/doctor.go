package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/config"
	"atsbeaters/internal/formatters"
)

// modelChecker is implemented by gateways that can probe their models
type modelChecker interface {
	ModelInfo(ctx context.Context) ([]*ai.ModelInfo, error)
}

type doctorReport struct {
	Provider      string          `json:"provider"`
	APIKeySet     bool            `json:"apiKeySet"`
	Models        []*ai.ModelInfo `json:"models,omitempty"`
	ModelError    string          `json:"modelError,omitempty"`
	Session       string          `json:"session"`
	Vault         bool            `json:"vault"`
	Observability bool            `json:"observability"`
	Mail          bool            `json:"mail"`
	ChromePath    string          `json:"chromePath,omitempty"`
}

func newDoctorCmd() *cobra.Command {
	var format string
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and model availability",
		Args:  cobra.NoArgs,
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)
			cfg := getConfigFromContext(ctx)

			rep := newDoctorReport(cfg)
			if !offline {
				checkModels(ctx, rt, &rep)
			}

			if format == formatters.FormatJSON {
				enc := json.NewEncoder(rt.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printDoctor(rt.stdout, rep)
			return nil
		}),
	}
	cmd.Flags().StringVar(&format, "format", formatters.FormatText, "Output format: text or json")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the model availability checks")
	return cmd
}

func newDoctorReport(cfg *config.Config) doctorReport {
	return doctorReport{
		Provider:      cfg.AI.Provider,
		APIKeySet:     cfg.AI.APIKey != "",
		Session:       cfg.Session.Backend,
		Vault:         cfg.Vault.Enabled,
		Observability: cfg.Observability.Enabled,
		Mail:          cfg.Mail.Enabled,
		ChromePath:    cfg.Export.ChromePath,
	}
}

func checkModels(ctx context.Context, rt *runtime, rep *doctorReport) {
	gateway, err := rt.gatewayFor()
	if err != nil {
		rep.ModelError = err.Error()
		return
	}
	checker, ok := gateway.(modelChecker)
	if !ok {
		return
	}
	infos, err := checker.ModelInfo(ctx)
	if err != nil {
		rep.ModelError = err.Error()
		return
	}
	rep.Models = infos
}

func printDoctor(w io.Writer, rep doctorReport) {
	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "--"
	}
	fmt.Fprintf(w, "Provider:       %s\n", rep.Provider)
	fmt.Fprintf(w, "API key:        %s\n", mark(rep.APIKeySet))
	fmt.Fprintf(w, "Session store:  %s\n", rep.Session)
	fmt.Fprintf(w, "Vault:          %s\n", mark(rep.Vault))
	fmt.Fprintf(w, "Observability:  %s\n", mark(rep.Observability))
	fmt.Fprintf(w, "Mail:           %s\n", mark(rep.Mail))
	if rep.ChromePath != "" {
		fmt.Fprintf(w, "Chrome:         %s\n", rep.ChromePath)
	}
	if rep.ModelError != "" {
		fmt.Fprintf(w, "Models:         %s\n", rep.ModelError)
	}
	for _, m := range rep.Models {
		status := "available"
		if !m.Available {
			status = "unavailable: " + m.Error
		}
		fmt.Fprintf(w, "Model %-8s %s (%s)\n", m.Class+":", m.Name, status)
	}
}
