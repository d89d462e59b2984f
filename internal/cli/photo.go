package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"atsbeaters/internal/catalog"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/utils"
	"atsbeaters/internal/workspace"
)

type photoOptions struct {
	instruction string
	preset      string
	output      string
}

func newPhotoCmd() *cobra.Command {
	var opts photoOptions

	cmd := &cobra.Command{
		Use:   "photo <image-file>",
		Short: "Headshot AI: edit a professional headshot",
		Long: `Edit a headshot with an instruction such as "Studio lighting" or
"Corporate backdrop". The edited image is written to --output, or next to
the working directory as edited-headshot.<ext>.`,
		Args: cobra.ExactArgs(1),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			return runPhoto(cmd, args[0], opts)
		}),
	}
	cmd.Flags().StringVarP(&opts.instruction, "instruction", "i", "", "Edit instruction")
	cmd.Flags().StringVar(&opts.preset, "preset", "", "Use a popular instruction (see 'photo presets')")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output image path")
	cmd.MarkFlagsMutuallyExclusive("instruction", "preset")

	cmd.AddCommand(&cobra.Command{
		Use:   "presets",
		Short: "List popular photo edit instructions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for i, p := range catalog.PhotoPresets() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, p)
			}
		},
	})
	return cmd
}

func runPhoto(cmd *cobra.Command, path string, opts photoOptions) error {
	ctx := cmd.Context()
	rt := getRuntimeFromContext(ctx)

	instruction := opts.instruction
	if opts.preset != "" {
		preset, err := lookupPreset(opts.preset)
		if err != nil {
			return err
		}
		instruction = preset
	}

	files := rt.files()
	data, mime, err := files.ReadImage(path)
	if err != nil {
		return err
	}

	gateway, err := rt.gatewayFor()
	if err != nil {
		return err
	}
	sess, err := rt.session(ctx)
	if err != nil {
		return err
	}

	editor := workspace.NewPhotoEditor(gateway, sess, rt.workspaceOptions()...)
	editor.Load(workspace.Image{Data: data, MIMEType: mime})
	img, err := editor.Edit(ctx, instruction)
	if err != nil {
		return fmt.Errorf("photo edit failed: %w", err)
	}

	out := opts.output
	if out == "" {
		out = "edited-headshot" + utils.ImageExtension(img.MIMEType)
	}
	if err := files.ValidateOutputFile(out); err != nil {
		return err
	}
	if err := files.WriteFile(out, img.Data); err != nil {
		return err
	}
	fmt.Fprintf(rt.stdout, "Edited photo written to %s (%s)\n", out, utils.FormatFileSize(int64(len(img.Data))))
	return nil
}

// lookupPreset matches a preset by number or case-insensitive name
func lookupPreset(name string) (string, error) {
	presets := catalog.PhotoPresets()
	for i, p := range presets {
		if strings.EqualFold(p, name) || fmt.Sprint(i+1) == name {
			return p, nil
		}
	}
	return "", errors.NewValidationError(errors.ErrCodeInvalidInput,
		fmt.Sprintf("unknown preset %q (choose from %s)", name, strings.Join(presets, ", ")), nil)
}
