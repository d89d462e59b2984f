package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"atsbeaters/internal/common"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/session"
	"atsbeaters/internal/tasks"
)

var errNotLoggedIn = errors.NewSessionError(errors.ErrCodeNotFound,
	"not logged in (run 'atsbeaters login <email>')", nil)

func newLoginCmd() *cobra.Command {
	var out common.CommandConfig
	var name string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in, creating a free account on first use",
		Long: `Sign in with an email address. Signing in again with the same email keeps
your tier, credits and history; a different email starts a new free account
with one credit.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: outputPreRun(&out),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)
			sess, err := rt.session(ctx)
			if err != nil {
				return err
			}
			u, err := sess.Login(ctx, args[0], name)
			if err != nil {
				return err
			}
			getLoggerFromContext(ctx).Info("Logged in", "user_id", u.ID, "tier", u.Tier)
			return rt.output().HandleOutput(u, out)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	addOutputFlags(cmd, &out)
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored account",
		Args:  cobra.NoArgs,
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)
			sess, err := rt.session(ctx)
			if err != nil {
				return err
			}
			if err := sess.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(rt.stdout, "Logged out.")
			return nil
		}),
	}
}

func newWhoamiCmd() *cobra.Command {
	var out common.CommandConfig

	cmd := &cobra.Command{
		Use:     "whoami",
		Short:   "Show the signed-in account",
		Args:    cobra.NoArgs,
		PreRunE: outputPreRun(&out),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)
			sess, err := rt.session(ctx)
			if err != nil {
				return err
			}
			u, err := sess.Current(ctx)
			if err != nil {
				return err
			}
			if u == nil {
				return errNotLoggedIn
			}
			return rt.output().HandleOutput(u, out)
		}),
	}
	addOutputFlags(cmd, &out)
	return cmd
}

func newUpgradeCmd() *cobra.Command {
	var out common.CommandConfig

	cmd := &cobra.Command{
		Use:       "upgrade <pro|package>",
		Short:     "Change the plan of the signed-in account",
		Long:      "Upgrade to Pro (999 credits) or the Career Suite package (9999 credits). Payment is simulated.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(session.TierPro), string(session.TierPackage)},
		PreRunE:   outputPreRun(&out),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)
			tier, err := session.ParseTier(strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			sess, err := rt.session(ctx)
			if err != nil {
				return err
			}
			u, err := sess.UpgradeTier(ctx, tier)
			if err != nil {
				return err
			}
			if u == nil {
				return errNotLoggedIn
			}
			getLoggerFromContext(ctx).Info("Plan upgraded", "user_id", u.ID, "tier", u.Tier, "credits", u.Credits)
			return rt.output().HandleOutput(u, out)
		}),
	}
	addOutputFlags(cmd, &out)
	return cmd
}

func newPricingCmd() *cobra.Command {
	var out common.CommandConfig

	cmd := &cobra.Command{
		Use:     "pricing",
		Short:   "Show the available plans",
		Args:    cobra.NoArgs,
		PreRunE: outputPreRun(&out),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := getRuntimeFromContext(cmd.Context())
			return rt.output().HandleOutput(session.PricingPlans(), out)
		},
	}
	addOutputFlags(cmd, &out)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var out common.CommandConfig
	var task string
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List saved results, newest first",
		Args:    cobra.NoArgs,
		PreRunE: outputPreRun(&out),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)
			if task != "" && !tasks.Known(task) {
				_, err := tasks.MustLookup(task)
				return err
			}
			sess, err := rt.session(ctx)
			if err != nil {
				return err
			}
			u, err := sess.Current(ctx)
			if err != nil {
				return err
			}
			if u == nil {
				return errNotLoggedIn
			}
			entries, err := sess.History(ctx, task, limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []session.HistoryEntry{}
			}
			return rt.output().HandleOutput(entries, out)
		}),
	}
	cmd.Flags().StringVar(&task, "task", "", "Only show one task")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to show (0 for all)")
	addOutputFlags(cmd, &out)
	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var out common.CommandConfig

	cmd := &cobra.Command{
		Use:     "show <id>",
		Short:   "Show one saved result",
		Args:    cobra.ExactArgs(1),
		PreRunE: outputPreRun(&out),
		RunE: traced(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt := getRuntimeFromContext(ctx)
			sess, err := rt.session(ctx)
			if err != nil {
				return err
			}
			entry, err := sess.Entry(ctx, args[0])
			if err != nil {
				return err
			}
			return rt.output().HandleOutput(entry, out)
		}),
	}
	addOutputFlags(cmd, &out)
	return cmd
}
