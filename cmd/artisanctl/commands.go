package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/gateway"
	"github.com/spf13/cobra"
)

const passwordEnv = "ARTISAN_PASSWORD"

func loginCmd(c *cli) *cobra.Command {
	var identifier, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if identifier == "" || password == "" {
				return fmt.Errorf("--identifier and --password (or %s) are required", passwordEnv)
			}
			if _, err := c.auth.Login(cmd.Context(), identifier, password); err != nil {
				return explain(err)
			}
			profile, err := c.auth.Me(cmd.Context())
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(c.out, "signed in as %s\n", profile.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&identifier, "identifier", "u", "", "Admin email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Admin password")
	return cmd
}

func meCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed in admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := c.auth.Me(cmd.Context())
			if err != nil {
				return explain(err)
			}
			c.print(profile)
			return nil
		},
	}
}

func logoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.auth.Logout(cmd.Context())
		},
	}
}

func listCmd(c *cli) *cobra.Command {
	var (
		status string
		filter artisan.ListFilter
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artisans",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				s, ok := artisan.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = s
			}
			page, err := c.store.ListArtisans(cmd.Context(), filter)
			if err != nil {
				return explain(err)
			}
			c.print(page)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, active, blocked)")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Match name, email, phone, category, or location")
	cmd.Flags().IntVar(&filter.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&filter.Size, "size", artisan.DefaultPageSize, "Page size")
	return cmd
}

func getCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one artisan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := c.store.FetchArtisan(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			c.print(record)
			return nil
		},
	}
}

type workflowAction func(*artisan.Workflow, context.Context) (artisan.ActionResult, error)

func actionCmd(c *cli, use, short string, action workflowAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := c.workflow(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			defer wf.Close()

			result, err := action(wf, cmd.Context())
			if err != nil {
				return explain(err)
			}
			c.report(result)
			return nil
		},
	}
}

func verifyCmd(c *cli) *cobra.Command {
	var force string

	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Run the identity check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome := artisan.ForceOutcome(force)
			if !outcome.Valid() {
				return fmt.Errorf("--force must be success or fail, got %q", force)
			}

			wf, err := c.workflow(cmd.Context(), args[0])
			if err != nil {
				return explain(err)
			}
			defer wf.Close()

			result, err := wf.VerifyID(cmd.Context(), outcome)
			if err != nil {
				return explain(err)
			}
			c.report(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&force, "force", "", "Pin the outcome: success or fail")
	return cmd
}

func (c *cli) report(result artisan.ActionResult) {
	if !result.Changed {
		fmt.Fprintf(c.out, "%s: nothing to do\n", result.Action)
		return
	}
	c.print(result.Current)
}

// explain turns session errors into an actionable message.
func explain(err error) error {
	switch {
	case errors.Is(err, gateway.ErrAuthExpired):
		return fmt.Errorf("session expired, run artisanctl login: %w", err)
	case errors.Is(err, artisan.ErrPreconditionFailed):
		return fmt.Errorf("not allowed in the current state: %w", err)
	}
	return err
}
