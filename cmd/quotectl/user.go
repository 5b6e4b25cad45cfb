package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quotevault/quotevault-server/internal/domain"
	"github.com/quotevault/quotevault-server/internal/service"
)

// operator is the identity quotectl acts as for admin-only operations.
var operator = domain.Caller{UserID: programName, Name: programName, Admin: true}

func userCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage participants",
	}
	cmd.AddCommand(userAddCommand())
	cmd.AddCommand(userListCommand())
	cmd.AddCommand(userApproveCommand())
	return cmd
}

func userAddCommand() *cobra.Command {
	var in service.NewUser

	cmd := &cobra.Command{
		Use:   "add <display-name>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			in.DisplayName = args[0]
			u, err := e.users.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", u.ID, u.DisplayName, u.Role, u.Status)
			return nil
		}),
	}

	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "given name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "family name")
	cmd.Flags().BoolVar(&in.Admin, "admin", false, "grant the admin role")
	cmd.Flags().BoolVar(&in.Pending, "pending", false, "register awaiting approval")
	return cmd
}

func userListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users, including accounts awaiting approval",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			users, err := e.users.List(ctx, operator)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tSTATUS")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.DisplayName, u.Role, u.Status)
			}
			return w.Flush()
		}),
	}
}

func userApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <user-id>",
		Short: "Activate an account awaiting approval",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			u, _, err := e.users.Approve(ctx, operator, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", u.DisplayName, u.Status)
			return nil
		}),
	}
}
