package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
	"github.com/Aman-CERP/tasksearch/internal/output"
)

// passwordEnv supplies the password for user add when --password is absent.
const passwordEnv = "TASKSEARCH_PASSWORD"

func newUserCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register and look up users",
	}
	cmd.AddCommand(newUserAddCmd(root), newUserGetCmd(root))
	return cmd
}

func newUserAddCmd(root *rootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user",
		Long: `Register a user. Tasks may only reference registered users.

The password is read from --password or, if that is empty, from
` + passwordEnv + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return taskerrors.ValidationError("password is required", nil).
					WithSuggestion("pass --password or set " + passwordEnv)
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			user, err := a.service.RegisterUser(ctx, strings.TrimSpace(args[0]), password)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if root.jsonOutput {
				return out.JSON(user)
			}
			out.Successf("Registered user %s with id %d", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password for the new user")
	return cmd
}

func newUserGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("user id", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := root.open(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			user, err := a.service.GetUser(ctx, id)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if root.jsonOutput {
				return out.JSON(user)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tcreated %s\n",
				user.ID, user.Username, user.CreatedAt.Format("2006-01-02"))
			return err
		},
	}
}
