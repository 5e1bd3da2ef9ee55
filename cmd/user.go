package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/minuteswatch/internal/auth"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage application accounts",
	}

	var in auth.NewUser
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user with a local password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), rt.cfg, rt.logger, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			in.Role = minutes.Role(role)
			user, err := svc.auth.CreateUser(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d, role %s)\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
	create.Flags().StringVar(&in.Username, "username", "", "login name")
	create.Flags().StringVar(&in.Password, "password", "", "initial password (8-72 bytes)")
	create.Flags().StringVar(&in.Email, "email", "", "contact email")
	create.Flags().StringVar(&in.FullName, "full-name", "", "display name")
	create.Flags().StringVar(&role, "role", string(minutes.RoleUser), "admin or user")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("password")
	cmd.AddCommand(create)
	return cmd
}
