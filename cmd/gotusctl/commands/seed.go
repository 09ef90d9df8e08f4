package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gotus/internal/bootstrap"
	"gotus/internal/service"
)

func newSeedAdminCommand(load envLoader) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Args:  cobra.NoArgs,
		Short: "Create the default admin if no admin account exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if email != "" {
				cfg.Seed.AdminEmail = email
			}
			if password != "" {
				cfg.Seed.AdminPassword = password
			}
			if cfg.Seed.AdminPassword == "" {
				return fmt.Errorf("an admin password is required (--password or GOTUS_SEED_ADMINPASSWORD)")
			}

			ctx := cmd.Context()
			stores, err := bootstrap.OpenStores(ctx, cfg, true, logger)
			if err != nil {
				return err
			}
			defer stores.Close(context.Background())

			directory := service.NewDirectoryService(stores.Accounts, nil, nil,
				service.DirectoryConfig{PasswordMinLen: cfg.Security.PasswordMinLen}, logger)
			seeder := service.NewSeeder(directory, stores.Accounts, service.SeedConfig{
				AdminEmail:    cfg.Seed.AdminEmail,
				AdminPassword: cfg.Seed.AdminPassword,
				FirstName:     cfg.Seed.FirstName,
				LastName:      cfg.Seed.LastName,
			}, logger)

			created, err := seeder.EnsureAdmin(ctx)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s created\n", cfg.Seed.AdminEmail)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "an admin account already exists; nothing to do")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email (defaults to seed.adminemail)")
	cmd.Flags().StringVar(&password, "password", "", "admin password (defaults to seed.adminpassword)")
	return cmd
}
