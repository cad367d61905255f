package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warrenlibrary/library-backend/internal/config"
	"github.com/warrenlibrary/library-backend/internal/database"
	"github.com/warrenlibrary/library-backend/internal/repository"
	"github.com/warrenlibrary/library-backend/internal/service"
	"github.com/warrenlibrary/library-backend/internal/utils"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"golang.org/x/term"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Operator tooling for the Warren Library backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newHashPasswordCommand(), newEnsureAdminCommand())
	return root
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				var err error
				if password, err = readPassword(cmd, "Password: "); err != nil {
					return err
				}
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			hash, err := utils.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newEnsureAdminCommand() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "ensure-admin",
		Short: "Create the admin account, or reset its password if it does not match",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readPassword(cmd, "Admin password: "); err != nil {
					return err
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.InitForEnvironment(cfg.Environment); err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}

			authService := service.NewAuthService(repository.NewUserRepository(db), cfg.JWTSecret, cfg.StoreTimeout)
			admin, result, err := authService.EnsureAdmin(context.Background(), username, email, password)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch result {
			case service.AdminCreated:
				fmt.Fprintln(out, "Admin user created")
			case service.AdminPasswordReset:
				fmt.Fprintln(out, "Admin password reset")
			default:
				fmt.Fprintln(out, "Admin user found, password is correct")
			}
			fmt.Fprintf(out, "  ID:       %d\n  Username: %s\n  Email:    %s\n", admin.ID, admin.Username, admin.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "admin", "username for a newly created admin")
	cmd.Flags().StringVar(&email, "email", "admin@example.com", "email for a newly created admin")
	cmd.Flags().StringVar(&password, "password", "", "admin password (prompted when omitted)")
	return cmd
}

// readPassword prompts without echo when stdin is a terminal.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password given and stdin is not a terminal")
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	bytePassword, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(bytePassword)), nil
}
