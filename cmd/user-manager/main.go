package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/config"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/database"
	"github.com/MaNn0/Super-Admin-Dashboard-with-User-Access-Control/internal/permission"
)

const timeLayout = "2006-01-02 15:04:05"

// storeOpener returns the store the commands operate on
type storeOpener func(ctx context.Context, configFile string, dbConfig database.Config) (database.Store, int, error)

func main() {
	if err := newRootCmd(openStore, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open storeOpener, out io.Writer) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:           "user-manager",
		Short:         "Account and page permission management for the admin dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	var dbConfig database.Config
	var configFile string

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbConfig.ConnectionString, "db-connection", "", "database connection string")
	rootCmd.PersistentFlags().StringVar(&dbConfig.Driver, "db-driver", database.DriverPostgres, "database driver")

	// withManager opens the store for the duration of one command
	withManager := func(fn func(ctx context.Context, um *database.UserManager, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, cost, err := open(ctx, configFile, dbConfig)
			if err != nil {
				return err
			}
			defer store.Close()
			return fn(ctx, database.NewUserManager(store, cost), cmd)
		}
	}

	var createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		RunE: withManager(func(ctx context.Context, um *database.UserManager, cmd *cobra.Command) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			superuser, _ := cmd.Flags().GetBool("superuser")

			user, err := um.CreateUser(ctx, email, password, superuser)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			fmt.Fprintf(out, "User created successfully:\n")
			fmt.Fprintf(out, "ID: %d\n", user.ID)
			fmt.Fprintf(out, "Email: %s\n", user.Email)
			fmt.Fprintf(out, "Superuser: %v\n", user.IsSuperuser)
			return nil
		}),
	}
	createCmd.Flags().String("email", "", "User email (also used as username)")
	createCmd.Flags().String("password", "", "User password (will be hashed)")
	createCmd.Flags().Bool("superuser", false, "Create a superuser")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: withManager(func(ctx context.Context, um *database.UserManager, _ *cobra.Command) error {
			users, err := um.ListUsers(ctx)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEmail\tSuperuser\tActive\tCreated\tLast Login")
			for _, user := range users {
				lastLogin := "Never"
				if user.LastLogin != nil {
					lastLogin = user.LastLogin.Format(timeLayout)
				}
				fmt.Fprintf(w, "%d\t%s\t%v\t%v\t%s\t%s\n",
					user.ID,
					user.Email,
					user.IsSuperuser,
					user.IsActive,
					user.CreatedAt.Format(timeLayout),
					lastLogin,
				)
			}
			return w.Flush()
		}),
	}

	emailCommand := func(use, short, done string, fn func(ctx context.Context, um *database.UserManager, email string) error) *cobra.Command {
		c := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: withManager(func(ctx context.Context, um *database.UserManager, cmd *cobra.Command) error {
				email, _ := cmd.Flags().GetString("email")
				if err := fn(ctx, um, email); err != nil {
					return fmt.Errorf("failed to %s user: %w", use, err)
				}
				fmt.Fprintf(out, "User %s %s successfully\n", email, done)
				return nil
			}),
		}
		c.Flags().String("email", "", "User email")
		_ = c.MarkFlagRequired("email")
		return c
	}

	disableCmd := emailCommand("disable", "Disable a user", "disabled", func(ctx context.Context, um *database.UserManager, email string) error {
		return um.DisableUser(ctx, email)
	})
	enableCmd := emailCommand("enable", "Enable a user", "enabled", func(ctx context.Context, um *database.UserManager, email string) error {
		return um.EnableUser(ctx, email)
	})
	deleteCmd := emailCommand("delete", "Delete a user and all of its page permissions", "deleted", func(ctx context.Context, um *database.UserManager, email string) error {
		return um.DeleteUser(ctx, email)
	})

	var passwdCmd = &cobra.Command{
		Use:   "passwd",
		Short: "Set a user's password",
		RunE: withManager(func(ctx context.Context, um *database.UserManager, cmd *cobra.Command) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if err := um.UpdateUserPassword(ctx, email, password); err != nil {
				return fmt.Errorf("failed to update password: %w", err)
			}
			fmt.Fprintf(out, "Password for %s updated successfully\n", email)
			return nil
		}),
	}
	passwdCmd.Flags().String("email", "", "User email")
	passwdCmd.Flags().String("password", "", "New password (will be hashed)")
	_ = passwdCmd.MarkFlagRequired("email")
	_ = passwdCmd.MarkFlagRequired("password")

	var grantCmd = &cobra.Command{
		Use:   "grant",
		Short: "Set a user's flags on one page, replacing any previous flags",
		RunE: withManager(func(ctx context.Context, um *database.UserManager, cmd *cobra.Command) error {
			email, _ := cmd.Flags().GetString("email")
			pageName, _ := cmd.Flags().GetString("page")
			page, err := permission.ParsePage(pageName)
			if err != nil {
				return err
			}

			var flags permission.Flags
			flags.CanView, _ = cmd.Flags().GetBool("view")
			flags.CanEdit, _ = cmd.Flags().GetBool("edit")
			flags.CanCreate, _ = cmd.Flags().GetBool("create")
			flags.CanDelete, _ = cmd.Flags().GetBool("delete")

			perm, err := um.GrantPagePermission(ctx, email, page, flags)
			if err != nil {
				return fmt.Errorf("failed to grant permission: %w", err)
			}
			fmt.Fprintf(out, "Set %s on page %s for user %s\n", describeFlags(perm.Flags), perm.Page, email)
			return nil
		}),
	}
	grantCmd.Flags().String("email", "", "User email")
	grantCmd.Flags().String("page", "", "Page name (e.g. clients, order_list)")
	grantCmd.Flags().Bool("view", false, "Allow viewing the page")
	grantCmd.Flags().Bool("edit", false, "Allow editing on the page")
	grantCmd.Flags().Bool("create", false, "Allow creating on the page")
	grantCmd.Flags().Bool("delete", false, "Allow deleting on the page")
	_ = grantCmd.MarkFlagRequired("email")
	_ = grantCmd.MarkFlagRequired("page")

	var permissionsCmd = &cobra.Command{
		Use:   "permissions",
		Short: "Show a user's page permissions",
		RunE: withManager(func(ctx context.Context, um *database.UserManager, cmd *cobra.Command) error {
			email, _ := cmd.Flags().GetString("email")
			perms, err := um.UserPermissions(ctx, email)
			if err != nil {
				return fmt.Errorf("failed to load permissions: %w", err)
			}
			if len(perms) == 0 {
				fmt.Fprintf(out, "User %s has no page permissions\n", email)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "Page\tView\tEdit\tCreate\tDelete")
			for _, p := range perms {
				fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%v\n", p.Page, p.CanView, p.CanEdit, p.CanCreate, p.CanDelete)
			}
			return w.Flush()
		}),
	}
	permissionsCmd.Flags().String("email", "", "User email")
	_ = permissionsCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(createCmd, listCmd, deleteCmd, disableCmd, enableCmd, passwdCmd, grantCmd, permissionsCmd)
	return rootCmd
}

func describeFlags(f permission.Flags) string {
	if f.None() {
		return "no access"
	}
	var granted []string
	if f.CanView {
		granted = append(granted, "view")
	}
	if f.CanEdit {
		granted = append(granted, "edit")
	}
	if f.CanCreate {
		granted = append(granted, "create")
	}
	if f.CanDelete {
		granted = append(granted, "delete")
	}
	return strings.Join(granted, ",")
}

// openStore resolves the database settings from the config file when given,
// falling back to the command line flags.
func openStore(ctx context.Context, configFile string, dbConfig database.Config) (database.Store, int, error) {
	cost := 0
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load config: %w", err)
		}
		dbConfig.ConnectionString = cfg.Database.ConnectionString
		dbConfig.Driver = cfg.Database.Driver
		dbConfig.MaxOpenConns = cfg.Database.MaxOpenConns
		dbConfig.MaxIdleConns = cfg.Database.MaxIdleConns
		dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		cost = cfg.Auth.BcryptCost
	}

	if dbConfig.Driver != database.DriverMemory && dbConfig.ConnectionString == "" {
		return nil, 0, fmt.Errorf("database connection string is required, use --db-connection or configure it in the config file")
	}

	store, err := database.Open(ctx, dbConfig)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, cost, nil
}
