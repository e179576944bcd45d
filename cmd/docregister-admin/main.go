package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/civitaslab/docregister/internal/blob"
	"github.com/civitaslab/docregister/internal/config"
	"github.com/civitaslab/docregister/internal/database"
	"github.com/civitaslab/docregister/internal/logging"
	"github.com/civitaslab/docregister/internal/policy"
	"github.com/civitaslab/docregister/internal/principals"
	"github.com/civitaslab/docregister/internal/register"
)

// docregister-admin is the one-time administrative surface of the register:
// schema initialization and principal management. Document submission and
// approval stay behind the ledger service and are not reachable from here.

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "docregister-admin",
		Short: "Administrative tooling for the municipal document register",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newMigrateCommand(),
		newCreatePrincipalCommand(),
		newDeletePrincipalCommand(),
		newListPrincipalsCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("blob-dir", defaults.GetString("blob.dir"), "Directory holding uploaded document bytes")
	cmd.PersistentFlags().Int("quorum", defaults.GetInt("register.quorum"), "Distinct approvals required to validate a document")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "blob.dir", "blob-dir")
	bindFlag(cmd, "register.quorum", "quorum")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the register schema and blob directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, db, cleanup, err := openEnvironment()
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := blob.NewStore(appConfig.BlobDir); err != nil {
				return err
			}

			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

func newCreatePrincipalCommand() *cobra.Command {
	var (
		displayName string
		role        string
		taxID       string
		credential  string
	)

	cmd := &cobra.Command{
		Use:   "create-principal",
		Short: "Register a new principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := openPrincipalService()
			if err != nil {
				return err
			}
			defer cleanup()

			principal, err := service.Create(cmd.Context(), policy.RoleAdmin, principals.CreateInput{
				DisplayName: displayName,
				Role:        role,
				TaxID:       taxID,
				Credential:  credential,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created principal %s (%s)\n", principal.ID, principal.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Display name of the principal")
	cmd.Flags().StringVar(&role, "role", string(policy.RoleAuditor), "Role (admin or auditor)")
	cmd.Flags().StringVar(&taxID, "tax-id", "", "CPF of the principal (required for auditors)")
	cmd.Flags().StringVar(&credential, "credential", "", "Opaque credential token issued by the login layer")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	cobra.CheckErr(cmd.MarkFlagRequired("credential"))

	return cmd
}

func newDeletePrincipalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-principal <id>",
		Short: "Delete a principal by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := openPrincipalService()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := service.Delete(cmd.Context(), policy.RoleAdmin, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted principal %s\n", args[0])
			return nil
		},
	}
}

func newListPrincipalsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-principals",
		Short: "List registered principals",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := openPrincipalService()
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := service.List(cmd.Context(), policy.RoleAdmin)
			if err != nil {
				return err
			}
			for _, principal := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", principal.ID, principal.Role, principal.DisplayName)
			}
			return nil
		},
	}
}

func openEnvironment() (config.AppConfig, *gorm.DB, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return config.AppConfig{}, nil, nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		logger.Sync() //nolint:errcheck
		return config.AppConfig{}, nil, nil, err
	}

	cleanup := func() {
		logger.Sync() //nolint:errcheck
	}
	return appConfig, db, cleanup, nil
}

func openPrincipalService() (*principals.Service, func(), error) {
	_, db, cleanup, err := openEnvironment()
	if err != nil {
		return nil, nil, err
	}

	service, err := principals.NewService(principals.ServiceConfig{
		Database:   db,
		IDProvider: register.NewUUIDProvider(),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	closeAll := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		cleanup()
	}
	return service, closeAll, nil
}
