package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"karte-backend/internal/config"
	"karte-backend/internal/repository"
	"karte-backend/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	adminEmail    string
	adminPassword string
)

var rootCmd = &cobra.Command{
	Use:   "karte",
	Short: "Salon karte backend",
	Long: `karte serves the salon console and the LINE customer view.

Customers, visits and link tokens live in PostgreSQL; visit photos live in
S3 or on the local disk.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

var purgeCmd = &cobra.Command{
	Use:   "purge-link-tokens",
	Short: "Delete used and expired link tokens",
	RunE:  runPurge,
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a console admin account",
	Long: `Creates an admin account regardless of admin.allow_registration.

Example:
  karte create-admin --email staff@example.com --password 's3cret-pass'`,
	RunE: runCreateAdmin,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "Path to the YAML config file")

	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Admin email")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Admin password (8+ characters)")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(serveCmd, migrateCmd, purgeCmd, createAdminCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and sets up logging
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	version, err := repository.Migrate(cfg.Database.MigrationURL())
	if err != nil {
		return err
	}

	log.Info().Uint("version", version).Msg("Database migrated")
	return nil
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	db, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	tokens := repository.NewLinkTokenRepository(db)
	n, err := tokens.DeleteSpent(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to purge link tokens: %w", err)
	}

	log.Info().Int64("deleted", n).Msg("Purged spent link tokens")
	return nil
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	db, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	auth := services.NewAuthService(repository.NewAdminRepository(db), authOptions(cfg))
	admin, err := auth.CreateAdmin(ctx, adminEmail, adminPassword)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	log.Info().Str("admin_id", admin.ID).Str("email", admin.Email).Msg("Admin created")
	return nil
}

func authOptions(cfg *config.Config) services.AuthOptions {
	return services.AuthOptions{
		JWTSecret:         cfg.JWT.Secret,
		AdminTTL:          cfg.JWT.AdminTTL,
		CustomerTTL:       cfg.JWT.CustomerTTL,
		AllowRegistration: cfg.Admin.AllowRegistration,
	}
}
