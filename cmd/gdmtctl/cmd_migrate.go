package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/gdmt-audit-server/internal/config"
	"github.com/gdmt-audit-server/internal/database"
)

var migrateFlags struct {
	configFile string
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Apply or roll back server database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE:      runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFlags.configFile, "config", "", "Server config file (default: search ., ./config, /etc/gdmt-audit-server)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	var (
		m   *config.Manager
		err error
	)
	if migrateFlags.configFile != "" {
		m, err = config.NewManagerFromFile(migrateFlags.configFile)
	} else {
		m, err = config.NewManager()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg := m.GetConfig()
	runner, err := database.NewMigrationRunner(database.ConfigFrom(cfg.Database).URL(), cfg.Database.MigrationsPath, newLogger(cmd))
	if err != nil {
		return err
	}
	defer runner.Close()

	switch args[0] {
	case "up":
		err = runner.Up(cmd.Context())
	case "down":
		err = runner.Down(cmd.Context())
	}
	if err != nil {
		return err
	}

	v, dirty, err := runner.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %v)\n", v, dirty)
	return nil
}
