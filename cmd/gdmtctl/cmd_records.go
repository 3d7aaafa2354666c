package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gdmt-audit-server/internal/config"
	"github.com/gdmt-audit-server/internal/tracking"
)

var recordsFlags struct {
	db string
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Export and import resolution records of the standalone server",
}

var recordsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export every resolution record as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRecordsExport,
}

var recordsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import resolution records, skipping IDs that already exist",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsImport,
}

func init() {
	recordsCmd.PersistentFlags().StringVar(&recordsFlags.db, "db", "", "Record database (default: $GDMT_DATA_DIR/resolutions.db)")
	recordsCmd.AddCommand(recordsExportCmd)
	recordsCmd.AddCommand(recordsImportCmd)
}

func openRecordStore() (*tracking.SQLiteStore, *config.LiteConfig, error) {
	cfg, err := config.LoadLiteConfig()
	if err != nil {
		return nil, nil, err
	}
	path := recordsFlags.db
	if path == "" {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, nil, err
		}
		path = cfg.RecordsDBPath()
	}
	store, err := tracking.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runRecordsExport(cmd *cobra.Command, args []string) error {
	store, cfg, err := openRecordStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		if err := os.MkdirAll(cfg.ExportDir(), 0755); err != nil {
			return err
		}
		path = filepath.Join(cfg.ExportDir(), fmt.Sprintf("resolutions-%s.json", time.Now().UTC().Format("20060102-150405")))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := store.ExportJSON(cmd.Context(), f); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported resolution records to %s\n", path)
	return nil
}

func runRecordsImport(cmd *cobra.Command, args []string) error {
	store, _, err := openRecordStore()
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	imported, skipped, err := store.ImportJSON(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records, skipped %d\n", imported, skipped)
	return nil
}
