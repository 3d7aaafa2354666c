package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/ruleset"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	rulesetPath string
	logLevel    string
}

var rootCmd = &cobra.Command{
	Use:   "gdmtctl",
	Short: "Audit patient snapshots against the GDMT ruleset",
	Long:  "gdmtctl runs guideline-directed medical therapy audits offline, lists resolution\npathways, validates rulesets and manages the server database.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.rulesetPath, "ruleset", "", "Ruleset file (default: embedded ruleset)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(pathwaysCmd)
	rootCmd.AddCommand(rulesetCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if level, err := logrus.ParseLevel(rootFlags.logLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func loadRuleset() (*ruleset.Ruleset, error) {
	rs, err := ruleset.Load(rootFlags.rulesetPath)
	if err != nil {
		return nil, fmt.Errorf("load ruleset: %w", err)
	}
	return rs, nil
}

// readSnapshot reads a patient snapshot from a JSON or YAML file. "-" reads JSON from stdin.
func readSnapshot(cmd *cobra.Command, path string) (*domain.PatientSnapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var p domain.PatientSnapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &p, nil
}

func parseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of must be RFC3339 or YYYY-MM-DD: %q", value)
	}
	return t, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
