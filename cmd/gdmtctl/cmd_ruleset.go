package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gdmt-audit-server/internal/documents"
	"github.com/gdmt-audit-server/internal/ruleset"
)

var rulesetCmd = &cobra.Command{
	Use:   "ruleset",
	Short: "Inspect and validate Guideline-as-Code rulesets",
}

var rulesetValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the ruleset and check document template coverage",
	RunE:  runRulesetValidate,
}

var rulesetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective ruleset as YAML",
	RunE:  runRulesetShow,
}

func init() {
	rulesetCmd.AddCommand(rulesetValidateCmd)
	rulesetCmd.AddCommand(rulesetShowCmd)
}

func runRulesetValidate(cmd *cobra.Command, _ []string) error {
	rs, err := loadRuleset()
	if err != nil {
		return err
	}
	docs, err := documents.NewRegistry()
	if err != nil {
		return fmt.Errorf("load document templates: %w", err)
	}
	if err := docs.Validate(rs); err != nil {
		return err
	}

	source := rootFlags.rulesetPath
	if source == "" {
		source = "embedded"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ruleset %s (%s) is valid: %d therapy classes\n", rs.Version(), source, len(rs.Classes()))
	return nil
}

func runRulesetShow(cmd *cobra.Command, _ []string) error {
	rs, err := loadRuleset()
	if err != nil {
		return err
	}
	data, err := ruleset.Marshal(rs)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
