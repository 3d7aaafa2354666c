package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/engine"
	"github.com/gdmt-audit-server/internal/service"
)

var auditFlags struct {
	domain string
	file   string
	asOf   string
	format string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit a patient snapshot",
	Long:  "Audit a patient snapshot for one domain, or for every domain when --domain is omitted.",
	RunE:  runAudit,
}

var planFlags struct {
	domain string
	file   string
	asOf   string
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Audit a snapshot and print the prioritized action plan",
	RunE:  runPlan,
}

func init() {
	f := auditCmd.Flags()
	f.StringVar(&auditFlags.domain, "domain", "", "Domain: heart_failure, diabetes, hypertension (default: all)")
	f.StringVarP(&auditFlags.file, "file", "f", "", "Snapshot file, JSON or YAML (required)")
	f.StringVar(&auditFlags.asOf, "as-of", "", "Audit date, RFC3339 or YYYY-MM-DD (default: now)")
	f.StringVar(&auditFlags.format, "format", "json", "Output format: json, summary")
	_ = auditCmd.MarkFlagRequired("file")

	pf := planCmd.Flags()
	pf.StringVar(&planFlags.domain, "domain", "heart_failure", "Domain to plan for")
	pf.StringVarP(&planFlags.file, "file", "f", "", "Snapshot file, JSON or YAML (required)")
	pf.StringVar(&planFlags.asOf, "as-of", "", "Audit date, RFC3339 or YYYY-MM-DD (default: now)")
	_ = planCmd.MarkFlagRequired("file")
}

func newAuditService(cmd *cobra.Command) (*service.AuditService, error) {
	rs, err := loadRuleset()
	if err != nil {
		return nil, err
	}
	return service.NewAuditService(engine.New(rs), service.AuditServiceConfig{}, newLogger(cmd)), nil
}

func runAudit(cmd *cobra.Command, _ []string) error {
	audits, err := newAuditService(cmd)
	if err != nil {
		return err
	}
	p, err := readSnapshot(cmd, auditFlags.file)
	if err != nil {
		return err
	}
	asOf, err := parseAsOf(auditFlags.asOf)
	if err != nil {
		return err
	}

	var ids []domain.DomainID
	if auditFlags.domain != "" {
		id, err := domain.ParseDomainID(auditFlags.domain)
		if err != nil {
			return err
		}
		ids = []domain.DomainID{id}
	}

	results, err := audits.AuditAll(cmd.Context(), ids, p, asOf)
	if err != nil {
		return err
	}

	switch auditFlags.format {
	case "summary":
		out := cmd.OutOrStdout()
		for _, r := range results {
			fmt.Fprintf(out, "%-14s %-22s score %3d/100", r.Domain, r.Category, r.Score.Normalized)
			if r.Score.IsIncomplete {
				fmt.Fprint(out, " (incomplete)")
			}
			fmt.Fprintln(out)
			for _, pr := range r.Pillars {
				fmt.Fprintf(out, "  %-15s %-22s %v\n", pr.Pillar, pr.Status, pr.Blockers)
			}
		}
		return nil
	case "json":
		if len(results) == 1 {
			return printJSON(cmd, results[0])
		}
		return printJSON(cmd, results)
	default:
		return fmt.Errorf("unknown format %q", auditFlags.format)
	}
}

func runPlan(cmd *cobra.Command, _ []string) error {
	audits, err := newAuditService(cmd)
	if err != nil {
		return err
	}
	id, err := domain.ParseDomainID(planFlags.domain)
	if err != nil {
		return err
	}
	p, err := readSnapshot(cmd, planFlags.file)
	if err != nil {
		return err
	}
	asOf, err := parseAsOf(planFlags.asOf)
	if err != nil {
		return err
	}

	result, err := audits.Audit(cmd.Context(), id, p, asOf)
	if err != nil {
		return err
	}
	return printJSON(cmd, audits.ActionPlan(result))
}
