package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gdmt-audit-server/internal/domain"
	"github.com/gdmt-audit-server/internal/resolution"
)

var pathwaysFlags struct {
	blocker string
	class   string
	file    string
}

var pathwaysCmd = &cobra.Command{
	Use:   "pathways",
	Short: "List resolution pathways for a blocker on a therapy class",
	RunE:  runPathways,
}

func init() {
	f := pathwaysCmd.Flags()
	f.StringVar(&pathwaysFlags.blocker, "blocker", "", "Blocker code, e.g. PRIOR_AUTH_DENIED (required)")
	f.StringVar(&pathwaysFlags.class, "class", "", "Therapy class, e.g. SGLT2I (required)")
	f.StringVarP(&pathwaysFlags.file, "file", "f", "", "Optional snapshot file for patient-specific pathways")
	_ = pathwaysCmd.MarkFlagRequired("blocker")
	_ = pathwaysCmd.MarkFlagRequired("class")
}

func runPathways(cmd *cobra.Command, _ []string) error {
	blocker := domain.BlockerCode(pathwaysFlags.blocker)
	class := domain.TherapyClass(pathwaysFlags.class)
	if !blocker.IsValid() {
		return fmt.Errorf("unknown blocker %q", pathwaysFlags.blocker)
	}
	if !class.IsValid() {
		return fmt.Errorf("unknown therapy class %q", pathwaysFlags.class)
	}

	rs, err := loadRuleset()
	if err != nil {
		return err
	}
	var p *domain.PatientSnapshot
	if pathwaysFlags.file != "" {
		if p, err = readSnapshot(cmd, pathwaysFlags.file); err != nil {
			return err
		}
	}

	pathways := resolution.NewSelector(rs).Select(blocker, class, p)
	if pathways == nil {
		pathways = []domain.ResolutionPathway{}
	}
	return printJSON(cmd, pathways)
}
