package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/chms-migrate/internal/pipeline"
)

var stageDescriptions = map[pipeline.Stage]string{
	pipeline.StageIndividuals:       "attribute definitions, campuses, people with addresses and phones",
	pipeline.StageCompanies:         "businesses",
	pipeline.StageNotes:             "person notes",
	pipeline.StageFinancialAccounts: "fund and sub-fund accounts",
	pipeline.StageFinancialPledges:  "pledges",
	pipeline.StageFinancialBatches:  "source batches and received-date batches",
	pipeline.StageContributions:     "transactions with their details",
	pipeline.StageGroups:            "group types, groups and members",
	pipeline.StageAttendance:        "attendance",
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the export stages in run order",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for i, s := range pipeline.Stages() {
			fmt.Fprintf(out, "%d. %-18s %s\n", i+1, s, stageDescriptions[s])
		}
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
}
