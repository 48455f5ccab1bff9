/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gmaffy/rmcontam/report"
	"github.com/spf13/cobra"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Prints the summary of an earlier run",
	Long:  `Reads summary.csv from an output folder, prints it and lists the replicates that finished with skipped files.`,
	Run: func(cmd *cobra.Command, args []string) {
		outDir, oErr := cmd.Flags().GetString("output")
		if oErr != nil {
			log.Fatalf("Error getting output flag: %v", oErr)
		}
		summary := filepath.Join(outDir, report.SummaryFile)

		rows, err := report.ReadSummary(summary)
		if err != nil {
			log.Fatalf("Error reading summary: %v", err)
		}
		report.Print(os.Stdout, rows, nil)

		partial, err := report.PartialReplicates(summary)
		if err != nil {
			log.Fatalf("Error filtering summary: %v", err)
		}
		if len(partial) == 0 {
			fmt.Println("\nNo partial replicates.")
			return
		}
		fmt.Printf("\nPartial replicates (details in %s):\n", filepath.Join(outDir, report.FailuresFile))
		for _, r := range partial {
			fmt.Printf("\t%s: %d failure(s)\n", r.Replicate, r.Failures)
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("output", "o", "filtered_processed_fastqs", "output folder of the run")
}
