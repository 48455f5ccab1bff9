/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rmcontam",
	Short: "Removes contaminant reads from processed fastq files",
	Long: `Removes contaminant sequences from sequencing reads by aligning every
replicate against a shared contaminant index:
1.	Index: bowtie2-build, once, shared by concurrent runs
2.	Alignment: bowtie2, single-end (merged/unpaired) and paired (unmerged R1/R2)
3.	Artifacts: samtools sort, merge, reheader and index (optional)
4.	Run summary: tables, contamination statistics and a chart
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
}
