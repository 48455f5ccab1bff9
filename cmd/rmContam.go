/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gmaffy/rmcontam/pipeline"
	"github.com/gmaffy/rmcontam/report"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/spf13/cobra"
)

// rmContamCmd represents the rmContam command
var rmContamCmd = &cobra.Command{
	Use:   "rmContam",
	Short: "Removes contaminant reads from every replicate folder",
	Long: `Aligns the fastq files of every replicate folder inside --input against the
contaminant index (built from contaminants.fa next to the input folder if it
does not exist yet) and writes, per replicate:

	<output>/<replicate>/unmapped/  decontaminated reads
	<output>/<replicate>/mapped/    contaminant reads
	<output>/<replicate>/samtools/  <replicate>_mapped.bam and .bai (with --bamfile)

A file that fails to align or convert is skipped; the other files and
replicates carry on. summary.csv and failures.csv are written to the output folder.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := utils.LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			log.Fatalf("Error reading configuration: %v", err)
		}

		fmt.Printf("Checking dependencies ...\n\n")
		if err := utils.CheckDeps(cfg.Tools()...); err != nil {
			log.Fatalf("Dependency check failed: %v", err)
		}
		fmt.Printf("Dependencies OK\n\n----------------------------------------------------------\n\n")

		if err := os.MkdirAll(cfg.Output, 0755); err != nil {
			log.Fatalf("Error creating output directory: %v", err)
		}
		var previous []utils.LogEntry
		if cfg.Resume {
			if previous, err = utils.ParseLogFile(cfg.LogFile); err != nil {
				log.Fatalf("Error reading run log: %v", err)
			}
			if previous == nil {
				previous = []utils.LogEntry{}
			}
		}
		logger, closer, err := utils.OpenRunLog(cfg.LogFile, cfg.Verbose)
		if err != nil {
			log.Fatalf("Error opening run log: %v", err)
		}
		defer closer.Close()
		slog.SetDefault(logger)

		fmt.Printf("Input: %s\nOutput: %s\nReference: %s\nIndex: %s\nBAM artifacts: %v\n\n",
			cfg.Input, cfg.Output, cfg.Reference, cfg.IndexPrefix, cfg.BamFile)

		c := pipeline.New(cfg, utils.ExecRunner{}, logger)
		c.Previous = previous
		rep, err := c.Run(cfg.Input)
		if err != nil {
			closer.Close()
			log.Fatalf("Pipeline aborted: %v", err)
		}
		if err := rep.Write(cfg.Output); err != nil {
			log.Printf("Error writing run summary: %v", err)
		}
		report.Print(os.Stdout, rep.Rows(), rep.Failures())
		fmt.Println("Pipeline finished.")
	},
}

func init() {
	rootCmd.AddCommand(rmContamCmd)

	rmContamCmd.Flags().StringP("input", "i", "", "folder holding one sub-folder of fastq files per replicate")
	rmContamCmd.Flags().StringP("output", "o", "filtered_processed_fastqs", "output folder")
	rmContamCmd.Flags().StringP("reference", "r", "", "contaminant fasta (default <input parent>/contaminants.fa)")
	rmContamCmd.Flags().String("index-prefix", "", "bowtie2 index prefix (default <input parent>/contaminants_index)")
	rmContamCmd.Flags().String("log-file", "", "JSON run log (default <output>/rmcontam.log)")
	rmContamCmd.Flags().BoolP("bamfile", "B", false, "keep a merged, sorted and indexed BAM of contaminant alignments per replicate")
	rmContamCmd.Flags().Bool("aligned-only", false, "leave unaligned reads out of the BAM (bowtie2 --no-unal)")
	rmContamCmd.Flags().IntP("threads", "t", 4, "threads per bowtie2 and samtools call")
	rmContamCmd.Flags().IntP("jobs", "j", 1, "replicates processed in parallel")
	rmContamCmd.Flags().Int("group-jobs", 1, "read groups aligned in parallel within a replicate")
	rmContamCmd.Flags().Bool("resume", false, "skip replicates the run log records as completed")
	rmContamCmd.Flags().Bool("count-reads", false, "count retained and contaminant reads for the summary")
	rmContamCmd.Flags().StringSlice("bowtie2-args", []string{}, "extra arguments passed to bowtie2")
	rmContamCmd.Flags().BoolP("verbose", "v", false, "print debug records")
}
