/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"

	"github.com/gmaffy/rmcontam/index"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/spf13/cobra"
)

// buildIndexCmd represents the buildIndex command
var buildIndexCmd = &cobra.Command{
	Use:   "buildIndex",
	Short: "Builds the shared contaminant index",
	Long: `Builds the bowtie2 index of the contaminant fasta if it is not complete yet.
Concurrent invocations wait on index_build.lock and only one of them builds.
Sequence names that samtools headers reject are listed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := utils.LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			log.Fatalf("Error reading configuration: %v", err)
		}
		fmt.Printf("Checking dependencies ...\n\n")
		if err := utils.CheckDeps(cfg.Bowtie2Build); err != nil {
			log.Fatalf("Dependency check failed: %v", err)
		}
		fmt.Printf("Dependencies OK\n\n----------------------------------------------------------\n\n")

		ref, err := index.InspectReference(cfg.Reference)
		if err != nil {
			log.Fatalf("Error reading reference: %v", err)
		}
		fmt.Printf("Reference: %s\nSequences: %d\nBases: %d\n\n", ref.Path, ref.Sequences, ref.Bases)
		if len(ref.Unsafe) > 0 {
			names := make([]string, 0, len(ref.Unsafe))
			for name := range ref.Unsafe {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Printf("%d sequence name(s) will be sanitized in BAM headers:\n", len(names))
			for _, name := range names {
				fmt.Printf("\t%s -> %s\n", name, ref.Unsafe[name])
			}
			fmt.Println()
		}

		logger := utils.NewLogger(os.Stderr, os.Stderr, cfg.Verbose)
		slog.SetDefault(logger)
		b := &index.Builder{Runner: utils.ExecRunner{}, Tool: cfg.Bowtie2Build, Threads: cfg.Threads, Logger: logger}
		if err := b.EnsureIndex(cfg.Reference, cfg.IndexPrefix); err != nil {
			log.Fatalf("Index build failed: %v", err)
		}
		fmt.Printf("Index ready at %s\n", cfg.IndexPrefix)
	},
}

func init() {
	rootCmd.AddCommand(buildIndexCmd)

	buildIndexCmd.Flags().StringP("input", "i", "", "input folder; the index goes next to it")
	buildIndexCmd.Flags().StringP("reference", "r", "", "contaminant fasta (default <input parent>/contaminants.fa)")
	buildIndexCmd.Flags().String("index-prefix", "", "bowtie2 index prefix (default <input parent>/contaminants_index)")
	buildIndexCmd.Flags().IntP("threads", "t", 4, "bowtie2-build threads")
	buildIndexCmd.Flags().BoolP("verbose", "v", false, "print debug records")
}
