/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/gmaffy/rmcontam/pipeline"
	"github.com/gmaffy/rmcontam/reads"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/spf13/cobra"
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Lists how the fastq files of each replicate would be aligned",
	Long: `Dry run of the read grouping: prints the single-end and paired groups of
every replicate folder, the paired files whose mate is missing and the
files no marker applies to. Nothing is aligned.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := utils.LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			log.Fatalf("Error reading configuration: %v", err)
		}
		names, err := pipeline.Replicates(cfg.Input)
		if err != nil {
			log.Fatalf("Error listing replicates: %v", err)
		}
		markers := reads.Markers(cfg.Markers)
		for _, name := range names {
			c, err := reads.Classify(filepath.Join(cfg.Input, name), markers)
			if err != nil {
				fmt.Printf("%s: %v\n\n", name, err)
				continue
			}
			fmt.Printf("---- %s ----\n", name)
			for _, g := range c.Groups {
				if g.Kind == reads.Paired {
					fmt.Printf("  %-10s %s\n  %-10s %s\n", g.Kind, filepath.Base(g.R1), "", filepath.Base(g.R2))
					continue
				}
				fmt.Printf("  %-10s %s\n", g.Kind, filepath.Base(g.R1))
			}
			for _, m := range c.Missing {
				fmt.Printf("  %-10s %v\n", "MISSING", m)
			}
			for _, d := range c.Duplicates {
				fmt.Printf("  %-10s %v\n", "DUPLICATE", d)
			}
			for _, u := range c.Skipped {
				fmt.Printf("  %-10s %s (%s)\n", "SKIPPED", filepath.Base(u.Path), u.Reason)
			}
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringP("input", "i", "", "folder holding one sub-folder of fastq files per replicate")
}
