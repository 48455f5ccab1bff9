package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "processed_fastqs")
	require.NoError(t, os.Mkdir(input, 0755))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("input", "", "")
	flags.Bool("bamfile", false, "")
	require.NoError(t, flags.Parse([]string{"--input", input, "--bamfile"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "contaminants.fa"), cfg.Reference)
	assert.Equal(t, filepath.Join(root, "contaminants_index"), cfg.IndexPrefix)
	assert.True(t, cfg.BamFile)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, "unmerged", cfg.Markers.Unmerged)
	assert.Equal(t, []string{"bowtie2", "bowtie2-build", "samtools"}, cfg.Tools())
}

func TestLoadConfigFileAndFlagOverride(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "in")
	require.NoError(t, os.Mkdir(input, 0755))
	cfgPath := filepath.Join(root, "rmcontam.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
input: `+input+`
threads: 8
jobs: 3
markers:
  r1: READ1
  r2: READ2
`), 0644))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("jobs", 1, "")
	flags.Int("threads", 4, "")
	require.NoError(t, flags.Parse([]string{"--jobs", "5"}))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Threads, "file beats flag default")
	assert.Equal(t, 5, cfg.Jobs, "explicit flag beats file")
	assert.Equal(t, "READ1", cfg.Markers.R1)
	assert.Equal(t, "merged", cfg.Markers.Merged)
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := LoadConfig("", nil)
	assert.ErrorContains(t, err, "no input directory")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("input", "", "")
	require.NoError(t, flags.Parse([]string{"--input", file}))
	_, err = LoadConfig("", flags)
	assert.ErrorContains(t, err, "not a directory")
}
