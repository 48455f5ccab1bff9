package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Markers are the filename tokens that select how a read file is aligned.
type Markers struct {
	Merged   string `mapstructure:"merged"`
	Unpaired string `mapstructure:"unpaired"`
	Unmerged string `mapstructure:"unmerged"`
	R1       string `mapstructure:"r1"`
	R2       string `mapstructure:"r2"`
}

// Config is the run configuration, merged from the config file,
// RMCONTAM_* environment variables and command line flags.
type Config struct {
	Input       string `mapstructure:"input"`
	Output      string `mapstructure:"output"`
	Reference   string `mapstructure:"reference"`
	IndexPrefix string `mapstructure:"index_prefix"`
	LogFile     string `mapstructure:"log_file"`

	BamFile     bool `mapstructure:"bamfile"`
	AlignedOnly bool `mapstructure:"aligned_only"`
	Resume      bool `mapstructure:"resume"`
	CountReads  bool `mapstructure:"count_reads"`
	Verbose     bool `mapstructure:"verbose"`

	Threads   int `mapstructure:"threads"`
	Jobs      int `mapstructure:"jobs"`
	GroupJobs int `mapstructure:"group_jobs"`

	Bowtie2      string   `mapstructure:"bowtie2"`
	Bowtie2Build string   `mapstructure:"bowtie2_build"`
	Samtools     string   `mapstructure:"samtools"`
	Bowtie2Args  []string `mapstructure:"bowtie2_args"`

	Markers Markers `mapstructure:"markers"`
}

// LoadConfig reads configPath (optional) and overlays flags. Flag names use
// dashes where config keys use underscores, so --index-prefix sets index_prefix.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("output", "filtered_processed_fastqs")
	v.SetDefault("threads", 4)
	v.SetDefault("jobs", 1)
	v.SetDefault("group_jobs", 1)
	v.SetDefault("bowtie2", "bowtie2")
	v.SetDefault("bowtie2_build", "bowtie2-build")
	v.SetDefault("samtools", "samtools")
	v.SetDefault("markers.merged", "merged")
	v.SetDefault("markers.unpaired", "unpaired")
	v.SetDefault("markers.unmerged", "unmerged")
	v.SetDefault("markers.r1", "R1")
	v.SetDefault("markers.r2", "R2")

	v.SetEnvPrefix("RMCONTAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, errors.Wrap(bindErr, "binding flags")
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", configPath)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish fills the locations derived from the input directory and validates.
func (c *Config) finish() error {
	if c.Input == "" {
		return errors.New("no input directory set")
	}
	info, err := os.Stat(c.Input)
	if err != nil {
		return errors.Wrapf(err, "input directory %s", c.Input)
	}
	if !info.IsDir() {
		return errors.Errorf("input %s is not a directory", c.Input)
	}

	// the reference and its index live next to the input folder
	parent := filepath.Dir(filepath.Clean(c.Input))
	if c.Reference == "" {
		c.Reference = filepath.Join(parent, "contaminants.fa")
	}
	if c.IndexPrefix == "" {
		c.IndexPrefix = filepath.Join(parent, "contaminants_index")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.Output, "rmcontam.log")
	}

	if c.Threads < 1 || c.Jobs < 1 || c.GroupJobs < 1 {
		return errors.Errorf("threads (%d), jobs (%d) and group_jobs (%d) must all be at least 1", c.Threads, c.Jobs, c.GroupJobs)
	}
	m := c.Markers
	for _, tok := range []string{m.Merged, m.Unpaired, m.Unmerged, m.R1, m.R2} {
		if tok == "" {
			return errors.New("filename markers must not be empty")
		}
	}
	if m.R1 == m.R2 {
		return errors.Errorf("mate markers must differ, both are %q", m.R1)
	}
	return nil
}

// Tools lists the executables a run needs.
func (c *Config) Tools() []string {
	tools := []string{c.Bowtie2, c.Bowtie2Build}
	if c.BamFile {
		tools = append(tools, c.Samtools)
	}
	return tools
}
