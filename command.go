package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"heicconv/batch"
	"heicconv/codec"
	"heicconv/logger"
)

type Config struct {
	InputPath    string
	OutputDir    string
	Version      string
	Workers      int
	QueueSize    int
	Quality      int
	QualityAlpha int
	Speed        int
	Format       string
	Extensions   []string
	TaskTimeout  time.Duration
	ReportPath   string
	JSONLog      bool
	NoColor      bool
	Verbose      bool
}

var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	defaultOutputDir = "JPEG_Output"
	envPrefix        = "HEICCONV"
)

// runFunc receives the fully resolved configuration.
type runFunc func(cmd *cobra.Command, cfg *Config) error

func newRootCommand(run runFunc) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "heicconv [flags] [input-dir]",
		Short: "Convert HEIC photos to JPEG, keeping the folder layout",
		Long: `heicconv walks a directory, converts every HEIC image it finds and writes
the result under an output directory that mirrors the input layout.
Conversions run in parallel; failures are collected and listed at the end.

A relative --output is created inside the input directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, args)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	cmd.PersistentFlags().String("config", "", "config file (default: ./heicconv.yaml or ~/.config/heicconv/heicconv.yaml)")

	f := cmd.Flags()
	f.StringP("output", "o", defaultOutputDir, "output directory; relative paths are resolved inside the input directory")
	f.IntP("workers", "w", batch.DefaultWorkers(), "number of concurrent conversions")
	f.Int("queue-size", 0, "pending job buffer (default workers*3)")
	f.IntP("quality", "q", 100, "output quality (0-100, higher is better)")
	f.String("format", codec.FormatJPEG, "output format: jpeg or avif")
	f.StringSlice("ext", []string{".heic"}, "source extensions to convert, case-insensitive")
	f.Int("quality-alpha", 80, "AVIF alpha channel quality (0-100)")
	f.Int("speed", 6, "AVIF encoding speed (0-10, lower is better quality but slower)")
	f.Duration("timeout", 0, "per-file conversion timeout (0 disables)")
	f.String("report", "", "write a YAML run report to this path")
	f.Bool("json", false, "emit logs as JSON lines")
	f.Bool("no-color", false, "disable coloured output")
	f.BoolP("verbose", "v", false, "log every converted file")

	if err := v.BindPFlags(f); err != nil {
		panic(fmt.Sprintf("binding flags: %v", err))
	}

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("heicconv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "heicconv"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func loadConfig(v *viper.Viper, args []string) (*Config, error) {
	cfg := &Config{
		InputPath:    ".",
		Version:      Version,
		OutputDir:    v.GetString("output"),
		Workers:      v.GetInt("workers"),
		QueueSize:    v.GetInt("queue-size"),
		Quality:      v.GetInt("quality"),
		QualityAlpha: v.GetInt("quality-alpha"),
		Speed:        v.GetInt("speed"),
		Format:       strings.ToLower(v.GetString("format")),
		Extensions:   v.GetStringSlice("ext"),
		TaskTimeout:  v.GetDuration("timeout"),
		ReportPath:   v.GetString("report"),
		JSONLog:      v.GetBool("json"),
		NoColor:      v.GetBool("no-color"),
		Verbose:      v.GetBool("verbose"),
	}

	if in := v.GetString("input"); in != "" {
		cfg.InputPath = in
	}
	if len(args) > 0 {
		cfg.InputPath = args[0]
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	input, err := filepath.Abs(cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("resolving input path: %w", err)
	}
	cfg.InputPath = input

	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
	if !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(cfg.InputPath, cfg.OutputDir)
	}
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)

	exts := make([]string, 0, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		if e = codec.NormalizeExt(e); e != "" {
			exts = append(exts, e)
		}
	}
	cfg.Extensions = exts

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Quality < 0 || cfg.Quality > 100 {
		return fmt.Errorf("quality must be in range 0-100")
	}
	if cfg.QualityAlpha < 0 || cfg.QualityAlpha > 100 {
		return fmt.Errorf("alpha quality must be in range 0-100")
	}
	if cfg.Speed < 0 || cfg.Speed > 10 {
		return fmt.Errorf("encoding speed must be in range 0-10")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative")
	}
	if cfg.TaskTimeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if cfg.Format != codec.FormatJPEG && cfg.Format != codec.FormatAVIF {
		return fmt.Errorf("unsupported output format %q (want jpeg or avif)", cfg.Format)
	}
	if len(cfg.Extensions) == 0 {
		return fmt.Errorf("at least one source extension is required")
	}
	return nil
}

func (cfg *Config) EncoderOptions() codec.EncoderOptions {
	return codec.EncoderOptions{
		QualityAlpha: cfg.QualityAlpha,
		Speed:        cfg.Speed,
	}
}

func (cfg *Config) LoggerOptions(out io.Writer) *logger.Options {
	opts := logger.DefaultOptions()
	opts.Output = out
	opts.EnableJSON = cfg.JSONLog
	opts.EnableColors = !cfg.NoColor && os.Getenv("NO_COLOR") == ""
	if cfg.Verbose {
		opts.Level = slog.LevelDebug
	}
	return opts
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			console := logger.NewConsole(&logger.Options{Output: cmd.OutOrStdout()})
			console.Box("heicconv version information", fmt.Sprintf(
				"Version: %s\nBuild date: %s\nGit commit: %s",
				Version, BuildDate, GitCommit,
			))
		},
	}
}
