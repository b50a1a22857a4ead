package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/dzip/internal/archive"
	"github.com/ossyrian/dzip/internal/config"
	"github.com/ossyrian/dzip/internal/logging"
	"github.com/ossyrian/dzip/internal/volume"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dzip",
	Short: "Unpack, list, and rebuild legacy DZ resource archives",
}

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Extract every file of an archive and emit its TOML description",
	RunE:  unpack,
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Rebuild an archive from extracted files and a TOML description",
	RunE:  pack,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the files of an archive without extracting",
	RunE:  list,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stdout and file)")

	unpackCmd.Flags().StringP("input", "i", "", "path to archive to extract (required)")
	unpackCmd.Flags().StringP("output", "o", "", "directory to extract into (required)")
	unpackCmd.Flags().String("archive-config", "", "path of the TOML archive description to write (default <output>/archive.toml)")
	unpackCmd.Flags().String("lengths-from", "", "TOML archive description supplying per-file sizes for shared-chunk archives")
	unpackCmd.Flags().Bool("keep-raw", false, "keep raw payloads of undecodable chunks as sidecar files instead of failing")
	unpackCmd.Flags().Int("workers", 0, "decompression workers (0 = one per CPU)")
	unpackCmd.MarkFlagRequired("input")
	unpackCmd.MarkFlagRequired("output")

	packCmd.Flags().StringP("input", "i", "", "directory holding the files to pack (required)")
	packCmd.Flags().StringP("output", "o", "", "path of the archive to write (required)")
	packCmd.Flags().String("archive-config", "", "path of the TOML archive description to rebuild from (required)")
	packCmd.Flags().Int("split-size-mb", 0, "volume split threshold in MiB (0 = single volume)")
	packCmd.Flags().Int("workers", 0, "compression workers (0 = one per CPU)")
	packCmd.MarkFlagRequired("input")
	packCmd.MarkFlagRequired("output")
	packCmd.MarkFlagRequired("archive-config")

	listCmd.Flags().StringP("input", "i", "", "path to archive to list (required)")
	listCmd.MarkFlagRequired("input")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))

	rootCmd.AddCommand(unpackCmd, packCmd, listCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "dzip"))
		}
		viper.AddConfigPath("/etc/dzip")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("DZIP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig binds the invoked command's flags and unmarshals the merged
// flag, environment, and file settings. Binding happens here rather than in
// init because the subcommands reuse key names like input and output.
func loadConfig(cmd *cobra.Command, keys map[string]string) (*config.Config, error) {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir); err != nil {
		return nil, fmt.Errorf("could not set up logging: %w", err)
	}
	return cfg, nil
}

func unpack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"input":          "input",
		"output":         "output",
		"archive_config": "archive-config",
		"lengths_from":   "lengths-from",
		"keep_raw":       "keep-raw",
		"workers":        "workers",
	})
	if err != nil {
		return err
	}
	if cfg.ArchiveConfig == "" {
		cfg.ArchiveConfig = filepath.Join(cfg.Output, "archive.toml")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := afero.NewOsFs()

	var expected []uint64
	if cfg.LengthsFrom != "" {
		prev, err := loadDocument(fs, cfg.LengthsFrom)
		if err != nil {
			return err
		}
		for _, f := range prev.Files {
			expected = append(expected, f.Size)
		}
	}

	slog.Info("unpacking archive", "input", cfg.Input, "output", cfg.Output)

	src, err := volume.NewFileSource(fs, cfg.Input)
	if err != nil {
		return err
	}
	defer src.Close()

	doc, err := archive.Unpack(ctx, src, volume.NewDirSink(fs, cfg.Output), archive.UnpackOptions{
		KeepRaw:         cfg.KeepRaw,
		ExpectedLengths: expected,
		Workers:         cfg.Workers,
		Observer:        newProgressObserver("unpacking"),
	})
	if err != nil {
		return err
	}

	out, err := fs.Create(cfg.ArchiveConfig)
	if err != nil {
		return fmt.Errorf("failed to create archive config: %w", err)
	}
	defer out.Close()
	if err := doc.Save(out); err != nil {
		return err
	}

	slog.Info("wrote archive description", "path", cfg.ArchiveConfig)
	return nil
}

func pack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"input":          "input",
		"output":         "output",
		"archive_config": "archive-config",
		"split_size_mb":  "split-size-mb",
		"workers":        "workers",
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := afero.NewOsFs()

	doc, err := loadDocument(fs, cfg.ArchiveConfig)
	if err != nil {
		return err
	}

	slog.Info("packing archive", "input", cfg.Input, "output", cfg.Output)

	err = archive.Pack(ctx, doc, volume.NewDirSource(fs, cfg.Input), volume.NewFileSink(fs, cfg.Output), archive.PackOptions{
		SplitSize: uint64(cfg.SplitSizeMB) << 20,
		Workers:   cfg.Workers,
		Observer:  newProgressObserver("packing"),
	})
	if err != nil {
		return err
	}

	slog.Info("wrote archive", "path", cfg.Output)
	return nil
}

func list(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{"input": "input"})
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	f, err := fs.Open(cfg.Input)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	entries, err := archive.List(f)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tCHUNKS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", e.Path, e.Size, e.Chunks)
	}
	return tw.Flush()
}

func loadDocument(fs afero.Fs, path string) (*config.Document, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive config: %w", err)
	}
	defer f.Close()
	return config.LoadDocument(f)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
