package config

// Config holds tool configuration, populated from flags, environment, and
// the optional TOML config file.
type Config struct {
	// Input is the archive (unpack, list) or source directory (pack).
	Input string `mapstructure:"input"`

	// Output is the extraction directory (unpack) or archive path (pack).
	Output string `mapstructure:"output"`

	// ArchiveConfig is the path of the TOML archive description emitted
	// by unpack and consumed by pack.
	ArchiveConfig string `mapstructure:"archive_config"`

	// LengthsFrom is the path of a previously emitted archive description
	// whose per-file sizes resolve shared-chunk boundaries on unpack.
	LengthsFrom string `mapstructure:"lengths_from"`

	// KeepRaw demotes per-chunk decode failures to warnings on unpack and
	// routes the raw compressed bytes to sidecar files.
	KeepRaw bool `mapstructure:"keep_raw"`

	// Workers bounds the decompression (unpack) or compression (pack)
	// worker pool. Zero means one worker per CPU.
	Workers int `mapstructure:"workers"`

	// SplitSizeMB is the volume split threshold in MiB for pack. Zero
	// disables splitting.
	SplitSizeMB int `mapstructure:"split_size_mb"`

	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
