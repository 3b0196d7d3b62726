// Package config loads engine settings from flags, NCPACK_* environment
// variables and an optional YAML/TOML/JSON file.
//
// Precedence, highest first: explicitly set flags, environment, config
// file, defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/ncpack/codec"
	"github.com/hupe1980/ncpack/memprobe"
	"github.com/hupe1980/ncpack/quantization"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "NCPACK"

// Config keys.
const (
	KeyConfig       = "config"
	KeyMemoryBudget = "memory_budget"
	KeyProbe        = "probe"
	KeyBits         = "bits"
	KeyOverflow     = "overflow"
	KeyCompression  = "compression"
	KeyWorkers      = "workers"
	KeyIOLimit      = "io_limit"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
)

// Config holds resolved engine settings.
type Config struct {
	// MemoryBudgetBytes bounds slab buffers and observed process memory.
	MemoryBudgetBytes int64
	// Probe names the memory probe (see memprobe.ByName).
	Probe string
	// Bits is the packed integer width.
	Bits quantization.Bits
	// Overflow handles values outside the packing range.
	Overflow quantization.OverflowPolicy
	// Compression is the archive block compression.
	Compression codec.Compression
	// Workers bounds parallel block decoding. Zero means GOMAXPROCS.
	Workers int
	// IOLimitBytes is the IO rate limit in bytes per second. Zero disables it.
	IOLimitBytes int64
	LogLevel     slog.Level
	// LogFormat is "text" or "json".
	LogFormat string
}

// raw mirrors Config with the textual forms accepted from files and env.
type raw struct {
	MemoryBudget string `mapstructure:"memory_budget"`
	Probe        string `mapstructure:"probe"`
	Bits         int    `mapstructure:"bits"`
	Overflow     string `mapstructure:"overflow"`
	Compression  string `mapstructure:"compression"`
	Workers      int    `mapstructure:"workers"`
	IOLimit      string `mapstructure:"io_limit"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	KeyMemoryBudget: "512MiB",
	KeyProbe:        "data",
	KeyBits:         16,
	KeyOverflow:     "reject",
	KeyCompression:  "zstd",
	KeyWorkers:      0,
	KeyIOLimit:      "0",
	KeyLogLevel:     "info",
	KeyLogFormat:    "text",
}

// Default returns the default configuration.
func Default() Config {
	cfg, err := decode(viperWithDefaults())
	if err != nil {
		panic(err)
	}
	return cfg
}

func viperWithDefaults() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// RegisterFlags adds the configuration flags to fs.
// Dashes in flag names are normalized to underscores so that flags,
// config keys and environment variables share one name.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the configuration file")
	fs.String("memory-budget", "512MiB", "Memory budget (e.g. 256MiB, 2GB)")
	fs.String("probe", "data", "Memory probe: data, resident, rusage, none")
	fs.Int("bits", 16, "Packed integer width: 8, 16 or 32")
	fs.String("overflow", "reject", "Overflow policy: reject, clamp, unchecked")
	fs.String("compression", "zstd", "Block compression: none, lz4, zstd")
	fs.Int("workers", 0, "Parallel decode workers (0 = GOMAXPROCS)")
	fs.String("io-limit", "0", "IO rate limit per second (0 = unlimited)")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")

	normalize := fs.GetNormalizeFunc()
	fs.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		result := normalize(f, name)
		return pflag.NormalizedName(strings.ReplaceAll(string(result), "-", "_"))
	})
}

// Load resolves the configuration. fs may be nil; if set it must have been
// prepared with RegisterFlags and parsed. A config file is read from the
// "config" key if set, otherwise ncpack.yaml is searched in the working
// directory and /etc/ncpack; a missing searched file is not an error.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viperWithDefaults()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	} else {
		v.SetConfigName("ncpack")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ncpack")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return Config{}, fmt.Errorf("config: %w", err)
			}
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var r raw
	if err := v.Unmarshal(&r); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	budget, err := humanize.ParseBytes(r.MemoryBudget)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyMemoryBudget, err)
	}
	ioLimit, err := humanize.ParseBytes(r.IOLimit)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyIOLimit, err)
	}
	overflow, err := quantization.ParseOverflowPolicy(strings.ToLower(r.Overflow))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyOverflow, err)
	}
	compression, err := codec.ParseCompression(strings.ToLower(r.Compression))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyCompression, err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(r.LogLevel)); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}

	cfg := Config{
		MemoryBudgetBytes: int64(budget),
		Probe:             r.Probe,
		Bits:              quantization.Bits(r.Bits),
		Overflow:          overflow,
		Compression:       compression,
		Workers:           r.Workers,
		IOLimitBytes:      int64(ioLimit),
		LogLevel:          level,
		LogFormat:         strings.ToLower(r.LogFormat),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c Config) Validate() error {
	if c.MemoryBudgetBytes <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyMemoryBudget)
	}
	if err := c.Bits.Validate(); err != nil {
		return fmt.Errorf("config: %s: %w", KeyBits, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: %s must not be negative", KeyWorkers)
	}
	if _, err := memprobe.ByName(c.Probe); err != nil {
		return fmt.Errorf("config: %s: %w", KeyProbe, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: %s: unknown format %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

// MemoryProbe returns the configured probe.
func (c Config) MemoryProbe() (memprobe.Probe, error) {
	return memprobe.ByName(c.Probe)
}

// String renders the configuration with humanized sizes.
func (c Config) String() string {
	io := "unlimited"
	if c.IOLimitBytes > 0 {
		io = humanize.IBytes(uint64(c.IOLimitBytes)) + "/s"
	}
	return fmt.Sprintf("budget=%s probe=%s bits=%d overflow=%s compression=%s workers=%d io=%s log=%s/%s",
		humanize.IBytes(uint64(c.MemoryBudgetBytes)), c.Probe, int(c.Bits), c.Overflow, c.Compression,
		c.Workers, io, c.LogLevel, c.LogFormat)
}
