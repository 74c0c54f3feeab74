package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Codec    CodecConfig    `mapstructure:"codec" yaml:"codec"`
	Remux    RemuxConfig    `mapstructure:"remux" yaml:"remux"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	LicenseToken   string        `mapstructure:"license_token" yaml:"license_token"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections"`
}

type DownloadConfig struct {
	OutDir        string `mapstructure:"out_dir" yaml:"out_dir"`
	Quality       string `mapstructure:"quality" yaml:"quality"`
	StreamQuality string `mapstructure:"stream_quality" yaml:"stream_quality"`
	AllowCascade  bool   `mapstructure:"allow_cascade" yaml:"allow_cascade"`
	RealTime      bool   `mapstructure:"real_time" yaml:"real_time"`
	// SpeedLimit caps throughput in bytes per second. Zero disables it.
	SpeedLimit  int  `mapstructure:"speed_limit" yaml:"speed_limit"`
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency"`
	Progress    bool `mapstructure:"progress" yaml:"progress"`
	// TagSidecar writes a <stem>.tags.json next to each finished file.
	TagSidecar bool `mapstructure:"tag_sidecar" yaml:"tag_sidecar"`
}

type RetryConfig struct {
	LocalMax     int           `mapstructure:"local_max" yaml:"local_max"`
	GlobalMax    int           `mapstructure:"global_max" yaml:"global_max"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	Increment    time.Duration `mapstructure:"increment" yaml:"increment"`
	Multiplier   float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

type CodecConfig struct {
	BlockSecret string `mapstructure:"block_secret" yaml:"block_secret"`
	// BlockIV is hex encoded.
	BlockIV string `mapstructure:"block_iv" yaml:"block_iv"`
}

type RemuxConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
}

type CacheConfig struct {
	CoverDir string `mapstructure:"cover_dir" yaml:"cover_dir"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// Default returns the configuration used when a key is not set anywhere.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:        "http://127.0.0.1:8090",
			Timeout:        30 * time.Second,
			MaxConnections: 4,
		},
		Download: DownloadConfig{
			OutDir:        "./downloads",
			Quality:       "FLAC",
			StreamQuality: "VERY_HIGH",
			AllowCascade:  true,
			Concurrency:   1,
			Progress:      true,
		},
		Retry: RetryConfig{
			LocalMax:     5,
			GlobalMax:    100,
			InitialDelay: 30 * time.Second,
			Increment:    30 * time.Second,
			Multiplier:   1,
		},
		Codec: CodecConfig{
			BlockIV: "0001020304050607",
		},
		Remux: RemuxConfig{
			Enabled:    true,
			FFmpegPath: "ffmpeg",
		},
		Cache: CacheConfig{CoverDir: "./data/covers"},
		Log: LogConfig{
			Path:          "gotrack.log",
			Level:         "info",
			IncludeStdout: true,
		},
		Store: StoreConfig{SQLitePath: "./data/gotrack.db"},
		Port:  "8080",
	}
}

func Load(path string) (*Config, error) {
	return LoadInto(viper.New(), path)
}

// LoadInto reads path into v, which may already carry bound CLI flags.
func LoadInto(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// FALLBACK: containers mount the config under /config
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else {
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To create one, run:\n" +
					"  gotrack config init config.yaml")
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return unmarshal(v)
}

// FromViper builds a Config from an already populated viper instance.
// Flags bound by the CLI land here.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	return unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("port", d.Port)
	v.SetDefault("gateway.base_url", d.Gateway.BaseURL)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)
	v.SetDefault("gateway.max_connections", d.Gateway.MaxConnections)
	v.SetDefault("download.out_dir", d.Download.OutDir)
	v.SetDefault("download.quality", d.Download.Quality)
	v.SetDefault("download.stream_quality", d.Download.StreamQuality)
	v.SetDefault("download.allow_cascade", d.Download.AllowCascade)
	v.SetDefault("download.real_time", d.Download.RealTime)
	v.SetDefault("download.speed_limit", d.Download.SpeedLimit)
	v.SetDefault("download.concurrency", d.Download.Concurrency)
	v.SetDefault("download.progress", d.Download.Progress)
	v.SetDefault("download.tag_sidecar", d.Download.TagSidecar)
	v.SetDefault("retry.local_max", d.Retry.LocalMax)
	v.SetDefault("retry.global_max", d.Retry.GlobalMax)
	v.SetDefault("retry.initial_delay", d.Retry.InitialDelay)
	v.SetDefault("retry.increment", d.Retry.Increment)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("codec.block_iv", d.Codec.BlockIV)
	v.SetDefault("remux.enabled", d.Remux.Enabled)
	v.SetDefault("remux.ffmpeg_path", d.Remux.FFmpegPath)
	v.SetDefault("cache.cover_dir", d.Cache.CoverDir)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.include_stdout", d.Log.IncludeStdout)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)

	// Support Environment Variables
	v.SetEnvPrefix("GOTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway.base_url is required")
	}

	if c.Gateway.MaxConnections <= 0 {
		c.Gateway.MaxConnections = 4
	}

	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 30 * time.Second
	}

	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	if c.Download.Concurrency <= 0 {
		c.Download.Concurrency = 1
	}

	if c.Download.SpeedLimit < 0 {
		return fmt.Errorf("download.speed_limit must not be negative (got %d)", c.Download.SpeedLimit)
	}

	if c.Retry.LocalMax <= 0 {
		return fmt.Errorf("retry.local_max must be at least 1 (got %d)", c.Retry.LocalMax)
	}

	if c.Retry.GlobalMax < c.Retry.LocalMax {
		return fmt.Errorf("retry.global_max (%d) must not be lower than retry.local_max (%d)",
			c.Retry.GlobalMax, c.Retry.LocalMax)
	}

	if c.Retry.InitialDelay < 0 || c.Retry.Increment < 0 {
		return errors.New("retry delays must not be negative")
	}

	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = 1
	}

	if c.Codec.BlockSecret != "" && len(c.Codec.BlockSecret) != 16 {
		return fmt.Errorf("codec.block_secret must be exactly 16 bytes (got %d)", len(c.Codec.BlockSecret))
	}

	iv, err := hex.DecodeString(c.Codec.BlockIV)
	if err != nil || len(iv) != 8 {
		return fmt.Errorf("codec.block_iv must be 8 hex-encoded bytes (got %q)", c.Codec.BlockIV)
	}

	if c.Remux.FFmpegPath == "" {
		c.Remux.FFmpegPath = "ffmpeg"
	}

	return nil
}

// BlockIV returns the decoded CBC initialization vector. validate guarantees it parses.
func (c *Config) BlockIV() []byte {
	iv, _ := hex.DecodeString(c.Codec.BlockIV)
	return iv
}
