// Package config resolves layered configuration (flags > env > config file
// > defaults) for the qwen3-asr CLI and validates the kernel backend name.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Server   ServerConfig  `mapstructure:"server"`
	ASR      ASRConfig     `mapstructure:"asr"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelDir string `mapstructure:"model_dir"`
}

type RuntimeConfig struct {
	Threads int    `mapstructure:"threads"`
	Backend string `mapstructure:"backend"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout_secs"`
}

type ASRConfig struct {
	Language   string `mapstructure:"language"`
	Prompt     string `mapstructure:"prompt"`
	MaxSteps   int    `mapstructure:"max_steps"`
	Verbose    bool   `mapstructure:"verbose"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{ModelDir: "models/qwen3-asr"},
		Runtime: RuntimeConfig{
			Threads: 4,
			Backend: BackendAuto,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 30,
		},
		ASR: ASRConfig{
			Language: "",
			Prompt:   "",
			MaxSteps: 448,
			Verbose:  false,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("model-dir", defaults.Paths.ModelDir, "Path to the model directory (model.safetensors + vocab.json)")
	fs.Int("threads", defaults.Runtime.Threads, "Kernel worker thread count (process-wide)")
	fs.String("backend", defaults.Runtime.Backend, "Kernel compute backend name reported by doctor (auto|scalar|simd|blas)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address for the serve command")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain timeout in seconds")
	fs.String("language", defaults.ASR.Language, "Force a decoding language (empty lets the model choose)")
	fs.String("prompt", defaults.ASR.Prompt, "Optional decoder prompt-biasing text")
	fs.Int("max-steps", defaults.ASR.MaxSteps, "Hard cap on generated tokens per transcription")
	fs.Bool("verbose", defaults.ASR.Verbose, "Write per-call timing lines to standard error")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	registerAliases(v)

	v.SetEnvPrefix("QWEN3ASR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	} else {
		v.SetConfigName("qwen3asr")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.backend", c.Runtime.Backend)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout_secs", c.Server.ShutdownTimeout)
	v.SetDefault("asr.language", c.ASR.Language)
	v.SetDefault("asr.prompt", c.ASR.Prompt)
	v.SetDefault("asr.max_steps", c.ASR.MaxSteps)
	v.SetDefault("asr.verbose", c.ASR.Verbose)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_dir", "model-dir")
	v.RegisterAlias("runtime.threads", "threads")
	v.RegisterAlias("runtime.backend", "backend")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.shutdown_timeout_secs", "shutdown-timeout")
	v.RegisterAlias("asr.language", "language")
	v.RegisterAlias("asr.prompt", "prompt")
	v.RegisterAlias("asr.max_steps", "max-steps")
	v.RegisterAlias("asr.verbose", "verbose")
	v.RegisterAlias("log_level", "log-level")
}
