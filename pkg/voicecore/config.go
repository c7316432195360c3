package voicecore

import (
	"fmt"
	"os"
	"reflect"

	"github.com/spf13/viper"

	"github.com/centavohq/voicecore/pkg/audio"
	"github.com/centavohq/voicecore/pkg/configutil"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	Finance       FinanceConfig       `mapstructure:"finance"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type BackendConfig struct {
	URL                string    `mapstructure:"url"`
	Token              string    `mapstructure:"token"`
	Voice              string    `mapstructure:"voice"`
	Instructions       string    `mapstructure:"instructions"`
	SampleRate         int       `mapstructure:"sample_rate"`
	HandshakeTimeoutMS int       `mapstructure:"handshake_timeout_ms"`
	VAD                VADConfig `mapstructure:"vad"`
}

type VADConfig struct {
	Threshold         float64 `mapstructure:"threshold"`
	SilenceDurationMS int     `mapstructure:"silence_duration_ms"`
	PrefixPaddingMS   int     `mapstructure:"prefix_padding_ms"`
}

type AudioConfig struct {
	Backend          string `mapstructure:"backend"`
	BlockSize        int    `mapstructure:"block_size"`
	SilenceThreshold int    `mapstructure:"silence_threshold"`
}

type ToolsConfig struct {
	TimeoutMS int `mapstructure:"timeout_ms"`
}

type FinanceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIToken       string `mapstructure:"api_token"`
	Retries        int    `mapstructure:"retries"`
	RetryBackoffMS int    `mapstructure:"retry_backoff_ms"`
}

type ObservabilityConfig struct {
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("backend.voice", "alloy")
	v.SetDefault("backend.sample_rate", audio.DefaultSampleRate)
	v.SetDefault("backend.handshake_timeout_ms", 5000)
	v.SetDefault("backend.vad.threshold", 0.5)
	v.SetDefault("backend.vad.silence_duration_ms", 500)
	v.SetDefault("backend.vad.prefix_padding_ms", 300)
	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.block_size", audio.DefaultBlockSize)
	v.SetDefault("audio.silence_threshold", audio.DefaultSilenceThreshold)
	v.SetDefault("tools.timeout_ms", 6000)
	v.SetDefault("finance.base_url", "")
	v.SetDefault("finance.retries", 2)
	v.SetDefault("finance.retry_backoff_ms", 200)
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Backend.URL, "backend.url"); err != nil {
		return err
	}
	switch c.Audio.Backend {
	case "portaudio", "miniaudio":
	default:
		return fmt.Errorf("audio.backend must be portaudio or miniaudio, got %q", c.Audio.Backend)
	}
	if c.Backend.SampleRate <= 0 {
		return fmt.Errorf("backend.sample_rate must be positive")
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("audio.block_size must be positive")
	}

	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
