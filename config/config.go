package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sammcj/llmem/estimator"
	"github.com/sammcj/llmem/logging"
	"github.com/sammcj/llmem/utils"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when reading overrides from the environment,
// e.g. LLMEM_LISTEN_ADDRESS.
const EnvPrefix = "LLMEM"

type Config struct {
	ListenAddress    string   `json:"listen_address" mapstructure:"listen_address"`
	ModelsDir        string   `json:"models_dir" mapstructure:"models_dir"`
	WatchModels      bool     `json:"watch_models" mapstructure:"watch_models"`
	LogLevel         string   `json:"log_level" mapstructure:"log_level"`
	LogFilePath      string   `json:"log_file_path" mapstructure:"log_file_path"`
	OllamaHost       string   `json:"ollama_host" mapstructure:"ollama_host"` // empty uses OLLAMA_HOST or the local default
	HuggingFaceToken string   `json:"huggingface_token" mapstructure:"huggingface_token"`
	CORSOrigins      []string `json:"cors_origins" mapstructure:"cors_origins"`

	estimator.Policy `mapstructure:",squash"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddress: "127.0.0.1:15050",
		ModelsDir:     utils.GetModelsDir(),
		WatchModels:   true,
		LogLevel:      "info",
		CORSOrigins:   []string{"*"},
		Policy:        estimator.DefaultPolicy(),
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("listen_address", d.ListenAddress)
	v.SetDefault("models_dir", d.ModelsDir)
	v.SetDefault("watch_models", d.WatchModels)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file_path", d.LogFilePath)
	v.SetDefault("ollama_host", d.OllamaHost)
	v.SetDefault("huggingface_token", d.HuggingFaceToken)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("page_attention_factor", d.PageAttentionFactor)
	v.SetDefault("flash_attention_multiplier", d.FlashAttentionMultiplier)
	v.SetDefault("inference_overhead_gb", d.InferenceOverheadGB)
	v.SetDefault("training_overhead_gb", d.TrainingOverheadGB)
}

// LoadConfig reads ~/.config/llmem/config.json, writing the defaults there first if it is missing.
func LoadConfig() (Config, error) {
	return LoadConfigFromPath(utils.GetConfigPath())
}

func LoadConfigFromPath(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		logging.DebugLogger.Debug().Str("path", configPath).Msg("Config file does not exist, creating with default values")

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			logging.ErrorLogger.Error().Err(err).Msg("Failed to create config directory")
			return Config{}, fmt.Errorf("failed to create config directory: %w", err)
		}
		// written before env overrides are enabled so they never end up in the file
		if err := v.SafeWriteConfigAs(configPath); err != nil {
			logging.ErrorLogger.Error().Err(err).Msg("Failed to save default config")
			return Config{}, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logging.ErrorLogger.Error().Err(err).Str("path", configPath).Msg("Failed to read config file")
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg.ModelsDir = utils.ExpandHome(cfg.ModelsDir)
	cfg.LogFilePath = utils.ExpandHome(cfg.LogFilePath)

	return cfg, nil
}
