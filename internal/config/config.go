package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the full application configuration, loadable from a yaml
// file with SENTRA_-prefixed environment overrides.
type Config struct {
	// Knowledge store
	StorePath     string        `mapstructure:"store_path"`
	EntityTTL     time.Duration `mapstructure:"entity_ttl"`
	PruneEveryN   int64         `mapstructure:"prune_every_n"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	SecretKey     string        `mapstructure:"secret_key"`

	// Execution
	SessionRoot   string        `mapstructure:"session_root"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	ContainerName string        `mapstructure:"container_name"`
	ProbeTTL      time.Duration `mapstructure:"probe_ttl"`

	// Intent resolver
	LLMEndpoint string `mapstructure:"llm_endpoint"`
	LLMModel    string `mapstructure:"llm_model"`

	// Policy
	PolicyPath string `mapstructure:"policy_path"`

	// HTTP API
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration from the given directory (falling back to
// ./config, /etc/sentra and $HOME/.sentra) merged with environment
// variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("sentra")
	v.SetConfigType("yaml")

	paths := []string{configPath, "./config", "/etc/sentra", "$HOME/.sentra"}
	for _, path := range paths {
		if path != "" {
			v.AddConfigPath(path)
		}
	}

	v.SetEnvPrefix("SENTRA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		log.Info("No config file found, using defaults")
	} else {
		log.Infof("Loaded config file: %s", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_path", filepath.Join("data", "sentra_state.db"))
	v.SetDefault("entity_ttl", time.Hour)
	v.SetDefault("prune_every_n", 1000)
	v.SetDefault("prune_interval", 600*time.Second)
	v.SetDefault("session_root", filepath.Join("temp"))
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("container_name", "sentra-tools")
	v.SetDefault("probe_ttl", 60*time.Second)
	v.SetDefault("llm_endpoint", "http://localhost:11434")
	v.SetDefault("llm_model", "llama3:8b")
	v.SetDefault("listen_addr", ":8085")
}
