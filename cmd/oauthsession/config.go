package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeremyhahn/go-oauthsession/pkg/oauth"
	"github.com/jeremyhahn/go-oauthsession/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the CLI configuration file.
type Config struct {
	Provider     oauth.ProviderSettings `mapstructure:"provider"`
	ClientID     string                 `mapstructure:"client_id"`
	ClientSecret string                 `mapstructure:"client_secret"`
	Scopes       []string               `mapstructure:"scopes"`
	RedirectURL  string                 `mapstructure:"redirect_url"`

	// Issuer enables discovery; provider endpoints are then ignored.
	Issuer string `mapstructure:"issuer"`

	// Authorizer is "loopback" or "handoff".
	Authorizer string `mapstructure:"authorizer"`

	// Browser opens authorization URLs automatically.
	Browser bool `mapstructure:"browser"`

	Timeout time.Duration `mapstructure:"timeout"`

	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig selects where sessions are kept.
type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Prefix        string `mapstructure:"prefix"`
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig converts to the store package configuration.
func (c *Config) StoreConfig() *store.Config {
	return &store.Config{
		Backend:       store.BackendType(strings.ToLower(c.Store.Backend)),
		Path:          c.Store.Path,
		RedisAddr:     c.Store.RedisAddr,
		RedisPassword: c.Store.RedisPassword,
		RedisDB:       c.Store.RedisDB,
		Prefix:        c.Store.Prefix,
	}
}

// loadConfig reads the config file named by --config, or the first
// config.yaml found in the default locations, then applies environment
// variables and flags.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	v := viper.New()
	setupViperConfig(v, configFile)

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setupViperConfig(v *viper.Viper, configFile string) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "oauthsession"))
	}

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("OAUTHSESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvironmentVariables(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "custom")
	v.SetDefault("redirect_url", "http://127.0.0.1:8085/callback")
	v.SetDefault("scopes", []string{"openid", "profile"})
	v.SetDefault("authorizer", "loopback")
	v.SetDefault("browser", true)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("store.backend", "file")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// bindEnvironmentVariables makes keys without defaults visible to
// AutomaticEnv, e.g. OAUTHSESSION_CLIENT_ID or OAUTHSESSION_STORE_REDIS_ADDR.
func bindEnvironmentVariables(v *viper.Viper) {
	for _, key := range []string{
		"client_id", "client_secret", "issuer",
		"provider.domain", "provider.base_url", "provider.realm",
		"provider.auth_url", "provider.token_url", "provider.jwks_url",
		"provider.revocation_url", "provider.issuer",
		"store.path", "store.redis_addr", "store.redis_password",
		"store.redis_db", "store.prefix",
	} {
		v.BindEnv(key)
	}
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		"store.backend":    "store",
		"store.path":       "store-path",
		"store.redis_addr": "redis-addr",
	}
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
	}
	return nil
}

// setupLogging configures logrus from the config. --verbose wins over the
// configured level.
func setupLogging(config *Config, verbose bool) error {
	level, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	switch strings.ToLower(config.Logging.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.WithField("format", config.Logging.Format).Warn("Unknown log format, using text")
	}

	return nil
}
