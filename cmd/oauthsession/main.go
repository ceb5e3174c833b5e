package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Global configuration instance
var cfg *Config

func preRunConfigE(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := setupLogging(cfg, verbose); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"provider":   cfg.Provider.Name,
		"issuer":     cfg.Issuer,
		"authorizer": cfg.Authorizer,
		"store":      cfg.Store.Backend,
	}).Debug("Configuration loaded")

	return nil
}

var rootCmd = &cobra.Command{
	Use:   "oauthsession",
	Short: "Sign in to an OAuth 2.0 / OpenID Connect provider and keep the session",
	Long: `oauthsession signs a user in with the authorization code flow and PKCE,
stores the resulting session and restores it on the next run.

Sessions, pending authorization requests and handed-off redirects are kept
in the configured store (memory, file or redis).`,
	PersistentPreRunE: preRunConfigE,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default is ./config.yaml or $HOME/.config/oauthsession/config.yaml)")
	rootCmd.PersistentFlags().String("store", "", "Session store backend: memory, file or redis")
	rootCmd.PersistentFlags().String("store-path", "", "Session file for the file store")
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address for the redis store")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, callbackCmd, metadataCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
