package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration, loaded from flags, an optional YAML file,
// and environment defaults, in that order of precedence.
type Config struct {
	Server string `yaml:"server"`
	UserID string `yaml:"user_id"`
	Token  string `yaml:"token"`
	DBPath string `yaml:"db_path"`
}

var (
	cfgFile string
	cfg     Config
)

var rootCmd = &cobra.Command{
	Use:   "syncclient",
	Short: "Real-time workspace synchronization client",
	Long: `syncclient connects to a workspace session and keeps chat, presence,
and shared documents synchronized with the other participants in real time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&cfg.Server, "server", "", "Workspace websocket endpoint (default ws://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&cfg.UserID, "user", "", "Local user id")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", "", "Bearer token for the workspace session")
	rootCmd.PersistentFlags().StringVar(&cfg.DBPath, "db", "", "Path to the local document database (default data/documents.db)")
}

// loadConfig merges the YAML file and environment defaults under any flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command) error {
	var fileCfg Config
	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if !cmd.Flags().Changed("server") {
		cfg.Server = firstNonEmpty(fileCfg.Server, getEnv("SYNC_SERVER", "ws://localhost:8080"))
	}
	if !cmd.Flags().Changed("user") {
		cfg.UserID = firstNonEmpty(fileCfg.UserID, os.Getenv("SYNC_USER"))
	}
	if !cmd.Flags().Changed("token") {
		cfg.Token = firstNonEmpty(fileCfg.Token, os.Getenv("SYNC_TOKEN"))
	}
	if !cmd.Flags().Changed("db") {
		cfg.DBPath = firstNonEmpty(fileCfg.DBPath, getEnv("SYNC_DB_PATH", "data/documents.db"))
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
