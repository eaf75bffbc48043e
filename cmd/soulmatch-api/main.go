package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "soulmatch-api",
		Short: "SoulMatch backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newChatCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (defaults to ./.env when present)")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("storage-root", defaults.GetString("storage.root"), "Directory holding uploaded photos")
	cmd.PersistentFlags().String("storage-public-url", defaults.GetString("storage.public_base_url"), "Public base URL of uploaded photos")
	cmd.PersistentFlags().String("redis-address", "", "Redis address for cross-instance message fan-out")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "storage.root", "storage-root")
	bindFlag(cmd, "storage.public_base_url", "storage-public-url")
	bindFlag(cmd, "realtime.redis_address", "redis-address")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return err
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		return err
	}

	return nil
}
