package main

import (
	_ "embed"
	"errors"
	"io/fs"
	"os"
	"strings"

	"filevault/pkg/log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//go:embed VERSION
var Version string

var cfgFile string

func main() {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "filevaultd",
		Short: "File storage and sharing server",
		Long: `filevaultd stores files in named buckets, keeps key/value metadata
for them and records folder shares.

Configuration is read from a YAML file (--config), FILEVAULT_* environment
variables and the flags below, in increasing order of precedence.`,
		Version:       strings.TrimSpace(Version),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().String("db-driver", "", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database DSN or SQLite file path")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}
