package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fleetdm/livequery/server/config"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	rootCmd := createRootCmd()

	configManager := config.NewManager(rootCmd)

	rootCmd.AddCommand(createServeCmd(configManager))
	rootCmd.AddCommand(createWatchCmd(configManager))
	rootCmd.AddCommand(createReplayCmd(configManager))
	rootCmd.AddCommand(createConfigDumpCmd(configManager))
	rootCmd.AddCommand(createVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		initFatal(err, "running root command")
	}
}

// initFatal prints an error message and exits with a non-zero status.
func initFatal(err error, message string) {
	fmt.Printf("Error %s: %v\n", message, err)
	os.Exit(1)
}

func createRootCmd() *cobra.Command {
	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use:   "livequery",
		Short: "Aggregate and stream live query campaigns",
		Long: `
Aggregate and stream live query campaigns

The server folds the result and totals frames of every campaign into a live
aggregate, and fans the frames out to every consumer watching the campaign.

Configurable Options:

Options may be supplied in a yaml configuration file or via environment
variables. You only need to define the configuration values for which you
wish to override the default value.
`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")

	return rootCmd
}

// initLogger builds the process logger. Logs go to stderr unless a file is
// configured, in which case the file is rotated.
func initLogger(cfg config.LoggingConfig, stderr io.Writer) kitlog.Logger {
	out := stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
		}
	}

	var logger kitlog.Logger
	if cfg.JSON {
		logger = kitlog.NewJSONLogger(out)
	} else {
		logger = kitlog.NewLogfmtLogger(out)
	}
	logger = kitlog.NewSyncLogger(logger)

	if cfg.Debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
	return logger
}
