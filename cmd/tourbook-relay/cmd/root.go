package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mytourbook/tourbook-relay/pkg/config"
	"github.com/phsym/console-slog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flags shared by every command
var globals struct {
	workdir string
	debug   bool
}

var rootCmd = &cobra.Command{
	Use:           "tourbook-relay",
	Short:         "Credential relay for the MyTourbook desktop application",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globals.workdir != "" {
			if err := os.Chdir(globals.workdir); err != nil {
				return fmt.Errorf("change working directory: %w", err)
			}
		}
		// a missing .env is fine, the environment may be set otherwise
		_ = godotenv.Load()
		setupLogging(globals.debug, os.Getenv("PRETTY_LOGS") != "false")
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// setupLogging installs the colored console handler, or keeps the plain
// default handler when the output goes to a log collector.
func setupLogging(debug, pretty bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	if !pretty {
		slog.SetLogLoggerLevel(level)
		return
	}
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level:      level,
		AddSource:  debug,
		TimeFormat: time.TimeOnly,
	})))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tourbook-relay: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	viper.SetEnvPrefix("RELAY")
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globals.workdir, "workdir", "w", "", "change to this directory before loading .env and the config file")
	flags.BoolVarP(&globals.debug, "verbose", "v", false, "log at debug level")
	flags.StringP("config-file", "f", "relay.yaml", "optional YAML config file, environment variables take precedence")
	if err := viper.BindPFlag("config_file", flags.Lookup("config-file")); err != nil {
		panic(err)
	}
}

// loadConfig reads the optional config file and the environment. Flags of the
// serve command are applied on top.
func loadConfig() (*config.Config, error) {
	configFile := config.ExpandPath(viper.GetString("config_file"))
	cfg, err := config.Load(configFile, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	if viper.IsSet("port") {
		cfg.Port = viper.GetInt("port")
	}
	if viper.IsSet("addr") {
		cfg.Address = viper.GetString("addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("Loaded config", "config_file", configFile, "addr", cfg.Addr(), "suunto_api", cfg.Suunto.APIURL)
	return cfg, nil
}
