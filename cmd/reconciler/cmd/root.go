package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"treasury-reconciler/cmd/reconciler/config"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// appConfig is populated by initConfig before any subcommand runs
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Campaign treasury reconciliation tool",
	Long: `Reconciler matches campaign ledger transactions against bank activity,
tracks non-reportable items (NRIT), keeps an audit trail and produces
reconciliation reports.

Examples:
  reconciler reconcile --ledger-file crimson.csv --bank-files bank.csv
  reconciler reconcile --ledger-file crimson.csv --bank-files stmt.ofx --ofx --auto-accept
  reconciler summary --ledger-file crimson.csv --bank-files bank.csv
  reconciler cash-on-hand show
  reconciler session list`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.SetDefaults(viper.GetViper())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")
	rootCmd.PersistentFlags().String("user", "", "user name recorded in the audit trail")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path for balances and sessions")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("storage.sqlite_path", rootCmd.PersistentFlags().Lookup("db"))
}

// initConfig reads in config file and ENV variables, then installs the
// configured logger as the global logger.
func initConfig(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.ConfigurationError("config", cfgFile, err).
				WithSuggestion("check the config file path and syntax")
		}
	}
	config.BindEnv(v)

	if v.GetBool("verbose") {
		v.Set("log.level", string(logger.DebugLevel))
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	appConfig = cfg

	if v.ConfigFileUsed() != "" {
		log.WithField("config_file", v.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
