package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-pv-reconciliation/cmd/reconciler/config"
	"golang-pv-reconciliation/internal/detector"
	"golang-pv-reconciliation/pkg/errors"
	"golang-pv-reconciliation/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Payment reconciliation tool",
	Long: `Reconciler matches the records of two tabular datasets, such as a bank
export and an internal ledger, and reports what matched and what did not.
Columns for date, amount, reference and description are detected from the
headers and the data, so files need no fixed layout.

Examples:
  reconciler reconcile --left bank.csv --right ledger.xlsx
  reconciler reconcile --workbook pagos.xlsx --format json --output result.json
  reconciler detect ledger.xlsx --sheet Pagos
  reconciler serve --addr :8080 --db runs.db
  reconciler runs list --db runs.db`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().String("synonyms", "", "YAML file of extra column-name synonyms")
	rootCmd.PersistentFlags().String("db", "", "SQLite database for run history")
	rootCmd.PersistentFlags().Int("sample-size", detector.DefaultSampleSize, "non-empty values sampled per column when detecting by content")
	rootCmd.PersistentFlags().Int("min-date-hits", detector.DefaultMinDateHits, "sampled values that must read as dates for a date column")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("synonyms", rootCmd.PersistentFlags().Lookup("synonyms"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("detector.sample-size", rootCmd.PersistentFlags().Lookup("sample-size"))
	viper.BindPFlag("detector.min-date-hits", rootCmd.PersistentFlags().Lookup("min-date-hits"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	// RECONCILER_LEFT_COLUMNS maps to left-columns, RECONCILER_SERVE_ADDR to serve.addr
	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// setupLogging reads the config file, if any, and installs the global
// logger before any command runs.
func setupLogging(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("check the file exists and is valid YAML, JSON or TOML")
		}
	}

	logConfig, err := config.CreateLoggerConfig(
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		viper.GetBool("verbose"),
	)
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerWithWriter(logConfig, cmd.ErrOrStderr())
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	logger.SetGlobalLogger(log)

	if used := viper.ConfigFileUsed(); used != "" {
		log.WithField("config_file", used).Debug("Using config file")
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

// newDetector builds the column detector from the shared detection settings
func newDetector(log logger.Logger) (*detector.Detector, error) {
	return config.CreateDetector(
		viper.GetString("synonyms"),
		viper.GetInt("detector.sample-size"),
		viper.GetInt("detector.min-date-hits"),
		log,
	)
}
