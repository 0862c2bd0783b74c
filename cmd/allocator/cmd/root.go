package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/config"
	"github.com/rustyeddy/allocator/internal/logging"
	"github.com/rustyeddy/allocator/portfolio"
)

const (
	envConfig = "ALLOCATOR_CONFIG"
	envDB     = "ALLOCATOR_DB"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
	plain    bool

	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "allocator",
	Short: "Portfolio construction and backtest validation",
	Long: `Allocator builds long-only portfolios from historical prices and checks
whether they would have held up.

It provides tools for:
  - Estimating shrunk covariance matrices
  - Minimum-variance, mean-variance, risk-parity and Black-Litterman allocation
  - Look-ahead free backtests with rebalancing and transaction costs
  - Walk-forward validation with an overfitting score
  - Drawdown analysis and Monte Carlo robustness tests
  - A SQLite journal of every run

Settings come from a YAML or JSON file (--config or $ALLOCATOR_CONFIG).
A .env file in the working directory is loaded first.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command and reports errors by kind.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := portfolio.Kind(err); hint != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", hint)
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $ALLOCATOR_CONFIG, else built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "journal database (default $ALLOCATOR_DB, else journal.db_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "print raw markdown instead of rendering it")
}

// setup loads .env, the configuration and the logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if cfgFile == "" {
		cfgFile = os.Getenv(envConfig)
	}
	if cfgFile != "" {
		c, err := config.LoadFromFile(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
	} else {
		cfg = config.Default()
	}

	if dbPath == "" {
		dbPath = os.Getenv(envDB)
	}
	if dbPath != "" {
		cfg.Journal.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	l, closer, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	log, logCloser = l, closer
	log.WithField("config", cfgFile).Debug("configuration loaded")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}
