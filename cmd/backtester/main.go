// Command backtester is the CLI entry point: run-backtest,
// monitor-backtest, update-monitor, update-quotes, daily-update,
// list-strategies, list-tickers, get-backtest-results, and serve, each
// an independently-flagged cobra subcommand per the stable CLI surface.
package main

import (
	"fmt"
	"os"

	"github.com/atlas-desktop/backtester/internal/config"
	"github.com/atlas-desktop/backtester/internal/dispatch"
	"github.com/atlas-desktop/backtester/internal/ports/jsonfile"
	"github.com/atlas-desktop/backtester/internal/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// exit codes mirror internal/dispatch's job-class exit code contract,
// applied uniformly across every subcommand per spec.md §6.
const (
	exitSuccess        = dispatch.ExitSuccess
	exitPartialFailure = dispatch.ExitPartialFailure
	exitFatalOrLocked  = dispatch.ExitFatalOrLocked
)

var (
	flagConfigPath string
	flagVarDir     string
	flagLogLevel   string
	flagStatePath  string
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		if ce, ok := err.(*cliError); ok {
			fmt.Fprintln(os.Stderr, ce.Error())
			return ce.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitFatalOrLocked
	}
	return exitSuccess
}

// cliError carries the process exit code a failed subcommand should
// report, distinct from cobra's own usage-error exit handling.
type cliError struct {
	code int
	err  error
}

func (c *cliError) Error() string { return c.err.Error() }

func fail(code int, err error) error { return &cliError{code: code, err: err} }

var rootCmd = &cobra.Command{
	Use:           "backtester",
	Short:         "Trading-strategy backtesting and forward-monitoring engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&flagVarDir, "var-dir", "", "override the var directory (job locks, state file)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagStatePath, "state-file", "", "override the JSON persistence file path")

	rootCmd.AddCommand(runBacktestCmd)
	rootCmd.AddCommand(monitorBacktestCmd)
	rootCmd.AddCommand(updateMonitorCmd)
	rootCmd.AddCommand(updateQuotesCmd)
	rootCmd.AddCommand(dailyUpdateCmd)
	rootCmd.AddCommand(listStrategiesCmd)
	rootCmd.AddCommand(listTickersCmd)
	rootCmd.AddCommand(getBacktestResultsCmd)
	rootCmd.AddCommand(serveCmd)
}

// app bundles every collaborator a subcommand needs, built once from
// config + the JSON-file-backed repos.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	repos    *jsonfile.Repos
	registry *strategy.Registry
}

// newApp resolves config, logger, and repos for one subcommand invocation.
// Called at the top of each RunE rather than a package-level init so
// --config/--var-dir/--state-file are available (cobra parses flags
// before RunE runs).
func newApp() (*app, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagVarDir != "" {
		cfg.VarDir = flagVarDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	statePath := flagStatePath
	if statePath == "" {
		statePath = cfg.VarDir + "/state.json"
	}
	repos, err := jsonfile.Open(statePath)
	if err != nil {
		return nil, fmt.Errorf("opening state file %s: %w", statePath, err)
	}

	registry := strategy.NewRegistry()
	strategy.RegisterBuiltins(registry)

	return &app{cfg: cfg, logger: logger, repos: repos, registry: registry}, nil
}

// save persists repos back to the state file; every mutating subcommand
// must call this before returning success.
func (a *app) save() error {
	return a.repos.Save()
}
