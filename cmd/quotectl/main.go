// Command quotectl performs administrative tasks against a QuoteVault data
// directory: running an expiration sweep, registering users and minting
// bearer tokens.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quotevault/quotevault-server/internal/cache"
	"github.com/quotevault/quotevault-server/internal/config"
	"github.com/quotevault/quotevault-server/internal/logger"
	"github.com/quotevault/quotevault-server/internal/service"
	"github.com/quotevault/quotevault-server/internal/store"
	"github.com/quotevault/quotevault-server/internal/store/sqlite"
)

const programName = "quotectl"

var globalFlags = struct {
	dataPath string
	envFile  string
	debug    bool
}{}

// env is the opened data directory shared by subcommands.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *sqlite.Store
	cache    *cache.Cache
	events   store.EventEmitter
	counters *service.CounterService
	users    *service.UserService
}

func (e *env) Close() {
	if e.cache != nil {
		_ = e.cache.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

// openEnv loads configuration the same way the server does and opens the store.
func openEnv() (*env, error) {
	var args []string
	if globalFlags.dataPath != "" {
		args = append(args, "--data-path", globalFlags.dataPath)
	}
	if globalFlags.envFile != "" {
		args = append(args, "--env-file", globalFlags.envFile)
	}
	if globalFlags.debug {
		args = append(args, "--log-level", "debug")
	}

	cfg, err := config.LoadConfig(args)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	}).WithField("component", programName)

	st, err := sqlite.Open(cfg.Data.DatabasePath(), log.Logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c, err := cache.New(cfg.Counters.CacheTTL, log.Logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	events := store.NewNoopEmitter()
	counters := service.NewCounterService(st, c, events, nil, log.Logger)

	return &env{
		cfg:      cfg,
		log:      log,
		store:    st,
		cache:    c,
		events:   events,
		counters: counters,
		users:    service.NewUserService(st, counters, events, log.Logger),
	}, nil
}

// withEnv adapts a subcommand body that needs an opened data directory.
func withEnv(run func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		return run(cmd.Context(), cmd, e, args)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Administer a QuoteVault data directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		StringVar(&globalFlags.dataPath, "data-path", "", "data directory (default: $DATA_PATH or ~/QuoteVault)")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.envFile, "env-file", "", "path to .env file")
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(sweepCommand())
	rootCmd.AddCommand(userCommand())
	rootCmd.AddCommand(tokenCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
