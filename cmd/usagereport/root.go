package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/emanehab99/gstar-stats/internal/config"
	"github.com/emanehab99/gstar-stats/internal/dbconn"
	"github.com/emanehab99/gstar-stats/internal/directory"
	"github.com/emanehab99/gstar-stats/internal/ingest"
	"github.com/emanehab99/gstar-stats/internal/logging"
	"github.com/emanehab99/gstar-stats/internal/report"
	"github.com/emanehab99/gstar-stats/internal/version"
)

var log = logging.For("cli")

// app carries what every subcommand needs once the config is loaded.
type app struct {
	configPath string
	verbose    bool
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "usagereport",
		Short:        "Cluster and portal usage statistics",
		Long:         "Ingest scheduler event logs and assemble quarterly usage reports.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config.ini (default $"+config.EnvConfigPath+" or the user config dir)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newIngestCommand(a),
		newReportCommand(a),
		newServeCommand(a),
		newVersionCommand(),
	)
	return root
}

func (a *app) load() error {
	var (
		cfg  config.Config
		err  error
		path = a.configPath
	)
	if path == "" {
		path = config.ConfigPath()
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFrom(path)
	}
	if err != nil {
		return err
	}
	if err := logging.Init(os.Stderr, cfg.LogLevel); err != nil {
		return fmt.Errorf("config: log level %q: %w", cfg.LogLevel, err)
	}
	logging.SetVerbose(a.verbose)
	a.cfg = cfg
	log.WithField("event", "config_loaded").WithField("path", path).Debug("configuration loaded")
	return nil
}

func (a *app) retry() dbconn.RetryPolicy {
	return dbconn.RetryPolicy{Attempts: a.cfg.Ingest.ConnectRetries, Delay: a.cfg.Ingest.ConnectDelay}
}

// openEventStore connects to the event store and makes sure its schema exists.
func (a *app) openEventStore(ctx context.Context) (*dbconn.DB, *ingest.Store, error) {
	db, err := dbconn.Open(ctx, a.cfg.EventStore, a.retry())
	if err != nil {
		return nil, nil, err
	}
	store := ingest.NewStore(db)
	if err := store.Init(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

func (a *app) openDirectory(ctx context.Context) (*dbconn.DB, *directory.Reader, error) {
	db, err := dbconn.Open(ctx, a.cfg.Directory, a.retry())
	if err != nil {
		return nil, nil, err
	}
	gdb, err := dbconn.Gorm(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, directory.NewReader(gdb), nil
}

// openCache returns nil when no redis address is configured.
func (a *app) openCache() (*report.Cache, func() error) {
	if !a.cfg.Cache.Enabled() {
		return nil, func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.Cache.RedisAddr, DB: a.cfg.Cache.RedisDB})
	return report.NewCache(client, a.cfg.Cache.TTL), client.Close
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "usagereport", version.String())
		},
	}
}
