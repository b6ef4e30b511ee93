package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emanehab99/gstar-stats/internal/ingest"
	"github.com/emanehab99/gstar-stats/internal/report"
)

func newIngestCommand(a *app) *cobra.Command {
	var (
		follow bool
		settle time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest [month year]",
		Short: "Load scheduler event logs into the event store",
		Long: "Reads every event log under the configured stats path, or only those whose\n" +
			"names mention month and year (e.g. \"ingest Mar 2017\"). Files already read\n" +
			"are skipped; grown files are read from where the last run stopped.",
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, year, err := parseMonthYear(args)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			db, store, err := a.openEventStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			cache, closeCache := a.openCache()
			defer closeCache()

			pipeline := ingest.NewPipeline(store, ingest.Options{
				Admins:    a.cfg.Admins,
				BatchSize: a.cfg.Ingest.BatchSize,
			})
			run := func(ctx context.Context) error {
				paths, err := ingest.Discover(a.cfg.StatsPath, month, year)
				if err != nil {
					return err
				}
				res, err := pipeline.Run(ctx, paths)
				printTotals(cmd.OutOrStdout(), res)
				invalidateEventReports(ctx, cache, res)
				return err
			}

			if err := run(ctx); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return pipeline.Follow(ctx, a.cfg.StatsPath, settle, run)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep watching the stats path and ingest new events as they arrive")
	cmd.Flags().DurationVar(&settle, "settle", ingest.DefaultSettle, "quiet time after the last write before a follow run")
	return cmd
}

// parseMonthYear accepts no arguments or a month name followed by a year.
func parseMonthYear(args []string) (month, year string, err error) {
	switch len(args) {
	case 0:
		return "", "", nil
	case 2:
		month, year = strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
		if month == "" {
			return "", "", fmt.Errorf("month is empty")
		}
		if _, err := strconv.Atoi(year); err != nil {
			return "", "", fmt.Errorf("year %q is not a number", year)
		}
		return month, year, nil
	default:
		return "", "", fmt.Errorf("expected month and year, got %d argument(s)", len(args))
	}
}

func printTotals(w io.Writer, res ingest.RunResult) {
	t := res.Totals()
	skipped := 0
	for _, f := range res.Files {
		if f.Skipped {
			skipped++
		}
	}
	fmt.Fprintf(w, "run %s: %d file(s), %d skipped\n", res.RunID, len(res.Files), skipped)
	fmt.Fprintf(w, "  lines %d  inserted %d  deduped %d  not-job %d  not-terminal %d  malformed %d  purged %d\n",
		t.Lines, t.Inserted, t.Deduped, t.NotJob, t.NotTerminal, t.Malformed, res.Purged)
}

// invalidateEventReports drops cached event-store reports once a run has
// changed the stored events. Cache failures only leave stale entries behind
// until their ttl, so they are logged and not returned.
func invalidateEventReports(ctx context.Context, cache *report.Cache, res ingest.RunResult) {
	if cache == nil || int64(res.Totals().Inserted)+res.Purged == 0 {
		return
	}
	n, err := cache.InvalidateSource(ctx, sourceEvents)
	if err != nil {
		log.WithField("event", "cache_invalidate_failed").WithError(err).Warn("cached reports may be stale")
		return
	}
	log.WithField("event", "cache_invalidated").WithField("reports", n).Debug("dropped cached event-store reports")
}
