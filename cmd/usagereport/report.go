package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"

	"github.com/emanehab99/gstar-stats/internal/aggregate"
	"github.com/emanehab99/gstar-stats/internal/config"
	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/dbconn"
	"github.com/emanehab99/gstar-stats/internal/directory"
	"github.com/emanehab99/gstar-stats/internal/parsers"
	"github.com/emanehab99/gstar-stats/internal/report"
)

const (
	sourceEvents  = "events"
	sourceExtract = "extract"
)

type reportFlags struct {
	from, to      string
	utilisation   string
	portalExtract []string
	format        string
	noCache       bool
}

func newReportCommand(a *app) *cobra.Command {
	var f reportFlags
	cmd := &cobra.Command{
		Use:   "report [quarter year]",
		Short: "Assemble the usage report for a quarter",
		Long: "Builds the report for financial-year quarter 1-4 of the given calendar year,\n" +
			"or for any closed date range given with --from and --to.\n" +
			"Without arguments the last completed quarter is used.",
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePeriod(args, f.from, f.to, time.Now())
			if err != nil {
				return err
			}
			if f.format != "text" && f.format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", f.format)
			}
			ctx, cancel := signalContext()
			defer cancel()

			deps, err := a.openReportDeps(ctx, f)
			if err != nil {
				return err
			}
			defer deps.Close()

			cache, closeCache := a.openCache()
			defer closeCache()
			if f.noCache {
				if cache != nil {
					if err := cache.Invalidate(ctx, p, deps.sourceName()); err != nil {
						log.WithField("event", "cache_invalidate_failed").WithError(err).Warn("cached report left in place")
					}
				}
				cache = nil
			}

			rep, err := cache.GetOrBuild(ctx, p, deps.sourceName(), func(ctx context.Context) (core.Report, error) {
				return deps.build(ctx, p)
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), f.format, rep)
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "first day of a custom period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day of a custom period (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.utilisation, "utilisation", "", "per-user utilisation CSV to use instead of the event store")
	cmd.Flags().StringSliceVar(&f.portalExtract, "portal-extract", nil, "portal job CSV extract(s) to use instead of the portal database")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format: text or json")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "rebuild and drop the cached copy of this report")
	return cmd
}

// resolvePeriod prefers an explicit --from/--to range over quarter arguments.
func resolvePeriod(args []string, from, to string, now time.Time) (core.Period, error) {
	if from == "" && to == "" {
		return parseQuarterArgs(args, now)
	}
	if len(args) > 0 {
		return core.Period{}, fmt.Errorf("--from/--to cannot be combined with quarter arguments")
	}
	if from == "" || to == "" {
		return core.Period{}, fmt.Errorf("--from and --to must be given together")
	}
	start, err := time.Parse(core.DateLayout, from)
	if err != nil {
		return core.Period{}, fmt.Errorf("--from %q: want YYYY-MM-DD", from)
	}
	end, err := time.Parse(core.DateLayout, to)
	if err != nil {
		return core.Period{}, fmt.Errorf("--to %q: want YYYY-MM-DD", to)
	}
	return core.NewPeriod(start, end)
}

// parseQuarterArgs accepts no arguments or a quarter followed by a year.
func parseQuarterArgs(args []string, now time.Time) (core.Period, error) {
	switch len(args) {
	case 0:
		return core.LastCompletedQuarter(now), nil
	case 2:
		q, err := strconv.Atoi(args[0])
		if err != nil {
			return core.Period{}, fmt.Errorf("quarter %q is not a number", args[0])
		}
		year, err := strconv.Atoi(args[1])
		if err != nil {
			return core.Period{}, fmt.Errorf("year %q is not a number", args[1])
		}
		return core.QuarterPeriod(core.Quarter(q), year)
	default:
		return core.Period{}, fmt.Errorf("expected quarter and year, got %d argument(s)", len(args))
	}
}

func render(w io.Writer, format string, rep core.Report) error {
	if format == "json" {
		return report.RenderJSON(w, rep)
	}
	return report.RenderText(w, rep)
}

// reportDeps holds the open handles one or more report builds read from.
type reportDeps struct {
	cfg config.Config

	events    *dbconn.DB
	directory *directory.Reader
	portalJob *dbconn.DB
	portalUsr *dbconn.DB

	utilisation []parsers.UtilisationRow
	extract     []parsers.PortalJob
	useExtract  bool
	source      string

	closers []func() error
}

func (a *app) openReportDeps(ctx context.Context, f reportFlags) (_ *reportDeps, err error) {
	d := &reportDeps{cfg: a.cfg}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if f.utilisation != "" {
		if d.utilisation, err = readUtilisation(f.utilisation); err != nil {
			return nil, err
		}
	} else {
		db, _, err := a.openEventStore(ctx)
		if err != nil {
			return nil, err
		}
		d.events = db
		d.closers = append(d.closers, db.Close)
	}

	dirDB, reader, err := a.openDirectory(ctx)
	if err != nil {
		return nil, err
	}
	d.directory = reader
	d.closers = append(d.closers, dirDB.Close)

	if len(f.portalExtract) > 0 {
		d.useExtract = true
		for _, path := range f.portalExtract {
			jobs, err := readPortalExtract(path)
			if err != nil {
				return nil, err
			}
			d.extract = append(d.extract, jobs...)
		}
	} else if a.cfg.PortalPostgres.Configured() {
		jobs, err := dbconn.Open(ctx, a.cfg.PortalPostgres, a.retry())
		if err != nil {
			return nil, err
		}
		d.portalJob = jobs
		d.closers = append(d.closers, jobs.Close)
	}
	if (d.useExtract || d.portalJob != nil) && a.cfg.PortalMySQL.Configured() {
		users, err := dbconn.Open(ctx, a.cfg.PortalMySQL, a.retry())
		if err != nil {
			return nil, err
		}
		d.portalUsr = users
		d.closers = append(d.closers, users.Close)
	}

	kind := sourceEvents
	if d.events == nil {
		kind = sourceExtract
	}
	if d.source, err = sourceFingerprint(kind, f, d.portalJob != nil); err != nil {
		return nil, err
	}
	return d, nil
}

// sourceFingerprint names the usage source and the inputs a report is read
// from, so the cache never serves a report built from other files or another
// portal source. Extract files count by path, size and modification time.
func sourceFingerprint(kind string, f reportFlags, portalDB bool) (string, error) {
	var parts []string
	if f.utilisation != "" {
		stamp, err := fileStamp(f.utilisation)
		if err != nil {
			return "", err
		}
		parts = append(parts, "utilisation="+stamp)
	}
	switch {
	case len(f.portalExtract) > 0:
		for _, path := range f.portalExtract {
			stamp, err := fileStamp(path)
			if err != nil {
				return "", err
			}
			parts = append(parts, "portal-extract="+stamp)
		}
	case portalDB:
		parts = append(parts, "portal=db")
	default:
		parts = append(parts, "portal=none")
	}
	sum := xxhash.Sum64String(strings.Join(parts, "\n"))
	return kind + ":" + strconv.FormatUint(sum, 16), nil
}

func fileStamp(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("report: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("report: stat %s: %w", path, err)
	}
	return fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano()), nil
}

func readUtilisation(path string) ([]parsers.UtilisationRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: open utilisation %s: %w", path, err)
	}
	defer f.Close()
	return parsers.ParseUtilisation(f)
}

func readPortalExtract(path string) ([]parsers.PortalJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: open portal extract %s: %w", path, err)
	}
	defer f.Close()
	return parsers.ParsePortalJobs(f)
}

// sourceName is the cache source of every report these deps build.
func (d *reportDeps) sourceName() string { return d.source }

// portal returns nil when no portal source was configured.
func (d *reportDeps) portal(p core.Period) aggregate.PortalStats {
	admins := d.cfg.PortalAdmins
	var users aggregate.RegisteredUserCounter
	if d.portalUsr != nil {
		users = aggregate.NewPortalUsers(d.portalUsr, admins)
	}
	switch {
	case d.useExtract:
		return aggregate.NewPortalExtract(d.extract, admins, users)
	case d.portalJob != nil:
		return aggregate.NewPortalDB(d.portalJob, users, p, admins)
	default:
		return nil
	}
}

// build assembles a fresh report for p.
func (d *reportDeps) build(ctx context.Context, p core.Period) (core.Report, error) {
	r := d.cfg.Report
	var (
		source   aggregate.UsageSource
		systemID int
		prefix   string
	)
	if d.events != nil {
		source, systemID, prefix = aggregate.NewEventSource(d.events), r.SystemID, r.ProjectPrefix
	} else {
		source, systemID, prefix = aggregate.NewExtractSource(d.utilisation, r.DiscardAccounts), r.ExtractSystemID, r.ExtractProjectPrefix
	}
	engine := aggregate.New(source, d.directory, aggregate.Options{
		Period:               p,
		SystemID:             systemID,
		ProjectPrefix:        prefix,
		HomeDepartmentID:     r.HomeDepartmentID,
		InstitutionPrecision: r.InstitutionPrecision,
		ProjectPrecision:     r.ProjectPrecision,
		DemographicPrecision: r.DemographicPrecision,
		Admins:               d.cfg.Admins,
		ResidualBuckets:      r.ResidualBuckets,
	})
	return report.NewAssembler(engine, d.portal(p), report.Options{HomeLabel: r.HomeLabel}).Assemble(ctx)
}

func (d *reportDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.WithField("event", "close_failed").WithError(err).Warn("closing connection")
		}
	}
	d.closers = nil
}
