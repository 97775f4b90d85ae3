package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/richard-senior/podds/internal/logger"
	"github.com/richard-senior/podds/pkg/alert"
	"github.com/richard-senior/podds/pkg/cache"
	"github.com/richard-senior/podds/pkg/cron"
	"github.com/richard-senior/podds/pkg/podds"
	"github.com/richard-senior/podds/pkg/provider"
)

const usage = `usage: podds [command]

commands:
  (none)                               run the job scheduler until interrupted
  predict <matchId>                    print the prediction for a match, generating it if needed
  run <job>                            run one job now (%s)
  corners <matchId> <over|under> <n>   record a manual corners pick
  averages <leagueId> <season>         recompute league averages, season as 2024 or 2024/25
  stats                                print prediction accuracy and recent job runs
`

// app holds the wired components
type app struct {
	cfg     *podds.PoddsConfig
	store   *podds.Store
	service *podds.Service
	jobs    *cron.Jobs
	runner  *cron.Runner
	alerts  *alert.Dispatcher
	closers []func() error
}

func main() {
	logger.SetShowDateTime(true)

	cfg, err := podds.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration:", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to start:", err)
	}
	defer a.close()

	if err := a.dispatch(ctx, os.Args[1:]); err != nil {
		logger.Error("Command failed:", err)
		a.close()
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *podds.PoddsConfig) (*app, error) {
	store, err := podds.OpenStore(ctx, cfg.DbPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store}
	a.closers = append(a.closers, store.Close)

	var c podds.Cache = cache.Noop{}
	if cfg.CacheEnabled && cfg.RedisAddr != "" {
		r, err := cache.NewRedis(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "podds:",
		})
		if err != nil {
			logger.Warn("Redis unavailable, running without a cache", err)
		} else {
			c = r
			a.closers = append(a.closers, r.Close)
		}
	}

	var p podds.Provider
	if cfg.ProviderAPIKey != "" {
		p = provider.New(cfg)
	} else {
		logger.Warn("PROVIDER_API_KEY not set, only stored data will be used")
	}

	a.service = podds.NewService(cfg, store, c, p)
	a.alerts = alert.FromConfig(cfg)

	loc, err := time.LoadLocation(cfg.SchedulerTimezone)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("unknown scheduler timezone %q: %w", cfg.SchedulerTimezone, err)
	}
	a.runner = cron.NewRunner(cfg, cron.NewTracker(store, loc), a.alerts)
	a.jobs = cron.NewJobs(cfg, store, a.service, a.service.Refresher(), p)
	return a, nil
}

func (a *app) close() {
	// pending alerts go out before the process exits
	a.alerts.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Close failed", err)
		}
	}
	a.closers = nil
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.schedule(ctx)
	}
	switch args[0] {
	case "predict":
		if len(args) != 2 {
			return a.usage()
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid match id %q", args[1])
		}
		return a.predict(ctx, id)
	case "run":
		if len(args) != 2 {
			return a.usage()
		}
		return a.run(ctx, args[1])
	case "corners":
		if len(args) != 4 {
			return a.usage()
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid match id %q", args[1])
		}
		threshold, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("invalid threshold %q", args[3])
		}
		p, err := a.service.SetManualCorners(ctx, id, args[2], threshold)
		if err != nil {
			return err
		}
		return printJSON(p)
	case "averages":
		if len(args) != 3 {
			return a.usage()
		}
		leagueID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid league id %q", args[1])
		}
		season, err := podds.ParseSeason(args[2])
		if err != nil {
			return err
		}
		return a.averages(ctx, leagueID, season)
	case "stats":
		return a.stats(ctx)
	default:
		return a.usage()
	}
}

func (a *app) usage() error {
	names := make([]string, 0)
	for name := range a.jobs.All() {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, usage, fmt.Sprint(names))
	return fmt.Errorf("invalid arguments")
}

func (a *app) predict(ctx context.Context, matchID int64) error {
	p, err := a.service.GetOrGenerate(ctx, matchID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("match %d: %w", matchID, podds.ErrNotFound)
	}
	return printJSON(p)
}

func (a *app) run(ctx context.Context, name string) error {
	fn, ok := a.jobs.All()[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	stats, err := a.runner.Run(ctx, name, fn)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func (a *app) averages(ctx context.Context, leagueID int64, season int) error {
	la, err := a.service.Refresher().UpdateLeagueAverages(ctx, leagueID, season)
	if err != nil {
		return err
	}
	if la == nil {
		return fmt.Errorf("league %d has no finished matches in %s", leagueID, podds.SeasonLabel(season))
	}
	fmt.Printf("League %d, season %s\n", leagueID, podds.SeasonLabel(season))
	return printJSON(la)
}

func (a *app) stats(ctx context.Context) error {
	ps, err := a.service.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Predictions simulated: %d, with at least one winning field: %d\n", ps.SimulatedTotal, ps.WonTotal)
	for _, f := range podds.GradedFields {
		sim, won := ps.FieldCounts(f)
		fmt.Printf("  %-16s %6d / %-6d %6.2f%%\n", f, won, sim, ps.WinRate(f))
	}

	runs, err := a.store.RecentExecutions(ctx, "", 10)
	if err != nil {
		return err
	}
	fmt.Println("Recent job runs:")
	for _, r := range runs {
		fmt.Printf("  %s  %-24s %-8s %6dms %s\n", r.StartedAtLocal, r.JobName, r.Status, r.DurationMillis, r.Error)
	}
	return nil
}

func (a *app) schedule(ctx context.Context) error {
	s, err := cron.NewScheduler(a.cfg, a.runner, a.jobs.All())
	if err != nil {
		return err
	}
	s.Start()
	logger.Highlight("Scheduler started, waiting for jobs")

	<-ctx.Done()
	logger.Info("Shutting down, waiting for running jobs")
	<-s.Stop().Done()
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
