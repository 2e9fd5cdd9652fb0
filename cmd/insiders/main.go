package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/bighogz/insider-clusters/internal/app"
	"github.com/bighogz/insider-clusters/internal/backtest"
	"github.com/bighogz/insider-clusters/internal/config"
	"github.com/bighogz/insider-clusters/internal/ingest"
	"github.com/bighogz/insider-clusters/internal/logging"
	"github.com/bighogz/insider-clusters/internal/models"
	"github.com/bighogz/insider-clusters/internal/pipeline"
	"github.com/bighogz/insider-clusters/internal/store"
	"github.com/bighogz/insider-clusters/internal/telemetry"
	"github.com/bighogz/insider-clusters/internal/yahoo"
)

var Version = "dev"

var cfg *config.Config

func main() {
	a := cli.NewApp()
	a.Name = "insiders"
	a.Usage = "Build the insider cluster-buy watchlist"
	a.Version = Version
	a.Before = func(_ *cli.Context) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	}
	a.Commands = []cli.Command{
		ingestCMD,
		runCMD,
		clustersCMD,
		watchlistCMD,
		backtestCMD,
	}

	if err := a.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	sqlFlag = cli.BoolFlag{Name: "sql", Usage: "evaluate the cluster predicate in the database"}
	csvFlag = cli.StringFlag{Name: "csv", Usage: "also write results to this CSV `FILE`"}

	ingestCMD = cli.Command{
		Name:      "ingest",
		Usage:     "load a screener CSV export into the bronze table",
		ArgsUsage: "FILE...",
		Action:    ingestAction,
	}
	runCMD = cli.Command{
		Name:   "run",
		Usage:  "rebuild the normalized tables and the watchlist",
		Flags:  []cli.Flag{sqlFlag, cli.BoolFlag{Name: "json", Usage: "print the run report as JSON"}},
		Action: runAction,
	}
	clustersCMD = cli.Command{
		Name:   "clusters",
		Usage:  "print cluster hits from the normalized tables",
		Flags:  []cli.Flag{sqlFlag, csvFlag},
		Action: clustersAction,
	}
	watchlistCMD = cli.Command{
		Name:   "watchlist",
		Usage:  "print the persisted watchlist",
		Flags:  []cli.Flag{csvFlag},
		Action: watchlistAction,
	}
	backtestCMD = cli.Command{
		Name:   "backtest",
		Usage:  "12-month return of every watchlist entry",
		Flags:  []cli.Flag{csvFlag},
		Action: backtestAction,
	}
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func withStore(fn func(ctx context.Context, s *store.Store) error) error {
	ctx, cancel := signalContext()
	defer cancel()
	s, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func ingestAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("ingest needs at least one CSV file", 2)
	}
	return withStore(func(ctx context.Context, s *store.Store) error {
		total := 0
		for _, path := range c.Args() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			n, err := ingest.Load(ctx, s, f, cfg.WriterBatchSize)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			logrus.WithFields(logrus.Fields{"file": path, "rows": n}).Info("ingested")
			total += n
		}
		fmt.Printf("Loaded %d bronze rows.\n", total)
		return nil
	})
}

func runAction(c *cli.Context) error {
	shutdown, err := telemetry.Setup(cfg.TraceEnabled, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	opts, err := app.PipelineOptions(cfg)
	if err != nil {
		return err
	}
	opts.UseSQL = c.Bool("sql")

	return withStore(func(ctx context.Context, s *store.Store) error {
		rep, err := pipeline.Run(ctx, s, opts)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		fmt.Printf("Run %s: %d bronze rows, %d companies, %d insiders, %d transactions (%d purchases).\n",
			rep.RunID, rep.RawRows, rep.Companies, rep.Insiders, rep.Transform.Transactions, rep.Transform.Purchases)
		fmt.Printf("%d cluster hits, %d on the watchlist.\n", len(rep.Hits), len(rep.Watchlist))
		printWatchlist(rep.Watchlist)
		return nil
	})
}

func clustersAction(c *cli.Context) error {
	crit, err := app.Criteria(cfg)
	if err != nil {
		return err
	}
	return withStore(func(ctx context.Context, s *store.Store) error {
		hits, err := pipeline.FindClusters(ctx, s, crit, c.Bool("sql"))
		if err != nil {
			return err
		}
		fmt.Println("Cluster buys (latest qualifying purchase):")
		if len(hits) == 0 {
			fmt.Println("  None detected.")
		}
		for _, h := range hits {
			fmt.Printf("  %-8s %s\n", h.Ticker, day(h.Timestamp))
		}
		if path := c.String("csv"); path != "" {
			rows := make([][]string, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, []string{h.Ticker, day(h.Timestamp), strconv.FormatInt(h.Timestamp, 10)})
			}
			return writeCSV(path, []string{"ticker", "date", "timestamp"}, rows)
		}
		return nil
	})
}

func watchlistAction(c *cli.Context) error {
	return withStore(func(ctx context.Context, s *store.Store) error {
		entries, err := s.LoadWatchlist(ctx)
		if err != nil {
			return err
		}
		printWatchlist(entries)
		if path := c.String("csv"); path != "" {
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Ticker, day(e.Timestamp), optFloat(e.Score, 2), optString(e.Error)})
			}
			return writeCSV(path, []string{"ticker", "date", "score", "error"}, rows)
		}
		return nil
	})
}

func trendSlope(t *backtest.Trend) string {
	if t == nil {
		return ""
	}
	return strconv.FormatFloat(t.Slope, 'f', 6, 64)
}

func backtestAction(c *cli.Context) error {
	return withStore(func(ctx context.Context, s *store.Store) error {
		entries, err := s.LoadWatchlist(ctx)
		if err != nil {
			return err
		}
		results := backtest.Run(ctx, yahoo.New(), entries)
		fmt.Println("12-month backtest:")
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			switch {
			case r.Err != nil:
				fmt.Printf("  %-8s error: %v\n", r.Ticker, r.Err)
			case !r.Matured:
				fmt.Printf("  %-8s entry=%.2f (%s) last=%.2f (%s) return=%+.2f%% not matured\n", r.Ticker,
					r.EntryPrice, r.EntryDate.Format(time.DateOnly), *r.ExitPrice, r.ExitDate.Format(time.DateOnly), *r.Return*100)
			default:
				fmt.Printf("  %-8s entry=%.2f exit=%.2f return=%+.2f%%\n", r.Ticker, r.EntryPrice, *r.ExitPrice, *r.Return*100)
			}
			errMsg := ""
			if r.Err != nil {
				errMsg = r.Err.Error()
			}
			rows = append(rows, []string{
				r.Ticker, strconv.FormatFloat(r.EntryPrice, 'f', 2, 64), optFloat(r.ExitPrice, 2),
				optFloat(r.Return, 4), strconv.FormatBool(r.Matured), trendSlope(r.Trend), errMsg,
			})
		}
		if path := c.String("csv"); path != "" {
			return writeCSV(path, []string{"ticker", "entry_price", "exit_price", "return", "matured", "slope", "error"}, rows)
		}
		return nil
	})
}

func printWatchlist(entries []models.WatchlistEntry) {
	if len(entries) == 0 {
		fmt.Println("  (No data)")
		return
	}
	for _, e := range entries {
		switch {
		case e.Error != nil:
			fmt.Printf("  %-8s %s  error: %s\n", e.Ticker, day(e.Timestamp), *e.Error)
		case e.Score != nil:
			fmt.Printf("  %-8s %s  score=%.2f\n", e.Ticker, day(e.Timestamp), *e.Score)
		default:
			fmt.Printf("  %-8s %s\n", e.Ticker, day(e.Timestamp))
		}
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create CSV: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write(header)
	w.WriteAll(rows)
	if err := w.Error(); err != nil {
		return err
	}
	fmt.Printf("\nWrote %s.\n", path)
	return nil
}

func day(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.DateOnly)
}

func optFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
