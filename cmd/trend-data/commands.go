package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"trend-data/internal/app"
	"trend-data/internal/crawl"
	"trend-data/internal/instrument"
)

// session is an initialized App with its instruments.
type session struct {
	app     *app.App
	ids     []instrument.Identity
	cleanup func()
}

func open(needInstruments bool) (*session, error) {
	a, cleanup, err := InitializeApp()
	if err != nil {
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	s := &session{app: a, cleanup: cleanup}
	slog.Info("using data provider", "provider", a.Provider.GetName(), "format", a.Config.SaveFormat, "dir", a.Config.SnapshotDir())
	if !needInstruments {
		return s, nil
	}
	s.ids, err = app.LoadInstruments(a.Config)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("load instruments: %w", err)
	}
	slog.Info("got instruments", "count", len(s.ids))
	if err := os.MkdirAll(a.Config.DataDir, 0755); err != nil {
		cleanup()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return s, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// runOnce executes one run with the realignment journal attached and SIGINT/SIGTERM
// mapped to a graceful shutdown.
func runOnce(s *session, opts crawl.RunOptions) error {
	updates := make(chan crawl.ProgressUpdate, 256)
	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		crawl.RunJournalWriter(s.app.Config.JournalPath(), updates)
	}()

	shutdown := make(chan struct{})
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case sig := <-signals:
			slog.Info("received signal, graceful shutdown", "sig", sig)
			close(shutdown)
		case <-finished:
		}
	}()

	opts.RunID = uuid.NewString()
	sum, err := s.app.Runner.RunOnce(context.Background(), s.ids, opts, updates, shutdown)
	close(updates)
	<-journalDone
	if err != nil {
		return err
	}
	slog.Info("run finished", "run_id", sum.RunID, "date", sum.Date.Format("2006-01-02"),
		"success", sum.Success, "failed", sum.Failed, "realigned", len(sum.Realigned), "report", sum.ReportPath)
	return nil
}

type refreshCmd struct {
	date string
}

func (*refreshCmd) Name() string { return "refresh" }
func (*refreshCmd) Synopsis() string {
	return "refresh the bar snapshots once, then classify and publish the signals"
}
func (*refreshCmd) Usage() string {
	return `trend-data refresh [-date YYYY-MM-DD]

  Fetches the missing bars of every configured instrument, rebuilding the history
  of instruments whose prices were adjusted by a corporate action, then writes the
  signal report for the last trading day on or before -date.
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "Last calendar day to fetch (defaults to today, exchange time).")
}

func (c *refreshCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	end, err := parseDay(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	s, err := open(true)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return subcommands.ExitFailure
	}
	defer s.cleanup()
	if err := runOnce(s, crawl.RunOptions{End: end}); err != nil {
		slog.Error("refresh failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type classifyCmd struct {
	date    string
	offline bool
}

func (*classifyCmd) Name() string { return "classify" }
func (*classifyCmd) Synopsis() string {
	return "classify the stored snapshots and write the signal report"
}
func (*classifyCmd) Usage() string {
	return `trend-data classify [-date YYYY-MM-DD] [-offline=false]

  Classifies every configured instrument as of -date using the stored snapshots.
  With -offline=false the snapshots are refreshed first, like refresh.
`
}

func (c *classifyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "Report day (defaults to today, exchange time).")
	f.BoolVar(&c.offline, "offline", true, "Do not contact the vendor.")
}

func (c *classifyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	end, err := parseDay(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	s, err := open(true)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return subcommands.ExitFailure
	}
	defer s.cleanup()
	if err := runOnce(s, crawl.RunOptions{End: end, Offline: c.offline}); err != nil {
		slog.Error("classify failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the latest signals over HTTP" }
func (*serveCmd) Usage() string {
	return `trend-data serve

  Serves /api/signals, /api/signals/{code}, /healthz and /metrics on HTTP_ADDR.
`
}
func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(false)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return subcommands.ExitFailure
	}
	defer s.cleanup()

	errc := make(chan error, 1)
	go func() { errc <- s.app.Server.Start(s.app.Config.HTTPAddr) }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	select {
	case err := <-errc:
		if err != nil {
			slog.Error("http server failed", "error", err)
			return subcommands.ExitFailure
		}
	case sig := <-signals:
		slog.Info("received signal, graceful shutdown", "sig", sig)
	}
	if err := shutdownServer(s.app); err != nil {
		slog.Error("shutdown", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type runCmd struct {
	noHTTP bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "refresh after every session close and serve the signals" }
func (*runCmd) Usage() string {
	return `trend-data run [-no-http]

  Runs immediately, then after RUN_HOUR:RUN_MINUTE (exchange time) on every
  trading day, until SIGINT/SIGTERM. The HTTP API runs alongside unless -no-http.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.noHTTP, "no-http", false, "Do not start the HTTP API.")
}

func (c *runCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := open(true)
	if err != nil {
		slog.Error("failed to start", "error", err)
		return subcommands.ExitFailure
	}
	defer s.cleanup()

	if !c.noHTTP {
		go func() {
			if err := s.app.Server.Start(s.app.Config.HTTPAddr); err != nil {
				slog.Error("http server failed", "error", err)
			}
		}()
		defer func() {
			if err := shutdownServer(s.app); err != nil {
				slog.Warn("shutdown", "error", err)
			}
		}()
	}
	slog.Info("parallel mode", "workers", s.app.Config.Workers, "interval", s.app.Config.RequestInterval)
	app.RunFlow(s.app, s.ids)
	return subcommands.ExitSuccess
}

func shutdownServer(a *app.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.Server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("http server shutdown timed out")
	}
	return err
}
