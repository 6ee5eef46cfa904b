package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"trend-data/internal/calendar"
	"trend-data/internal/crawl"
	"trend-data/internal/instrument"
)

// RunFlow orchestrates the daily loop: trigger → run → done → wait for the next session
// close → trigger. It returns on SIGINT/SIGTERM once the running instruments finish.
func RunFlow(a *App, ids []instrument.Identity) {
	cfg := a.Config
	progressUpdates := make(chan crawl.ProgressUpdate, 256)
	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		crawl.RunJournalWriter(cfg.JournalPath(), progressUpdates)
	}()
	defer func() {
		close(progressUpdates)
		<-journalDone
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := make(chan struct{})
	trigger := make(chan crawl.Cmd, 1)
	done := make(chan crawl.Done, 1)

	go func() {
		for range trigger {
			runID := uuid.NewString()
			sum, err := a.Runner.RunOnce(ctx, ids, crawl.RunOptions{RunID: runID}, progressUpdates, shutdown)
			if err != nil {
				slog.Error("run failed", "run_id", runID, "error", err)
			} else {
				slog.Info("run finished", "run_id", runID, "date", sum.Date.Format("2006-01-02"),
					"success", sum.Success, "failed", sum.Failed, "realigned", len(sum.Realigned), "report", sum.ReportPath)
			}
			done <- crawl.Done{}
		}
	}()

	trigger <- crawl.Cmd{}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	for {
		select {
		case <-done:
			slog.Info("done, wait until next run")
			nextRun := nextRunTime(a.Calendar, time.Now(), cfg.RunHour, cfg.RunMinute)
			waitDur := time.Until(nextRun)
			if waitDur <= 0 {
				slog.Info("next run passed, running now", "next_run", nextRun.Format("2006-01-02 15:04"))
			} else {
				slog.Info("timer waiting", "hours", waitDur.Hours(), "until", nextRun.Format("2006-01-02 15:04 MST"))
				timer := time.NewTimer(waitDur)
				select {
				case <-timer.C:
				case sig := <-signals:
					slog.Info("received signal, stopping", "sig", sig, "restart_at", nextRun.Format("2006-01-02 15:04 MST"))
					timer.Stop()
					close(trigger)
					return
				}
			}
			trigger <- crawl.Cmd{}
		case sig := <-signals:
			slog.Info("received signal, graceful shutdown", "sig", sig)
			close(shutdown)
			<-done
			close(trigger)
			return
		}
	}
}

// nextRunTime returns the first hour:minute (exchange time) strictly after now that falls
// on a trading day.
func nextRunTime(cal calendar.Oracle, now time.Time, hour, minute int) time.Time {
	cst := now.In(calendar.CST)
	t := time.Date(cst.Year(), cst.Month(), cst.Day(), hour, minute, 0, 0, calendar.CST)
	for i := 0; i < 30; i++ {
		if t.After(cst) && cal.IsTradingDay(t) {
			return t
		}
		t = t.AddDate(0, 0, 1)
	}
	return t
}
