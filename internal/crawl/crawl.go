package crawl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"trend-data/internal/calendar"
	"trend-data/internal/instrument"
	"trend-data/internal/metrics"
	"trend-data/internal/provider/eastmoney"
	"trend-data/internal/refresh"
	"trend-data/internal/sink"
	"trend-data/internal/slogx"
)

// Job represents one instrument to refresh and classify.
type Job struct {
	Identity instrument.Identity
}

// JobResult is sent by workers for fan-in
type JobResult struct {
	Ok        bool
	Code      string
	Reason    string
	Bars      int
	Realigned bool
	Outcome   Outcome
}

// Cmd triggers a run
type Cmd struct{}

// Done signals run completion
type Done struct{}

// LogRouter is implemented by providers that can send diagnostics to the fan-in logger.
type LogRouter interface {
	SetLogFunc(fn eastmoney.LogFunc)
}

// Runner executes refresh runs over a list of instruments.
type Runner struct {
	Pipeline   *Pipeline
	Publishers []sink.Publisher
	Metrics    *metrics.Metrics
	LogRouter  LogRouter
	// LogOutput receives the fan-in log lines. Defaults to stderr.
	LogOutput  io.Writer
	LogLevel   slog.Level
	Workers    int
	Begin      time.Time
	DataDir    string
	SignalsDir string
	Heartbeat  time.Duration
	// Now is the clock used when RunOptions.End is zero. Defaults to time.Now.
	Now func() time.Time
}

// RunOptions selects what one run does.
type RunOptions struct {
	RunID string
	// End is the last calendar day wanted. Zero means today in exchange time.
	End     time.Time
	Offline bool
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Date       time.Time
	Success    int
	Failed     int
	Realigned  []string
	Entries    []sink.Entry
	ReportPath string
}

// Today returns the current exchange date as a UTC wall-clock date, the form bars and
// requests are dated in.
func Today(now time.Time) time.Time {
	return wallDay(now.In(calendar.CST))
}

func wallDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RunOnce refreshes and classifies every instrument, then writes the run report and the
// signal report and publishes the signals. Per-instrument failures never abort the run.
func (r *Runner) RunOnce(ctx context.Context, ids []instrument.Identity, opts RunOptions, progress chan<- ProgressUpdate, shutdown <-chan struct{}) (Summary, error) {
	start := time.Now()
	end := opts.End
	if end.IsZero() {
		now := start
		if r.Now != nil {
			now = r.Now()
		}
		end = Today(now)
	}
	end = wallDay(end)
	asOf := calendar.LastTradingDay(r.Pipeline.Calendar, end)
	sum := Summary{RunID: opts.RunID, Date: asOf}

	if len(ids) == 0 {
		slog.Info("no instruments, skip", "run_id", opts.RunID)
		return sum, nil
	}
	jobs := make([]Job, len(ids))
	for i, id := range ids {
		jobs[i] = Job{Identity: id}
	}
	slog.Info("instruments to process", "run_id", opts.RunID, "count", len(jobs), "as_of", asOf.Format("2006-01-02"), "offline", opts.Offline)

	req := refresh.Request{Begin: r.Begin, End: end}
	successList, failedList := r.RunParallel(ctx, jobs, req, asOf, opts.Offline, progress, shutdown)
	sum.Success, sum.Failed = len(successList), len(failedList)

	codes := make([]string, 0, len(successList))
	for _, o := range successList {
		codes = append(codes, o.Identity.Code)
		sum.Entries = append(sum.Entries, o.Entry)
		if o.Realigned {
			sum.Realigned = append(sum.Realigned, o.Identity.Code)
		}
	}
	if err := writeRunReport(r.DataDir, opts.RunID, codes, failedList); err != nil {
		slog.Warn("could not write run report", "error", err)
	} else {
		slog.Info("run report saved", "success", len(codes), "failed", len(failedList))
	}
	if r.Metrics != nil {
		defer r.Metrics.RunFinished(start)
	}

	if len(sum.Entries) == 0 {
		return sum, errors.New("no instrument could be classified")
	}

	prev, err := sink.ReadPreviousReport(r.SignalsDir, calendar.PreviousTradingDay(r.Pipeline.Calendar, asOf))
	if err != nil {
		slog.Warn("could not read previous signal report, notes not carried", "error", err)
	}
	sink.CarryNotes(sum.Entries, prev)
	path, err := sink.WriteReport(r.SignalsDir, asOf, sum.Entries)
	if err != nil {
		return sum, err
	}
	sum.ReportPath = path
	slog.Info("signal report saved", "path", path, "rows", len(sum.Entries))

	for _, p := range r.Publishers {
		if err := p.Publish(ctx, asOf, sum.Entries); err != nil {
			slog.Warn("publish failed", "error", err)
		}
	}
	return sum, nil
}

func runJobResultCollector(
	results <-chan JobResult,
	mu *sync.Mutex,
	success, failed, bars *int,
	successList *[]Outcome,
	failedList *[]failedEntry,
	m *metrics.Metrics,
) {
	for res := range results {
		mu.Lock()
		if res.Ok {
			*success++
			*bars += res.Bars
			*successList = append(*successList, res.Outcome)
		} else {
			*failed++
			*failedList = append(*failedList, failedEntry{Code: res.Code, Reason: res.Reason})
		}
		mu.Unlock()
		if m != nil {
			m.InstrumentDone(res.Ok)
			if res.Ok {
				m.SignalProduced(res.Outcome.Signal)
			}
		}
	}
}

// RunParallel processes jobs with r.Workers workers. Every store is owned by exactly one
// worker. On shutdown workers stop taking jobs; in-flight instruments finish.
func (r *Runner) RunParallel(
	ctx context.Context,
	jobs []Job,
	req refresh.Request,
	asOf time.Time,
	offline bool,
	progress chan<- ProgressUpdate,
	shutdown <-chan struct{},
) (successList []Outcome, failedList []failedEntry) {
	out := r.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logs := make(chan string, 2048)
	logger := slogx.NewChanLogger(logs, r.LogLevel)
	errs := make(chan errorEntry, 64)
	var logWg sync.WaitGroup
	logWg.Add(1)
	go func() {
		defer logWg.Done()
		runLogWriter(logs, out)
	}()
	var errWg sync.WaitGroup
	errWg.Add(1)
	go func() {
		defer errWg.Done()
		runErrorHandler(errs, logger)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.LogRouter != nil {
		r.LogRouter.SetLogFunc(func(msg string) { logger.Info(msg) })
	}
	defer func() {
		if r.LogRouter != nil {
			r.LogRouter.SetLogFunc(nil)
		}
		close(errs)
		errWg.Wait()
		close(logs)
		logWg.Wait()
	}()

	pending := make(chan Job, len(jobs))
	for _, j := range jobs {
		pending <- j
	}
	close(pending)

	results := make(chan JobResult, len(jobs)+64)
	var mu sync.Mutex
	var success, failed, bars int
	var resWg sync.WaitGroup
	resWg.Add(1)
	go func() {
		defer resWg.Done()
		runJobResultCollector(results, &mu, &success, &failed, &bars, &successList, &failedList, r.Metrics)
	}()

	heartbeat := r.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWg sync.WaitGroup
	hbWg.Add(1)
	go func() {
		defer hbWg.Done()
		runHeartbeat(hbCtx, heartbeat, len(jobs), &mu, &success, &failed, &bars, logger)
	}()

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-shutdown:
					return
				default:
				}
				select {
				case <-shutdown:
					return
				case job, ok := <-pending:
					if !ok {
						return
					}
					results <- r.runJob(ctx, job, req, asOf, offline, logger, errs, progress)
				}
			}
		}()
	}
	wg.Wait()
	close(results)
	resWg.Wait()
	hbCancel()
	hbWg.Wait()

	logger.Info("summary", "total_bars", bars, "success", success, "failed", failed)
	if len(failedList) > 0 {
		sort.Slice(failedList, func(i, j int) bool { return failedList[i].Code < failedList[j].Code })
		logger.Info("summary failed", "count", len(failedList), "reasons", joinFailedReasons(failedList))
	}
	return successList, failedList
}

func (r *Runner) runJob(
	ctx context.Context,
	job Job,
	req refresh.Request,
	asOf time.Time,
	offline bool,
	logger *slog.Logger,
	errs chan<- errorEntry,
	progress chan<- ProgressUpdate,
) JobResult {
	code := job.Identity.Code
	o, err := r.Pipeline.Process(ctx, job.Identity, req, asOf, offline, logger)
	if o.Realigned {
		select {
		case progress <- ProgressUpdate{Code: code, Date: asOf.Format("2006-01-02")}:
		default:
			logger.Warn("journal channel full, skip update", "code", code)
		}
	}
	if err != nil {
		reason := err.Error()
		var nd *refresh.NoDataError
		if errors.As(err, &nd) {
			reason = "no data"
		}
		logger.Error("instrument fail", "code", code, "reason", reason)
		select {
		case errs <- errorEntry{Code: code, Err: err}:
		default:
		}
		return JobResult{Ok: false, Code: code, Reason: reason, Bars: o.Bars}
	}
	logger.Info("instrument ok", "code", o.Identity.String(), "bars", o.Bars, "signal", o.Entry.Signal.String(), "rule", o.Signal.Rule)
	return JobResult{Ok: true, Code: code, Bars: o.Bars, Realigned: o.Realigned, Outcome: o}
}
