package app

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/wire"

	"trend-data/internal/calendar"
	"trend-data/internal/crawl"
	"trend-data/internal/metrics"
	"trend-data/internal/provider"
	"trend-data/internal/provider/eastmoney"
	"trend-data/internal/refresh"
	"trend-data/internal/saver"
	"trend-data/internal/server"
	"trend-data/internal/signal"
	"trend-data/internal/sink"
	"trend-data/internal/slogx"
)

// ProviderSet is every provider an injector needs to build App.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogging,
	ProvideCalendar,
	ProvideEastmoneyProvider,
	ProvideSnapshotStore,
	ProvideMetrics,
	ProvideUpdater,
	ProvideClassifier,
	ProvidePipeline,
	ProvideRedisPublisher,
	ProvidePublishers,
	ProvideSource,
	ProvideRunner,
	ProvideServer,
	wire.Struct(new(App), "*"),
)

// App holds application dependencies built by Wire.
type App struct {
	Config    *Config
	Logging   *Logging
	Calendar  *calendar.Exchange
	Provider  *provider.EastmoneyProvider
	Snapshots saver.SnapshotStore
	Metrics   *metrics.Metrics
	Runner    *crawl.Runner
	Server    *server.Server
	Source    sink.Source
}

// Logging is the process log destination: stderr, plus a rotated file when configured.
type Logging struct {
	Out    io.Writer
	Level  slog.Level
	Logger *slog.Logger
}

// ProvideConfig loads config from defaults, CONFIG_FILE and environment (for Wire).
func ProvideConfig() (*Config, error) {
	return LoadConfig()
}

// ProvideLogging opens the log output and installs the default logger (for Wire).
func ProvideLogging(cfg *Config) (*Logging, func()) {
	out, closer := slogx.Output(slogx.FileOptions{Path: cfg.LogFile})
	l := &Logging{
		Out:    out,
		Level:  slogx.ParseLevel(cfg.LogLevel),
		Logger: slogx.New(cfg.LogLevel, out),
	}
	slog.SetDefault(l.Logger)
	return l, func() {
		if err := closer.Close(); err != nil {
			slog.New(slog.NewTextHandler(os.Stderr, nil)).Warn("close log file", "error", err)
		}
	}
}

// ProvideCalendar returns the exchange calendar with the optional extra holidays (for Wire).
func ProvideCalendar(cfg *Config) (*calendar.Exchange, error) {
	if cfg.HolidaysFile == "" {
		return calendar.NewXSHG(), nil
	}
	extra, err := calendar.LoadHolidays(cfg.HolidaysFile)
	if err != nil {
		return nil, err
	}
	return calendar.NewXSHG(extra...), nil
}

// ProvideEastmoneyProvider creates the bar vendor client (for Wire).
func ProvideEastmoneyProvider(cfg *Config) (*provider.EastmoneyProvider, func(), error) {
	dp, err := CreateProvider(cfg)
	if err != nil {
		return nil, nil, err
	}
	p := dp.(*provider.EastmoneyProvider)
	return p, func() { p.Close() }, nil
}

// ProvideSnapshotStore creates the snapshot store for SaveFormat (for Wire).
func ProvideSnapshotStore(cfg *Config) (saver.SnapshotStore, func(), error) {
	ss, err := saver.NewSnapshotStore(cfg.SaveFormat, cfg.SnapshotDir())
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	if c, ok := ss.(io.Closer); ok {
		cleanup = func() {
			if err := c.Close(); err != nil {
				slog.Warn("close snapshot store", "error", err)
			}
		}
	}
	return ss, cleanup, nil
}

// ProvideMetrics creates the metrics registry (for Wire).
func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

// ProvideUpdater wires the refresh engine to the vendor and metrics (for Wire).
func ProvideUpdater(cfg *Config, p *provider.EastmoneyProvider, cal *calendar.Exchange, m *metrics.Metrics) *refresh.Updater {
	return refresh.NewUpdater(p, cal,
		refresh.WithGranularities(cfg.Granularities()...),
		refresh.WithObserver(m),
	)
}

// ProvideClassifier builds the classifier from the configured rule table (for Wire).
func ProvideClassifier(cfg *Config) *signal.Classifier {
	return signal.New(cfg.Rules)
}

// ProvidePipeline assembles the per-instrument pipeline (for Wire).
func ProvidePipeline(ss saver.SnapshotStore, u *refresh.Updater, c *signal.Classifier, cal *calendar.Exchange) *crawl.Pipeline {
	return &crawl.Pipeline{Snapshots: ss, Updater: u, Classifier: c, Calendar: cal}
}

// ProvideRedisPublisher connects to Redis when an address is configured; otherwise it
// returns nil and signals are only written to the report directory (for Wire).
func ProvideRedisPublisher(cfg *Config) (*sink.RedisPublisher, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	rp, err := sink.NewRedisPublisher(
		sink.WithRedisAddr(cfg.Redis.Addr),
		sink.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		sink.WithRedisPrefix(cfg.Redis.Prefix),
		sink.WithRedisTTL(cfg.Redis.TTL),
	)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("wire", "publisher", "redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	return rp, func() { rp.Close() }, nil
}

// ProvidePublishers lists the signal publishers (for Wire).
func ProvidePublishers(rp *sink.RedisPublisher) []sink.Publisher {
	if rp == nil {
		return nil
	}
	return []sink.Publisher{rp}
}

// ProvideSource picks what the HTTP API reads: Redis when configured, else the reports (for Wire).
func ProvideSource(cfg *Config, rp *sink.RedisPublisher) sink.Source {
	if rp != nil {
		return rp
	}
	return sink.ReportSource{Dir: cfg.SignalsDir()}
}

// ProvideRunner assembles the crawl runner (for Wire).
func ProvideRunner(cfg *Config, pl *crawl.Pipeline, pubs []sink.Publisher, m *metrics.Metrics, p *provider.EastmoneyProvider, lg *Logging) *crawl.Runner {
	return &crawl.Runner{
		Pipeline:   pl,
		Publishers: pubs,
		Metrics:    m,
		LogRouter:  p,
		LogOutput:  lg.Out,
		LogLevel:   lg.Level,
		Workers:    cfg.Workers,
		Begin:      cfg.Begin(),
		DataDir:    cfg.DataDir,
		SignalsDir: cfg.SignalsDir(),
		Heartbeat:  30 * time.Second,
	}
}

// ProvideServer creates the HTTP API (for Wire).
func ProvideServer(src sink.Source, m *metrics.Metrics, lg *Logging) *server.Server {
	return server.New(src, server.WithMetrics(m.Handler()), server.WithLogger(lg.Logger))
}

func eastmoneyOptions(cfg *Config) []eastmoney.Option {
	opts := []eastmoney.Option{
		eastmoney.WithMinInterval(cfg.RequestInterval),
		eastmoney.WithTimeout(cfg.RequestTimeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, eastmoney.WithBaseURL(cfg.BaseURL))
	}
	return opts
}
