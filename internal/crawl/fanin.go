package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

func runLogWriter(lines <-chan string, w io.Writer) {
	for s := range lines {
		fmt.Fprintln(w, s)
	}
}

type errorEntry struct {
	Code string
	Err  error
}

func runErrorHandler(errors <-chan errorEntry, logger *slog.Logger) {
	for e := range errors {
		logger.Debug("instrument error", "code", e.Code, "error", e.Err)
	}
}

func runHeartbeat(ctx context.Context, interval time.Duration, totalJobs int, mu *sync.Mutex, success, failed, bars *int, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			s, f, b := *success, *failed, *bars
			mu.Unlock()
			logger.Info("heartbeat", "done", s+f, "total", totalJobs, "success", s, "failed", f, "bars", b)
		}
	}
}
