// Package progress reports the progress of long running stages on a
// structured logger.
package progress

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum time between two progress lines of one
// stage.
const DefaultInterval = 2 * time.Second

// Reporter tracks one stage. It is safe for concurrent use.
type Reporter struct {
	logger    *slog.Logger
	stage     string
	total     int64
	done      atomic.Int64
	start     time.Time
	sometimes *rate.Sometimes
}

// Begin starts reporting a stage with total units of work. A nil logger
// discards all output.
func Begin(logger *slog.Logger, stage string, total int) *Reporter {
	return BeginEvery(logger, stage, total, DefaultInterval)
}

// BeginEvery is Begin with a custom reporting interval.
func BeginEvery(logger *slog.Logger, stage string, total int, interval time.Duration) *Reporter {
	r := &Reporter{
		logger:    logger,
		stage:     stage,
		total:     int64(total),
		start:     time.Now(),
		sometimes: &rate.Sometimes{Interval: interval},
	}
	if logger != nil {
		logger.Debug("stage started", "stage", stage, "total", total)
	}
	return r
}

// Add records n finished units.
func (r *Reporter) Add(n int) {
	done := r.done.Add(int64(n))
	if r.logger == nil {
		return
	}
	r.sometimes.Do(func() {
		r.logger.Info("progress",
			"stage", r.stage,
			"done", done,
			"total", r.total,
			"percent", r.percent(done),
		)
	})
}

// Done returns the number of finished units.
func (r *Reporter) Done() int64 { return r.done.Load() }

// End finishes the stage and returns its duration.
func (r *Reporter) End() time.Duration {
	d := time.Since(r.start)
	if r.logger != nil {
		r.logger.Info("stage completed",
			"stage", r.stage,
			"done", r.done.Load(),
			"duration", d,
		)
	}
	return d
}

func (r *Reporter) percent(done int64) float64 {
	if r.total <= 0 {
		return 100
	}
	return float64(done) * 100 / float64(r.total)
}
