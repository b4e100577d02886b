package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DiskPressure periodically checks free space on the upload directory and
// exposes the result to the health endpoint. Uploads are refused separately
// through UploadFile's own threshold check; this monitor only observes and
// logs transitions.
type DiskPressure struct {
	Logger       *slog.Logger
	Path         string
	MinFreeBytes int64
	Interval     time.Duration

	low       atomic.Bool
	freeBytes atomic.Int64
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (dp *DiskPressure) Run(ctx context.Context) {
	interval := dp.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	dp.check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dp.check()
		}
	}
}

// Low reports whether free space is below the configured threshold.
func (dp *DiskPressure) Low() bool {
	return dp.low.Load()
}

// FreeBytes returns the free space seen by the last check.
func (dp *DiskPressure) FreeBytes() int64 {
	return dp.freeBytes.Load()
}

func (dp *DiskPressure) check() {
	free, err := diskFreeBytes(dp.Path)
	if err != nil {
		dp.Logger.Warn("disk_pressure: failed to check disk space",
			slog.String("path", dp.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	dp.freeBytes.Store(free)

	wasLow := dp.low.Load()
	isLow := dp.MinFreeBytes > 0 && free < dp.MinFreeBytes
	if isLow == wasLow {
		return
	}
	dp.low.Store(isLow)
	if isLow {
		dp.Logger.Warn("disk_pressure: low disk space",
			slog.Int64("freeBytes", free),
			slog.Int64("thresholdBytes", dp.MinFreeBytes),
		)
	} else {
		dp.Logger.Info("disk_pressure: disk space recovered",
			slog.Int64("freeBytes", free),
			slog.Int64("thresholdBytes", dp.MinFreeBytes),
		)
	}
}
