package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drgolem/diskstream/pkg/types"
)

// monitorPlayback logs engine status every interval until ctx is done.
func monitorPlayback(ctx context.Context, monitor types.PlaybackMonitor, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastUnderruns uint64
	for {
		select {
		case <-ticker.C:
			status := monitor.GetEngineStatus()
			logStatus(status)

			if status.Underruns > lastUnderruns {
				slog.Warn("Streams starved since last report",
					"underruns", status.Underruns-lastUnderruns,
					"starved_now", status.StarvedStreams)
			}
			lastUnderruns = status.Underruns
		case <-ctx.Done():
			return nil
		}
	}
}

func logStatus(status types.EngineStatus) {
	slog.Info("Playback status",
		"position", formatElapsed(status.ElapsedTime),
		"running", status.Running,
		"streams", status.Streams,
		"active", status.ActiveStreams,
		"starved", status.StarvedStreams,
		"underruns", status.Underruns,
		"jobs_done", status.JobsCompleted,
		"jobs_dropped", status.JobsDropped,
		"jobs_pending", status.PendingJobs)
}

// formatElapsed formats d as hh:mm:ss.msec.
func formatElapsed(d time.Duration) string {
	total := d.Milliseconds()
	hours := total / 3600000
	minutes := (total % 3600000) / 60000
	seconds := (total % 60000) / 1000
	milliseconds := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, milliseconds)
}
