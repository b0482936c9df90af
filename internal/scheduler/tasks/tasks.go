// Package tasks wires the services into the scheduler's periodic jobs.
package tasks

import (
	"context"
	"time"

	"github.com/kumoarr/kumoarr/internal/autodl"
	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/importer"
	"github.com/kumoarr/kumoarr/internal/library"
	"github.com/kumoarr/kumoarr/internal/metadata"
	"github.com/kumoarr/kumoarr/internal/rss"
	"github.com/kumoarr/kumoarr/internal/scheduler"
	"github.com/kumoarr/kumoarr/internal/store"
)

// Task IDs, stable across restarts for RunNow lookups.
const (
	ReleaseCheckTaskID    = "release-check"
	RssCheckTaskID        = "rss-check"
	MetadataRefreshTaskID = "metadata-refresh"
	LibraryScanTaskID     = "library-scan"
)

// Services are the components the jobs drive.
type Services struct {
	AutoDL   *autodl.Service
	RSS      *rss.Service
	Metadata *metadata.Service
	Library  *library.Scanner
	Recycler *importer.Recycler
	Store    *store.Store
}

// RegisterAll wires the four periodic jobs. A configured cron expression
// overrides the matching interval.
func RegisterAll(sched *scheduler.Scheduler, svc Services, cfg config.SchedulerConfig, logRetentionDays, recycleDays int) error {
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          ReleaseCheckTaskID,
		Name:        "Release Check",
		Description: "Search indexers for missing episodes of monitored titles",
		Interval:    minutes(cfg.ReleaseCheckMinutes, 15),
		Cron:        cfg.ReleaseCheckCron,
		RunOnStart:  true,
		Func:        svc.AutoDL.CheckAll,
	}); err != nil {
		return err
	}

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          RssCheckTaskID,
		Name:        "RSS Check",
		Description: "Poll subscribed feeds and queue new items",
		Interval:    minutes(cfg.RssCheckMinutes, 15),
		Cron:        cfg.RssCheckCron,
		Func:        svc.RSS.CheckFeeds,
	}); err != nil {
		return err
	}

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          MetadataRefreshTaskID,
		Name:        "Metadata Refresh",
		Description: "Refresh stale episode metadata and prune old activity logs",
		Interval:    hours(cfg.MetadataRefreshHours, 12),
		Cron:        cfg.MetadataRefreshCron,
		Func: func(ctx context.Context) error {
			if err := svc.Metadata.RefreshAll(ctx); err != nil {
				return err
			}
			cutoff := time.Now().UTC().AddDate(0, 0, -logRetentionDays)
			_, err := svc.Store.PruneLogs(ctx, cutoff)
			return err
		},
	}); err != nil {
		return err
	}

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          LibraryScanTaskID,
		Name:        "Library Scan",
		Description: "Reconcile the library tree with the catalogue and GC the recycle bin",
		Interval:    hours(cfg.LibraryScanHours, 12),
		Cron:        cfg.LibraryScanCron,
		Func: func(ctx context.Context) error {
			if err := svc.Library.ScanAll(ctx); err != nil {
				return err
			}
			return svc.Recycler.GC(ctx, time.Duration(recycleDays)*24*time.Hour)
		},
	})
}

func minutes(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func hours(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Hour
}
