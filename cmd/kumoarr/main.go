package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kumoarr/kumoarr/internal/autodl"
	"github.com/kumoarr/kumoarr/internal/config"
	"github.com/kumoarr/kumoarr/internal/database"
	"github.com/kumoarr/kumoarr/internal/downloader"
	"github.com/kumoarr/kumoarr/internal/events"
	"github.com/kumoarr/kumoarr/internal/importer"
	"github.com/kumoarr/kumoarr/internal/indexer"
	"github.com/kumoarr/kumoarr/internal/library"
	"github.com/kumoarr/kumoarr/internal/logger"
	"github.com/kumoarr/kumoarr/internal/mediainfo"
	"github.com/kumoarr/kumoarr/internal/metadata"
	"github.com/kumoarr/kumoarr/internal/monitor"
	"github.com/kumoarr/kumoarr/internal/rss"
	"github.com/kumoarr/kumoarr/internal/scheduler"
	"github.com/kumoarr/kumoarr/internal/scheduler/tasks"
	"github.com/kumoarr/kumoarr/internal/search"
	"github.com/kumoarr/kumoarr/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	runOnce := flag.Bool("run-once", false, "Run the scheduled jobs once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	manager := config.NewManager(cfg)

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	st := store.New(db.Conn())
	bus := events.NewBus(cfg.Events.BusCapacity)
	defer bus.Close()

	sink := events.NewLogSink(bus, st, log.Logger)
	hub := events.NewHub(bus, log.Logger)
	status := events.NewStatusBroadcaster(st, hub, log.Logger)

	nyaa := indexer.NewNyaa(cfg.Indexer.BaseURL, log.Logger)
	seadex := indexer.NewSeadex(cfg.Indexer.SeadexBaseURL, log.Logger)
	chain := indexer.NewProviderChain(log.Logger, indexer.NewJikan(cfg.Metadata.JikanBaseURL))

	engine := downloader.NewQBittorrent(
		cfg.Downloads.QBittorrentHost,
		cfg.Downloads.QBittorrentUsername,
		cfg.Downloads.QBittorrentPassword,
		log.Logger,
	)

	prober := &mediainfo.FFprobe{Binary: cfg.Library.FFprobePath}
	imp := importer.New(st, prober, manager, bus, log.Logger)
	recycler := importer.NewRecycler(st, cfg.Library.RecycleBinPath, log.Logger)

	searchSvc := search.New(st, nyaa, manager, log.Logger)
	autoDL := autodl.New(st, searchSvc, engine, seadex, recycler, manager, bus, log.Logger)
	rssSvc := rss.New(st, nyaa, engine, manager, bus, log.Logger)
	scanner := library.NewScanner(st, manager, bus, log.Logger)
	metadataSvc := metadata.New(st, chain, bus, log.Logger)
	mon := monitor.New(st, engine, imp, manager, bus, log.Logger)

	sched, err := scheduler.New(log.Logger, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	err = tasks.RegisterAll(sched, tasks.Services{
		AutoDL:   autoDL,
		RSS:      rssSvc,
		Metadata: metadataSvc,
		Library:  scanner,
		Recycler: recycler,
		Store:    st,
	}, cfg.Scheduler, cfg.Logging.RetentionDays, cfg.Library.RecycleBinDays)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register tasks")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *runOnce {
		if err := sched.RunOnce(ctx); err != nil {
			log.Fatal().Err(err).Msg("run-once failed")
		}
		return
	}

	go sink.Run(ctx)
	go hub.Run()
	go status.Run(ctx)
	go mon.Run(ctx)

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	log.Info().Msg("kumoarr started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	cancel()
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}
}
