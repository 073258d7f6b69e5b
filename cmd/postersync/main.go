package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/postersync/postersync/internal/api"
	"github.com/postersync/postersync/internal/config"
	"github.com/postersync/postersync/internal/history"
	"github.com/postersync/postersync/internal/intake"
	"github.com/postersync/postersync/internal/logger"
	"github.com/postersync/postersync/internal/naming"
	"github.com/postersync/postersync/internal/remote"
	"github.com/postersync/postersync/internal/scanner"
	"github.com/postersync/postersync/internal/scheduler"
	"github.com/postersync/postersync/internal/syncer"
	"github.com/postersync/postersync/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	initConfig := flag.String("init-config", "", "Write a default config file to the given path and exit")
	dryRun := flag.Bool("dry-run", false, "Resolve and log placements without writing to the remote")
	once := flag.Bool("once", false, "Run one full sync plus intake processing, then exit")
	verbose := flag.Bool("verbose", false, "Force debug logging")
	flag.Parse()

	if *initConfig != "" {
		if err := config.WriteDefault(*initConfig); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("Wrote default config to", *initConfig)
		return
	}

	// Optional .env for credentials kept out of the YAML file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("remoteMode", cfg.Remote.Mode).
		Bool("dryRun", *dryRun).
		Msg("starting postersync")

	classifier, err := naming.NewClassifier(cfg.Sync.PosterExtensions, cfg.Sync.PosterNames, cfg.Sync.SeasonPosterPatterns)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid poster classification configuration")
	}

	var storage remote.Storage
	switch cfg.Remote.Mode {
	case config.RemoteModeSMB:
		storage = remote.NewProtocolSession(cfg.Remote.Server, cfg.Remote.Share, cfg.Remote.Username, cfg.Remote.Password, cfg.Remote.Domain, log.Logger)
	default:
		storage = remote.NewMountedFilesystem(cfg.Remote.MountPoint, log.Logger)
	}
	session := remote.NewSession(storage)

	var store *history.Store
	var recorder syncer.Recorder
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open history database")
		}
		defer store.Close()
		recorder = store
	}

	scan := scanner.NewService(classifier, log.Logger)
	sync := syncer.NewService(cfg, classifier, scan, session, recorder, *dryRun, log.Logger)
	inbox := intake.NewService(cfg.Intake, sync, *dryRun, log.Logger)

	if *once {
		runOnce(log, sync, inbox)
		return
	}

	runContinuous(cfg, log, classifier, sync, inbox, store)
}

// runOnce performs a single full pass: sync, intake, unmatched retry.
func runOnce(log *logger.Logger, sync *syncer.Service, inbox *intake.Service) {
	ctx := context.Background()

	if err := sync.SyncAll(ctx); err != nil {
		log.Error().Err(err).Msg("full sync failed")
	}
	if err := inbox.ProcessIntake(ctx); err != nil {
		log.Error().Err(err).Msg("intake processing failed")
	}
	if err := inbox.ProcessUnmatched(ctx); err != nil {
		log.Error().Err(err).Msg("unmatched processing failed")
	}
}

// runContinuous starts the scheduler, the folder watcher and the status API,
// then blocks until an interrupt.
func runContinuous(cfg *config.Config, log *logger.Logger, classifier *naming.Classifier, sync *syncer.Service, inbox *intake.Service, store *history.Store) {
	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	tasks := []scheduler.TaskConfig{
		{
			ID:          "full-sync",
			Name:        "Full poster sync",
			Description: "Scans all local poster folders and places posters on the remote",
			Interval:    cfg.Sync.SyncInterval,
			Func:        sync.SyncAll,
			RunOnStart:  true,
		},
		{
			ID:          "intake",
			Name:        "Intake processing",
			Description: "Classifies and places files dropped in the intake inbox",
			Interval:    cfg.Intake.Interval,
			Func:        inbox.ProcessIntake,
			RunOnStart:  true,
		},
		{
			ID:          "unmatched",
			Name:        "Unmatched retry",
			Description: "Retries parked files against the current remote listing",
			Interval:    cfg.Intake.Interval,
			Func:        inbox.ProcessUnmatched,
		},
	}
	if store != nil && cfg.History.RetentionDays > 0 {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		tasks = append(tasks, scheduler.TaskConfig{
			ID:          "history-cleanup",
			Name:        "History cleanup",
			Description: "Deletes placement history older than the retention period",
			Interval:    24 * time.Hour,
			Func: func(ctx context.Context) error {
				n, err := store.Prune(retention)
				if err != nil {
					return err
				}
				if n > 0 {
					log.Info().Int64("removed", n).Msg("pruned placement history")
				}
				return nil
			},
		})
	}
	for _, task := range tasks {
		if err := sched.RegisterTask(task); err != nil {
			log.Fatal().Err(err).Str("task", task.ID).Msg("failed to register task")
		}
	}

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	if cfg.Sync.WatchFolders {
		var folders []string
		for _, mediaType := range cfg.MediaTypes() {
			if folder, ok := cfg.LocalFolder(mediaType); ok {
				folders = append(folders, folder)
			}
		}

		watch, err := watcher.NewService(folders, classifier, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create watcher")
		}
		watch.SetFileProcessor(sync.SyncSingleFile)
		if err := watch.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start watcher")
		} else {
			defer watch.Stop()
		}
	}

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(cfg.Server, sync, store, sched, log.Logger)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("status API stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("status API shutdown error")
		}
	}

	log.Info().Msg("postersync stopped")
}
