package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/HyphaGroup/parker/internal/audit"
	"github.com/HyphaGroup/parker/internal/checker"
	"github.com/HyphaGroup/parker/internal/checkpoint"
	"github.com/HyphaGroup/parker/internal/config"
	"github.com/HyphaGroup/parker/internal/logger"
	"github.com/HyphaGroup/parker/internal/mcp"
	"github.com/HyphaGroup/parker/internal/metrics"
	"github.com/HyphaGroup/parker/internal/producer"
	"github.com/HyphaGroup/parker/internal/search"
	"github.com/HyphaGroup/parker/internal/session"
	"github.com/HyphaGroup/parker/internal/store"
)

// errRunComplete means the latest run for the ceiling already finished
var errRunComplete = errors.New("run already completed")

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFlag := fs.String("config", "", "Directory holding parker.jsonc")
	freshFlag := fs.Bool("fresh", false, "Start a new run instead of resuming the latest one")
	showVersion := fs.Bool("version", false, "Print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Printf("parker %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := logger.Init(cfg.Log.Dir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()
	if err := logger.InitSlogLevel(cfg.Log.Dir, cfg.Log.JSON, cfg.Log.SlogLevel()); err != nil {
		log.Fatalf("Failed to initialize structured logger: %v", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	logger.Printf("Parker %s", Version)
	if cfg.ConfigDir != "" {
		logger.Printf("Config: %s", cfg.ConfigDir)
	} else {
		logger.Printf("Config: built-in defaults")
	}

	st, err := store.NewStore(cfg.DataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize store: %v", err)
	}
	defer func() { _ = st.Close() }()
	logger.Printf("Run database: %s/parker.db", cfg.DataDir)

	run, resumed, err := resolveRun(st, cfg, *freshFlag)
	if errors.Is(err, errRunComplete) {
		logger.Printf("Run %s for ceiling %d is already complete; use --fresh to search again", run.ID, run.Ceiling)
		return
	}
	if err != nil {
		logger.Fatalf("Failed to prepare run: %v", err)
	}
	if resumed {
		logger.Printf("Resuming run %s from %s", run.ID, run.Cursor)
	} else {
		logger.Printf("Starting run %s below ceiling %d", run.ID, run.Ceiling)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-shutdownChan:
			logger.Printf("Received signal %v, stopping search...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	auditFile, err := os.OpenFile(filepath.Join(cfg.Log.Dir, "audit.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Fatalf("Failed to open audit log: %v", err)
	}
	defer func() { _ = auditFile.Close() }()
	auditLog := audit.New(true, auditFile)

	start := time.Now()
	if err := runSearch(ctx, cfg, st, run, auditLog); err != nil {
		logger.Fatalf("Search failed: %v", err)
	}

	final, err := st.GetRun(run.ID)
	if err != nil {
		logger.Fatalf("Failed to reload run: %v", err)
	}
	solutions, err := st.ListSolutions(run.ID)
	if err != nil {
		logger.Fatalf("Failed to list solutions: %v", err)
	}
	logger.Printf("Run %s %s after %s: tested to %s, %d solution(s)",
		final.ID, final.Status, time.Since(start).Round(time.Millisecond), final.Cursor, len(solutions))
}

// resolveRun returns the run to work on: the latest resumable run for the
// configured ceiling, or a new one. resumed reports which. A paused run
// stays paused only if the control server could resume it.
func resolveRun(st *store.Store, cfg *config.Config, fresh bool) (run *store.Run, resumed bool, err error) {
	if !fresh {
		latest, err := st.LatestRun(cfg.Search.Ceiling)
		switch {
		case err == nil && latest.Resumable():
			if latest.Status == store.RunStatusPaused && canResumeRemotely(cfg) {
				return latest, true, nil
			}
			if err := st.SetStatus(latest.ID, store.RunStatusRunning); err != nil {
				return nil, false, err
			}
			latest.Status = store.RunStatusRunning
			return latest, true, nil
		case err == nil:
			return latest, false, errRunComplete
		case !errors.Is(err, store.ErrRunNotFound):
			return nil, false, err
		}
	}

	run = &store.Run{
		Ceiling:  cfg.Search.Ceiling,
		Capacity: cfg.Search.BufferCapacity,
		Mode:     cfg.Search.Mode,
	}
	if err := st.CreateRun(run); err != nil {
		return nil, false, err
	}
	return run, false, nil
}

// canResumeRemotely reports whether search_resume will be reachable
func canResumeRemotely(cfg *config.Config) bool {
	return cfg.Server.Enabled && cfg.Search.Mode != config.ModeShared
}

// runSearch checks every candidate of run from its cursor up to the ceiling,
// checkpointing on the configured schedule. It records the outcome as the
// run's status. Cancelling ctx interrupts the run without error; a run
// stopped while paused is recorded as paused.
func runSearch(ctx context.Context, cfg *config.Config, st *store.Store, run *store.Run, auditLog *audit.Logger) error {
	ctx = context.WithValue(ctx, logger.ContextKeyRunID, run.ID)
	slogger := logger.WithContext(ctx)

	chkCfg := checker.Config{
		RunID:          run.ID,
		BatchSize:      cfg.Search.BatchSize,
		Workers:        cfg.Search.Workers,
		RetryPerSecond: cfg.Search.RetryPerSecond,
		Start:          run.Cursor,
		Logger:         slogger,
	}

	deps := mcp.Deps{
		RunID:   run.ID,
		Mode:    cfg.Search.Mode,
		Ceiling: run.Ceiling,
		Version: Version,
		Store:   st,
		Audit:   auditLog,
	}

	var (
		chk       *checker.Checker
		work      func(context.Context) error
		sessionID string
	)
	switch cfg.Search.Mode {
	case config.ModeShared:
		gen, err := search.NewSharedGenerator(run.Ceiling, run.Cursor)
		if err != nil {
			return fmt.Errorf("creating shared generator: %w", err)
		}
		chk = checker.New(nil, st, chkCfg)
		work = func(ctx context.Context) error { return chk.RunShared(ctx, gen) }

	default:
		obs := producer.MultiObserver{metrics.ProducerObserver{}, producer.NewLogObserver(slogger)}
		sess, err := session.New(ctx, session.Config{
			Ceiling:   run.Ceiling,
			Capacity:  cfg.Search.BufferCapacity,
			Start:     run.Cursor,
			PollEvery: cfg.Search.PollEvery,
		}, session.WithObserver(obs), session.WithLogger(slogger))
		if err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
		defer sess.Close()
		chk = checker.New(sess, st, chkCfg)
		work = chk.Run
		deps.Session = sess
		sessionID = sess.ID()
		ctx = context.WithValue(ctx, logger.ContextKeySessionID, sessionID)

		if run.Status == store.RunStatusPaused {
			err := sess.Pause(ctx)
			auditLog.Record(audit.OpSearchPause, run.ID, sessionID, "", err)
			if err != nil {
				return fmt.Errorf("restoring pause: %w", err)
			}
			logger.InfoContext(ctx, "run restored paused, waiting for search_resume")
		}
	}
	deps.Progress = chk

	cp, err := checkpoint.New(cfg.Checkpoint.Cron, chk, st, run.ID)
	if err != nil {
		return err
	}
	deps.Checkpoints = cp
	cp.Start()
	logger.InfoContext(ctx, "run started", "mode", cfg.Search.Mode, "ceiling", run.Ceiling, "cursor", run.Cursor.String())
	auditLog.Log(&audit.Event{
		Operation: audit.OpRunStart,
		RunID:     run.ID,
		SessionID: sessionID,
		Success:   true,
		Details:   map[string]any{"mode": cfg.Search.Mode, "ceiling": run.Ceiling, "cursor": run.Cursor.String()},
	})

	serverCtx, stopServer := context.WithCancel(context.Background())
	serverDone := make(chan struct{})
	if cfg.Server.Enabled {
		srv := mcp.NewServer(deps)
		go func() {
			defer close(serverDone)
			if err := srv.Serve(serverCtx, cfg.Server.Address); err != nil {
				logger.ErrorContext(ctx, "control server error", "error", err)
			}
		}()
	} else {
		close(serverDone)
	}

	err = work(ctx)
	cp.Stop()
	stopServer()
	<-serverDone

	status := store.RunStatusCompleted
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status = store.RunStatusInterrupted
		if deps.Session != nil && deps.Session.Info().State == session.StatePaused {
			status = store.RunStatusPaused
		}
		err = nil
	default:
		status = store.RunStatusFailed
	}
	if status == store.RunStatusFailed {
		logger.ErrorContext(ctx, "run failed", "tested", chk.Tested().String(), "error", err)
	} else {
		logger.InfoContext(ctx, "run finished", "status", status, "tested", chk.Tested().String())
	}
	if serr := st.SetStatus(run.ID, status); serr != nil && err == nil {
		err = serr
	}
	auditLog.Log(&audit.Event{
		Operation: audit.OpRunFinish,
		RunID:     run.ID,
		SessionID: sessionID,
		Success:   status != store.RunStatusFailed,
		Details:   map[string]any{"status": status, "tested": chk.Tested().String()},
	})
	return err
}
