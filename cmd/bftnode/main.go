// Copyright 2025 Certen Protocol

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/bftcore/internal/archive"
	"github.com/certen/bftcore/internal/audit"
	"github.com/certen/bftcore/internal/chatapp"
	"github.com/certen/bftcore/internal/config"
	"github.com/certen/bftcore/internal/obslog"
	"github.com/certen/bftcore/internal/replay"
	"github.com/certen/bftcore/internal/runtime"
	"github.com/certen/bftcore/internal/server"
	"github.com/certen/bftcore/internal/snapshot"
	"github.com/certen/bftcore/internal/wal"
)

func main() {
	var (
		listenAddr   = flag.String("listen-addr", "", "HTTP listen address (overrides LISTEN_ADDR env var)")
		jurisdiction = flag.String("jurisdiction", "demo", "Genesis entity jurisdiction, used only on a brand-new data dir")
		entityID     = flag.String("entity-id", "chatroom", "Genesis entity id, used only on a brand-new data dir")
		signerIDs    = flag.String("signers", "s1,s2,s3,s4,s5", "Comma-separated signer ids simulated in this single-process demo")
		showHelp     = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	cfg := config.Load()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	log := obslog.New(cfg.LogLevel)
	log.Info("starting bftnode", "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("create data dir", "err", err)
		os.Exit(1)
	}

	walDB, err := dbm.NewGoLevelDB("wal", cfg.DataDir)
	if err != nil {
		log.Error("open wal db", "err", err)
		os.Exit(1)
	}
	snapDB, err := dbm.NewGoLevelDB("snapshots", cfg.DataDir)
	if err != nil {
		log.Error("open snapshot db", "err", err)
		os.Exit(1)
	}

	w, err := wal.Open(walDB)
	if err != nil {
		log.Error("open wal", "err", err)
		os.Exit(1)
	}
	snaps := snapshot.Open(snapDB)

	exec := chatapp.Executor()
	serverCfg := server.Config{Timeout: server.TimeoutConfig{
		BaseMS:        cfg.ProposalBaseTimeoutMS,
		Multiplier:    cfg.TimeoutMultiplier,
		RotationEpoch: cfg.TimeoutRotationEpoch,
		CapMS:         cfg.TimeoutCapMS,
	}.WithDefaults()}

	ids := strings.Split(*signerIDs, ",")
	fleet, addrs, err := runtime.NewFleet(fmt.Sprintf("%s/%s", *jurisdiction, *entityID), ids)
	if err != nil {
		log.Error("build fleet", "err", err)
		os.Exit(1)
	}
	verifier, ok := fleet.Any()
	if !ok {
		log.Error("build fleet", "err", "no signers configured")
		os.Exit(1)
	}

	log.Info("replaying write-ahead log")
	state, err := replay.Run(w, snaps, exec, verifier, serverCfg, replay.Options{Validate: true, CompactInterval: cfg.CompactInterval})
	if err != nil {
		log.Error("replay", "err", err)
		os.Exit(1)
	}

	if len(state.Replicas) == 0 {
		log.Info("no existing entity found in the WAL, bootstrapping genesis quorum", "signers", ids)
	}

	rt := runtime.New(state, exec, fleet, w, snaps, obslog.Component(log, "runtime"), runtime.Config{
		Server:               serverCfg,
		SnapshotEveryNFrames: cfg.SnapshotEveryNFrames,
	})

	ctx, cancel := context.WithCancel(context.Background())

	auditMirror, err := audit.New(ctx, audit.Config{
		Enabled:   cfg.FirestoreEnabled,
		ProjectID: cfg.FirebaseProjectID,
	}, obslog.Component(log, "audit"))
	if err != nil {
		log.Error("audit mirror init", "err", err)
		cancel()
		os.Exit(1)
	}

	archiveSink, err := archive.Open(archive.Config{DatabaseURL: cfg.ArchiveDatabaseURL}, obslog.Component(log, "archive"))
	if err != nil {
		log.Error("archive sink init", "err", err)
		cancel()
		os.Exit(1)
	}

	node := &node{
		rt:           rt,
		wal:          w,
		log:          log,
		audit:        auditMirror,
		archive:      archiveSink,
		jurisdiction: *jurisdiction,
		entityID:     *entityID,
		signerAddrs:  addrs,
	}

	if len(state.Replicas) == 0 {
		if err := node.bootstrapGenesis(cfg); err != nil {
			log.Error("bootstrap genesis", "err", err)
			cancel()
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		node.tickLoop(ctx, time.Duration(cfg.TickIntervalMS)*time.Millisecond)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", node.handleHealth)
	mux.HandleFunc("/messages", node.handleMessages)
	mux.HandleFunc("/messages/send", node.handleSendMessage)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		log.Info("http api listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down bftnode")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	if err := auditMirror.Close(); err != nil {
		log.Error("audit close", "err", err)
	}
	if err := archiveSink.Close(); err != nil {
		log.Error("archive close", "err", err)
	}
	log.Info("bftnode stopped")
}

func printHelp() {
	fmt.Println("bftnode: a single-process demo host for the hierarchical BFT replication engine.")
	fmt.Println()
	fmt.Println("Configuration is read from the environment; set BFTCORE_CONFIG_FILE to a YAML")
	fmt.Println("file to seed defaults before the environment is applied.")
	fmt.Println()
	flag.PrintDefaults()
}
