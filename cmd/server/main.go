package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tokengate/tokengate/internal/api/http"
	"github.com/tokengate/tokengate/internal/application/bridge"
	"github.com/tokengate/tokengate/internal/application/chatrelay"
	"github.com/tokengate/tokengate/internal/application/gate"
	"github.com/tokengate/tokengate/internal/application/notification"
	"github.com/tokengate/tokengate/internal/application/permission"
	"github.com/tokengate/tokengate/internal/application/poller"
	"github.com/tokengate/tokengate/internal/application/prize"
	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/domain/claim"
	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/ledger"
	"github.com/tokengate/tokengate/internal/infrastructure/consensus"
	"github.com/tokengate/tokengate/internal/infrastructure/dedup"
	"github.com/tokengate/tokengate/internal/infrastructure/ledgerapi"
	"github.com/tokengate/tokengate/internal/infrastructure/mainthread"
	"github.com/tokengate/tokengate/internal/infrastructure/permstore"
	"github.com/tokengate/tokengate/internal/infrastructure/sse"
	"github.com/tokengate/tokengate/internal/infrastructure/world"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// A scheduled session shutdown cancels runCtx.
	runCtx, endSession := context.WithCancel(ctx)
	defer endSession()

	// stores
	processed := dedup.NewStore(cfg.DedupFile)
	if err := processed.Load(); err != nil {
		logger.Warn().Err(err).Str("path", cfg.DedupFile).Msg("failed to load processed message ids, starting empty")
	}
	perms, err := permstore.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("permission store error: %v", err)
	}

	// remote ledger
	var client ledger.Client
	if cfg.MockAPI {
		logger.Warn().Msg("using mock ledger api")
		client = ledgerapi.NewMockClient(time.Now, logger)
	} else {
		client = ledgerapi.NewClient(ledgerapi.Config{
			BaseURL: cfg.LedgerBaseURL,
			BotName: cfg.BotName,
			Secret:  cfg.APISecret,
			Timeout: cfg.HTTPTimeout,
		}, logger)
	}

	// fleet claim ledger
	var (
		fleet   claim.Ledger
		raftLdg *consensus.Ledger
	)
	if cfg.Raft.Enabled {
		raftLdg, err = consensus.NewLedger(consensus.Config{
			NodeID:     cfg.Raft.NodeID,
			RaftAddr:   cfg.Raft.Addr,
			DataDir:    cfg.Raft.DataDir,
			Bootstrap:  cfg.Raft.Bootstrap,
			ClaimLease: cfg.Raft.ClaimLease,
		}, logger)
		if err != nil {
			log.Fatalf("raft error: %v", err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		leader, err := raftLdg.WaitForLeader(waitCtx, 100*time.Millisecond)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("no claim ledger leader yet")
		} else {
			logger.Info().Str("leader", leader).Bool("is_leader", raftLdg.IsLeader()).Msg("claim ledger leader elected")
		}
		fleet = raftLdg
	}

	// session runtime
	loop := mainthread.New(256, logger)
	hub := sse.NewHub()
	wld := world.New(loop, hub, endSession, logger)
	applier := wld.Applier()

	// services
	denyList := identity.ParseList(cfg.DenyList)
	operator := identity.Identity(cfg.OperatorIdentity)
	notifySvc := notification.NewService(cfg.WebhookURL, cfg.HTTPTimeout, logger)
	permSvc := permission.NewService(perms, logger)
	policy, err := gate.NewPolicy(cfg.AdmitRule, cfg.VIPRule, cfg.AdmitThreshold, cfg.VIPThreshold)
	if err != nil {
		log.Fatalf("admission policy error: %v", err)
	}
	gateSvc := gate.NewService(gate.Deps{
		Client:      client,
		Permissions: permSvc,
		Sink:        notifySvc,
		Applier:     applier,
		Policy:      policy,
		DenyList:    denyList,
		Operator:    operator,
	}, logger)
	prizeSvc := prize.NewService(prize.Deps{
		Client:        client,
		Sink:          notifySvc,
		Applier:       applier,
		Ledger:        fleet,
		DenyList:      denyList,
		Capabilities:  permSvc,
		Presence:      wld,
		ShutdownDelay: cfg.ShutdownDelay,
	}, logger)
	chatSvc := chatrelay.NewService(client, notifySvc, logger)
	pollerSvc := poller.NewService(client, processed, applier, cfg.PollInterval, logger)

	bridgeSvc := bridge.NewService(bridge.Components{
		Dedup:       processed,
		Applier:     applier,
		Permissions: permSvc,
		Gate:        gateSvc,
		Prize:       prizeSvc,
		Chat:        chatSvc,
		Poller:      pollerSvc,
	}, logger)

	// API server
	deps := httpapi.Deps{
		Bridge:         bridgeSvc,
		Loop:           loop,
		World:          wld,
		Hub:            hub,
		AdminTokenHash: cfg.AdminTokenHash,
		RequestTimeout: cfg.HTTPTimeout,
	}
	if raftLdg != nil {
		deps.Raft = raftLdg
	}
	apiServer := httpapi.NewServer(deps, logger)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: session streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		return bridgeSvc.RunPoller(gctx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info().
		Bool("mock_api", cfg.MockAPI).
		Bool("raft", cfg.Raft.Enabled).
		Str("permission_store", cfg.PermissionStore).
		Int("processed_messages", processed.Len()).
		Msg("bridge started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("bridge stopped with error")
	}

	// graceful shutdown
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bridgeSvc.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("bridge shutdown")
	}
	if err := notifySvc.Wait(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("pending notifications abandoned")
	}
	if err := perms.Close(); err != nil {
		logger.Error().Err(err).Msg("close permission store")
	}
	if raftLdg != nil {
		if err := raftLdg.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("raft shutdown")
		}
	}
	wld.Close()
	logger.Info().Msg("bridge stopped")
}
