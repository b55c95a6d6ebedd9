package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/canal-compras/disputa/internal/api/http"
	"github.com/canal-compras/disputa/internal/application/scheduler"
	appSession "github.com/canal-compras/disputa/internal/application/session"
	"github.com/canal-compras/disputa/internal/config"
	"github.com/canal-compras/disputa/internal/dispute/consensus"
	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/journal"
	"github.com/canal-compras/disputa/internal/domain/notification"
	"github.com/canal-compras/disputa/internal/domain/tender"
	"github.com/canal-compras/disputa/internal/infrastructure/fixture"
	"github.com/canal-compras/disputa/internal/infrastructure/keystore"
	"github.com/canal-compras/disputa/internal/infrastructure/notify"
	"github.com/canal-compras/disputa/internal/infrastructure/postgres"
	"github.com/canal-compras/disputa/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger = logger.Level(level)
	}
	logger = logger.With().Str("node_id", cfg.NodeID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// catalog and journal
	var (
		catalog     tender.Repository
		journalRepo journal.Repository
	)
	switch cfg.CatalogProvider {
	case config.CatalogFixture:
		c, err := fixture.Load(cfg.FixturePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.FixturePath).Msg("fixture error")
		}
		catalog = c
		logger.Warn().Str("path", cfg.FixturePath).Msg("catalog served from fixture, journal disabled")
	default:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration error")
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 10)
		if err != nil {
			logger.Fatal().Err(err).Msg("db error")
		}
		defer pool.Close()
		catalog = postgres.NewCatalogRepository(pool)
		journalRepo = postgres.NewJournalRepository(pool)
	}

	// signing key
	var key *keystore.NodeKey
	if cfg.NodeKeySeed != "" {
		key, err = keystore.Derive(cfg.NodeKeySeed, cfg.NodeID)
	} else {
		logger.Warn().Msg("NODE_KEY_SEED not set, using an ephemeral signing key")
		key, err = keystore.Ephemeral(cfg.NodeID)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("keystore error")
	}
	logger.Info().Str("public_key", key.PublicKeyHex()).Msg("node key loaded")

	// replica
	var (
		replica appSession.Replica
		node    *consensus.Node
	)
	if cfg.Cluster.Enabled {
		node, err = consensus.NewNode(consensus.Config{
			NodeID:         cfg.NodeID,
			RaftAddr:       cfg.Cluster.RaftAddr,
			DataDir:        cfg.Cluster.DataDir,
			Bootstrap:      cfg.Cluster.Bootstrap,
			SnapshotRetain: 2,
			ApplyTimeout:   cfg.Cluster.ApplyTimeout,
			Logger:         logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("create raft node")
		}
		defer func() {
			_ = node.Shutdown()
		}()
		if !cfg.Cluster.Bootstrap && cfg.Cluster.JoinEndpoint != "" {
			if err := joinCluster(ctx, cfg); err != nil {
				logger.Error().Err(err).Str("endpoint", cfg.Cluster.JoinEndpoint).Msg("join cluster failed")
			} else {
				logger.Info().Str("endpoint", cfg.Cluster.JoinEndpoint).Msg("joined cluster")
			}
		}
		if cfg.Cluster.StartupWaitLeader > 0 {
			waitCtx, cancel := context.WithTimeout(ctx, cfg.Cluster.StartupWaitLeader)
			if leader, err := node.WaitForLeader(waitCtx, 150*time.Millisecond); err == nil {
				logger.Info().Str("leader", leader).Msg("raft leader known")
			}
			cancel()
		}
		replica = node
	} else {
		replica = consensus.NewLocal(cfg.NodeID, nil)
	}

	// delivery
	sseHub := sse.NewHub(logger)
	sseHub.Start(ctx)

	var notifier notification.Notifier = notify.NewLogNotifier(logger)
	var webhook *notify.WebhookNotifier
	if cfg.Webhook.URL != "" {
		webhook = notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:       cfg.Webhook.URL,
			Token:     cfg.Webhook.Token,
			QueueSize: cfg.Webhook.QueueSize,
		}, logger)
		webhook.Start(ctx)
		notifier = webhook
	}

	var (
		journalWriter *appSession.JournalWriter
		flusher       scheduler.Flusher
	)
	if journalRepo != nil {
		journalWriter = appSession.NewJournalWriter(journalRepo, logger)
		flusher = journalWriter
	}
	fanout := appSession.NewFanout(sseHub, notifier, journalWriter, replica.IsAuthority, logger)
	detach := fanout.Attach(replica.Machine())
	defer detach()

	// services
	opts := []appSession.Option{}
	if journalRepo != nil {
		opts = append(opts, appSession.WithJournal(journalRepo))
	}
	sessionSvc := appSession.NewService(replica, catalog, key.PrivateKey(), appSession.Settings{
		Session: protocol.SessionSettings{
			ConfirmWindow:         cfg.Session.ConfirmWindow,
			ExtensionWindow:       cfg.Session.ExtensionWindow,
			ManifestationWindow:   cfg.Session.ManifestationWindow,
			ReasoningBusinessDays: cfg.Session.ReasoningBusinessDays,
			CounterBusinessDays:   cfg.Session.CounterBusinessDays,
			Holidays:              cfg.Session.Holidays,
		},
		RandomBase:   cfg.Session.RandomBase,
		RandomSpread: cfg.Session.RandomSpread,
	}, logger, opts...)

	// background loops
	sched, err := scheduler.New(scheduler.Config{
		TickSpec:  cfg.Scheduler.TickSpec,
		FlushSpec: cfg.Scheduler.FlushSpec,
	}, sessionSvc, flusher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler error")
	}
	sched.Start()

	// API server
	serverOpts := []httpapi.Option{httpapi.WithNode(cfg.NodeID, replica.IsAuthority)}
	if node != nil {
		serverOpts = append(serverOpts, httpapi.WithCluster(node, cfg.Cluster.JoinToken))
	}
	apiServer := httpapi.NewServer(sessionSvc, sseHub, httpapi.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer), logger, serverOpts...)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Bool("cluster", cfg.Cluster.Enabled).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	sched.Stop(ctxShutdown)
	if webhook != nil {
		webhook.Wait()
	}
}
