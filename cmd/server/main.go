package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
	"github.com/ChuechTeam/CardLab-sub000/internal/config"
	"github.com/ChuechTeam/CardLab-sub000/internal/journal"
	"github.com/ChuechTeam/CardLab-sub000/internal/match"
	"github.com/ChuechTeam/CardLab-sub000/internal/scripting"
	"github.com/ChuechTeam/CardLab-sub000/internal/server"
	"github.com/ChuechTeam/CardLab-sub000/internal/storage"
	"github.com/ChuechTeam/CardLab-sub000/internal/transport/ws"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting CardLab duel server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cards, err := cardpack.Load(cfg.Packs.Paths...)
	if err != nil {
		logger.Fatal("failed to load card packs", zap.Error(err))
	}
	logger.Info("card packs loaded",
		zap.Int("packs", len(cards.Packs())),
		zap.Int("cards", len(cards.Refs())),
	)

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	for _, p := range cards.Packs() {
		if err := store.SavePack(ctx, p); err != nil {
			logger.Warn("failed to record pack", zap.String("pack", p.Name), zap.Error(err))
		}
	}

	opts := match.Options{
		Config:   cfg.Match,
		Settings: cfg.DuelSettings(),
		Cards:    cards,
		Scripts:  scripting.NewRegistry(logger),
		Store:    store,
	}
	var jrn *journal.Journal
	if cfg.Journal.Enabled {
		jrn, err = journal.New(cfg.Journal.Dir, cfg.Journal.Level, logger)
		if err != nil {
			logger.Fatal("failed to open journal", zap.Error(err))
		}
		opts.Journal = jrn
		logger.Info("mutation journal enabled", zap.String("dir", cfg.Journal.Dir))
	}

	matchMgr := match.NewManager(opts, logger)
	go matchMgr.CleanupExpired(ctx)
	logger.Info("match manager initialized",
		zap.Int("max_duels", cfg.Match.MaxDuels),
		zap.Duration("join_token_ttl", cfg.Match.JoinTokenTTL),
	)

	wsServer := ws.NewServer(cfg.Server.WebSocket, matchMgr, logger)
	wsDone := make(chan struct{})
	go func() {
		defer close(wsDone)
		if wsErr := wsServer.ListenAndServe(ctx); wsErr != nil && !errors.Is(wsErr, http.ErrServerClosed) {
			logger.Error("WebSocket server error", zap.Error(wsErr))
		}
	}()

	var grpcDone chan struct{}
	if cfg.Server.Admin.Address != "" {
		lis, err := net.Listen("tcp", cfg.Server.Admin.Address)
		if err != nil {
			logger.Fatal("failed to listen", zap.Error(err))
		}
		admin := server.NewGRPC(cfg.Server.Admin,
			server.NewAdminServer(matchMgr, store, cards, logger), logger)
		grpcDone = make(chan struct{})
		go func() {
			defer close(grpcDone)
			if serveErr := admin.Serve(ctx, lis); serveErr != nil {
				logger.Error("gRPC server error", zap.Error(serveErr))
			}
		}()
	}

	logger.Info("CardLab duel server initialized",
		zap.String("version", version),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
		zap.String("admin_address", cfg.Server.Admin.Address),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	<-wsDone
	if grpcDone != nil {
		<-grpcDone
	}

	// Ended duels save their results before the journal closes.
	matchMgr.CloseAll()
	if jrn != nil {
		if err := jrn.Close(); err != nil {
			logger.Warn("failed to close journal", zap.Error(err))
		}
	}

	logger.Info("CardLab duel server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
