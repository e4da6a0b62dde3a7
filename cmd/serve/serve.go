package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-threshold-engine/internal/api"
	"github.com/kashguard/go-threshold-engine/internal/config"
	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/node"
	"github.com/kashguard/go-threshold-engine/internal/mpc/storage"
	"github.com/kashguard/go-threshold-engine/internal/transport"
)

func New() *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-process signing cluster with the HTTP API on the configured participant",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(keyFile)
		},
	}

	cmd.Flags().StringVarP(&keyFile, "keys", "k", "shares.json", "Key file produced by keygen")
	return cmd
}

// runServe 把全部参与者跑在同一进程里，经内存中继互联
// 多进程部署时每个参与者换成各自的中继端点即可，协议层不变
func runServe(keyFile string) {
	cfg := config.DefaultEngineConfigFromEnv()
	logger := newLogger(cfg.Logger)

	shares, _, err := frost.LoadKeyShares(keyFile)
	if err != nil {
		logger.Fatal().Err(err).Str("keys", keyFile).Msg("Failed to load key shares")
	}

	status := newStatusStore(logger, cfg)

	nodeCfg := node.Config{
		SignTimeout: cfg.SignTimeout,
		EcdhTimeout: cfg.EcdhTimeout,
		PingTimeout: cfg.PingTimeout,
		SessionTTL:  cfg.SessionTTL,
		StatusTTL:   cfg.StatusTTL,
	}

	hub := transport.NewHub()
	var apiNode *node.Node
	for _, share := range shares {
		link := hub.Link(share.ID, logger)
		n, err := node.New(logger, share, link, status, nodeCfg)
		if err != nil {
			logger.Fatal().Err(err).Uint8("participant_id", share.ID).Msg("Failed to start node")
		}
		defer n.Close()
		if int(share.ID) == cfg.ParticipantID {
			apiNode = n
		}
	}
	if apiNode == nil {
		logger.Fatal().Int("participant_id", cfg.ParticipantID).Msg("Configured participant not present in key file")
	}

	apiNode.PingAll(context.Background())

	server := api.NewServer(logger, apiNode, status, cfg.API)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP API failed")
		}
	}()
	logger.Info().
		Int("participants", len(shares)).
		Uint8("api_participant", apiNode.Self()).
		Str("listen_address", cfg.API.ListenAddress).
		Msg("Cluster running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Warn().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down HTTP API")
	}
}

func newLogger(cfg config.Logger) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Logger.Level(level)
	if cfg.PrettyPrint {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

func newStatusStore(logger zerolog.Logger, cfg config.Engine) storage.StatusStore {
	if !cfg.Redis.Enabled {
		return storage.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, falling back to in-memory session records")
		return storage.NewMemoryStore()
	}
	return storage.NewRedisStore(client)
}
