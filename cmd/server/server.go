package server

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-heartbeat-infra/internal/api"
	"github.com/kashguard/go-heartbeat-infra/internal/api/router"
	"github.com/kashguard/go-heartbeat-infra/internal/config"
	"github.com/kashguard/go-heartbeat-infra/internal/event"
	"github.com/kashguard/go-heartbeat-infra/internal/metrics"
	"github.com/kashguard/go-heartbeat-infra/internal/registry"
	"github.com/kashguard/go-heartbeat-infra/internal/server"
	"github.com/kashguard/go-heartbeat-infra/internal/util"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server [port]",
		Short: "Starts the heartbeat server",
		Long: `Starts the UDP failure-detection server.
The optional positional port overrides HEARTBEAT_LISTEN_PORT.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfigFromEnv()

			if len(args) == 1 {
				port, err := strconv.Atoi(args[0])
				if err != nil {
					log.Error().Str("port", args[0]).Msg("Invalid port argument")
					return err
				}
				cfg.ListenPort = port
			}

			return runServer(cfg)
		},
	}
}

func runServer(cfg config.Server) error {
	util.ConfigureLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid server configuration")
		return err
	}

	reg := registry.New(nil)
	m := metrics.New()

	bus := event.NewBus(cfg.EventBufferSize)
	bus.SetDropHook(m.ObserveDrop)
	defer bus.Close()

	// Optional Redis fan-out of lifecycle events.
	if cfg.RedisEndpoint != "" {
		client, err := event.NewRedisClient(cfg.RedisEndpoint)
		if err != nil {
			// Event fan-out is best-effort; the detector itself must come up.
			log.Warn().Err(err).Str("endpoint", cfg.RedisEndpoint).Msg("Redis unavailable, event publishing disabled")
		} else {
			defer client.Close()
			publisher := event.NewRedisPublisher(client)
			bus.Subscribe("redis", publisher.Handle)
			log.Info().Str("endpoint", cfg.RedisEndpoint).Msg("Publishing lifecycle events to redis")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(cfg, reg, bus, m, nil)
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start heartbeat server")
		return err
	}

	var mgmt *api.Server
	if cfg.MgmtListenAddress != "" {
		mgmt = api.NewServer(cfg, reg, m, srv.Running)
		router.Init(mgmt)
		go func() {
			if err := mgmt.Start(); err != nil {
				log.Error().Err(err).Msg("Management server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		log.Warn().Msg("Shutting down")
	case <-srv.Done():
		log.Warn().Msg("Server loop terminated")
	}

	if mgmt != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := mgmt.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown management server")
		}
	}

	if err := srv.Stop(); err != nil {
		return err
	}
	return srv.Err()
}
