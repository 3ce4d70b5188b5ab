package client

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-heartbeat-infra/internal/client"
	"github.com/kashguard/go-heartbeat-infra/internal/config"
	"github.com/kashguard/go-heartbeat-infra/internal/util"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "client [nodeId] [serverAddress] [serverPort]",
		Short: "Starts a heartbeat client",
		Long: `Starts a heartbeat client that joins the configured server and
pings it until interrupted. Positional arguments override the ENV config.`,
		Args: cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultClientConfigFromEnv()

			if len(args) >= 1 {
				cfg.NodeID = args[0]
			}
			if len(args) >= 2 {
				cfg.ServerAddress = args[1]
			}
			if len(args) >= 3 {
				port, err := strconv.Atoi(args[2])
				if err != nil {
					log.Error().Str("port", args[2]).Msg("Invalid port argument")
					return err
				}
				cfg.ServerPort = port
			}

			return runClient(cfg)
		},
	}
}

func runClient(cfg config.Client) error {
	util.ConfigureLogger(cfg.LogLevel)

	c, err := client.New(cfg, nil)
	if err != nil {
		log.Error().Err(err).Msg("Invalid client configuration")
		return err
	}

	c.OnConnected(func() {
		log.Info().Str("node_id", cfg.NodeID).Msg("Connected")
	})
	c.OnDisconnected(func() {
		log.Info().Str("node_id", cfg.NodeID).Msg("Disconnected")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start heartbeat client")
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Warn().Msg("Shutting down")
	return c.Stop()
}
