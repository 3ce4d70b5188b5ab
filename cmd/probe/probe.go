package probe

import (
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-heartbeat-infra/internal/config"
	"github.com/kashguard/go-heartbeat-infra/internal/heartbeat"
)

const probeTimeout = 3 * time.Second

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Sends one Ping and waits for the Pong",
		Long: `Readiness probe: sends a single Ping under a throwaway node id to the
configured server and exits 0 once the matching Pong arrives.
The probe node id is removed again with a Leave, so it never shows up
as a died node later.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultClientConfigFromEnv()
			cfg.NodeID = "probe-" + uuid.New().String()[:8]
			return runProbe(cfg)
		},
	}
}

func runProbe(cfg config.Client) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.ServerAddress, strconv.Itoa(cfg.ServerPort)))
	if err != nil {
		return errors.Wrap(err, "failed to resolve server address")
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return errors.Wrap(err, "failed to dial server")
	}
	defer conn.Close()

	ping, err := heartbeat.Encode(&heartbeat.Message{
		Type:           heartbeat.MessageTypePing,
		NodeID:         cfg.NodeID,
		SequenceNumber: 1,
		Timestamp:      time.Now().UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode ping")
	}
	if _, err := conn.Write(ping); err != nil {
		return errors.Wrap(err, "failed to send ping")
	}

	if err := conn.SetReadDeadline(time.Now().Add(probeTimeout)); err != nil {
		return errors.Wrap(err, "failed to set read deadline")
	}

	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return errors.Wrap(err, "no pong within deadline")
		}
		msg, err := heartbeat.Decode(buf[:n])
		if err != nil {
			continue
		}
		if msg.Type == heartbeat.MessageTypePong && msg.SequenceNumber == 1 {
			break
		}
	}

	// Clean up the throwaway registration.
	leave, err := heartbeat.Encode(&heartbeat.Message{
		Type:           heartbeat.MessageTypeLeave,
		NodeID:         cfg.NodeID,
		SequenceNumber: 2,
		Timestamp:      time.Now().UnixMilli(),
	})
	if err == nil {
		_, _ = conn.Write(leave)
	}

	log.Info().Stringer("server", addr).Msg("Probe OK")
	return nil
}
