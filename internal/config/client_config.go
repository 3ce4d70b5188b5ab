package config

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kashguard/go-heartbeat-infra/internal/heartbeat"
	"github.com/kashguard/go-heartbeat-infra/internal/util"
)

// Client holds the heartbeat client configuration.
type Client struct {
	// NodeID identifies this client to the server. Defaults to "node-"
	// followed by a random 8-character token.
	NodeID string

	ServerAddress string
	ServerPort    int

	// HeartbeatInterval spaces the periodic Ping messages.
	HeartbeatInterval time.Duration

	// Metadata is attached to the Join message and kept by the server.
	Metadata map[string]string

	LogLevel string
}

// DefaultClientConfigFromEnv returns the client configuration resolved from
// the environment.
func DefaultClientConfigFromEnv() Client {
	return Client{
		NodeID:            util.GetEnv("HEARTBEAT_NODE_ID", RandomNodeID()),
		ServerAddress:     util.GetEnv("HEARTBEAT_SERVER_ADDRESS", "127.0.0.1"),
		ServerPort:        util.GetEnvAsInt("HEARTBEAT_SERVER_PORT", 5000),
		HeartbeatInterval: util.GetEnvAsDuration("HEARTBEAT_INTERVAL", time.Second),
		Metadata:          util.GetEnvAsStringMap("HEARTBEAT_METADATA"),
		LogLevel:          util.GetEnv("HEARTBEAT_LOG_LEVEL", "info"),
	}
}

// RandomNodeID generates a fresh node identifier: "node-" followed by 8
// random hex characters.
func RandomNodeID() string {
	return "node-" + uuid.New().String()[:8]
}

// Validate enforces the configuration constraints.
func (c Client) Validate() error {
	if c.NodeID == "" {
		return errors.New("node id must not be empty")
	}
	if len(c.NodeID) > heartbeat.MaxNodeIDLength {
		return errors.Errorf("node id exceeds %d bytes", heartbeat.MaxNodeIDLength)
	}
	if c.NodeID == heartbeat.ServerNodeID {
		return errors.Errorf("node id %q is reserved", heartbeat.ServerNodeID)
	}
	if c.ServerAddress == "" {
		return errors.New("server address must not be empty")
	}
	// The address is resolved here already (hostnames via DNS); an address
	// that does not resolve to a UDP endpoint fails validation.
	if _, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.ServerAddress, "1")); err != nil {
		return errors.Wrap(err, "server address is not parseable")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return errors.Errorf("server port %d out of range 1..65535", c.ServerPort)
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if len(c.Metadata) > heartbeat.MaxMetadataEntries {
		return errors.Errorf("metadata exceeds %d entries", heartbeat.MaxMetadataEntries)
	}
	return nil
}
