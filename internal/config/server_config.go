package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/kashguard/go-heartbeat-infra/internal/util"
)

// Server holds the failure-detection server configuration. All values are
// sourced from the environment with validated defaults; CLI arguments may
// override individual fields before Validate is called.
type Server struct {
	// ListenPort is the UDP port heartbeats arrive on.
	ListenPort int

	// HeartbeatTimeout is how long a node may stay silent before a
	// health-check tick counts a miss against it.
	HeartbeatTimeout time.Duration

	// SuspectThreshold is the miss count at which a node becomes Suspected.
	SuspectThreshold int

	// MaxMissedHeartbeats is the miss count at which a node is declared Dead.
	MaxMissedHeartbeats int

	// HealthCheckInterval spaces the health-check ticks.
	HealthCheckInterval time.Duration

	// EventBufferSize bounds each event subscriber's queue.
	EventBufferSize int

	// MgmtListenAddress is the bind address of the management REST API.
	// Empty disables the management server.
	MgmtListenAddress string

	// RedisEndpoint enables the Redis lifecycle-event publisher when set.
	RedisEndpoint string

	LogLevel string
}

// DefaultServerConfigFromEnv returns the server configuration resolved from
// the environment.
func DefaultServerConfigFromEnv() Server {
	return Server{
		ListenPort:          util.GetEnvAsInt("HEARTBEAT_LISTEN_PORT", 5000),
		HeartbeatTimeout:    util.GetEnvAsDuration("HEARTBEAT_TIMEOUT", 3*time.Second),
		SuspectThreshold:    util.GetEnvAsInt("HEARTBEAT_SUSPECT_THRESHOLD", 2),
		MaxMissedHeartbeats: util.GetEnvAsInt("HEARTBEAT_MAX_MISSED", 3),
		HealthCheckInterval: util.GetEnvAsDuration("HEARTBEAT_HEALTH_CHECK_INTERVAL", time.Second),
		EventBufferSize:     util.GetEnvAsInt("HEARTBEAT_EVENT_BUFFER_SIZE", 128),
		MgmtListenAddress:   util.GetEnv("HEARTBEAT_MGMT_LISTEN_ADDRESS", ""),
		RedisEndpoint:       util.GetEnv("HEARTBEAT_REDIS_ENDPOINT", ""),
		LogLevel:            util.GetEnv("HEARTBEAT_LOG_LEVEL", "info"),
	}
}

// Validate enforces the configuration constraints before any socket is
// opened.
func (c Server) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return errors.Errorf("listen port %d out of range 1..65535", c.ListenPort)
	}
	if c.HeartbeatTimeout <= 0 {
		return errors.New("heartbeat timeout must be positive")
	}
	if c.HealthCheckInterval <= 0 {
		return errors.New("health check interval must be positive")
	}
	if c.SuspectThreshold < 1 {
		return errors.New("suspect threshold must be at least 1")
	}
	if c.MaxMissedHeartbeats < c.SuspectThreshold {
		return errors.Errorf("max missed heartbeats %d must not be below suspect threshold %d",
			c.MaxMissedHeartbeats, c.SuspectThreshold)
	}
	if c.EventBufferSize < 1 {
		return errors.New("event buffer size must be at least 1")
	}
	return nil
}
