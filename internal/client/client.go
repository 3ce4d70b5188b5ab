package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-heartbeat-infra/internal/config"
	"github.com/kashguard/go-heartbeat-infra/internal/heartbeat"
)

// ErrClientClosed is returned by operations on a stopped client.
var ErrClientClosed = errors.New("client is not running")

const readBufferSize = 2048

// Client is the heartbeat emitter: it announces itself with a Join, keeps a
// periodic Ping going and leaves gracefully on stop. Connection state is
// driven purely by Pong responses; a client that never hears back keeps
// pinging until cancelled.
type Client struct {
	cfg   config.Client
	clock time2.Clock
	log   zerolog.Logger

	conn *net.UDPConn
	seq  atomic.Int64

	connected atomic.Bool
	running   atomic.Bool

	onConnected    func()
	onDisconnected func()
	onPong         func(latency time.Duration)

	wg       sync.WaitGroup
	closed   chan struct{}
	stopOnce sync.Once
}

func New(cfg config.Client, clock time2.Clock) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid client config")
	}
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Client{
		cfg:    cfg,
		clock:  clock,
		log:    log.With().Str("component", "heartbeat_client").Str("node_id", cfg.NodeID).Logger(),
		closed: make(chan struct{}),
	}, nil
}

// OnConnected registers the callback fired when the first Pong arrives.
// Must be set before Start.
func (c *Client) OnConnected(f func()) { c.onConnected = f }

// OnDisconnected registers the callback fired on Stop.
func (c *Client) OnDisconnected(f func()) { c.onDisconnected = f }

// OnPong registers the callback fired with the observed round-trip latency
// of every Pong.
func (c *Client) OnPong(f func(latency time.Duration)) { c.onPong = f }

// Connected reports whether at least one Pong has been received since Start.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Start dials the server, emits the initial Join and launches the send and
// receive loops. It returns once the loops are running; they terminate when
// ctx is cancelled or Stop is called.
func (c *Client) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.cfg.ServerAddress, strconv.Itoa(c.cfg.ServerPort)))
	if err != nil {
		return errors.Wrap(err, "failed to resolve server address")
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return errors.Wrap(err, "failed to dial server")
	}
	c.conn = conn
	c.running.Store(true)

	c.log.Info().
		Stringer("server", addr).
		Dur("interval", c.cfg.HeartbeatInterval).
		Msg("Heartbeat client started")

	if err := c.send(heartbeat.MessageTypeJoin, c.cfg.Metadata); err != nil {
		c.log.Error().Err(err).Msg("Failed to send join")
	}

	c.wg.Add(2)
	go c.sendLoop()
	go c.receiveLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.closed:
		}
	}()

	return nil
}

// Stop emits a best-effort Leave, marks the client disconnected and closes
// the socket. Safe to call more than once.
func (c *Client) Stop() error {
	if c.conn == nil {
		return ErrClientClosed
	}
	c.stopOnce.Do(func() {
		close(c.closed)

		if err := c.send(heartbeat.MessageTypeLeave, nil); err != nil {
			c.log.Warn().Err(err).Msg("Failed to send leave")
		}

		c.connected.Store(false)
		if c.onDisconnected != nil {
			c.onDisconnected()
		}

		_ = c.conn.Close()
		c.wg.Wait()
		c.running.Store(false)
		c.log.Info().Msg("Heartbeat client stopped")
	})
	return nil
}

// SendHealth emits a single Health message with caller-supplied metadata.
// Application-driven; the periodic loop never sends Health on its own.
func (c *Client) SendHealth(metadata map[string]string) error {
	if !c.running.Load() {
		return ErrClientClosed
	}
	return c.send(heartbeat.MessageTypeHealth, metadata)
}

// send builds and writes one message. Every outgoing message draws from the
// shared sequence counter regardless of type.
func (c *Client) send(msgType heartbeat.MessageType, metadata map[string]string) error {
	msg := &heartbeat.Message{
		Type:           msgType,
		NodeID:         c.cfg.NodeID,
		SequenceNumber: c.seq.Add(1),
		Timestamp:      c.clock.Now().UnixMilli(),
		Metadata:       metadata,
	}

	data, err := heartbeat.Encode(msg)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", msgType)
	}
	if _, err := c.conn.Write(data); err != nil {
		return errors.Wrapf(err, "failed to send %s", msgType)
	}
	return nil
}

func (c *Client) sendLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.send(heartbeat.MessageTypePing, nil); err != nil {
				select {
				case <-c.closed:
					return
				default:
				}
				// UDP loss is absorbed by the server's miss counter; keep
				// pinging until cancelled.
				c.log.Error().Err(err).Msg("Failed to send ping")
			}
		}
	}
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.log.Error().Err(err).Msg("Transient receive error")
				continue
			}
			c.log.Error().Err(err).Msg("Receive failed, terminating receive loop")
			return
		}

		msg, err := heartbeat.Decode(buf[:n])
		if err != nil {
			c.log.Debug().Err(err).Msg("Dropping malformed datagram")
			continue
		}
		if msg.Type != heartbeat.MessageTypePong {
			continue
		}

		c.handlePong(msg)
	}
}

func (c *Client) handlePong(msg *heartbeat.Message) {
	latency := c.clock.Now().Sub(time.UnixMilli(msg.Timestamp))

	if c.connected.CompareAndSwap(false, true) {
		c.log.Info().Msg("Connected to heartbeat server")
		if c.onConnected != nil {
			c.onConnected()
		}
	}

	c.log.Debug().
		Int64("seq", msg.SequenceNumber).
		Dur("latency", latency).
		Msg("Pong received")

	if c.onPong != nil {
		c.onPong(latency)
	}
}
