package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-heartbeat-infra/internal/config"
	"github.com/kashguard/go-heartbeat-infra/internal/event"
	"github.com/kashguard/go-heartbeat-infra/internal/heartbeat"
	"github.com/kashguard/go-heartbeat-infra/internal/metrics"
	"github.com/kashguard/go-heartbeat-infra/internal/registry"
)

// ErrServerClosed is returned by Stop when the server was never started.
var ErrServerClosed = errors.New("server is not running")

const readBufferSize = 2048

// Server is the UDP failure-detection server. It runs two independent loops
// against the shared registry: the ingress loop consumes heartbeat datagrams
// and the health-check loop ages out silent nodes. Lifecycle transitions are
// published on the event bus.
type Server struct {
	cfg      config.Server
	registry *registry.Registry
	bus      *event.Bus
	metrics  *metrics.Service
	clock    time2.Clock
	log      zerolog.Logger

	conn *net.UDPConn

	// transitionMu couples each registry transition with its event emission,
	// so subscribers observe per-node events in the order the state machine
	// produced them even when the ingress and health-check loops race.
	transitionMu sync.Mutex

	wg       sync.WaitGroup
	closed   chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	errMu    sync.Mutex
	fatalErr error
}

func New(cfg config.Server, reg *registry.Registry, bus *event.Bus, m *metrics.Service, clock time2.Clock) *Server {
	if clock == nil {
		clock = time2.DefaultClock
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		registry: reg,
		bus:      bus,
		metrics:  m,
		clock:    clock,
		log:      log.With().Str("component", "udp_server").Logger(),
		closed:   make(chan struct{}),
	}
}

// Start binds the UDP socket and launches the ingress and health-check
// loops. It returns once the socket is bound; the loops run until ctx is
// cancelled or Stop is called. A bind failure is fatal and returned.
func (s *Server) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.ListenPort})
	if err != nil {
		return errors.Wrapf(err, "failed to bind udp port %d", s.cfg.ListenPort)
	}
	s.conn = conn
	s.running.Store(true)

	s.log.Info().
		Stringer("addr", conn.LocalAddr()).
		Dur("heartbeat_timeout", s.cfg.HeartbeatTimeout).
		Int("suspect_threshold", s.cfg.SuspectThreshold).
		Int("max_missed", s.cfg.MaxMissedHeartbeats).
		Msg("Heartbeat server listening")

	s.wg.Add(2)
	go s.ingressLoop()
	go s.healthLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.closed:
		}
	}()

	return nil
}

// Stop terminates both loops, closes the socket and waits for the loops to
// drain. Safe to call more than once.
func (s *Server) Stop() error {
	if s.conn == nil {
		return ErrServerClosed
	}
	s.stopOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		s.wg.Wait()
		s.running.Store(false)
		s.log.Info().Msg("Heartbeat server stopped")
	})
	return nil
}

// Done is closed once a stop has been initiated, whether by Stop, context
// cancellation or a fatal loop error.
func (s *Server) Done() <-chan struct{} {
	return s.closed
}

// Running reports whether the loops are active. Used as readiness signal by
// the management API.
func (s *Server) Running() bool {
	return s.running.Load()
}

// LocalAddr returns the bound UDP address.
func (s *Server) LocalAddr() *net.UDPAddr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Err returns the fatal loop error, if any, after the server stopped.
func (s *Server) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.fatalErr
}

func (s *Server) setFatal(err error) {
	s.errMu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.errMu.Unlock()
	// Stop from a fresh goroutine: Stop waits for the loops, including the
	// one reporting the error.
	go func() { _ = s.Stop() }()
}

// ingressLoop receives datagrams and dispatches them by message type. Every
// iteration is fenced so that malformed input or a transient network error
// never terminates the loop.
func (s *Server) ingressLoop() {
	defer s.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.Error().Err(err).Msg("Transient receive error")
				continue
			}
			s.log.Error().Err(err).Msg("Fatal receive error, terminating ingress loop")
			s.setFatal(errors.Wrap(err, "receive failed"))
			return
		}

		s.handleDatagram(buf[:n], raddr)
	}
}

func (s *Server) handleDatagram(data []byte, raddr *net.UDPAddr) {
	msg, err := heartbeat.Decode(data)
	if err != nil {
		s.log.Debug().Err(err).Stringer("raddr", raddr).Msg("Dropping malformed datagram")
		return
	}

	s.metrics.ObserveMessage(msg.Type)

	switch msg.Type {
	case heartbeat.MessageTypeJoin, heartbeat.MessageTypePing, heartbeat.MessageTypeHealth:
		s.handleUpdate(msg, raddr)
	case heartbeat.MessageTypeLeave:
		s.handleLeave(msg)
	case heartbeat.MessageTypePong:
		// The server does not consume its own echoes.
	}
}

// handleUpdate covers Join, Ping and Health. The previous status is captured
// by AddOrUpdate itself, atomically with the refresh, so a revival can never
// be misread as a fresh join. The registry stores the observed source
// endpoint of the datagram, not anything self-reported in the message.
func (s *Server) handleUpdate(msg *heartbeat.Message, raddr *net.UDPAddr) {
	s.transitionMu.Lock()
	res := s.registry.AddOrUpdate(msg.NodeID, raddr.IP.String(), raddr.Port, msg.Metadata)

	revived := res.PreviousStatus == registry.StatusSuspected || res.PreviousStatus == registry.StatusDead
	switch {
	case revived:
		s.publish(event.KindNodeRevived, res.Record)
	case msg.Type == heartbeat.MessageTypeJoin:
		s.publish(event.KindNodeJoined, res.Record)
	case msg.Type == heartbeat.MessageTypePing && res.WasNew:
		s.publish(event.KindNodeJoined, res.Record)
	}
	s.transitionMu.Unlock()

	if msg.Type == heartbeat.MessageTypeJoin || msg.Type == heartbeat.MessageTypePing {
		s.sendPong(msg, raddr)
	}
}

func (s *Server) handleLeave(msg *heartbeat.Message) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	rec, ok := s.registry.Remove(msg.NodeID)
	if !ok {
		return
	}
	s.publish(event.KindNodeLeft, rec)
}

// sendPong echoes the sequence number of the Ping or Join back to its
// observed source endpoint. Send failures are transient; the client absorbs
// the loss like any other dropped datagram.
func (s *Server) sendPong(msg *heartbeat.Message, raddr *net.UDPAddr) {
	pong := &heartbeat.Message{
		Type:           heartbeat.MessageTypePong,
		NodeID:         heartbeat.ServerNodeID,
		SequenceNumber: msg.SequenceNumber,
		Timestamp:      s.clock.Now().UnixMilli(),
	}

	data, err := heartbeat.Encode(pong)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode pong")
		return
	}
	if _, err := s.conn.WriteToUDP(data, raddr); err != nil {
		select {
		case <-s.closed:
		default:
			s.log.Error().Err(err).Stringer("raddr", raddr).Msg("Failed to send pong")
		}
	}
}

func (s *Server) publish(kind event.Kind, rec registry.NodeRecord) {
	s.log.Info().
		Str("kind", string(kind)).
		Str("node_id", rec.NodeID).
		Str("status", rec.Status.String()).
		Int("missed", rec.MissedHeartbeats).
		Msg("Node lifecycle event")

	s.metrics.ObserveEvent(kind)
	s.bus.Publish(event.New(kind, rec, s.clock.Now()))
}
