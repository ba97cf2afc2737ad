// Package gateway implements the per-shard connection state machine and the
// shard manager coordinating identify pacing across shards.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luciancaetano/gatewire"
	"github.com/luciancaetano/gatewire/internal/protocol"
)

const (
	helloTimeout = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var (
	errReconnectRequested = errors.New("server requested reconnect")
	errSessionInvalidated = errors.New("server invalidated session")
)

// Config configures a single gateway session.
type Config struct {
	Token      string
	ShardID    int
	ShardCount int
	Intents    int
	GatewayURL string
	Properties protocol.IdentifyProperties

	Dialer  *websocket.Dialer
	Pacer   *Pacer
	Backoff *Backoff
	Logger  *zap.Logger

	Events    *Hub[gatewire.Event]
	Lifecycle *Hub[gatewire.LifecycleEvent]
}

// Session owns exactly one gateway connection: it drives the handshake,
// heartbeats, resume and reconnect autonomously and never blocks its owner
// while connected. Dispatch payloads are published to the events hub, state
// transitions to the lifecycle hub.
type Session struct {
	id      int
	total   int
	token   string
	intents int

	gatewayURL string
	props      protocol.IdentifyProperties

	dialer    *websocket.Dialer
	pacer     *Pacer
	backoff   *Backoff
	logger    *zap.Logger
	events    *Hub[gatewire.Event]
	lifecycle *Hub[gatewire.LifecycleEvent]

	// mu guards the session fields and the active connection.
	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	resumeURL string
	opened    bool
	cancel    context.CancelFunc
	done      chan struct{}

	wmu sync.Mutex // serializes writes to the connection

	status     atomic.Int32
	sequence   atomic.Int64
	lastBeat   atomic.Int64 // unix nanos of the last heartbeat sent
	lastAck    atomic.Int64 // unix nanos of the last acknowledgment
	latency    atomic.Int64 // nanos between beat and ack
	missedAcks atomic.Int32
}

// NewSession builds a session; it does not connect until Open is called.
func NewSession(cfg Config) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NewPacer(1, 5*time.Second)
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Events == nil {
		cfg.Events = NewHub[gatewire.Event]()
	}
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = NewHub[gatewire.LifecycleEvent]()
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 1
	}
	if cfg.Properties == (protocol.IdentifyProperties{}) {
		cfg.Properties = protocol.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "gatewire",
			Device:  "gatewire",
		}
	}

	s := &Session{
		id:         cfg.ShardID,
		total:      cfg.ShardCount,
		token:      cfg.Token,
		intents:    cfg.Intents,
		gatewayURL: cfg.GatewayURL,
		props:      cfg.Properties,
		dialer:     cfg.Dialer,
		pacer:      cfg.Pacer,
		backoff:    cfg.Backoff,
		logger:     cfg.Logger.With(zap.Int("shard_id", cfg.ShardID)),
		events:     cfg.Events,
		lifecycle:  cfg.Lifecycle,
	}
	s.status.Store(int32(gatewire.StatusIdle))
	return s
}

// ID returns the shard index.
func (s *Session) ID() int { return s.id }

// Status returns the current lifecycle state.
func (s *Session) Status() gatewire.ShardStatus {
	return gatewire.ShardStatus(s.status.Load())
}

// Latency returns the last measured heartbeat round trip.
func (s *Session) Latency() time.Duration {
	return time.Duration(s.latency.Load())
}

// SessionID returns the active session identifier, or "".
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Sequence returns the last-seen event ordinal.
func (s *Session) Sequence() int64 {
	return s.sequence.Load()
}

// Open establishes the first connection synchronously: it dials, waits for
// the server hello and sends the identify (or resume) handshake. Once Open
// returns nil the session maintains itself in the background, reconnecting
// as needed, until Close is called or a non-recoverable close is received.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return gatewire.ErrAlreadyOpen
	}
	s.opened = true
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	conn, interval, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.opened = false
		s.mu.Unlock()
		cancel()
		close(done)
		s.publishStatus(gatewire.StatusDisconnected, 0, err)
		return err
	}

	go s.run(runCtx, conn, interval)
	return nil
}

// Close shuts the session down permanently: it cancels the reconnect loop,
// sends a close frame and waits for the background goroutines to exit.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = false
	cancel := s.cancel
	conn := s.conn
	done := s.done
	s.mu.Unlock()

	cancel()
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, message, deadline)
		_ = conn.Close()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run serves the current connection and reconnects until the session is
// closed or hits a non-recoverable close code.
func (s *Session) run(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	defer close(s.done)

	for {
		var err error
		if conn == nil {
			conn, interval, err = s.connect(ctx)
		}
		if err == nil && conn != nil {
			err = s.serve(ctx, conn, interval)
			conn = nil
		}
		if ctx.Err() != nil {
			s.publishStatus(gatewire.StatusDisconnected, 0, nil)
			return
		}

		action, code := s.recovery(err)
		switch action {
		case protocol.ActionIdentify:
			s.clearSession()
		case protocol.ActionFatal:
			if protocol.FatalCloseIsAuth(code) {
				err = fmt.Errorf("%w: %v", gatewire.ErrAuthenticationFailed, err)
			}
			s.logger.Error("halting shard on non-recoverable close",
				zap.Int("close_code", code), zap.Error(err))
			s.publishStatus(gatewire.StatusDisconnected, code, err)
			return
		}

		s.publishStatus(gatewire.StatusReconnecting, code, nil)
		delay := s.backoff.Next()
		s.logger.Info("scheduling reconnect",
			zap.Duration("delay", delay),
			zap.Int("close_code", code),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.publishStatus(gatewire.StatusDisconnected, 0, nil)
			return
		}
		conn = nil
	}
}

// connect dials the gateway, consumes the hello frame and sends the
// handshake. It returns the live connection and the heartbeat interval.
func (s *Session) connect(ctx context.Context) (*websocket.Conn, time.Duration, error) {
	s.publishStatus(gatewire.StatusConnecting, 0, nil)

	resuming := s.canResume()
	url := s.gatewayURL
	if resuming {
		if ru := s.getResumeURL(); ru != "" {
			url = ru
		}
	}

	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("dial gateway %s: %w", url, err)
	}
	conn.SetReadLimit(protocol.MaxFrameSize)

	hello, err := s.readHello(conn)
	if err != nil {
		conn.Close()
		return nil, 0, err
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		conn.Close()
		return nil, 0, fmt.Errorf("hello carried invalid heartbeat interval %d", hello.HeartbeatInterval)
	}

	if resuming {
		s.publishStatus(gatewire.StatusResuming, 0, nil)
		s.mu.Lock()
		payload := protocol.Resume{
			Token:     s.token,
			SessionID: s.sessionID,
			Sequence:  s.sequence.Load(),
		}
		s.mu.Unlock()
		if err := s.writeFrame(conn, protocol.OpResume, payload); err != nil {
			conn.Close()
			return nil, 0, fmt.Errorf("send resume: %w", err)
		}
	} else {
		// Identify slots are pacer-gated; resumes are not.
		if err := s.pacer.Acquire(ctx); err != nil {
			conn.Close()
			return nil, 0, err
		}
		s.publishStatus(gatewire.StatusIdentifying, 0, nil)
		err := s.writeFrame(conn, protocol.OpIdentify, protocol.Identify{
			Token:      s.token,
			Properties: s.props,
			Intents:    s.intents,
			Shard:      [2]int{s.id, s.total},
		})
		s.pacer.Release()
		if err != nil {
			conn.Close()
			return nil, 0, fmt.Errorf("send identify: %w", err)
		}
	}

	return conn, interval, nil
}

func (s *Session) readHello(conn *websocket.Conn) (*protocol.Hello, error) {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	frame, err := protocol.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if frame.Op != protocol.OpHello {
		return nil, fmt.Errorf("expected hello, got %s", frame.Op)
	}

	var hello protocol.Hello
	if err := json.Unmarshal(frame.Data, &hello); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}
	return &hello, nil
}

// serve pumps frames off the connection until it dies. The returned error
// is classified by the caller to pick the recovery action.
func (s *Session) serve(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	s.lastBeat.Store(0)
	s.lastAck.Store(0)
	s.missedAcks.Store(0)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeatLoop(hbCtx, conn, interval)

	// unblock the blocking read when the owner shuts the session down
	stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopWatch()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			// malformed frame: log and drop, keep the connection
			s.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if err := s.handleFrame(conn, frame); err != nil {
			return err
		}
	}
}

func (s *Session) handleFrame(conn *websocket.Conn, frame *protocol.Frame) error {
	switch frame.Op {
	case protocol.OpDispatch:
		s.handleDispatch(frame)
		return nil

	case protocol.OpHeartbeat:
		// server requested an immediate beat
		return s.sendHeartbeat(conn)

	case protocol.OpHeartbeatACK:
		now := time.Now().UnixNano()
		s.lastAck.Store(now)
		s.missedAcks.Store(0)
		if beat := s.lastBeat.Load(); beat > 0 {
			s.latency.Store(now - beat)
		}
		return nil

	case protocol.OpReconnect:
		return errReconnectRequested

	case protocol.OpInvalidSession:
		if !protocol.ParseInvalidSession(frame.Data) {
			s.clearSession()
		}
		return errSessionInvalidated

	default:
		s.logger.Warn("dropping frame with unexpected opcode", zap.Stringer("op", frame.Op))
		return nil
	}
}

func (s *Session) handleDispatch(frame *protocol.Frame) {
	if frame.Sequence != nil {
		seq := *frame.Sequence
		cur := s.sequence.Load()
		switch {
		case cur != 0 && seq <= cur:
			s.logger.Warn("dropping out-of-order dispatch",
				zap.Int64("seq", seq), zap.Int64("current", cur))
			return
		case cur != 0 && seq > cur+1:
			s.logger.Warn("sequence gap in dispatch stream",
				zap.Int64("seq", seq), zap.Int64("current", cur))
		}
		s.sequence.Store(seq)
	}

	switch frame.Type {
	case gatewire.EventReady:
		var ready protocol.Ready
		if err := json.Unmarshal(frame.Data, &ready); err != nil {
			s.logger.Warn("dropping malformed READY payload", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.sessionID = ready.SessionID
		s.resumeURL = ready.ResumeURL
		s.mu.Unlock()
		s.backoff.Reset()
		s.publishStatus(gatewire.StatusReady, 0, nil)

	case gatewire.EventResumed:
		s.backoff.Reset()
		s.publishStatus(gatewire.StatusReady, 0, nil)
	}

	ev := gatewire.Event{ShardID: s.id, Type: frame.Type, Data: frame.Data}
	if frame.Sequence != nil {
		ev.Sequence = *frame.Sequence
	}
	s.events.Publish(ev)
}

// heartbeatLoop beats at the server-specified interval, with the first beat
// jittered inside the interval to spread shards apart. Two consecutive
// unacknowledged beats drop the connection so the read loop reconnects.
func (s *Session) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	timer := time.NewTimer(time.Duration(rand.Float64() * float64(interval)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if s.lastAck.Load() < s.lastBeat.Load() {
			if s.missedAcks.Add(1) >= 2 {
				s.logger.Warn("two heartbeats unacknowledged, dropping connection")
				conn.Close()
				return
			}
		}
		if err := s.sendHeartbeat(conn); err != nil {
			return
		}
		timer.Reset(interval)
	}
}

func (s *Session) sendHeartbeat(conn *websocket.Conn) error {
	s.lastBeat.Store(time.Now().UnixNano())
	return s.writeFrame(conn, protocol.OpHeartbeat, s.sequence.Load())
}

func (s *Session) writeFrame(conn *websocket.Conn, op protocol.Opcode, payload any) error {
	data, err := protocol.Encode(op, payload)
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) recovery(err error) (protocol.CloseAction, int) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return protocol.ClassifyClose(ce.Code), ce.Code
	}
	return protocol.ActionResume, 0
}

func (s *Session) canResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != "" && s.sequence.Load() > 0
}

func (s *Session) getResumeURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeURL
}

func (s *Session) clearSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.resumeURL = ""
	s.mu.Unlock()
	s.sequence.Store(0)
}

func (s *Session) publishStatus(status gatewire.ShardStatus, closeCode int, err error) {
	s.status.Store(int32(status))
	s.logger.Debug("shard status change", zap.Stringer("status", status))
	s.lifecycle.Publish(gatewire.LifecycleEvent{
		ShardID:   s.id,
		Status:    status,
		CloseCode: closeCode,
		Err:       err,
	})
}
