package session

import (
	"sync"
	"time"

	"github.com/alecthomas/log4go"
	"github.com/pkg/errors"

	"github.com/pixelbrawl/netcode/pkg/network"
	"github.com/pixelbrawl/netcode/pkg/packet/jsonpacket"
	"github.com/pixelbrawl/netcode/protocol"
)

const (
	DefaultReconnectDelay       = time.Second * 2
	DefaultMaxReconnectAttempts = 5

	sendTimeout = time.Millisecond
)

// Handler consumes one dispatched message. Handlers for a given session
// are invoked from a single dispatch goroutine, in arrival order, never
// concurrently with each other.
type Handler func(msg protocol.Message)

// Dialer opens the transport for one connection attempt. The session
// passes itself as the callback so transitions happen before any user
// handler observes a message.
type Dialer func(config *network.Config, proto network.Protocol, callback network.ConnCallback) (*network.Conn, error)

// Config tunes the session. The zero value is usable; defaults fill in.
type Config struct {
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	Network              *network.Config

	// OnReconnectExhausted reports the terminal failure after the last
	// automatic attempt. Optional.
	OnReconnectExhausted func(attempts int)
}

func (c *Config) withDefaults() *Config {
	out := &Config{}
	if c != nil {
		*out = *c
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = DefaultReconnectDelay
	}
	if out.MaxReconnectAttempts <= 0 {
		out.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if out.Network == nil {
		out.Network = network.DefaultConfig()
	}
	return out
}

// Session owns the single persistent message channel to the server: the
// connection state machine, typed dispatch, and the reconnection policy.
type Session struct {
	dial Dialer
	cfg  *Config

	mu        sync.Mutex
	state     State
	conn      *network.Conn
	clientID  string
	userID    string
	roomID    string
	side      protocol.Side
	latencyMs int
	token     string

	handlers map[protocol.MsgID]Handler

	// dispatchMu serializes every handler invocation, including the
	// synthetic DISCONNECTED event raised from the transport goroutines,
	// so no two handlers ever run concurrently.
	dispatchMu sync.Mutex

	reconnectTimer    *time.Timer
	reconnectAttempts int
	explicitClose     bool
}

// New creates a session in the DISCONNECTED state. The dialer is the only
// way the session reaches the network; there is no ambient transport.
func New(dial Dialer, cfg *Config) *Session {
	return &Session{
		dial:     dial,
		cfg:      cfg.withDefaults(),
		state:    Disconnected,
		handlers: make(map[protocol.MsgID]Handler),
	}
}

// Connect opens the transport. Only valid from DISCONNECTED; a concurrent
// second call is rejected, not queued.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state != Disconnected {
		defer s.mu.Unlock()
		return &StateError{Op: "connect", Required: Disconnected, Current: s.state}
	}
	s.state = Connecting
	s.explicitClose = false
	s.mu.Unlock()

	conn, err := s.dial(s.cfg.Network, &jsonpacket.MsgProtocol{}, s)
	if err != nil {
		s.mu.Lock()
		if s.state == Connecting {
			s.state = Disconnected
		}
		s.mu.Unlock()
		return errors.Wrap(err, "session: dial")
	}

	s.mu.Lock()
	if s.explicitClose || s.state != Connecting {
		// Disconnect won the race while the dial was in flight; the
		// session stays DISCONNECTED and the fresh transport is dropped
		s.mu.Unlock()
		conn.Close()
		return errors.New("session: connect aborted by disconnect")
	}
	s.conn = conn
	s.state = Connected
	s.mu.Unlock()

	conn.Do()
	log4go.Info("[session] transport open: %s", conn.GetRawConn().RemoteAddr())
	return nil
}

// Authenticate sends the token. The AUTHENTICATED transition happens when
// the server acknowledges; no timeout is applied here.
func (s *Session) Authenticate(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return &StateError{Op: "authenticate", Required: Connected, Current: s.state}
	}
	s.token = token
	return s.sendLocked(&protocol.AuthenticateMsg{Token: token})
}

// JoinQueue asks the server for matchmaking. The IN_QUEUE transition
// happens on the QUEUE_JOINED acknowledgment.
func (s *Session) JoinQueue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return &StateError{Op: "join queue", Required: Authenticated, Current: s.state}
	}
	return s.sendLocked(&protocol.JoinQueueMsg{})
}

// LeaveQueue transitions back to AUTHENTICATED immediately, without
// waiting for the server.
func (s *Session) LeaveQueue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InQueue {
		return &StateError{Op: "leave queue", Required: InQueue, Current: s.state}
	}
	if err := s.sendLocked(&protocol.LeaveQueueMsg{}); err != nil {
		return err
	}
	s.state = Authenticated
	return nil
}

// SendInput transmits one frame's action set to the opponent.
func (s *Session) SendInput(frame uint32, actions protocol.ActionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InMatch {
		return &StateError{Op: "send input", Required: InMatch, Current: s.state}
	}
	return s.sendLocked(&protocol.InputMsg{Frame: frame, Actions: actions})
}

// Disconnect closes the transport deliberately: all per-session fields
// are cleared, any pending reconnect is cancelled, and the automatic
// reconnection policy does not run. Safe to call at any time, repeatedly.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.explicitClose = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectAttempts = 0
	conn := s.conn
	s.conn = nil
	s.clientID = ""
	s.userID = ""
	s.roomID = ""
	s.side = ""
	s.token = ""
	s.latencyMs = 0
	s.state = Disconnected
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// On registers the handler for a message type. At most one handler exists
// per type; a second registration replaces the first.
func (s *Session) On(id protocol.MsgID, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[id]; exists {
		log4go.Debug("[session] replacing handler for %s", id)
	}
	s.handlers[id] = h
}

// Off removes the handler for a message type.
func (s *Session) Off(id protocol.MsgID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, id)
}

// SetDisconnectHandler registers a typed handler for the synthetic
// DISCONNECTED event.
func (s *Session) SetDisconnectHandler(h func(*protocol.DisconnectedMsg)) {
	s.On(protocol.MsgDisconnected, func(msg protocol.Message) {
		if d, ok := msg.(*protocol.DisconnectedMsg); ok {
			h(d)
		}
	})
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Side is the simulation slot assigned for the current match, empty
// outside IN_MATCH.
func (s *Session) Side() protocol.Side {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.side
}

// LatencyMs is the most recent server-measured round trip, zero until the
// first PING carries one.
func (s *Session) LatencyMs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latencyMs
}

// sendLocked writes one message. Sending with no live transport is a
// logged no-op rather than an error: per-frame sends are a hot path and
// the caller is expected to check state first.
func (s *Session) sendLocked(msg protocol.Message) error {
	if s.conn == nil {
		log4go.Warn("[session] dropping %s: transport is not connected", msg.ID())
		return nil
	}
	if err := s.conn.AsyncWritePacket(protocol.Pack(msg), sendTimeout); err != nil {
		return errors.Wrapf(err, "send %s", msg.ID())
	}
	return nil
}

// OnConnect implements network.ConnCallback.
func (s *Session) OnConnect(c *network.Conn) bool {
	log4go.Debug("[session] connection callbacks running")
	return true
}

// OnMessage implements network.ConnCallback. Internal state is updated
// before the registered handler for the same type runs, so user code
// always observes a consistent session.
func (s *Session) OnMessage(c *network.Conn, p network.Packet) bool {
	pkt, ok := p.(*jsonpacket.Packet)
	if !ok {
		log4go.Warn("[session] dropping packet of unexpected type %T", p)
		return true
	}
	msg, err := protocol.Unpack(pkt)
	if err != nil {
		// malformed messages never crash dispatch of subsequent ones
		log4go.Warn("[session] dropping malformed message id=%d: %v", pkt.GetMessageID(), err)
		return true
	}

	s.mu.Lock()
	if s.conn != c {
		// message from a connection the session no longer owns
		s.mu.Unlock()
		return false
	}

	switch m := msg.(type) {
	case *protocol.ConnectedMsg:
		s.clientID = m.ClientID

	case *protocol.AuthenticatedMsg:
		s.userID = m.UserID
		s.state = Authenticated

	case *protocol.QueueJoinedMsg:
		if s.state == InMatch {
			// MATCH_FOUND raced ahead of this acknowledgment; the late
			// ack must not regress the state. Expected, not an error.
			log4go.Debug("[session] late QUEUE_JOINED after MATCH_FOUND, ignored")
		} else {
			s.state = InQueue
		}

	case *protocol.MatchFoundMsg:
		s.roomID = m.RoomID
		s.side = m.Side
		s.state = InMatch

	case *protocol.OpponentDisconnectedMsg:
		s.roomID = ""
		s.side = ""
		s.state = Authenticated

	case *protocol.PingMsg:
		if m.RTTMs > 0 {
			s.latencyMs = m.RTTMs
		}
		_ = s.sendLocked(&protocol.PongMsg{})

	case *protocol.ErrorMsg:
		log4go.Warn("[session] server error: %s", m.Message)
	}

	h := s.handlers[msg.ID()]
	s.mu.Unlock()

	if h != nil {
		s.dispatchMu.Lock()
		h(msg)
		s.dispatchMu.Unlock()
	}
	return true
}

// OnClose implements network.ConnCallback. An unsolicited loss clears the
// connection-scoped identity, reports DISCONNECTED with the mid-match /
// mid-queue flags, and arms the reconnection policy. An explicit
// Disconnect never reaches this path with a live conn.
func (s *Session) OnClose(c *network.Conn) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	wasInMatch := s.state == InMatch
	wasInQueue := s.state == InQueue
	s.conn = nil
	s.clientID = ""
	s.roomID = ""
	s.side = ""
	s.state = Disconnected
	h := s.handlers[protocol.MsgDisconnected]
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	log4go.Info("[session] transport lost (inMatch=%v inQueue=%v)", wasInMatch, wasInQueue)
	if h != nil {
		s.dispatchMu.Lock()
		h(&protocol.DisconnectedMsg{WasInMatch: wasInMatch, WasInQueue: wasInQueue})
		s.dispatchMu.Unlock()
	}
}

func (s *Session) scheduleReconnectLocked() {
	if s.explicitClose {
		return
	}
	if s.reconnectAttempts >= s.cfg.MaxReconnectAttempts {
		attempts := s.reconnectAttempts
		s.reconnectAttempts = 0
		log4go.Error("[session] giving up after %d reconnect attempts", attempts)
		if s.cfg.OnReconnectExhausted != nil {
			go s.cfg.OnReconnectExhausted(attempts)
		}
		return
	}
	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.reconnect(attempt)
	})
}

func (s *Session) reconnect(attempt int) {
	s.mu.Lock()
	if s.explicitClose || s.state != Disconnected {
		s.mu.Unlock()
		return
	}
	token := s.token
	userID := s.userID
	s.mu.Unlock()

	log4go.Info("[session] reconnect attempt %d/%d", attempt, s.cfg.MaxReconnectAttempts)
	if err := s.Connect(); err != nil {
		log4go.Warn("[session] reconnect attempt %d failed: %v", attempt, err)
		s.mu.Lock()
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.reconnectAttempts = 0
	s.mu.Unlock()

	// an established identity is restored with the same credentials, so
	// the user identifier stays stable across the reconnect
	if userID != "" && token != "" {
		if err := s.Authenticate(token); err != nil {
			log4go.Warn("[session] re-authentication after reconnect failed: %v", err)
		}
	}
}
