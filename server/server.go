// Package server is a reference match server speaking the netcode
// protocol: identity assignment, a matchmaking queue pairing players two
// at a time, and per-room input relay.
package server

import (
	"sync"
	"time"

	"github.com/pixelbrawl/netcode/pkg/network"
	"github.com/pixelbrawl/netcode/pkg/packet/jsonpacket"
)

const (
	defaultPingInterval = time.Second * 5
	defaultElo          = 1200
)

// Config tunes the match server. The zero value is usable.
type Config struct {
	PingInterval time.Duration
	Network      *network.Config
}

func (c *Config) withDefaults() *Config {
	out := &Config{}
	if c != nil {
		*out = *c
	}
	if out.PingInterval <= 0 {
		out.PingInterval = defaultPingInterval
	}
	if out.Network == nil {
		out.Network = network.DefaultConfig()
	}
	return out
}

// client is the server side of one connected session.
type client struct {
	conn     *network.Conn
	clientID string
	userID   string
	elo      int
	room     *room

	pingSentAt   time.Time
	awaitingPong bool
	rttMs        int
	stopPing     chan struct{}
}

// room pairs two matched clients until one of them leaves.
type room struct {
	id string
	p1 *client
	p2 *client
}

func (r *room) opponentOf(c *client) *client {
	if r.p1 == c {
		return r.p2
	}
	return r.p1
}

// MatchServer accepts sessions over TCP, KCP and WebSocket and drives the
// matchmaking protocol.
type MatchServer struct {
	cfg *Config

	mu      sync.Mutex
	clients map[*network.Conn]*client
	queue   []*client
	rooms   map[string]*room

	listeners []*network.Server
	totalConn int64
}

// New creates a match server.
func New(cfg *Config) *MatchServer {
	return &MatchServer{
		cfg:     cfg.withDefaults(),
		clients: make(map[*network.Conn]*client),
		rooms:   make(map[string]*room),
	}
}

// ListenTCP accepts plain TCP sessions on addr.
func (s *MatchServer) ListenTCP(addr string) (*network.Server, error) {
	srv, err := network.ListenTCP(addr, s.cfg.Network, s, &jsonpacket.MsgProtocol{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, srv)
	s.mu.Unlock()
	return srv, nil
}

// ListenKCP accepts KCP sessions on addr.
func (s *MatchServer) ListenKCP(addr string) (*network.Server, error) {
	srv, err := network.ListenKCP(addr, s.cfg.Network, s, &jsonpacket.MsgProtocol{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, srv)
	s.mu.Unlock()
	return srv, nil
}

// Stop closes every listener and live connection. Connections that no
// listener tracks, such as upgraded websockets, are closed through the
// client registry.
func (s *MatchServer) Stop() {
	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	conns := make([]*network.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, l := range listeners {
		l.Stop()
	}
	for _, conn := range conns {
		conn.Close()
	}
}
