package network

import (
	"net"
	"sync"
)

// Server accepts transport connections and runs a Conn for each.
type Server struct {
	config    *Config         // server configuration
	callback  ConnCallback    // message callbacks in connection
	protocol  Protocol        // customize packet protocol
	exitChan  chan struct{}   // notify all goroutines to shut down
	waitGroup *sync.WaitGroup // wait for all goroutines
	closeOnce sync.Once
	listener  net.Listener

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer creates a new server
func NewServer(config *Config, callback ConnCallback, protocol Protocol) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		config:    config,
		callback:  callback,
		protocol:  protocol,
		exitChan:  make(chan struct{}),
		waitGroup: &sync.WaitGroup{},
		conns:     make(map[*Conn]struct{}),
	}
}

// NewConn wraps an already-established transport connection (for example
// an upgraded websocket) so it shares the server's config and callbacks.
func (s *Server) NewConn(raw net.Conn) *Conn {
	c := NewConn(raw, s.config, s.protocol, &trackedCallback{s: s, inner: s.callback})
	s.track(c)
	return c
}

// ConnectionCreator is a creator to create connection
type ConnectionCreator func(net.Conn, *Server) *Conn

// Start accepts connections until Stop. The listener must already be
// attached with SetListener so Addr works before the accept loop runs.
func (s *Server) Start(listener net.Listener, creator ConnectionCreator) {
	s.waitGroup.Add(1)
	defer s.waitGroup.Done()

	for {
		select {
		case <-s.exitChan:
			return
		default:
		}
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.exitChan:
				return
			default:
				continue
			}
		}

		s.waitGroup.Add(1)
		go func() {
			creator(conn, s).Do()
			s.waitGroup.Done()
		}()
	}
}

// SetListener attaches the accept socket. Called before Start.
func (s *Server) SetListener(l net.Listener) {
	s.listener = l
}

// Addr returns the listen address once a listener is attached.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops service and closes every live connection.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		close(s.exitChan)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Lock()
		conns := make([]*Conn, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	s.waitGroup.Wait()
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// trackedCallback keeps the server's connection registry in step with the
// user callback.
type trackedCallback struct {
	s     *Server
	inner ConnCallback
}

func (t *trackedCallback) OnConnect(c *Conn) bool {
	return t.inner.OnConnect(c)
}

func (t *trackedCallback) OnMessage(c *Conn, p Packet) bool {
	return t.inner.OnMessage(c, p)
}

func (t *trackedCallback) OnClose(c *Conn) {
	t.s.untrack(c)
	t.inner.OnClose(c)
}
