package network

import (
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"
)

// ListenKCP starts a server accepting KCP sessions tuned for low-latency
// frame traffic.
func ListenKCP(addr string, config *Config, callback ConnCallback, protocol Protocol) (*Server, error) {
	l, err := kcp.Listen(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen kcp %s", addr)
	}

	server := NewServer(config, callback, protocol)
	server.SetListener(l)
	go server.Start(l, func(conn net.Conn, s *Server) *Conn {
		tuneKCP(conn.(*kcp.UDPSession))
		return s.NewConn(conn)
	})

	return server, nil
}

// DialKCP opens a client KCP session with the same tuning the listener
// applies, so both directions behave identically.
func DialKCP(addr string, config *Config, protocol Protocol, callback ConnCallback) (*Conn, error) {
	raw, err := kcp.Dial(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial kcp %s", addr)
	}
	if sess, ok := raw.(*kcp.UDPSession); ok {
		tuneKCP(sess)
	}
	return NewConn(raw, config, protocol, callback), nil
}

func tuneKCP(sess *kcp.UDPSession) {
	sess.SetNoDelay(1, 10, 2, 1)
	sess.SetStreamMode(true)
	sess.SetWindowSize(4096, 4096)
	sess.SetReadBuffer(4 * 1024 * 1024)
	sess.SetWriteBuffer(4 * 1024 * 1024)
	sess.SetACKNoDelay(true)
}
