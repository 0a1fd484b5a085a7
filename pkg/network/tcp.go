package network

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

const dialTimeout = time.Second * 5

// ListenTCP starts a server accepting plain TCP connections.
func ListenTCP(addr string, config *Config, callback ConnCallback, protocol Protocol) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen tcp %s", addr)
	}

	server := NewServer(config, callback, protocol)
	server.SetListener(l)
	go server.Start(l, func(conn net.Conn, s *Server) *Conn {
		return s.NewConn(conn)
	})

	return server, nil
}

// DialTCP opens a client connection. The returned Conn is not running
// yet; the caller starts it with Do once its state is ready for
// callbacks.
func DialTCP(addr string, config *Config, protocol Protocol, callback ConnCallback) (*Conn, error) {
	raw, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dial tcp %s", addr)
	}
	return NewConn(raw, config, protocol, callback), nil
}
