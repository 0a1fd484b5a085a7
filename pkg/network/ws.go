package network

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// DialWS opens a client connection over a websocket (ws:// or wss://
// URL). Packets travel as binary messages carrying the same framing as
// the stream transports, so one codec serves every transport.
func DialWS(url string, config *Config, protocol Protocol, callback ConnCallback) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial ws %s", url)
	}
	return NewConn(NewWSStream(ws), config, protocol, callback), nil
}

// NewWSStream adapts a websocket connection to net.Conn so it can carry a
// Conn. Each Write becomes one binary message; Reads drain messages in
// order.
func NewWSStream(ws *websocket.Conn) net.Conn {
	return &wsStream{ws: ws}
}

type wsStream struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.ws.NextReader()
			if err != nil {
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if err == io.EOF {
			// current message fully drained, move to the next
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.ws.Close()
}

func (s *wsStream) LocalAddr() net.Addr {
	return s.ws.LocalAddr()
}

func (s *wsStream) RemoteAddr() net.Addr {
	return s.ws.RemoteAddr()
}

func (s *wsStream) SetDeadline(t time.Time) error {
	if err := s.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return s.ws.SetWriteDeadline(t)
}

func (s *wsStream) SetReadDeadline(t time.Time) error {
	return s.ws.SetReadDeadline(t)
}

func (s *wsStream) SetWriteDeadline(t time.Time) error {
	return s.ws.SetWriteDeadline(t)
}
