package network

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrConnClosing   = errors.New("use of closed network connection")
	ErrWriteBlocking = errors.New("write packet was blocking")
	ErrReadBlocking  = errors.New("read packet was blocking")
)

// Conn exposes a set of callbacks for the various events that occur on a
// connection. It is transport-neutral: anything satisfying net.Conn can
// carry it, which is how TCP, KCP and WebSocket all end up behind the
// same loops.
type Conn struct {
	conn              net.Conn
	config            *Config
	protocol          Protocol
	callback          ConnCallback
	extraData         interface{}
	closeOnce         sync.Once
	closeFlag         int32
	closeChan         chan struct{}
	packetSendChan    chan Packet
	packetReceiveChan chan Packet
}

// ConnCallback is an interface of methods that are used as callbacks on a
// connection
type ConnCallback interface {
	// OnConnect is called when the connection was accepted or dialed,
	// if the return value is false the connection is closed
	OnConnect(*Conn) bool

	// OnMessage is called when the connection receives a packet,
	// if the return value is false the connection is closed
	OnMessage(*Conn, Packet) bool

	// OnClose is called when the connection closed
	OnClose(*Conn)
}

// NewConn creates a new connection over the given transport.
func NewConn(conn net.Conn, config *Config, protocol Protocol, callback ConnCallback) *Conn {
	if config == nil {
		config = DefaultConfig()
	}
	return &Conn{
		conn:              conn,
		config:            config,
		protocol:          protocol,
		callback:          callback,
		closeChan:         make(chan struct{}),
		packetSendChan:    make(chan Packet, config.PacketSendChanLimit),
		packetReceiveChan: make(chan Packet, config.PacketReceiveChanLimit),
	}
}

// GetExtraData returns the extra data from the Conn
func (c *Conn) GetExtraData() interface{} {
	return c.extraData
}

// PutExtraData puts the extra data with the Conn
func (c *Conn) PutExtraData(data interface{}) {
	c.extraData = data
}

// GetRawConn returns the underlying transport connection
func (c *Conn) GetRawConn() net.Conn {
	return c.conn
}

// Close closes the connection
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closeFlag, 1)
		close(c.closeChan)
		close(c.packetSendChan)
		close(c.packetReceiveChan)
		_ = c.conn.Close()
		c.callback.OnClose(c)
	})
}

// IsClosed indicates whether the connection is closed or not
func (c *Conn) IsClosed() bool {
	return atomic.LoadInt32(&c.closeFlag) == 1
}

// AsyncWritePacket async writes a packet, this method would never block
func (c *Conn) AsyncWritePacket(p Packet, timeout time.Duration) (err error) {
	if c.IsClosed() {
		return ErrConnClosing
	}

	defer func() {
		if e := recover(); e != nil {
			err = ErrConnClosing
		}
	}()

	if timeout == 0 {
		select {
		case c.packetSendChan <- p:
			return nil
		default:
			return ErrWriteBlocking
		}
	}

	select {
	case c.packetSendChan <- p:
		return nil
	case <-c.closeChan:
		return ErrConnClosing
	case <-time.After(timeout):
		return ErrWriteBlocking
	}
}

// Do runs the connection loops. It reports the connection through
// OnConnect first; a false return closes immediately.
func (c *Conn) Do() {
	if !c.callback.OnConnect(c) {
		c.Close()
		return
	}

	go c.handleLoop()
	go c.readLoop()
	go c.writeLoop()
}

// readLoop is a loop to read packets
func (c *Conn) readLoop() {
	defer func() {
		recover()
		c.Close()
	}()

	for {
		select {
		case <-c.closeChan:
			return
		default:
		}

		if c.config.ConnReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ConnReadTimeout))
		}
		p, err := c.protocol.ReadPacket(c.conn)
		if err != nil {
			return
		}
		c.packetReceiveChan <- p
	}
}

// writeLoop is a loop to write
func (c *Conn) writeLoop() {
	defer func() {
		recover()
		c.Close()
	}()

	for {
		select {
		case <-c.closeChan:
			return
		case p := <-c.packetSendChan:
			if c.IsClosed() {
				return
			}
			if c.config.ConnWriteTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.ConnWriteTimeout))
			}
			if _, err := c.conn.Write(p.Serialize()); err != nil {
				return
			}
		}
	}
}

// handleLoop is a loop to handle OnMessage events. All packets of one
// connection are dispatched from this single goroutine, in arrival order.
func (c *Conn) handleLoop() {
	defer func() {
		recover()
		c.Close()
	}()
	for {
		select {
		case <-c.closeChan:
			return

		case p := <-c.packetReceiveChan:
			if c.IsClosed() {
				return
			}
			if !c.callback.OnMessage(c, p) {
				return
			}
		}
	}
}
