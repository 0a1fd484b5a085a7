package network

import (
	"errors"
	"io"
	"time"
)

var (
	ErrDataLengthOutOfLimit = errors.New("the size of packet is larger than the limit")
)

// Packet is one framed message travelling in either direction.
type Packet interface {
	Serialize() []byte
}

// Protocol reads packets according to the wire framing in use.
type Protocol interface {
	ReadPacket(conn io.Reader) (Packet, error)
}

// Config bounds the per-connection channels and I/O deadlines.
type Config struct {
	PacketSendChanLimit    uint32 // the limit of packet send channel
	PacketReceiveChanLimit uint32 // the limit of packet receive channel
	ConnReadTimeout        time.Duration
	ConnWriteTimeout       time.Duration
}

// DefaultConfig suits a session kept alive by periodic server pings.
func DefaultConfig() *Config {
	return &Config{
		PacketSendChanLimit:    1024,
		PacketReceiveChanLimit: 1024,
		ConnReadTimeout:        time.Second * 60,
		ConnWriteTimeout:       time.Second * 10,
	}
}
