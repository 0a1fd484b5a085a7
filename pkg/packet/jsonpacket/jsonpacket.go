package jsonpacket

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/alecthomas/log4go"

	"github.com/pixelbrawl/netcode/pkg/network"
)

const (
	DataLen      = 2
	MessageIDLen = 1

	MinPacketLen = DataLen + MessageIDLen
	MaxPacketLen = 8 << 10
)

/*

|--totalDataLen(uint16)--|--msgID(uint8)--|--------------data--------------|
|-------------2----------|--------1-------|----------(totalDataLen)--------|

*/

// Packet is one framed message: a single-byte discriminator followed by a
// JSON payload.
type Packet struct {
	id   uint8
	data []byte
}

func (p *Packet) GetMessageID() uint8 {
	return p.id
}

func (p *Packet) GetData() []byte {
	return p.data
}

func (p *Packet) Serialize() []byte {
	buff := make([]byte, MinPacketLen, MinPacketLen+len(p.data))

	binary.BigEndian.PutUint16(buff, uint16(len(p.data)))
	buff[DataLen] = p.id

	return append(buff, p.data...)
}

// Decode unmarshals the JSON payload into v.
func (p *Packet) Decode(v interface{}) error {
	return json.Unmarshal(p.data, v)
}

// NewPacket builds a packet from raw bytes or any JSON-marshalable value.
func NewPacket(id uint8, msg interface{}) *Packet {
	p := &Packet{
		id: id,
	}

	switch v := msg.(type) {
	case []byte:
		p.data = v
	case nil:
	default:
		data, err := json.Marshal(v)
		if err != nil {
			log4go.Error("[NewPacket] json marshal msg: %d error: %v", id, err)
			return nil
		}
		p.data = data
	}

	return p
}

// MsgProtocol reads framed packets off a stream.
type MsgProtocol struct {
}

func (p *MsgProtocol) ReadPacket(r io.Reader) (network.Packet, error) {
	buff := make([]byte, MinPacketLen)

	// read header
	if _, err := io.ReadFull(r, buff); err != nil {
		return nil, err
	}
	dataLen := binary.BigEndian.Uint16(buff)
	if dataLen > MaxPacketLen {
		return nil, network.ErrDataLengthOutOfLimit
	}

	msg := &Packet{
		id: buff[DataLen],
	}

	// read body
	if dataLen > 0 {
		msg.data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, msg.data); err != nil {
			return nil, err
		}
	}

	return msg, nil
}
