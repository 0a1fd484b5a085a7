package protocol

import (
	"github.com/pixelbrawl/netcode/pkg/packet/jsonpacket"
)

// Pack frames a message for the wire.
func Pack(m Message) *jsonpacket.Packet {
	return jsonpacket.NewPacket(uint8(m.ID()), m)
}

// Unpack decodes a framed packet back into its concrete message.
func Unpack(p *jsonpacket.Packet) (Message, error) {
	return Decode(MsgID(p.GetMessageID()), p.GetData())
}
