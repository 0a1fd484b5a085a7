package jsonpacket_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/pixelbrawl/netcode/pkg/network"
	"github.com/pixelbrawl/netcode/pkg/packet/jsonpacket"
	"github.com/pixelbrawl/netcode/protocol"
)

func Test_Serialize(t *testing.T) {
	msg := &protocol.InputMsg{
		Frame:   42,
		Actions: protocol.NewActionSet(protocol.ActionLightPunch),
	}

	p := jsonpacket.NewPacket(uint8(protocol.MsgInput), msg)
	if p == nil {
		t.Fatal("NewPacket returned nil")
	}

	buff := p.Serialize()
	dataLen := binary.BigEndian.Uint16(buff[0:])
	if int(dataLen) != len(buff)-jsonpacket.MinPacketLen {
		t.Errorf("header length %d does not match body length %d",
			dataLen, len(buff)-jsonpacket.MinPacketLen)
	}
	if buff[jsonpacket.DataLen] != uint8(protocol.MsgInput) {
		t.Errorf("message id want %d, got %d", protocol.MsgInput, buff[jsonpacket.DataLen])
	}
}

func Test_ReadPacket(t *testing.T) {
	msg := &protocol.InputMsg{
		Frame:   7,
		Actions: protocol.NewActionSet(protocol.ActionBlock, protocol.ActionDown),
	}
	buff := jsonpacket.NewPacket(uint8(protocol.MsgInput), msg).Serialize()

	proto := &jsonpacket.MsgProtocol{}
	ret, err := proto.ReadPacket(strings.NewReader(string(buff)))
	if err != nil {
		t.Fatal(err)
	}
	packet := ret.(*jsonpacket.Packet)
	if packet.GetMessageID() != uint8(protocol.MsgInput) {
		t.Errorf("want id %d, got %d", protocol.MsgInput, packet.GetMessageID())
	}

	got := &protocol.InputMsg{}
	if err := packet.Decode(got); err != nil {
		t.Fatal(err)
	}
	if got.Frame != msg.Frame || !got.Actions.Equal(msg.Actions) {
		t.Errorf("want %+v, got %+v", msg, got)
	}
}

func Test_ReadPacketLengthGuard(t *testing.T) {
	header := make([]byte, jsonpacket.MinPacketLen)
	binary.BigEndian.PutUint16(header, uint16(jsonpacket.MaxPacketLen+1))

	proto := &jsonpacket.MsgProtocol{}
	if _, err := proto.ReadPacket(bytes.NewReader(header)); err != network.ErrDataLengthOutOfLimit {
		t.Errorf("want ErrDataLengthOutOfLimit, got %v", err)
	}
}

func Benchmark_ReadPacket(b *testing.B) {
	msg := &protocol.InputMsg{
		Frame:   7,
		Actions: protocol.NewActionSet(protocol.ActionBlock),
	}
	buf := jsonpacket.NewPacket(uint8(protocol.MsgInput), msg).Serialize()

	proto := &jsonpacket.MsgProtocol{}
	r := bytes.NewBuffer(nil)

	for i := 0; i < b.N; i++ {
		r.Write(buf)
		if _, err := proto.ReadPacket(r); nil != err {
			b.Error(err)
		}
	}
}
