package protocol

import (
	"testing"
)

func Test_DecodeRoundTrip(t *testing.T) {
	in := &MatchFoundMsg{
		RoomID:      "room-7",
		OpponentID:  "user-9",
		OpponentElo: 1430,
		Side:        SideP2,
	}

	p := Pack(in)
	if p == nil {
		t.Fatal("Pack returned nil")
	}
	if MsgID(p.GetMessageID()) != MsgMatchFound {
		t.Errorf("message id want %v, got %v", MsgMatchFound, p.GetMessageID())
	}

	msg, err := Unpack(p)
	if err != nil {
		t.Fatal(err)
	}
	out, ok := msg.(*MatchFoundMsg)
	if !ok {
		t.Fatalf("decoded to %T, want *MatchFoundMsg", msg)
	}
	if *out != *in {
		t.Errorf("want %+v, got %+v", in, out)
	}
}

func Test_DecodeEmptyPayload(t *testing.T) {
	msg, err := Decode(MsgJoinQueue, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := msg.(*JoinQueueMsg); !ok {
		t.Errorf("decoded to %T, want *JoinQueueMsg", msg)
	}
}

func Test_DecodeUnknownID(t *testing.T) {
	if _, err := Decode(MsgID(250), []byte(`{}`)); err == nil {
		t.Error("unknown id should be an explicit error")
	}
}

func Test_DecodeSyntheticID(t *testing.T) {
	if _, err := Decode(MsgDisconnected, []byte(`{}`)); err == nil {
		t.Error("DISCONNECTED must never decode from the wire")
	}
}

func Test_DecodeMalformedPayload(t *testing.T) {
	if _, err := Decode(MsgInput, []byte(`{"frame":`)); err == nil {
		t.Error("malformed payload should be an explicit error")
	}
}
