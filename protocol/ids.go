package protocol

import "fmt"

// MsgID discriminates every message on the wire. The id travels as a
// single byte in the packet header (see pkg/packet/jsonpacket).
type MsgID uint8

const (
	// client -> server
	MsgAuthenticate MsgID = 1
	MsgJoinQueue    MsgID = 2
	MsgLeaveQueue   MsgID = 3
	MsgInput        MsgID = 4
	MsgPong         MsgID = 5

	// server -> client
	MsgConnected            MsgID = 20
	MsgAuthenticated        MsgID = 21
	MsgQueueJoined          MsgID = 22
	MsgError                MsgID = 23
	MsgMatchFound           MsgID = 24
	MsgOpponentInput        MsgID = 25
	MsgPing                 MsgID = 26
	MsgOpponentDisconnected MsgID = 27

	// MsgDisconnected is a synthetic event delivered to registered
	// handlers only. It never travels on the wire.
	MsgDisconnected MsgID = 100
)

func (id MsgID) String() string {
	switch id {
	case MsgAuthenticate:
		return "AUTHENTICATE"
	case MsgJoinQueue:
		return "JOIN_QUEUE"
	case MsgLeaveQueue:
		return "LEAVE_QUEUE"
	case MsgInput:
		return "INPUT"
	case MsgPong:
		return "PONG"
	case MsgConnected:
		return "CONNECTED"
	case MsgAuthenticated:
		return "AUTHENTICATED"
	case MsgQueueJoined:
		return "QUEUE_JOINED"
	case MsgError:
		return "ERROR"
	case MsgMatchFound:
		return "MATCH_FOUND"
	case MsgOpponentInput:
		return "OPPONENT_INPUT"
	case MsgPing:
		return "PING"
	case MsgOpponentDisconnected:
		return "OPPONENT_DISCONNECTED"
	case MsgDisconnected:
		return "DISCONNECTED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(id))
}

// Side identifies which of the two fixed simulation slots a player
// occupies for the lifetime of a match.
type Side string

const (
	SideP1 Side = "p1"
	SideP2 Side = "p2"
)
