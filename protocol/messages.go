package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Message is the closed union of everything that can be dispatched to a
// session handler. Every concrete message lives in this file; Decode is
// the single place a wire discriminator is interpreted, so an unknown id
// is an explicit error rather than an implicit no-op.
type Message interface {
	ID() MsgID
}

// client -> server

type AuthenticateMsg struct {
	Token string `json:"token"`
}

type JoinQueueMsg struct{}

type LeaveQueueMsg struct{}

type InputMsg struct {
	Frame   uint32    `json:"frame"`
	Actions ActionSet `json:"actions"`
}

type PongMsg struct{}

// server -> client

type ConnectedMsg struct {
	ClientID string `json:"clientId"`
}

type AuthenticatedMsg struct {
	UserID string `json:"userId"`
}

type QueueJoinedMsg struct {
	Position int `json:"position"`
	Elo      int `json:"elo"`
}

type ErrorMsg struct {
	Message string `json:"message"`
}

type MatchFoundMsg struct {
	RoomID      string `json:"roomId"`
	OpponentID  string `json:"opponentId"`
	OpponentElo int    `json:"opponentElo"`
	Side        Side   `json:"playerSide"`
}

type OpponentInputMsg struct {
	Frame   uint32    `json:"frame"`
	Actions ActionSet `json:"actions"`
}

// PingMsg carries the round trip the server measured on its previous
// PING/PONG exchange, zero until the first measurement completes.
type PingMsg struct {
	RTTMs int `json:"rtt"`
}

type OpponentDisconnectedMsg struct{}

// DisconnectedMsg is synthesized locally when the transport is lost. The
// flags tell the consumer what the session was doing at the moment of
// loss.
type DisconnectedMsg struct {
	WasInMatch bool `json:"wasInMatch"`
	WasInQueue bool `json:"wasInQueue"`
}

func (*AuthenticateMsg) ID() MsgID         { return MsgAuthenticate }
func (*JoinQueueMsg) ID() MsgID            { return MsgJoinQueue }
func (*LeaveQueueMsg) ID() MsgID           { return MsgLeaveQueue }
func (*InputMsg) ID() MsgID                { return MsgInput }
func (*PongMsg) ID() MsgID                 { return MsgPong }
func (*ConnectedMsg) ID() MsgID            { return MsgConnected }
func (*AuthenticatedMsg) ID() MsgID        { return MsgAuthenticated }
func (*QueueJoinedMsg) ID() MsgID          { return MsgQueueJoined }
func (*ErrorMsg) ID() MsgID                { return MsgError }
func (*MatchFoundMsg) ID() MsgID           { return MsgMatchFound }
func (*OpponentInputMsg) ID() MsgID        { return MsgOpponentInput }
func (*PingMsg) ID() MsgID                 { return MsgPing }
func (*OpponentDisconnectedMsg) ID() MsgID { return MsgOpponentDisconnected }
func (*DisconnectedMsg) ID() MsgID         { return MsgDisconnected }

// Decode parses the payload for the given discriminator into its concrete
// message type.
func Decode(id MsgID, data []byte) (Message, error) {
	var msg Message
	switch id {
	case MsgAuthenticate:
		msg = &AuthenticateMsg{}
	case MsgJoinQueue:
		msg = &JoinQueueMsg{}
	case MsgLeaveQueue:
		msg = &LeaveQueueMsg{}
	case MsgInput:
		msg = &InputMsg{}
	case MsgPong:
		msg = &PongMsg{}
	case MsgConnected:
		msg = &ConnectedMsg{}
	case MsgAuthenticated:
		msg = &AuthenticatedMsg{}
	case MsgQueueJoined:
		msg = &QueueJoinedMsg{}
	case MsgError:
		msg = &ErrorMsg{}
	case MsgMatchFound:
		msg = &MatchFoundMsg{}
	case MsgOpponentInput:
		msg = &OpponentInputMsg{}
	case MsgPing:
		msg = &PingMsg{}
	case MsgOpponentDisconnected:
		msg = &OpponentDisconnectedMsg{}
	case MsgDisconnected:
		return nil, errors.New("DISCONNECTED is a local event, not a wire message")
	default:
		return nil, errors.Errorf("unknown message id %d", uint8(id))
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, errors.Wrapf(err, "decode %s payload", id)
		}
	}
	return msg, nil
}
