package server

import (
	"sync/atomic"
	"time"

	"github.com/alecthomas/log4go"
	"github.com/google/uuid"

	"github.com/pixelbrawl/netcode/pkg/network"
	"github.com/pixelbrawl/netcode/pkg/packet/jsonpacket"
	"github.com/pixelbrawl/netcode/protocol"
)

// verifyToken resolves a credential to a stable user identity. Real
// deployments replace this with a call to the account service; here every
// non-empty token is valid and maps to the same uuid each time, which is
// what keeps the user identifier stable across reconnects.
func verifyToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(token)).String(), true
}

// OnConnect implements network.ConnCallback.
func (s *MatchServer) OnConnect(conn *network.Conn) bool {
	count := atomic.AddInt64(&s.totalConn, 1)
	cl := &client{
		conn:     conn,
		clientID: uuid.NewString(),
		elo:      defaultElo,
		stopPing: make(chan struct{}),
	}
	conn.PutExtraData(cl)

	s.mu.Lock()
	s.clients[conn] = cl
	s.mu.Unlock()

	log4go.Debug("[router] OnConnect [%s] client=%s totalConn=%d",
		conn.GetRawConn().RemoteAddr(), cl.clientID, count)

	s.send(cl, &protocol.ConnectedMsg{ClientID: cl.clientID})
	go s.pingLoop(cl)
	return true
}

// OnMessage implements network.ConnCallback.
func (s *MatchServer) OnMessage(conn *network.Conn, p network.Packet) bool {
	pkt, ok := p.(*jsonpacket.Packet)
	if !ok {
		return false
	}
	cl, ok := conn.GetExtraData().(*client)
	if !ok {
		return false
	}
	msg, err := protocol.Unpack(pkt)
	if err != nil {
		log4go.Warn("[router] dropping malformed message id=%d from %s: %v",
			pkt.GetMessageID(), cl.clientID, err)
		return true
	}

	switch m := msg.(type) {
	case *protocol.AuthenticateMsg:
		s.handleAuthenticate(cl, m)
	case *protocol.JoinQueueMsg:
		s.handleJoinQueue(cl)
	case *protocol.LeaveQueueMsg:
		s.handleLeaveQueue(cl)
	case *protocol.InputMsg:
		s.handleInput(cl, m)
	case *protocol.PongMsg:
		s.handlePong(cl)
	default:
		log4go.Warn("[router] unexpected %s from client %s", msg.ID(), cl.clientID)
	}
	return true
}

// OnClose implements network.ConnCallback.
func (s *MatchServer) OnClose(conn *network.Conn) {
	count := atomic.AddInt64(&s.totalConn, -1)

	cl, _ := conn.GetExtraData().(*client)
	if cl == nil {
		return
	}
	close(cl.stopPing)

	s.mu.Lock()
	delete(s.clients, conn)
	s.dequeueLocked(cl)
	var opponent *client
	if cl.room != nil {
		opponent = cl.room.opponentOf(cl)
		delete(s.rooms, cl.room.id)
		cl.room = nil
		if opponent != nil {
			opponent.room = nil
		}
	}
	s.mu.Unlock()

	if opponent != nil {
		s.send(opponent, &protocol.OpponentDisconnectedMsg{})
	}
	log4go.Info("[router] OnClose client=%s totalConn=%d", cl.clientID, count)
}

func (s *MatchServer) handleAuthenticate(cl *client, m *protocol.AuthenticateMsg) {
	userID, ok := verifyToken(m.Token)
	if !ok {
		log4go.Warn("[router] rejected token from client %s", cl.clientID)
		s.send(cl, &protocol.ErrorMsg{Message: "invalid token"})
		return
	}
	s.mu.Lock()
	cl.userID = userID
	s.mu.Unlock()
	s.send(cl, &protocol.AuthenticatedMsg{UserID: userID})
}

func (s *MatchServer) handleJoinQueue(cl *client) {
	s.mu.Lock()
	if cl.userID == "" {
		s.mu.Unlock()
		s.send(cl, &protocol.ErrorMsg{Message: "authenticate before joining the queue"})
		return
	}
	if cl.room != nil {
		s.mu.Unlock()
		s.send(cl, &protocol.ErrorMsg{Message: "already in a match"})
		return
	}
	for _, q := range s.queue {
		if q == cl {
			s.mu.Unlock()
			s.send(cl, &protocol.ErrorMsg{Message: "already in the queue"})
			return
		}
	}
	s.queue = append(s.queue, cl)
	position := len(s.queue)
	elo := cl.elo
	pair := s.tryMatchLocked()
	s.mu.Unlock()

	s.send(cl, &protocol.QueueJoinedMsg{Position: position, Elo: elo})
	if pair != nil {
		s.announceMatch(pair)
	}
}

func (s *MatchServer) handleLeaveQueue(cl *client) {
	s.mu.Lock()
	s.dequeueLocked(cl)
	s.mu.Unlock()
}

func (s *MatchServer) handleInput(cl *client, m *protocol.InputMsg) {
	s.mu.Lock()
	var opponent *client
	if cl.room != nil {
		opponent = cl.room.opponentOf(cl)
	}
	s.mu.Unlock()
	if opponent == nil {
		// leftover input after the room went away, nothing to relay
		return
	}
	s.send(opponent, &protocol.OpponentInputMsg{Frame: m.Frame, Actions: m.Actions})
}

func (s *MatchServer) handlePong(cl *client) {
	s.mu.Lock()
	if cl.awaitingPong {
		cl.rttMs = int(time.Since(cl.pingSentAt) / time.Millisecond)
		cl.awaitingPong = false
	}
	s.mu.Unlock()
}

// tryMatchLocked pops the two longest-waiting clients into a fresh room.
func (s *MatchServer) tryMatchLocked() *room {
	if len(s.queue) < 2 {
		return nil
	}
	p1, p2 := s.queue[0], s.queue[1]
	s.queue = s.queue[2:]
	r := &room{id: uuid.NewString(), p1: p1, p2: p2}
	p1.room = r
	p2.room = r
	s.rooms[r.id] = r
	return r
}

func (s *MatchServer) announceMatch(r *room) {
	log4go.Info("[router] match %s: %s vs %s", r.id, r.p1.userID, r.p2.userID)
	s.send(r.p1, &protocol.MatchFoundMsg{
		RoomID:      r.id,
		OpponentID:  r.p2.userID,
		OpponentElo: r.p2.elo,
		Side:        protocol.SideP1,
	})
	s.send(r.p2, &protocol.MatchFoundMsg{
		RoomID:      r.id,
		OpponentID:  r.p1.userID,
		OpponentElo: r.p1.elo,
		Side:        protocol.SideP2,
	})
}

func (s *MatchServer) dequeueLocked(cl *client) {
	for i, q := range s.queue {
		if q == cl {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *MatchServer) send(cl *client, msg protocol.Message) {
	if err := cl.conn.AsyncWritePacket(protocol.Pack(msg), time.Millisecond); err != nil {
		cl.conn.Close()
	}
}

// pingLoop measures each client's round trip and reports the previous
// measurement on the next PING, which is where the client-side latency
// estimate comes from.
func (s *MatchServer) pingLoop(cl *client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cl.stopPing:
			return
		case <-ticker.C:
			s.mu.Lock()
			rtt := cl.rttMs
			cl.pingSentAt = time.Now()
			cl.awaitingPong = true
			s.mu.Unlock()
			s.send(cl, &protocol.PingMsg{RTTMs: rtt})
		}
	}
}
