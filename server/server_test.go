package server_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pixelbrawl/netcode/lockstep"
	"github.com/pixelbrawl/netcode/pkg/network"
	"github.com/pixelbrawl/netcode/pkg/packet/jsonpacket"
	"github.com/pixelbrawl/netcode/protocol"
	"github.com/pixelbrawl/netcode/server"
	"github.com/pixelbrawl/netcode/session"
)

const testTimeout = time.Second * 5

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 2)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startServer(t *testing.T) (*server.MatchServer, string) {
	t.Helper()
	srv := server.New(&server.Config{PingInterval: time.Millisecond * 50})
	ln, err := srv.ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)
	time.Sleep(20 * time.Millisecond)
	return srv, ln.Addr().String()
}

func dialerFor(addr string) session.Dialer {
	return func(cfg *network.Config, proto network.Protocol, cb network.ConnCallback) (*network.Conn, error) {
		return network.DialTCP(addr, cfg, proto, cb)
	}
}

// authedClient connects and authenticates one session against the server.
func authedClient(t *testing.T, addr, token string) *session.Session {
	t.Helper()
	s := session.New(dialerFor(addr), &session.Config{
		ReconnectDelay:       time.Millisecond * 20,
		MaxReconnectAttempts: 1,
	})
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Disconnect)
	waitFor(t, "client id", func() bool { return s.ClientID() != "" })
	if err := s.Authenticate(token); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "authenticated", func() bool { return s.State() == session.Authenticated })
	return s
}

// matchedPair queues two clients and waits until both are in the match.
func matchedPair(t *testing.T, addr string) (*session.Session, *session.Session, *protocol.MatchFoundMsg, *protocol.MatchFoundMsg) {
	t.Helper()
	s1 := authedClient(t, addr, "alice-token")
	s2 := authedClient(t, addr, "bob-token")

	found1 := make(chan *protocol.MatchFoundMsg, 1)
	found2 := make(chan *protocol.MatchFoundMsg, 1)
	s1.On(protocol.MsgMatchFound, func(msg protocol.Message) {
		found1 <- msg.(*protocol.MatchFoundMsg)
	})
	s2.On(protocol.MsgMatchFound, func(msg protocol.Message) {
		found2 <- msg.(*protocol.MatchFoundMsg)
	})

	if err := s1.JoinQueue(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "s1 queued", func() bool { return s1.State() == session.InQueue })
	if err := s2.JoinQueue(); err != nil {
		t.Fatal(err)
	}

	var m1, m2 *protocol.MatchFoundMsg
	select {
	case m1 = <-found1:
	case <-time.After(testTimeout):
		t.Fatal("s1 never saw MATCH_FOUND")
	}
	select {
	case m2 = <-found2:
	case <-time.After(testTimeout):
		t.Fatal("s2 never saw MATCH_FOUND")
	}
	waitFor(t, "both in match", func() bool {
		return s1.State() == session.InMatch && s2.State() == session.InMatch
	})
	return s1, s2, m1, m2
}

func Test_MatchmakingPairsClients(t *testing.T) {
	_, addr := startServer(t)
	s1, s2, m1, m2 := matchedPair(t, addr)

	if m1.RoomID == "" || m1.RoomID != m2.RoomID {
		t.Errorf("room ids disagree: %q vs %q", m1.RoomID, m2.RoomID)
	}
	if m1.Side == m2.Side {
		t.Errorf("both clients assigned side %s", m1.Side)
	}
	if m1.OpponentID != s2.UserID() || m2.OpponentID != s1.UserID() {
		t.Error("opponent identities do not cross-match")
	}
}

func Test_InputRoundTripThroughRelay(t *testing.T) {
	_, addr := startServer(t)
	s1, s2, m1, _ := matchedPair(t, addr)

	sync1 := lockstep.NewSynchronizer(s1, 60)
	defer sync1.Destroy()
	sync2 := lockstep.NewSynchronizer(s2, 60)
	defer sync2.Destroy()

	// no latency measured on loopback: both clamp to the minimum delay
	delay := sync1.FrameDelay()
	if delay != lockstep.MinFrameDelay || sync2.FrameDelay() != delay {
		t.Fatalf("want delay %d on both, got %d and %d",
			lockstep.MinFrameDelay, delay, sync2.FrameDelay())
	}

	jab := protocol.NewActionSet(protocol.ActionLightPunch, protocol.ActionForward)
	block := protocol.NewActionSet(protocol.ActionBlock)
	if err := sync1.RecordAndSend(delay, jab); err != nil {
		t.Fatal(err)
	}
	if err := sync2.RecordAndSend(delay, block); err != nil {
		t.Fatal(err)
	}

	gate := delay * 2 // the first frame whose delayed inputs are real
	waitFor(t, "both gates open", func() bool {
		return sync1.CanAdvance(gate) && sync2.CanAdvance(gate)
	})

	pair1, _ := sync1.FrameInputs(gate)
	pair2, _ := sync2.FrameInputs(gate)

	// identical answer on both peers, mapped through opposite sides
	var want *lockstep.FramePair
	if m1.Side == protocol.SideP1 {
		want = &lockstep.FramePair{P1: jab, P2: block}
	} else {
		want = &lockstep.FramePair{P1: block, P2: jab}
	}
	for i, pair := range []*lockstep.FramePair{pair1, pair2} {
		if !pair.P1.Equal(want.P1) || !pair.P2.Equal(want.P2) {
			t.Errorf("peer %d disagrees: want %+v, got %+v", i+1, want, pair)
		}
	}
}

func Test_OpponentDisconnectNotifiesPeer(t *testing.T) {
	_, addr := startServer(t)
	s1, s2, _, _ := matchedPair(t, addr)

	notified := make(chan struct{}, 1)
	s1.On(protocol.MsgOpponentDisconnected, func(protocol.Message) {
		notified <- struct{}{}
	})

	s2.Disconnect()

	select {
	case <-notified:
	case <-time.After(testTimeout):
		t.Fatal("s1 never saw OPPONENT_DISCONNECTED")
	}
	waitFor(t, "match abandoned", func() bool { return s1.State() == session.Authenticated })
	if s1.RoomID() != "" {
		t.Error("room assignment must be cleared")
	}
}

func Test_AuthenticateRejectsEmptyToken(t *testing.T) {
	_, addr := startServer(t)

	s := session.New(dialerFor(addr), &session.Config{
		ReconnectDelay:       time.Millisecond * 20,
		MaxReconnectAttempts: 1,
	})
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Disconnect)

	rejected := make(chan *protocol.ErrorMsg, 1)
	s.On(protocol.MsgError, func(msg protocol.Message) {
		rejected <- msg.(*protocol.ErrorMsg)
	})

	if err := s.Authenticate(""); err != nil {
		t.Fatal(err)
	}
	select {
	case <-rejected:
	case <-time.After(testTimeout):
		t.Fatal("empty token was not rejected")
	}
	if got := s.State(); got != session.Connected {
		t.Errorf("rejected auth must leave state %s, got %s", session.Connected, got)
	}
}

// rawClient speaks packets directly, free of the session state machine,
// for exercising server behavior against nonconforming traffic.
type rawClient struct {
	msgs   chan protocol.Message
	closed chan struct{}
}

func newRawClient() *rawClient {
	return &rawClient{msgs: make(chan protocol.Message, 32), closed: make(chan struct{})}
}

func (r *rawClient) OnConnect(*network.Conn) bool { return true }

func (r *rawClient) OnMessage(c *network.Conn, p network.Packet) bool {
	if msg, err := protocol.Unpack(p.(*jsonpacket.Packet)); err == nil {
		r.msgs <- msg
	}
	return true
}

func (r *rawClient) OnClose(*network.Conn) { close(r.closed) }

func (r *rawClient) await(t *testing.T, id protocol.MsgID) protocol.Message {
	t.Helper()
	for {
		select {
		case msg := <-r.msgs:
			if msg.ID() == protocol.MsgPing {
				continue
			}
			if msg.ID() != id {
				t.Fatalf("want %s, got %s", id, msg.ID())
			}
			return msg
		case <-time.After(testTimeout):
			t.Fatalf("timed out waiting for %s", id)
			return nil
		}
	}
}

func Test_DuplicateJoinQueueRejected(t *testing.T) {
	_, addr := startServer(t)

	r := newRawClient()
	c, err := network.DialTCP(addr, nil, &jsonpacket.MsgProtocol{}, r)
	if err != nil {
		t.Fatal(err)
	}
	c.Do()
	defer c.Close()

	write := func(msg protocol.Message) {
		if err := c.AsyncWritePacket(protocol.Pack(msg), time.Second); err != nil {
			t.Fatal(err)
		}
	}
	r.await(t, protocol.MsgConnected)
	write(&protocol.AuthenticateMsg{Token: "dave-token"})
	r.await(t, protocol.MsgAuthenticated)

	write(&protocol.JoinQueueMsg{})
	r.await(t, protocol.MsgQueueJoined)
	write(&protocol.JoinQueueMsg{})
	r.await(t, protocol.MsgError)

	// a double queue entry would pair the client against itself
	select {
	case msg := <-r.msgs:
		if msg.ID() == protocol.MsgMatchFound {
			t.Fatal("client was matched against itself")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_StopClosesWebsocketClients(t *testing.T) {
	srv := server.New(&server.Config{PingInterval: time.Minute})
	web := httptest.NewServer(srv.WSHandler())
	defer web.Close()

	r := newRawClient()
	c, err := network.DialWS("ws"+strings.TrimPrefix(web.URL, "http"), nil, &jsonpacket.MsgProtocol{}, r)
	if err != nil {
		t.Fatal(err)
	}
	c.Do()
	defer c.Close()
	r.await(t, protocol.MsgConnected)

	srv.Stop()

	select {
	case <-r.closed:
	case <-time.After(testTimeout):
		t.Fatal("websocket connection survived Stop")
	}
}

func Test_StableUserIDAcrossReconnect(t *testing.T) {
	_, addr := startServer(t)

	s := authedClient(t, addr, "carol-token")
	first := s.UserID()
	s.Disconnect()

	s2 := authedClient(t, addr, "carol-token")
	if s2.UserID() != first {
		t.Errorf("user id not stable for the same token: %q vs %q", first, s2.UserID())
	}
}
