package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/log4go"

	"github.com/pixelbrawl/netcode/lockstep"
	"github.com/pixelbrawl/netcode/pkg/network"
	"github.com/pixelbrawl/netcode/protocol"
	"github.com/pixelbrawl/netcode/session"
)

var (
	addr      = flag.String("addr", "127.0.0.1:10086", "match server address")
	transport = flag.String("transport", "tcp", "transport: tcp, kcp or ws")
	token     = flag.String("token", "demo-token", "authentication token")
	tickRate  = flag.Int("tick", lockstep.DefaultTickRate, "simulation tick rate")
)

func dialer() session.Dialer {
	switch *transport {
	case "kcp":
		return func(cfg *network.Config, proto network.Protocol, cb network.ConnCallback) (*network.Conn, error) {
			return network.DialKCP(*addr, cfg, proto, cb)
		}
	case "ws":
		return func(cfg *network.Config, proto network.Protocol, cb network.ConnCallback) (*network.Conn, error) {
			return network.DialWS("ws://"+*addr+"/ws", cfg, proto, cb)
		}
	default:
		return func(cfg *network.Config, proto network.Protocol, cb network.ConnCallback) (*network.Conn, error) {
			return network.DialTCP(*addr, cfg, proto, cb)
		}
	}
}

func main() {
	flag.Parse()

	log4go.Close()
	log4go.AddFilter("stdout", log4go.DEBUG, log4go.NewConsoleLogWriter())

	sess := session.New(dialer(), nil)

	matchFound := make(chan *protocol.MatchFoundMsg, 1)
	sess.On(protocol.MsgMatchFound, func(msg protocol.Message) {
		if m, ok := msg.(*protocol.MatchFoundMsg); ok {
			matchFound <- m
		}
	})
	sess.SetDisconnectHandler(func(d *protocol.DisconnectedMsg) {
		if d.WasInMatch {
			log4go.Error("[main] connection lost during the match")
		}
	})

	if err := sess.Connect(); err != nil {
		panic(err)
	}
	if err := sess.Authenticate(*token); err != nil {
		panic(err)
	}
	for sess.State() != session.Authenticated {
		time.Sleep(time.Millisecond * 10)
	}
	if err := sess.JoinQueue(); err != nil {
		panic(err)
	}
	log4go.Info("[main] queued as %s, waiting for a match...", sess.UserID())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	select {
	case sig := <-sigs:
		log4go.Info("[main] signal: %s, quiting...", sig.String())
		sess.Disconnect()
		return
	case m := <-matchFound:
		log4go.Info("[main] match %s vs %s (elo %d), playing %s",
			m.RoomID, m.OpponentID, m.OpponentElo, m.Side)
	}

	runMatch(sess, sigs)
	sess.Disconnect()
}

// runMatch drives the delayed tick loop: capture, record, and advance
// only when the gate says both inputs for the delayed frame exist.
func runMatch(sess *session.Session, sigs chan os.Signal) {
	sync := lockstep.NewSynchronizer(sess, *tickRate)
	defer sync.Destroy()
	log4go.Info("[main] frame delay: %d frames at %dms latency", sync.FrameDelay(), sess.LatencyMs())

	ticker := time.NewTicker(time.Second / time.Duration(*tickRate))
	defer ticker.Stop()

	// frames below the delay are the pre-fill zone and never pass the
	// gate, so the ticking timeline starts at the delay
	frame := sync.FrameDelay()
	recorded := false
	for {
		select {
		case sig := <-sigs:
			log4go.Info("[main] signal: %s, leaving match", sig.String())
			return
		case <-ticker.C:
			if sess.State() != session.InMatch {
				log4go.Info("[main] match over")
				return
			}
			if !recorded {
				// demo input: walk forward, jab once a second
				actions := protocol.NewActionSet(protocol.ActionForward)
				if frame%uint32(*tickRate) == 0 {
					actions = protocol.NewActionSet(protocol.ActionForward, protocol.ActionLightPunch)
				}
				if err := sync.RecordAndSend(frame, actions); err != nil {
					log4go.Warn("[main] record frame %d: %v", frame, err)
				}
				recorded = true
			}
			if pair, ok := sync.FrameInputs(frame); ok {
				// the deterministic simulation would consume pair here
				_ = pair
				frame++
				recorded = false
			} else {
				log4go.Debug("[main] frame %d withheld, waiting for opponent", frame)
			}
		}
	}
}
