// Package lockstep makes two independently-driven simulations execute
// identical input at identical frames by deliberately running a fixed
// number of frames behind real time.
package lockstep

import (
	"sync"

	"github.com/alecthomas/log4go"
	"github.com/pkg/errors"

	"github.com/pixelbrawl/netcode/protocol"
	"github.com/pixelbrawl/netcode/session"
)

const (
	MinFrameDelay = 2
	MaxFrameDelay = 8

	// DefaultTickRate is the simulation cadence of the fighter.
	DefaultTickRate = 60

	// retentionFrames bounds buffer memory. It exceeds the maximum delay
	// by a wide margin so pruning never removes an entry a not-yet
	// advanced frame still needs.
	retentionFrames = 60
)

var ErrDestroyed = errors.New("synchronizer has been destroyed")

// Peer is the slice of a session the synchronizer needs. *session.Session
// satisfies it.
type Peer interface {
	SendInput(frame uint32, actions protocol.ActionSet) error
	LatencyMs() int
	Side() protocol.Side
	On(id protocol.MsgID, h session.Handler)
	Off(id protocol.MsgID)
}

// FramePair is both players' declared input for one simulation frame,
// keyed by logical player identity.
type FramePair struct {
	P1 protocol.ActionSet
	P2 protocol.ActionSet
}

// Synchronizer owns the two per-frame input buffers for one live match.
// Its advancement gate is the sole backpressure mechanism: the simulation
// stalls on the slower input stream instead of guessing.
type Synchronizer struct {
	peer     Peer
	tickRate int

	mu        sync.Mutex
	delay     uint32
	local     map[uint32]protocol.ActionSet
	remote    map[uint32]protocol.ActionSet
	onDisc    bool
	destroyed bool
}

// NewSynchronizer computes the frame delay from the session's current
// latency estimate, pre-fills frames 0..delay-1 of both buffers with the
// empty action set, and starts ingesting opponent input. The delay is
// fixed for the lifetime of the match.
func NewSynchronizer(peer Peer, tickRate int) *Synchronizer {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	s := &Synchronizer{
		peer:     peer,
		tickRate: tickRate,
		delay:    computeDelay(peer.LatencyMs(), tickRate),
		local:    make(map[uint32]protocol.ActionSet),
		remote:   make(map[uint32]protocol.ActionSet),
	}

	// Without the pre-fill, frame 0 of the delayed timeline would need
	// opponent data that can never exist, deadlocking the match before
	// it starts. The first `delay` frames execute as "no input".
	for f := uint32(0); f < s.delay; f++ {
		s.local[f] = protocol.NewActionSet()
		s.remote[f] = protocol.NewActionSet()
	}

	peer.On(protocol.MsgOpponentInput, s.onOpponentInput)
	log4go.Debug("[lockstep] delay=%d frames (latency=%dms tick=%dfps)", s.delay, peer.LatencyMs(), tickRate)
	return s
}

// computeDelay converts the round-trip estimate to whole frames at the
// tick rate (rounded up), adds one frame of safety margin, and clamps to
// [MinFrameDelay, MaxFrameDelay].
func computeDelay(latencyMs, tickRate int) uint32 {
	frames := (latencyMs*tickRate+999)/1000 + 1
	if frames < MinFrameDelay {
		frames = MinFrameDelay
	}
	if frames > MaxFrameDelay {
		frames = MaxFrameDelay
	}
	return uint32(frames)
}

// FrameDelay is the number of frames the match runs behind real input.
func (s *Synchronizer) FrameDelay() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// RecordAndSend stores the local action set for a captured frame and
// transmits it to the peer, exactly once. Frames below the delay were
// pre-filled and are not real player intent, so they are never recorded
// or transmitted. A frame already recorded is immutable: a repeat call
// neither overwrites nor re-transmits.
func (s *Synchronizer) RecordAndSend(frame uint32, actions protocol.ActionSet) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if frame < s.delay {
		s.mu.Unlock()
		return nil
	}
	if _, recorded := s.local[frame]; recorded {
		s.mu.Unlock()
		return nil
	}
	s.local[frame] = actions.Clone()
	s.pruneLocked(frame)
	s.mu.Unlock()

	return s.peer.SendInput(frame, actions)
}

// CanAdvance reports whether the simulation may execute the tick for the
// caller's current real-time frame.
func (s *Synchronizer) CanAdvance(frame uint32) bool {
	_, ok := s.FrameInputs(frame)
	return ok
}

// FrameInputs answers "what did both players do" for the delayed frame
// behind the caller's current real-time frame. It returns false while
// either buffer is missing the entry — the caller must withhold the tick.
// The P1/P2 mapping is resolved from the session's assigned side at call
// time. The returned sets are copies; recorded frames stay immutable no
// matter what the caller does with them.
func (s *Synchronizer) FrameInputs(frame uint32) (*FramePair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || frame < s.delay {
		return nil, false
	}
	delayed := frame - s.delay
	local, okLocal := s.local[delayed]
	remote, okRemote := s.remote[delayed]
	if !okLocal || !okRemote {
		return nil, false
	}
	if s.peer.Side() == protocol.SideP2 {
		return &FramePair{P1: remote.Clone(), P2: local.Clone()}, true
	}
	return &FramePair{P1: local.Clone(), P2: remote.Clone()}, true
}

// SetDisconnectHandler forwards connection-loss events to the tick loop.
func (s *Synchronizer) SetDisconnectHandler(h func(*protocol.DisconnectedMsg)) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.onDisc = true
	s.mu.Unlock()

	s.peer.On(protocol.MsgDisconnected, func(msg protocol.Message) {
		if d, ok := msg.(*protocol.DisconnectedMsg); ok {
			h(d)
		}
	})
}

// Destroy releases the handler registrations and both buffers. Safe to
// call repeatedly, and before a match ever started.
func (s *Synchronizer) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	offDisc := s.onDisc
	s.local = make(map[uint32]protocol.ActionSet)
	s.remote = make(map[uint32]protocol.ActionSet)
	s.mu.Unlock()

	s.peer.Off(protocol.MsgOpponentInput)
	if offDisc {
		s.peer.Off(protocol.MsgDisconnected)
	}
}

func (s *Synchronizer) onOpponentInput(msg protocol.Message) {
	m, ok := msg.(*protocol.OpponentInputMsg)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	// keyed by the frame the sender declares; out-of-order arrival and
	// duplicate delivery both collapse to a plain keyed store
	s.remote[m.Frame] = m.Actions.Clone()
}

// pruneLocked drops consumed entries older than the retention window.
func (s *Synchronizer) pruneLocked(frame uint32) {
	if frame < retentionFrames {
		return
	}
	horizon := frame - retentionFrames
	for f := range s.local {
		if f < horizon {
			delete(s.local, f)
		}
	}
	for f := range s.remote {
		if f < horizon {
			delete(s.remote, f)
		}
	}
}
