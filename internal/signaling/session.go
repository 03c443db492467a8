package signaling

import (
	"github.com/pion/webrtc/v4"

	"edulink/internal/relayerr"
)

// State is one connection's position in the two-party call state machine.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateInCall
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateInCall:
		return "in-call"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// validEdges rejects transitions the protocol never produces, e.g.
// answering from idle.
var validEdges = map[State][]State{
	StateIdle:    {StateCalling, StateRinging},
	StateCalling: {StateInCall, StateEnding},
	StateRinging: {StateInCall, StateEnding},
	StateInCall:  {StateEnding},
	StateEnding:  {StateIdle},
}

// session is the ephemeral per-connection negotiation state. It only exists
// while the owning connection is registered; no part of it is persisted.
type session struct {
	state        State
	remoteUserID string
	// remoteConnID pins the call to one device once the answer lands.
	remoteConnID string
	// remoteDescSet tracks whether this side has applied the remote session
	// description; candidates may not flow to it before then.
	remoteDescSet bool
	outBuf        []webrtc.ICECandidateInit
	inBuf         []webrtc.ICECandidateInit
}

func (s *session) transition(to State) error {
	for _, next := range validEdges[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return relayerr.Newf(relayerr.CodeNegotiation, "invalid call transition %s to %s", s.state, to)
}

func (s *session) engagedWith(userID string) bool {
	return s.state != StateIdle && s.remoteUserID == userID
}

func (s *session) reset() {
	s.state = StateIdle
	s.remoteUserID = ""
	s.remoteConnID = ""
	s.remoteDescSet = false
	s.outBuf = nil
	s.inBuf = nil
}
