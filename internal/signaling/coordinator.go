package signaling

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"edulink/internal/models"
	"edulink/internal/relayerr"
	"edulink/pkg/logger"
)

// Conn is one registered client connection as the coordinator sees it.
type Conn interface {
	ID() string
	UserID() string
	DisplayName() string
	Send(ev models.Event)
}

// Directory resolves a user to their active connections. The relay hub
// implements it.
type Directory interface {
	ConnsFor(userID string) []Conn
}

// Coordinator brokers the SDP offer/answer handshake and ICE candidate
// exchange between exactly two parties, keyed by connection. Candidates
// generated before the remote description is in place are buffered FIFO and
// flushed when the handshake completes.
type Coordinator struct {
	mu       sync.Mutex
	dir      Directory
	conns    map[string]Conn
	sessions map[string]*session
}

func NewCoordinator(dir Directory) *Coordinator {
	return &Coordinator{
		dir:      dir,
		conns:    make(map[string]Conn),
		sessions: make(map[string]*session),
	}
}

func (c *Coordinator) Register(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conns[conn.ID()] = conn
	c.sessions[conn.ID()] = &session{state: StateIdle}
}

// Unregister force-ends any call the vanished connection was part of; a
// session must not be left calling or in-call with no owning connection.
func (c *Coordinator) Unregister(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[conn.ID()]; ok && s.state != StateIdle {
		c.notifyRemoteLocked(conn, s, models.EventCallHangup, "peer disconnected")
	}
	delete(c.sessions, conn.ID())
	delete(c.conns, conn.ID())
}

// StateOf reports the current call state for a connection.
func (c *Coordinator) StateOf(conn Conn) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[conn.ID()]; ok {
		return s.state
	}
	return StateIdle
}

// HandleOffer starts a call: the initiating connection goes calling, and
// every idle connection of the callee starts ringing with a call:incoming.
// When none of the callee's connections is idle the caller gets an explicit
// call:busy and stays idle.
func (c *Coordinator) HandleOffer(from Conn, sig models.CallSignal) (interface{}, error) {
	if sig.To == "" || sig.SDP == nil {
		return nil, relayerr.New(relayerr.CodeValidation, "offer requires a recipient and an sdp")
	}
	if sig.To == from.UserID() {
		return nil, relayerr.New(relayerr.CodeValidation, "cannot call yourself")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[from.ID()]
	if !ok {
		return nil, relayerr.New(relayerr.CodeNegotiation, "connection not registered")
	}
	if s.state != StateIdle {
		return nil, relayerr.Newf(relayerr.CodeNegotiation, "cannot start a call while %s", s.state)
	}

	callees := c.dir.ConnsFor(sig.To)
	if len(callees) == 0 {
		return nil, relayerr.New(relayerr.CodeNegotiation, "user is not connected")
	}

	incoming := models.CallSignal{From: from.UserID(), FromName: from.DisplayName(), SDP: sig.SDP}
	rang := 0
	for _, callee := range callees {
		cs, ok := c.sessions[callee.ID()]
		if !ok || cs.state != StateIdle {
			continue
		}
		if err := cs.transition(StateRinging); err != nil {
			continue
		}
		cs.remoteUserID = from.UserID()
		c.sendLocked(callee, models.EventCallIncoming, incoming)
		rang++
	}

	if rang == 0 {
		// Every device of the callee is mid-call already.
		c.sendLocked(from, models.EventCallBusy, models.CallSignal{From: sig.To})
		return map[string]string{"status": "busy"}, nil
	}

	if err := s.transition(StateCalling); err != nil {
		return nil, err
	}
	s.remoteUserID = sig.To
	s.remoteDescSet = false
	return map[string]string{"status": "ringing"}, nil
}

// HandleAnswer completes the handshake: both sides move in-call, the answer
// is relayed to the caller, and every candidate buffered on either side
// while the descriptions were missing is flushed in original order before
// any new one can flow.
func (c *Coordinator) HandleAnswer(from Conn, sig models.CallSignal) (interface{}, error) {
	if sig.SDP == nil {
		return nil, relayerr.New(relayerr.CodeValidation, "answer requires an sdp")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[from.ID()]
	if !ok || s.state != StateRinging {
		return nil, relayerr.New(relayerr.CodeNegotiation, "no ringing call to answer")
	}
	callerID := s.remoteUserID

	var callerConn Conn
	var callerSess *session
	for _, cc := range c.dir.ConnsFor(callerID) {
		cs, ok := c.sessions[cc.ID()]
		if ok && cs.state == StateCalling && cs.remoteUserID == from.UserID() {
			callerConn, callerSess = cc, cs
			break
		}
	}
	if callerConn == nil {
		s.reset()
		return nil, relayerr.New(relayerr.CodeNegotiation, "caller is no longer available")
	}

	// The callee answered on this device; stop ringing the others.
	for _, sib := range c.dir.ConnsFor(from.UserID()) {
		if sib.ID() == from.ID() {
			continue
		}
		ss, ok := c.sessions[sib.ID()]
		if ok && ss.state == StateRinging && ss.remoteUserID == callerID {
			ss.reset()
			c.sendLocked(sib, models.EventCallCancel, models.CallSignal{From: callerID, Reason: "answered elsewhere"})
		}
	}

	if err := s.transition(StateInCall); err != nil {
		return nil, err
	}
	s.remoteDescSet = true
	s.remoteConnID = callerConn.ID()

	if err := callerSess.transition(StateInCall); err != nil {
		s.reset()
		return nil, err
	}
	callerSess.remoteDescSet = true
	callerSess.remoteConnID = from.ID()

	c.sendLocked(callerConn, models.EventCallAnswer, models.CallSignal{From: from.UserID(), SDP: sig.SDP})

	// Flush both outgoing buffers, then drain anything that was parked in
	// the incoming buffers. Everything here precedes any new candidate
	// because the whole exchange is serialized on the coordinator lock.
	c.flushOutLocked(from, s, callerConn, callerSess)
	c.flushOutLocked(callerConn, callerSess, from, s)
	c.drainInLocked(callerConn, callerSess)
	c.drainInLocked(from, s)

	return nil, nil
}

// HandleICE relays one connectivity candidate. A candidate generated before
// this side has the remote description (or before the remote party is
// known) parks in the outgoing buffer; one that cannot be applied by the
// remote side yet parks in that side's incoming buffer instead of being
// dropped.
func (c *Coordinator) HandleICE(from Conn, sig models.CallSignal) error {
	if sig.Candidate == nil {
		return relayerr.New(relayerr.CodeValidation, "missing ice candidate")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[from.ID()]
	if !ok {
		return relayerr.New(relayerr.CodeNegotiation, "connection not registered")
	}
	if s.state == StateIdle {
		// Stale candidate from a call that already tore down.
		return nil
	}

	if !s.remoteDescSet || s.remoteUserID == "" {
		s.outBuf = append(s.outBuf, *sig.Candidate)
		return nil
	}

	dst, dstSess := c.conns[s.remoteConnID], c.sessions[s.remoteConnID]
	if dst == nil || dstSess == nil {
		s.outBuf = append(s.outBuf, *sig.Candidate)
		return nil
	}
	c.deliverCandidateLocked(from, dst, dstSess, *sig.Candidate)
	return nil
}

// HandleHangup ends an established or pending call from either side.
func (c *Coordinator) HandleHangup(from Conn, sig models.CallSignal) error {
	return c.endCall(from, models.EventCallHangup, sig.Reason)
}

// HandleCancel retracts an offer the caller no longer wants answered.
func (c *Coordinator) HandleCancel(from Conn, sig models.CallSignal) error {
	return c.endCall(from, models.EventCallCancel, sig.Reason)
}

func (c *Coordinator) endCall(from Conn, evType models.EventType, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[from.ID()]
	if !ok || s.state == StateIdle {
		// Already over; terminating twice is harmless.
		return nil
	}

	c.notifyRemoteLocked(from, s, evType, reason)
	s.reset()
	return nil
}

// notifyRemoteLocked delivers a termination event to whichever connections
// of the remote party are engaged with this one, and resets their sessions.
// The event must reach the other side even when the local peer connection
// already failed.
func (c *Coordinator) notifyRemoteLocked(from Conn, s *session, evType models.EventType, reason string) {
	sig := models.CallSignal{From: from.UserID(), Reason: reason}

	if s.remoteConnID != "" {
		if rs, ok := c.sessions[s.remoteConnID]; ok && rs.engagedWith(from.UserID()) {
			rs.reset()
			if rc := c.conns[s.remoteConnID]; rc != nil {
				c.sendLocked(rc, evType, sig)
			}
		}
		return
	}

	// No pinned device yet (still ringing); tell every engaged one.
	for _, rc := range c.dir.ConnsFor(s.remoteUserID) {
		rs, ok := c.sessions[rc.ID()]
		if ok && rs.engagedWith(from.UserID()) {
			rs.reset()
			c.sendLocked(rc, evType, sig)
		}
	}
}

func (c *Coordinator) flushOutLocked(src Conn, srcSess *session, dst Conn, dstSess *session) {
	for _, cand := range srcSess.outBuf {
		c.deliverCandidateLocked(src, dst, dstSess, cand)
	}
	srcSess.outBuf = nil
}

func (c *Coordinator) drainInLocked(conn Conn, s *session) {
	if !s.remoteDescSet {
		return
	}
	buf := s.inBuf
	s.inBuf = nil
	for _, cand := range buf {
		cand := cand
		c.sendLocked(conn, models.EventCallICE, models.CallSignal{From: s.remoteUserID, Candidate: &cand})
	}
}

func (c *Coordinator) deliverCandidateLocked(src Conn, dst Conn, dstSess *session, cand webrtc.ICECandidateInit) {
	if !dstSess.remoteDescSet {
		dstSess.inBuf = append(dstSess.inBuf, cand)
		return
	}
	c.sendLocked(dst, models.EventCallICE, models.CallSignal{From: src.UserID(), Candidate: &cand})
}

func (c *Coordinator) sendLocked(conn Conn, evType models.EventType, sig models.CallSignal) {
	ev, err := models.NewEvent(evType, sig)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", evType, err)
		return
	}
	conn.Send(ev)
}
