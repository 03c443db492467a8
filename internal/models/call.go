package models

import "github.com/pion/webrtc/v4"

// CallSignal is the payload shared by every call:* event. Inbound frames
// address the remote party with To; relayed frames carry From instead.
type CallSignal struct {
	To        string                     `json:"to,omitempty"`
	From      string                     `json:"from,omitempty"`
	FromName  string                     `json:"from_name,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
}
