package calling

import (
	"sync"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// record is one platform callback.
type record struct {
	method  string
	remote  platform.RemotePeer
	callID  signaling.CallID
	event   platform.ApplicationEvent
	offer   *signaling.Offer
	answer  signaling.SendAnswer
	ice     signaling.SendIce
	hangup  signaling.SendHangup
	request platform.ConnectionRequest
}

// mockPlatform records every callback in order.
type mockPlatform struct {
	mu      sync.Mutex
	records []record

	assumeSent  bool
	sendErr     error
	createErr   error
	createNil   bool
	createPanic bool
	sessions    []*mockSession
	http        []platform.HTTPRequest
	peeks       map[uint32]platform.PeekInfo
	peekErrs    map[uint32]error

	// onEvent runs inside OnEvent, outside the mock's lock.
	onEvent func(platform.ApplicationEvent)
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		assumeSent: true,
		peeks:      make(map[uint32]platform.PeekInfo),
		peekErrs:   make(map[uint32]error),
	}
}

func (p *mockPlatform) add(r record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
}

// count returns the number of recorded callbacks.
func (p *mockPlatform) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func (p *mockPlatform) OnSendOffer(remote platform.RemotePeer, callID signaling.CallID, offer *signaling.Offer) error {
	p.add(record{method: "OnSendOffer", remote: remote, callID: callID, offer: offer})
	return p.sendErr
}

func (p *mockPlatform) OnSendAnswer(remote platform.RemotePeer, callID signaling.CallID, send signaling.SendAnswer) error {
	p.add(record{method: "OnSendAnswer", remote: remote, callID: callID, answer: send})
	return p.sendErr
}

func (p *mockPlatform) OnSendIce(remote platform.RemotePeer, callID signaling.CallID, send signaling.SendIce) error {
	p.add(record{method: "OnSendIce", remote: remote, callID: callID, ice: send})
	return p.sendErr
}

func (p *mockPlatform) OnSendHangup(remote platform.RemotePeer, callID signaling.CallID, send signaling.SendHangup) error {
	p.add(record{method: "OnSendHangup", remote: remote, callID: callID, hangup: send})
	return nil
}

func (p *mockPlatform) OnSendBusy(remote platform.RemotePeer, callID signaling.CallID) error {
	p.add(record{method: "OnSendBusy", remote: remote, callID: callID})
	return nil
}

func (p *mockPlatform) SendCallMessage(platform.UserID, []byte, platform.CallMessageUrgency) error {
	p.add(record{method: "SendCallMessage"})
	return nil
}

func (p *mockPlatform) AssumeMessagesSent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assumeSent
}

func (p *mockPlatform) SendHTTPRequest(req platform.HTTPRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.http = append(p.http, req)
	return nil
}

func (p *mockPlatform) OnStartCall(remote platform.RemotePeer, callID signaling.CallID, _ platform.CallDirection, _ signaling.CallMediaType) error {
	p.add(record{method: "OnStartCall", remote: remote, callID: callID})
	return nil
}

func (p *mockPlatform) OnEvent(remote platform.RemotePeer, event platform.ApplicationEvent) error {
	p.add(record{method: "OnEvent", remote: remote, event: event})
	p.mu.Lock()
	hook := p.onEvent
	p.mu.Unlock()
	if hook != nil {
		hook(event)
	}
	return nil
}

func (p *mockPlatform) OnCallConcluded(remote platform.RemotePeer, callID signaling.CallID) error {
	p.add(record{method: "OnCallConcluded", remote: remote, callID: callID})
	return nil
}

func (p *mockPlatform) CreateConnection(req platform.ConnectionRequest) (platform.MediaSession, error) {
	p.add(record{method: "CreateConnection", callID: req.CallID, request: req})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createPanic {
		panic("media engine exploded")
	}
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.createNil {
		return nil, nil
	}
	s := newMockSession(req)
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *mockPlatform) ConnectIncomingMedia(remote platform.RemotePeer, callID signaling.CallID, _ platform.IncomingMedia) error {
	p.add(record{method: "ConnectIncomingMedia", remote: remote, callID: callID})
	return nil
}

func (p *mockPlatform) DisconnectIncomingMedia(callID signaling.CallID) error {
	p.add(record{method: "DisconnectIncomingMedia", callID: callID})
	return nil
}

// CompareRemotes treats remotes as the same user when they are equal.
func (p *mockPlatform) CompareRemotes(a, b platform.RemotePeer) (bool, error) {
	return a == b, nil
}

func (p *mockPlatform) RequestMembershipProof(platform.ClientID) {
	p.add(record{method: "RequestMembershipProof"})
}

func (p *mockPlatform) RequestGroupMembers(platform.ClientID) {
	p.add(record{method: "RequestGroupMembers"})
}

func (p *mockPlatform) HandleConnectionStateChanged(platform.ClientID, platform.ConnectionState) {
	p.add(record{method: "HandleConnectionStateChanged"})
}

func (p *mockPlatform) HandleJoinStateChanged(platform.ClientID, platform.JoinState, *platform.DemuxID) {
	p.add(record{method: "HandleJoinStateChanged"})
}

func (p *mockPlatform) HandleRemoteDevicesChanged(platform.ClientID, []platform.RemoteDeviceState) {
	p.add(record{method: "HandleRemoteDevicesChanged"})
}

func (p *mockPlatform) HandleIncomingVideoTrack(platform.ClientID, platform.DemuxID, platform.IncomingMedia) {
	p.add(record{method: "HandleIncomingVideoTrack"})
}

func (p *mockPlatform) HandlePeekChanged(platform.ClientID, platform.PeekInfo) {
	p.add(record{method: "HandlePeekChanged"})
}

func (p *mockPlatform) HandlePeekResponse(requestID uint32, info platform.PeekInfo, err error) {
	p.mu.Lock()
	p.peeks[requestID] = info
	p.peekErrs[requestID] = err
	p.mu.Unlock()
	p.add(record{method: "HandlePeekResponse"})
}

func (p *mockPlatform) HandleEnded(platform.ClientID, platform.GroupEndReason) {
	p.add(record{method: "HandleEnded"})
}

func (p *mockPlatform) snapshot() []record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]record(nil), p.records...)
}

func (p *mockPlatform) byMethod(method string) []record {
	var out []record
	for _, r := range p.snapshot() {
		if r.method == method {
			out = append(out, r)
		}
	}
	return out
}

func (p *mockPlatform) events() []platform.ApplicationEvent {
	var out []platform.ApplicationEvent
	for _, r := range p.byMethod("OnEvent") {
		out = append(out, r.event)
	}
	return out
}

func (p *mockPlatform) hangups() []signaling.SendHangup {
	var out []signaling.SendHangup
	for _, r := range p.byMethod("OnSendHangup") {
		out = append(out, r.hangup)
	}
	return out
}

func (p *mockPlatform) lastSession() *mockSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// mockSession is a media session that records what it is asked to do.
type mockSession struct {
	mu sync.Mutex

	request       platform.ConnectionRequest
	local         platform.LocalDescription
	answeredWith  *platform.RemoteDescription
	remoteAnswers []platform.RemoteDescription
	remoteIce     []signaling.IceCandidate
	srtp          *crypto.SRTPKeys
	dataMessages  [][]byte
	maxBitrate    uint64
	outgoing      bool
	closed        int
}

func newMockSession(req platform.ConnectionRequest) *mockSession {
	return &mockSession{
		request: req,
		local: platform.LocalDescription{
			V4: &signaling.ConnectionParametersV4{IceUfrag: "localufrag", IcePwd: "localpwd"},
		},
	}
}

func (s *mockSession) CreateOffer() (platform.LocalDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, nil
}

func (s *mockSession) CreateAnswer(remote platform.RemoteDescription) (platform.LocalDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := remote
	s.answeredWith = &r
	return s.local, nil
}

func (s *mockSession) SetRemoteAnswer(remote platform.RemoteDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteAnswers = append(s.remoteAnswers, remote)
	return nil
}

func (s *mockSession) AddRemoteIceCandidates(c []signaling.IceCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteIce = append(s.remoteIce, c...)
	return nil
}

func (s *mockSession) SetSRTPKeys(keys *crypto.SRTPKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.srtp = keys
	return nil
}

func (s *mockSession) SendDataChannelMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataMessages = append(s.dataMessages, data)
	return nil
}

func (s *mockSession) SetMaxSendBitrate(bps uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxBitrate = bps
	return nil
}

func (s *mockSession) SetOutgoingMediaEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing = enabled
	return nil
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *mockSession) iceStrings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.remoteIce))
	for _, c := range s.remoteIce {
		sdp, _ := c.ToV3AndV2SDP()
		out = append(out, sdp)
	}
	return out
}

func (s *mockSession) keys() *crypto.SRTPKeys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srtp
}

func (s *mockSession) bitrate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxBitrate
}

func (s *mockSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
