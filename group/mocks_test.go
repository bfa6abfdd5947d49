package group

import (
	"errors"
	"sync"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// joinChange is one HandleJoinStateChanged call.
type joinChange struct {
	state   platform.JoinState
	demuxID *platform.DemuxID
}

// callMessage is one SendCallMessage call.
type callMessage struct {
	recipient platform.UserID
	message   []byte
}

// mockPlatform records the group callbacks. One-to-one callbacks are
// never expected from a group client.
type mockPlatform struct {
	mu sync.Mutex

	createErr    error
	session      *mockSession
	requests     []platform.HTTPRequest
	proofReqs    int
	memberReqs   int
	connStates   []platform.ConnectionState
	joinChanges  []joinChange
	rosters      [][]platform.RemoteDeviceState
	peeks        []platform.PeekInfo
	ended        []platform.GroupEndReason
	callMessages []callMessage
	videoTracks  []platform.DemuxID
}

func (p *mockPlatform) OnSendOffer(platform.RemotePeer, signaling.CallID, *signaling.Offer) error {
	return errors.New("unexpected")
}

func (p *mockPlatform) OnSendAnswer(platform.RemotePeer, signaling.CallID, signaling.SendAnswer) error {
	return errors.New("unexpected")
}

func (p *mockPlatform) OnSendIce(platform.RemotePeer, signaling.CallID, signaling.SendIce) error {
	return errors.New("unexpected")
}

func (p *mockPlatform) OnSendHangup(platform.RemotePeer, signaling.CallID, signaling.SendHangup) error {
	return errors.New("unexpected")
}

func (p *mockPlatform) OnSendBusy(platform.RemotePeer, signaling.CallID) error {
	return errors.New("unexpected")
}

func (p *mockPlatform) SendCallMessage(recipient platform.UserID, message []byte, _ platform.CallMessageUrgency) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callMessages = append(p.callMessages, callMessage{recipient: recipient, message: append([]byte(nil), message...)})
	return nil
}

func (p *mockPlatform) AssumeMessagesSent() bool { return true }

func (p *mockPlatform) SendHTTPRequest(req platform.HTTPRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return nil
}

func (p *mockPlatform) OnStartCall(platform.RemotePeer, signaling.CallID, platform.CallDirection, signaling.CallMediaType) error {
	return nil
}

func (p *mockPlatform) OnEvent(platform.RemotePeer, platform.ApplicationEvent) error { return nil }

func (p *mockPlatform) OnCallConcluded(platform.RemotePeer, signaling.CallID) error { return nil }

func (p *mockPlatform) CreateConnection(req platform.ConnectionRequest) (platform.MediaSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.session = &mockSession{request: req}
	return p.session, nil
}

func (p *mockPlatform) ConnectIncomingMedia(platform.RemotePeer, signaling.CallID, platform.IncomingMedia) error {
	return nil
}

func (p *mockPlatform) DisconnectIncomingMedia(signaling.CallID) error { return nil }

func (p *mockPlatform) CompareRemotes(a, b platform.RemotePeer) (bool, error) { return a == b, nil }

func (p *mockPlatform) RequestMembershipProof(platform.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proofReqs++
}

func (p *mockPlatform) RequestGroupMembers(platform.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.memberReqs++
}

func (p *mockPlatform) HandleConnectionStateChanged(_ platform.ClientID, state platform.ConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connStates = append(p.connStates, state)
}

func (p *mockPlatform) HandleJoinStateChanged(_ platform.ClientID, state platform.JoinState, demuxID *platform.DemuxID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joinChanges = append(p.joinChanges, joinChange{state: state, demuxID: demuxID})
}

func (p *mockPlatform) HandleRemoteDevicesChanged(_ platform.ClientID, devices []platform.RemoteDeviceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rosters = append(p.rosters, devices)
}

func (p *mockPlatform) HandleIncomingVideoTrack(_ platform.ClientID, demuxID platform.DemuxID, _ platform.IncomingMedia) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoTracks = append(p.videoTracks, demuxID)
}

func (p *mockPlatform) HandlePeekChanged(_ platform.ClientID, info platform.PeekInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peeks = append(p.peeks, info)
}

func (p *mockPlatform) HandlePeekResponse(uint32, platform.PeekInfo, error) {}

func (p *mockPlatform) HandleEnded(_ platform.ClientID, reason platform.GroupEndReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, reason)
}

// lastRequest returns the newest request with the given method.
func (p *mockPlatform) lastRequest(method platform.HTTPMethod) (platform.HTTPRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.requests) - 1; i >= 0; i-- {
		if p.requests[i].Method == method {
			return p.requests[i], true
		}
	}
	return platform.HTTPRequest{}, false
}

func (p *mockPlatform) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *mockPlatform) endReasons() []platform.GroupEndReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.GroupEndReason(nil), p.ended...)
}

func (p *mockPlatform) messages() []callMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]callMessage(nil), p.callMessages...)
}

func (p *mockPlatform) lastRoster() []platform.RemoteDeviceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rosters) == 0 {
		return nil
	}
	return p.rosters[len(p.rosters)-1]
}

func (p *mockPlatform) currentSession() *mockSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// sendKey is one SetSendMediaKey call.
type sendKey struct {
	ratchet uint32
	secret  []byte
}

// receiveKey is one AddReceiveMediaKey call.
type receiveKey struct {
	demuxID platform.DemuxID
	ratchet uint32
	secret  []byte
}

// mockSession is an SFU session that also encrypts frames.
type mockSession struct {
	mu sync.Mutex

	request      platform.ConnectionRequest
	remote       *platform.RemoteDescription
	srtp         *crypto.SRTPKeys
	sendKeys     []sendKey
	receiveKeys  []receiveKey
	dataMessages [][]byte
	outgoing     *bool
	bitrate      uint64
	closed       bool
}

func (s *mockSession) CreateOffer() (platform.LocalDescription, error) {
	return platform.LocalDescription{
		V4: &signaling.ConnectionParametersV4{IceUfrag: "groupufrag", IcePwd: "grouppwd"},
	}, nil
}

func (s *mockSession) CreateAnswer(platform.RemoteDescription) (platform.LocalDescription, error) {
	return platform.LocalDescription{}, errors.New("sfu sessions never answer")
}

func (s *mockSession) SetRemoteAnswer(remote platform.RemoteDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = &remote
	return nil
}

func (s *mockSession) AddRemoteIceCandidates([]signaling.IceCandidate) error { return nil }

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
	s.bitrate = bps
	return nil
}

func (s *mockSession) SetOutgoingMediaEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing = &enabled
	return nil
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSession) SetSendMediaKey(ratchet uint32, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendKeys = append(s.sendKeys, sendKey{ratchet: ratchet, secret: append([]byte(nil), secret...)})
	return nil
}

func (s *mockSession) AddReceiveMediaKey(demuxID platform.DemuxID, ratchet uint32, secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiveKeys = append(s.receiveKeys, receiveKey{demuxID: demuxID, ratchet: ratchet, secret: append([]byte(nil), secret...)})
	return nil
}

func (s *mockSession) sendKeyLog() []sendKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendKey(nil), s.sendKeys...)
}

func (s *mockSession) receiveKeyLog() []receiveKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]receiveKey(nil), s.receiveKeys...)
}
