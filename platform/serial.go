package platform

import (
	"sync"

	"github.com/opd-ai/callcore/signaling"
)

// Serialized wraps a Platform so that at most one of its methods runs at a
// time. Callers must not hold their own locks while invoking it.
func Serialized(p Platform) Platform {
	if s, ok := p.(*serialPlatform); ok {
		return s
	}
	return &serialPlatform{inner: p}
}

type serialPlatform struct {
	mu    sync.Mutex
	inner Platform
}

func (s *serialPlatform) OnSendOffer(remote RemotePeer, callID signaling.CallID, offer *signaling.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnSendOffer(remote, callID, offer)
}

func (s *serialPlatform) OnSendAnswer(remote RemotePeer, callID signaling.CallID, send signaling.SendAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnSendAnswer(remote, callID, send)
}

func (s *serialPlatform) OnSendIce(remote RemotePeer, callID signaling.CallID, send signaling.SendIce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnSendIce(remote, callID, send)
}

func (s *serialPlatform) OnSendHangup(remote RemotePeer, callID signaling.CallID, send signaling.SendHangup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnSendHangup(remote, callID, send)
}

func (s *serialPlatform) OnSendBusy(remote RemotePeer, callID signaling.CallID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnSendBusy(remote, callID)
}

func (s *serialPlatform) SendCallMessage(recipient UserID, message []byte, urgency CallMessageUrgency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SendCallMessage(recipient, message, urgency)
}

func (s *serialPlatform) AssumeMessagesSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.AssumeMessagesSent()
}

func (s *serialPlatform) SendHTTPRequest(req HTTPRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SendHTTPRequest(req)
}

func (s *serialPlatform) OnStartCall(remote RemotePeer, callID signaling.CallID, direction CallDirection, mediaType signaling.CallMediaType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnStartCall(remote, callID, direction, mediaType)
}

func (s *serialPlatform) OnEvent(remote RemotePeer, event ApplicationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnEvent(remote, event)
}

func (s *serialPlatform) OnCallConcluded(remote RemotePeer, callID signaling.CallID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OnCallConcluded(remote, callID)
}

func (s *serialPlatform) CreateConnection(req ConnectionRequest) (MediaSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.CreateConnection(req)
}

func (s *serialPlatform) ConnectIncomingMedia(remote RemotePeer, callID signaling.CallID, media IncomingMedia) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.ConnectIncomingMedia(remote, callID, media)
}

func (s *serialPlatform) DisconnectIncomingMedia(callID signaling.CallID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.DisconnectIncomingMedia(callID)
}

func (s *serialPlatform) CompareRemotes(a, b RemotePeer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.CompareRemotes(a, b)
}

func (s *serialPlatform) RequestMembershipProof(clientID ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.RequestMembershipProof(clientID)
}

func (s *serialPlatform) RequestGroupMembers(clientID ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.RequestGroupMembers(clientID)
}

func (s *serialPlatform) HandleConnectionStateChanged(clientID ClientID, state ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.HandleConnectionStateChanged(clientID, state)
}

func (s *serialPlatform) HandleJoinStateChanged(clientID ClientID, state JoinState, demuxID *DemuxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.HandleJoinStateChanged(clientID, state, demuxID)
}

func (s *serialPlatform) HandleRemoteDevicesChanged(clientID ClientID, devices []RemoteDeviceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.HandleRemoteDevicesChanged(clientID, devices)
}

func (s *serialPlatform) HandleIncomingVideoTrack(clientID ClientID, demuxID DemuxID, track IncomingMedia) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.HandleIncomingVideoTrack(clientID, demuxID, track)
}

func (s *serialPlatform) HandlePeekChanged(clientID ClientID, info PeekInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.HandlePeekChanged(clientID, info)
}

func (s *serialPlatform) HandlePeekResponse(requestID uint32, info PeekInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.HandlePeekResponse(requestID, info, err)
}

func (s *serialPlatform) HandleEnded(clientID ClientID, reason GroupEndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.HandleEnded(clientID, reason)
}
