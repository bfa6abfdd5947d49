package platform

import "github.com/opd-ai/callcore/signaling"

// SignalingSender delivers signaling to the remote user's devices.
// Messages are opaque to the host.
type SignalingSender interface {
	OnSendOffer(remote RemotePeer, callID signaling.CallID, offer *signaling.Offer) error
	OnSendAnswer(remote RemotePeer, callID signaling.CallID, send signaling.SendAnswer) error
	OnSendIce(remote RemotePeer, callID signaling.CallID, send signaling.SendIce) error
	OnSendHangup(remote RemotePeer, callID signaling.CallID, send signaling.SendHangup) error
	OnSendBusy(remote RemotePeer, callID signaling.CallID) error
	SendCallMessage(recipient UserID, message []byte, urgency CallMessageUrgency) error
	// AssumeMessagesSent reports whether the host will never call
	// MessageSent, in which case the core does not wait for it.
	AssumeMessagesSent() bool
}

// HTTPSender performs HTTP requests for the core.
type HTTPSender interface {
	SendHTTPRequest(req HTTPRequest) error
}

// LifecycleObserver is told about one-to-one calls.
type LifecycleObserver interface {
	OnStartCall(remote RemotePeer, callID signaling.CallID, direction CallDirection, mediaType signaling.CallMediaType) error
	OnEvent(remote RemotePeer, event ApplicationEvent) error
	OnCallConcluded(remote RemotePeer, callID signaling.CallID) error
}

// MediaWiring creates media sessions and connects received media to the UI.
type MediaWiring interface {
	CreateConnection(req ConnectionRequest) (MediaSession, error)
	ConnectIncomingMedia(remote RemotePeer, callID signaling.CallID, media IncomingMedia) error
	DisconnectIncomingMedia(callID signaling.CallID) error
}

// RemoteComparer decides whether two remote peers are the same user.
type RemoteComparer interface {
	CompareRemotes(a, b RemotePeer) (bool, error)
}

// GroupObserver is told about group call clients.
type GroupObserver interface {
	RequestMembershipProof(clientID ClientID)
	RequestGroupMembers(clientID ClientID)
	HandleConnectionStateChanged(clientID ClientID, state ConnectionState)
	HandleJoinStateChanged(clientID ClientID, state JoinState, demuxID *DemuxID)
	HandleRemoteDevicesChanged(clientID ClientID, devices []RemoteDeviceState)
	HandleIncomingVideoTrack(clientID ClientID, demuxID DemuxID, track IncomingMedia)
	HandlePeekChanged(clientID ClientID, info PeekInfo)
	HandlePeekResponse(requestID uint32, info PeekInfo, err error)
	HandleEnded(clientID ClientID, reason GroupEndReason)
}

// Platform is the complete set of host capabilities.
type Platform interface {
	SignalingSender
	HTTPSender
	LifecycleObserver
	MediaWiring
	RemoteComparer
	GroupObserver
}
