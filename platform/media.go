package platform

import (
	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/signaling"
)

// ConnectionKind distinguishes one-to-one sessions from SFU sessions.
type ConnectionKind int

const (
	ConnectionKindDirect ConnectionKind = iota
	ConnectionKindGroup
)

// IceServer is a STUN or TURN server handed to the media engine.
type IceServer struct {
	URLs     []string
	Username string
	Password string
}

// CallContext is what the host supplies when it lets a call proceed.
// Host carries anything the host wants back in CreateConnection.
type CallContext struct {
	IceServers []IceServer
	HideIP     bool
	Host       any
}

// ConnectionRequest asks the host's media engine for a new session.
// RemoteDeviceID is zero for the caller's forking session, which is bound
// to a device once an answer arrives.
type ConnectionRequest struct {
	Kind           ConnectionKind
	CallID         signaling.CallID
	RemoteDeviceID signaling.DeviceID
	Direction      CallDirection
	MediaType      signaling.CallMediaType
	BandwidthMode  BandwidthMode
	Context        CallContext
}

// LocalDescription is what a session produces for an offer or answer. SDP
// is used for V2/V3 and V4 carries the SDP-free parameters; a session may
// fill in either or both. The core adds the public key itself.
type LocalDescription struct {
	SDP string
	V4  *signaling.ConnectionParametersV4
}

// RemoteDescription is the negotiated view of the remote side handed back
// to the session.
type RemoteDescription struct {
	Version    signaling.Version
	EnableDTLS bool
	SDP        string
	V4         *signaling.ConnectionParametersV4
}

// MediaSession is the host's media transport for one call. The core never
// looks inside it.
type MediaSession interface {
	CreateOffer() (LocalDescription, error)
	CreateAnswer(remote RemoteDescription) (LocalDescription, error)
	SetRemoteAnswer(remote RemoteDescription) error
	AddRemoteIceCandidates(candidates []signaling.IceCandidate) error
	SetSRTPKeys(keys *crypto.SRTPKeys) error
	SendDataChannelMessage(data []byte) error
	SetMaxSendBitrate(bps uint64) error
	SetOutgoingMediaEnabled(enabled bool) error
	Close() error
}

// FrameEncryptor is implemented by group call sessions that encrypt media
// frames end to end.
type FrameEncryptor interface {
	SetSendMediaKey(ratchetCounter uint32, secret []byte) error
	AddReceiveMediaKey(demuxID DemuxID, ratchetCounter uint32, secret []byte) error
}

// IncomingMedia is the host's opaque handle for a remote media stream.
type IncomingMedia = any
