package simnet

import (
	"fmt"
	"sync"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// ReceiveKey is a frame decryption key installed for a remote device.
type ReceiveKey struct {
	DemuxID platform.DemuxID
	Ratchet uint32
}

// Session is a fake media session. It produces one host candidate per
// description and reports ICE connected once both sides' descriptions
// are known.
type Session struct {
	device  *Device
	request platform.ConnectionRequest

	mu              sync.Mutex
	remote          *platform.RemoteDescription
	srtp            *crypto.SRTPKeys
	remoteIce       int
	dataMessages    [][]byte
	outgoingEnabled bool
	bitrate         uint64
	sendRatchet     *uint32
	receiveKeys     []ReceiveKey
	closed          bool
}

func newSession(d *Device, req platform.ConnectionRequest) *Session {
	return &Session{device: d, request: req}
}

// Request is what the session was created for.
func (s *Session) Request() platform.ConnectionRequest { return s.request }

func (s *Session) credentials() *signaling.ConnectionParametersV4 {
	return &signaling.ConnectionParametersV4{
		IceUfrag: fmt.Sprintf("%s%d", s.device.config.User, s.device.config.ID),
		IcePwd:   fmt.Sprintf("pwd-%s-%d-%d", s.device.config.User, s.device.config.ID, s.request.CallID),
	}
}

// description is the session's half of the negotiation. Legacy devices
// also carry the V3/V2 session description.
func (s *Session) description() (platform.LocalDescription, error) {
	v4 := s.credentials()
	desc := platform.LocalDescription{V4: v4}
	if !s.device.config.Legacy {
		return desc, nil
	}
	media := []string{"audio"}
	if s.request.MediaType == signaling.CallMediaTypeVideo {
		media = append(media, "video")
	}
	sdp, err := signaling.BuildSessionDescription(uint64(s.request.CallID),
		signaling.IceCredentials{Ufrag: v4.IceUfrag, Pwd: v4.IcePwd},
		fmt.Sprintf("198.51.100.%d", s.device.config.ID%250+1), media...)
	if err != nil {
		return platform.LocalDescription{}, fmt.Errorf("session description: %w", err)
	}
	desc.SDP = sdp
	return desc, nil
}

func (s *Session) candidate() signaling.IceCandidate {
	return signaling.IceCandidateFromV3AndV2SDP(fmt.Sprintf(
		"candidate:1 1 udp 2122260223 198.51.100.%d %d typ host",
		s.device.config.ID%250+1, 40000+int(s.device.config.ID)))
}

// gather reports the local candidate for a one-to-one session.
func (s *Session) gather(device signaling.DeviceID) {
	if s.request.Kind != platform.ConnectionKindDirect {
		return
	}
	callID := s.request.CallID
	cand := s.candidate()
	s.device.network.deliverTo("gather", s.device, func() {
		if s.Closed() {
			return
		}
		_ = s.device.manager.HandleIceCandidatesGathered(callID, device, []signaling.IceCandidate{cand})
	})
}

// connect reports ICE connectivity to whoever owns the session.
func (s *Session) connect(device signaling.DeviceID) {
	callID := s.request.CallID
	kind := s.request.Kind
	s.device.network.deliverTo("connect", s.device, func() {
		if s.Closed() {
			return
		}
		if kind == platform.ConnectionKindGroup {
			if client, err := s.device.manager.GroupCallClient(platform.ClientID(callID)); err == nil {
				_ = client.HandleIceConnected()
			}
			return
		}
		_ = s.device.manager.HandleIceConnected(callID, device)
	})
}

func (s *Session) CreateOffer() (platform.LocalDescription, error) {
	s.gather(0)
	return s.description()
}

func (s *Session) CreateAnswer(remote platform.RemoteDescription) (platform.LocalDescription, error) {
	s.mu.Lock()
	s.remote = &remote
	s.mu.Unlock()

	s.gather(s.request.RemoteDeviceID)
	s.connect(s.request.RemoteDeviceID)
	return s.description()
}

func (s *Session) SetRemoteAnswer(remote platform.RemoteDescription) error {
	s.mu.Lock()
	s.remote = &remote
	s.mu.Unlock()

	s.connect(0)
	return nil
}

func (s *Session) AddRemoteIceCandidates(candidates []signaling.IceCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteIce += len(candidates)
	return nil
}

func (s *Session) SetSRTPKeys(keys *crypto.SRTPKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.srtp = keys
	return nil
}

func (s *Session) SendDataChannelMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("data channel: %w", ErrNoActiveCall)
	}
	s.dataMessages = append(s.dataMessages, append([]byte(nil), data...))
	return nil
}

func (s *Session) SetMaxSendBitrate(bps uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bitrate = bps
	return nil
}

func (s *Session) SetOutgoingMediaEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoingEnabled = enabled
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) SetSendMediaKey(ratchet uint32, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendRatchet = &ratchet
	return nil
}

func (s *Session) AddReceiveMediaKey(demuxID platform.DemuxID, ratchet uint32, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiveKeys = append(s.receiveKeys, ReceiveKey{DemuxID: demuxID, Ratchet: ratchet})
	return nil
}

// Remote is the description the session was given, if any.
func (s *Session) Remote() (platform.RemoteDescription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return platform.RemoteDescription{}, false
	}
	return *s.remote, true
}

// SRTPKeys are the negotiated keys, nil for DTLS sessions.
func (s *Session) SRTPKeys() *crypto.SRTPKeys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srtp
}

// RemoteCandidates counts candidates added from the remote side.
func (s *Session) RemoteCandidates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteIce
}

// DataMessages are the raw data channel messages sent so far.
func (s *Session) DataMessages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.dataMessages...)
}

// OutgoingEnabled reports whether outgoing media is on.
func (s *Session) OutgoingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoingEnabled
}

// Bitrate is the last send cap.
func (s *Session) Bitrate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitrate
}

// SendRatchet is the ratchet counter of the installed send key.
func (s *Session) SendRatchet() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendRatchet == nil {
		return 0, false
	}
	return *s.sendRatchet, true
}

// ReceiveKeys lists installed frame decryption keys.
func (s *Session) ReceiveKeys() []ReceiveKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceiveKey(nil), s.receiveKeys...)
}

// Closed reports whether the core closed the session.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
