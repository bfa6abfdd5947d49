package simnet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/calling"
	"github.com/opd-ai/callcore/group"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// deliveryTimeout bounds how long a delivery waits for its device.
const deliveryTimeout = 5 * time.Second

// DeviceConfig describes one device of a user.
type DeviceConfig struct {
	User    string
	ID      signaling.DeviceID
	Primary bool

	// Legacy devices predate multi-ring.
	Legacy bool

	// ManualProceed leaves Proceed to the caller of the simulation
	// instead of answering OnStartCall immediately.
	ManualProceed bool

	// FailConnections makes every CreateConnection fail.
	FailConnections bool

	// Calling tunes the device's manager. Nil uses the defaults.
	Calling *calling.Config
}

// StartedCall is one OnStartCall.
type StartedCall struct {
	CallID    signaling.CallID
	Direction platform.CallDirection
	MediaType signaling.CallMediaType
}

// PeekResult is the answer to a PeekGroupCall.
type PeekResult struct {
	Info platform.PeekInfo
	Err  error
}

// Device is a simulated phone: a platform.Platform wired to its own
// calling.Manager.
type Device struct {
	network *Network
	config  DeviceConfig
	manager *calling.Manager

	mu          sync.Mutex
	started     []StartedCall
	events      []platform.ApplicationEvent
	concluded   []signaling.CallID
	sessions    []*Session
	sent        map[signaling.MessageType]int
	incoming    int
	connStates  map[platform.ClientID][]platform.ConnectionState
	joinStates  map[platform.ClientID]platform.JoinState
	demuxIDs    map[platform.ClientID]platform.DemuxID
	rosters     map[platform.ClientID][]platform.RemoteDeviceState
	peeks       map[platform.ClientID]platform.PeekInfo
	groupEnds   map[platform.ClientID][]platform.GroupEndReason
	peekReplies map[uint32]PeekResult
}

func newDevice(n *Network, cfg DeviceConfig) (*Device, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("add device: %w", ErrUnknownUser)
	}
	d := &Device{
		network:     n,
		config:      cfg,
		sent:        make(map[signaling.MessageType]int),
		connStates:  make(map[platform.ClientID][]platform.ConnectionState),
		joinStates:  make(map[platform.ClientID]platform.JoinState),
		demuxIDs:    make(map[platform.ClientID]platform.DemuxID),
		rosters:     make(map[platform.ClientID][]platform.RemoteDeviceState),
		peeks:       make(map[platform.ClientID]platform.PeekInfo),
		groupEnds:   make(map[platform.ClientID][]platform.GroupEndReason),
		peekReplies: make(map[uint32]PeekResult),
	}

	cc := calling.DefaultConfig()
	if cfg.Calling != nil {
		cc = cfg.Calling
	}
	if n.config.Metrics != nil {
		copied := *cc
		copied.Metrics = n.config.Metrics
		cc = &copied
	}
	m, err := calling.NewManager(d, cc)
	if err != nil {
		return nil, err
	}
	d.manager = m
	return d, nil
}

// sync waits for the work a delivery caused on this device.
func (d *Device) sync(function string) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := d.manager.Synchronize(ctx); err != nil {
		d.log(function).WithError(err).Debug("Device did not finish delivered work")
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("%s/%d", d.config.User, d.config.ID)
}

func (d *Device) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"device":   d.String(),
	})
}

// Manager is the device's call manager.
func (d *Device) Manager() *calling.Manager { return d.manager }

// User is the device owner's name.
func (d *Device) User() string { return d.config.User }

// ID is the device id.
func (d *Device) ID() signaling.DeviceID { return d.config.ID }

// UserID is the owner's group user id.
func (d *Device) UserID() platform.UserID { return UserID(d.config.User) }

// IdentityKey is the owner's identity key as the messenger would report
// it.
func (d *Device) IdentityKey() []byte {
	id := d.UserID()
	return append([]byte("identity:"), id[:]...)
}

func (d *Device) featureLevel() signaling.FeatureLevel {
	if d.config.Legacy {
		return signaling.FeatureLevelUnspecified
	}
	return signaling.FeatureLevelMultiRing
}

// Call places a call to every device of remote.
func (d *Device) Call(remote string, mediaType signaling.CallMediaType) (signaling.CallID, error) {
	return d.manager.Call(remote, mediaType, d.config.ID)
}

// Proceed lets a call started with ManualProceed continue.
func (d *Device) Proceed(callID signaling.CallID) error {
	return d.manager.Proceed(callID, platform.CallContext{Host: d.String()}, platform.BandwidthNormal)
}

// Accept accepts the ringing incoming call.
func (d *Device) Accept() error {
	id, ok := d.manager.ActiveCallID()
	if !ok {
		return ErrNoActiveCall
	}
	return d.manager.AcceptCall(id)
}

// Hangup ends the active call.
func (d *Device) Hangup() error {
	return d.manager.Hangup()
}

// ActiveCall is the id and state of the active call.
func (d *Device) ActiveCall() (signaling.CallID, calling.CallState, bool) {
	id, ok := d.manager.ActiveCallID()
	if !ok {
		return 0, calling.StateIdle, false
	}
	state, ok := d.manager.ActiveCallState()
	if !ok {
		return 0, calling.StateIdle, false
	}
	return id, state, true
}

// Started lists OnStartCall notifications.
func (d *Device) Started() []StartedCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]StartedCall(nil), d.started...)
}

// Events lists every application event in order.
func (d *Device) Events() []platform.ApplicationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.ApplicationEvent(nil), d.events...)
}

// HasEvent reports whether the event was ever raised.
func (d *Device) HasEvent(event platform.ApplicationEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.events {
		if e == event {
			return true
		}
	}
	return false
}

// LastEvent is the newest application event.
func (d *Device) LastEvent() (platform.ApplicationEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) == 0 {
		return 0, false
	}
	return d.events[len(d.events)-1], true
}

// Concluded lists calls the manager has released.
func (d *Device) Concluded() []signaling.CallID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]signaling.CallID(nil), d.concluded...)
}

// Sent counts signaling messages the device handed to the network.
func (d *Device) Sent(kind signaling.MessageType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[kind]
}

// IncomingMedia counts ConnectIncomingMedia calls.
func (d *Device) IncomingMedia() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.incoming
}

// Session returns the newest session created for a call or client.
func (d *Device) Session(kind platform.ConnectionKind, callID signaling.CallID) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sessions) - 1; i >= 0; i-- {
		req := d.sessions[i].request
		if req.Kind == kind && req.CallID == callID {
			return d.sessions[i], true
		}
	}
	return nil, false
}

// membershipProof is what the messenger would hand out for the user. The
// SFU treats it as the user's opaque member id.
func (d *Device) membershipProof() []byte {
	id := d.UserID()
	return append([]byte(nil), id[:]...)
}

// CreateGroupCall creates a client for the network's group call.
func (d *Device) CreateGroupCall(groupID []byte) (*group.Client, error) {
	id, err := d.manager.CreateGroupCallClient(groupID, d.network.SFUURL(), d.UserID(),
		platform.CallContext{Host: d.String()}, platform.BandwidthNormal)
	if err != nil {
		return nil, err
	}
	return d.manager.GroupCallClient(id)
}

// PeekGroupCall asks the SFU about the call without joining.
func (d *Device) PeekGroupCall(requestID uint32) error {
	return d.manager.PeekGroupCall(requestID, d.network.SFUURL(), d.membershipProof(), d.network.Members())
}

// PeekReply is the answer to PeekGroupCall.
func (d *Device) PeekReply(requestID uint32) (PeekResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.peekReplies[requestID]
	return r, ok
}

// JoinState is the last join state reported for a client.
func (d *Device) JoinState(id platform.ClientID) platform.JoinState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joinStates[id]
}

// DemuxID is the id the SFU gave the client on join.
func (d *Device) DemuxID(id platform.ClientID) (platform.DemuxID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	demux, ok := d.demuxIDs[id]
	return demux, ok
}

// ConnectionStates lists the connection states reported for a client.
func (d *Device) ConnectionStates(id platform.ClientID) []platform.ConnectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.ConnectionState(nil), d.connStates[id]...)
}

// Roster is the last remote device list reported for a client.
func (d *Device) Roster(id platform.ClientID) []platform.RemoteDeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.RemoteDeviceState(nil), d.rosters[id]...)
}

// LastPeek is the last peek change reported for a client.
func (d *Device) LastPeek(id platform.ClientID) (platform.PeekInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.peeks[id]
	return info, ok
}

// GroupEnds lists why a client ended.
func (d *Device) GroupEnds(id platform.ClientID) []platform.GroupEndReason {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.GroupEndReason(nil), d.groupEnds[id]...)
}

func (d *Device) countSent(kind signaling.MessageType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[kind]++
}

func (d *Device) OnSendOffer(remote platform.RemotePeer, callID signaling.CallID, offer *signaling.Offer) error {
	d.countSent(signaling.MessageTypeOffer)
	return d.network.deliverOffer(d, remote, callID, offer)
}

func (d *Device) OnSendAnswer(remote platform.RemotePeer, callID signaling.CallID, send signaling.SendAnswer) error {
	d.countSent(signaling.MessageTypeAnswer)
	return d.network.deliverAnswer(d, remote, callID, send)
}

func (d *Device) OnSendIce(remote platform.RemotePeer, callID signaling.CallID, send signaling.SendIce) error {
	d.countSent(signaling.MessageTypeIce)
	return d.network.deliverIce(d, remote, callID, send)
}

func (d *Device) OnSendHangup(remote platform.RemotePeer, callID signaling.CallID, send signaling.SendHangup) error {
	d.countSent(signaling.MessageTypeHangup)
	return d.network.deliverHangup(d, remote, callID, send)
}

func (d *Device) OnSendBusy(remote platform.RemotePeer, callID signaling.CallID) error {
	d.countSent(signaling.MessageTypeBusy)
	return d.network.deliverBusy(d, remote, callID)
}

func (d *Device) SendCallMessage(recipient platform.UserID, message []byte, _ platform.CallMessageUrgency) error {
	return d.network.deliverCallMessage(d, recipient, message)
}

func (d *Device) AssumeMessagesSent() bool { return true }

func (d *Device) SendHTTPRequest(req platform.HTTPRequest) error {
	d.network.deliverHTTP(d, req)
	return nil
}

func (d *Device) OnStartCall(_ platform.RemotePeer, callID signaling.CallID, direction platform.CallDirection, mediaType signaling.CallMediaType) error {
	d.mu.Lock()
	d.started = append(d.started, StartedCall{CallID: callID, Direction: direction, MediaType: mediaType})
	d.mu.Unlock()

	if d.config.ManualProceed {
		return nil
	}
	d.network.deliverTo("OnStartCall", d, func() {
		if err := d.Proceed(callID); err != nil && !errors.Is(err, calling.ErrCallNotActive) {
			d.log("OnStartCall").WithError(err).Warn("Proceed failed")
		}
	})
	return nil
}

func (d *Device) OnEvent(_ platform.RemotePeer, event platform.ApplicationEvent) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	d.log("OnEvent").WithField("event", event.String()).Debug("Call event")
	return nil
}

func (d *Device) OnCallConcluded(_ platform.RemotePeer, callID signaling.CallID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.concluded = append(d.concluded, callID)
	return nil
}

func (d *Device) CreateConnection(req platform.ConnectionRequest) (platform.MediaSession, error) {
	if d.config.FailConnections {
		return nil, fmt.Errorf("%s: media engine unavailable", d)
	}
	s := newSession(d, req)
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *Device) ConnectIncomingMedia(platform.RemotePeer, signaling.CallID, platform.IncomingMedia) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.incoming++
	return nil
}

func (d *Device) DisconnectIncomingMedia(signaling.CallID) error { return nil }

func (d *Device) CompareRemotes(a, b platform.RemotePeer) (bool, error) {
	return a == b, nil
}

func (d *Device) RequestMembershipProof(clientID platform.ClientID) {
	proof := d.membershipProof()
	d.network.deliverTo("RequestMembershipProof", d, func() {
		if client, err := d.manager.GroupCallClient(clientID); err == nil {
			_ = client.SetMembershipProof(proof)
		}
	})
}

func (d *Device) RequestGroupMembers(clientID platform.ClientID) {
	d.network.deliverTo("RequestGroupMembers", d, func() {
		if client, err := d.manager.GroupCallClient(clientID); err == nil {
			_ = client.SetGroupMembers(d.network.Members())
		}
	})
}

func (d *Device) HandleConnectionStateChanged(clientID platform.ClientID, state platform.ConnectionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connStates[clientID] = append(d.connStates[clientID], state)
}

func (d *Device) HandleJoinStateChanged(clientID platform.ClientID, state platform.JoinState, demuxID *platform.DemuxID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.joinStates[clientID] = state
	if demuxID != nil {
		d.demuxIDs[clientID] = *demuxID
	}
}

func (d *Device) HandleRemoteDevicesChanged(clientID platform.ClientID, devices []platform.RemoteDeviceState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rosters[clientID] = devices
}

func (d *Device) HandleIncomingVideoTrack(platform.ClientID, platform.DemuxID, platform.IncomingMedia) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.incoming++
}

func (d *Device) HandlePeekChanged(clientID platform.ClientID, info platform.PeekInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peeks[clientID] = info
}

func (d *Device) HandlePeekResponse(requestID uint32, info platform.PeekInfo, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peekReplies[requestID] = PeekResult{Info: info, Err: err}
}

func (d *Device) HandleEnded(clientID platform.ClientID, reason platform.GroupEndReason) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groupEnds[clientID] = append(d.groupEnds[clientID], reason)
}
