package group

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/httpdispatch"
	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/taskqueue"
)

const (
	joinEventJoin   = "join"
	joinEventJoined = "joined"
	joinEventLeave  = "leave"
)

// Params identify one group call.
type Params struct {
	ID          platform.ClientID
	GroupID     []byte
	SFUURL      string
	Context     platform.CallContext
	LocalUserID platform.UserID
	Mode        platform.BandwidthMode

	// Busy reports whether a one-to-one call is in progress.
	Busy func() bool
}

// VideoRequest asks for one remote device's video at a resolution. A zero
// height means the video is not displayed.
type VideoRequest struct {
	DemuxID platform.DemuxID
	Width   uint16
	Height  uint16
}

type pendingKey struct {
	sender platform.UserID
	key    signaling.MediaKey
}

// Client is one group call. Methods may be called from any goroutine.
type Client struct {
	params   Params
	config   *Config
	platform platform.Platform
	http     *httpdispatch.Dispatcher
	queue    *taskqueue.Queue
	join     *fsm.FSM

	// Owned by queue.
	ended          bool
	everConnected  bool
	connState      platform.ConnectionState
	session        platform.MediaSession
	proof          []byte
	members        []platform.GroupMember
	joinPending    bool
	demuxID        platform.DemuxID
	keyPair        *crypto.KeyPair
	sendKey        []byte
	ratchetCounter uint32
	keysSentTo     map[platform.UserID]bool
	pendingKeys    map[platform.DemuxID]pendingKey
	roster         map[platform.DemuxID]*platform.RemoteDeviceState
	lastPeek       *platform.PeekInfo
	peekInFlight   bool
	peekTimer      *time.Timer
	audioMuted     bool
	videoMuted     bool
	videoRequests  []VideoRequest
}

// NewClient creates a client in NotConnected / NotJoined.
func NewClient(config *Config, p platform.Platform, d *httpdispatch.Dispatcher, params Params, onPanic func(taskqueue.Report)) *Client {
	cfg := config.withDefaults()
	c := &Client{
		params:      params,
		config:      cfg,
		platform:    p,
		http:        d,
		connState:   platform.ConnectionNotConnected,
		keysSentTo:  make(map[platform.UserID]bool),
		pendingKeys: make(map[platform.DemuxID]pendingKey),
		roster:      make(map[platform.DemuxID]*platform.RemoteDeviceState),
	}
	c.queue = taskqueue.New(fmt.Sprintf("group-client-%d", params.ID), cfg.QueueCapacity, onPanic)
	c.join = fsm.NewFSM(
		platform.JoinNotJoined.String(),
		fsm.Events{
			{Name: joinEventJoin, Src: []string{platform.JoinNotJoined.String()}, Dst: platform.JoinJoining.String()},
			{Name: joinEventJoined, Src: []string{platform.JoinJoining.String()}, Dst: platform.JoinJoined.String()},
			{Name: joinEventLeave, Src: []string{platform.JoinJoining.String(), platform.JoinJoined.String()}, Dst: platform.JoinNotJoined.String()},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				logrus.WithFields(logrus.Fields{
					"function":  "joinTransition",
					"client_id": params.ID,
					"from":      e.Src,
					"to":        e.Dst,
				}).Info("Group join state changed")
			},
		},
	)

	logrus.WithFields(logrus.Fields{
		"function":  "NewClient",
		"client_id": params.ID,
		"group_id":  crypto.KeyPreview(params.GroupID),
	}).Info("Group call client created")
	return c
}

// ID returns the client id.
func (c *Client) ID() platform.ClientID { return c.params.ID }

// GroupID returns the group this client calls.
func (c *Client) GroupID() []byte { return c.params.GroupID }

// JoinState returns the current join state.
func (c *Client) JoinState() platform.JoinState {
	switch c.join.Current() {
	case platform.JoinJoining.String():
		return platform.JoinJoining
	case platform.JoinJoined.String():
		return platform.JoinJoined
	default:
		return platform.JoinNotJoined
	}
}

func (c *Client) post(function string, task func()) error {
	if err := c.queue.Post(task); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  function,
			"client_id": c.params.ID,
			"error":     err.Error(),
		}).Warn("Group client queue rejected task")
		return fmt.Errorf("%s: %w", function, ErrClosed)
	}
	return nil
}

func (c *Client) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function":   function,
		"client_id":  c.params.ID,
		"connection": c.connState.String(),
		"join":       c.join.Current(),
	})
}

// Connect creates the media session and asks the host for credentials.
func (c *Client) Connect() error { return c.post("Connect", c.connect) }

// Join joins the call, connecting first if needed.
func (c *Client) Join() error { return c.post("Join", c.joinCall) }

// Leave leaves the call but stays connected.
func (c *Client) Leave() error { return c.post("Leave", c.leave) }

// Disconnect ends the client with DeviceExplicitlyDisconnected.
func (c *Client) Disconnect() error {
	return c.post("Disconnect", func() { c.end(platform.GroupEndDeviceExplicitlyDisconnected) })
}

// SetMembershipProof supplies the proof requested with
// RequestMembershipProof.
func (c *Client) SetMembershipProof(proof []byte) error {
	p := append([]byte(nil), proof...)
	return c.post("SetMembershipProof", func() { c.setMembershipProof(p) })
}

// SetGroupMembers supplies the members requested with RequestGroupMembers.
func (c *Client) SetGroupMembers(members []platform.GroupMember) error {
	m := append([]platform.GroupMember(nil), members...)
	return c.post("SetGroupMembers", func() { c.setGroupMembers(m) })
}

// SetOutgoingAudioMuted mutes or unmutes the microphone.
func (c *Client) SetOutgoingAudioMuted(muted bool) error {
	return c.post("SetOutgoingAudioMuted", func() { c.setAudioMuted(muted) })
}

// SetOutgoingVideoMuted mutes or unmutes the camera.
func (c *Client) SetOutgoingVideoMuted(muted bool) error {
	return c.post("SetOutgoingVideoMuted", func() { c.setVideoMuted(muted) })
}

// ResendMediaKeys sends the current media key to every device's user
// again.
func (c *Client) ResendMediaKeys() error {
	return c.post("ResendMediaKeys", func() {
		c.keysSentTo = make(map[platform.UserID]bool)
		c.distributeKey()
	})
}

// SetBandwidthMode caps the send bitrate.
func (c *Client) SetBandwidthMode(mode platform.BandwidthMode) error {
	return c.post("SetBandwidthMode", func() { c.setBandwidthMode(mode) })
}

// RequestVideo tells the SFU which remote videos are displayed.
func (c *Client) RequestVideo(requests []VideoRequest) error {
	r := append([]VideoRequest(nil), requests...)
	return c.post("RequestVideo", func() { c.requestVideo(r) })
}

// ReceivedCallMessage handles a message another member sent through the
// one-to-one signaling channel.
func (c *Client) ReceivedCallMessage(sender platform.UserID, msg *signaling.CallMessage) error {
	if msg == nil || msg.MediaKey == nil {
		return nil
	}
	key := *msg.MediaKey
	key.Secret = append([]byte(nil), key.Secret...)
	return c.post("ReceivedCallMessage", func() { c.receivedMediaKey(sender, key) })
}

// HandleIceConnected reports that the SFU connection is up.
func (c *Client) HandleIceConnected() error {
	return c.post("HandleIceConnected", c.iceConnected)
}

// HandleIceDisconnected reports a temporary loss of the SFU connection.
func (c *Client) HandleIceDisconnected() error {
	return c.post("HandleIceDisconnected", c.iceDisconnected)
}

// HandleIceFailed ends the client.
func (c *Client) HandleIceFailed() error {
	return c.post("HandleIceFailed", func() {
		if c.everConnected {
			c.end(platform.GroupEndIceFailedAfterConnected)
		} else {
			c.end(platform.GroupEndIceFailedWhileConnecting)
		}
	})
}

// HandleIncomingVideoTrack passes a remote device's video to the host.
func (c *Client) HandleIncomingVideoTrack(demuxID platform.DemuxID, track platform.IncomingMedia) error {
	return c.post("HandleIncomingVideoTrack", func() {
		if c.ended {
			return
		}
		c.platform.HandleIncomingVideoTrack(c.params.ID, demuxID, track)
	})
}

// RefreshPeek asks the SFU for the current participants now.
func (c *Client) RefreshPeek() error { return c.post("RefreshPeek", c.peek) }

// Synchronize waits until all work posted before it has run.
func (c *Client) Synchronize(ctx context.Context) error { return c.queue.Sync(ctx) }

// Close ends the client and stops its queue once drained.
func (c *Client) Close() {
	_ = c.queue.Post(func() { c.end(platform.GroupEndDeviceExplicitlyDisconnected) })
	c.queue.Close()
}

// Wait blocks until the queue has drained after Close.
func (c *Client) Wait(ctx context.Context) error { return c.queue.Wait(ctx) }

func (c *Client) setConnState(state platform.ConnectionState) {
	if c.connState == state {
		return
	}
	c.connState = state
	c.platform.HandleConnectionStateChanged(c.params.ID, state)
}

func (c *Client) fireJoin(event string, demuxID *platform.DemuxID) bool {
	if err := c.join.Event(context.Background(), event); err != nil {
		c.log("fireJoin").WithError(err).WithField("event", event).Debug("Join transition refused")
		return false
	}
	c.platform.HandleJoinStateChanged(c.params.ID, c.JoinState(), demuxID)
	return true
}

func (c *Client) connect() {
	if c.ended || c.connState != platform.ConnectionNotConnected {
		return
	}
	session, err := c.platform.CreateConnection(platform.ConnectionRequest{
		Kind:          platform.ConnectionKindGroup,
		CallID:        signaling.CallID(c.params.ID),
		Direction:     platform.DirectionOutgoing,
		MediaType:     signaling.CallMediaTypeVideo,
		BandwidthMode: c.params.Mode,
		Context:       c.params.Context,
	})
	if err != nil || session == nil {
		c.log("connect").WithField("error", fmt.Sprint(err)).Error("Creating SFU connection failed")
		c.end(platform.GroupEndFailedToCreateConnection)
		return
	}
	c.session = session
	c.setConnState(platform.ConnectionConnecting)
	c.platform.RequestMembershipProof(c.params.ID)
	c.platform.RequestGroupMembers(c.params.ID)
	c.log("connect").Info("Connecting to SFU")
}

func (c *Client) joinCall() {
	if c.ended || c.JoinState() != platform.JoinNotJoined {
		return
	}
	if c.params.Busy != nil && c.params.Busy() {
		c.log("joinCall").Info("One-to-one call active, refusing to join")
		c.end(platform.GroupEndCallManagerIsBusy)
		return
	}
	if c.lastPeek != nil && c.lastPeek.Full() {
		c.log("joinCall").Info("Call is full")
		c.end(platform.GroupEndHasMaxDevices)
		return
	}
	c.connect()
	if c.ended {
		return
	}
	if !c.fireJoin(joinEventJoin, nil) {
		return
	}
	if len(c.proof) > 0 {
		c.sendJoin()
	}
}

func (c *Client) setMembershipProof(proof []byte) {
	if c.ended {
		return
	}
	c.proof = proof
	c.peek()
	if c.JoinState() == platform.JoinJoining && !c.joinPending {
		c.sendJoin()
	}
}

func (c *Client) setGroupMembers(members []platform.GroupMember) {
	if c.ended {
		return
	}
	c.members = members
	if c.JoinState() == platform.JoinJoined {
		c.peek()
	}
}

func (c *Client) sendJoin() {
	log := c.log("sendJoin")

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		log.WithError(err).Error("Key generation failed")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}
	c.keyPair = kp

	desc, err := c.session.CreateOffer()
	if err != nil {
		log.WithError(err).Error("Creating local description failed")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}
	ufrag, pwd, err := localCredentials(desc)
	if err != nil {
		log.WithError(err).Error("Local description has no ice credentials")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}
	body, err := encodeJoinRequest(ufrag, pwd, kp.Public[:])
	if err != nil {
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}

	c.joinPending = true
	_, err = c.http.Send(platform.HTTPPut, participantsURL(c.params.SFUURL), authHeaders(c.proof), body,
		func(resp platform.HTTPResponse, err error) {
			_ = c.queue.Post(func() { c.handleJoinResponse(resp, err) })
		})
	if err != nil {
		c.joinPending = false
		log.WithError(err).Error("Join request not sent")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}
	log.Info("Join requested")
}

func localCredentials(desc platform.LocalDescription) (string, string, error) {
	if desc.V4 != nil && desc.V4.IceUfrag != "" {
		return desc.V4.IceUfrag, desc.V4.IcePwd, nil
	}
	creds, err := signaling.ParseIceCredentials(desc.SDP)
	if err != nil {
		return "", "", err
	}
	return creds.Ufrag, creds.Pwd, nil
}

func (c *Client) handleJoinResponse(resp platform.HTTPResponse, err error) {
	c.joinPending = false
	if c.ended || c.JoinState() != platform.JoinJoining {
		return
	}
	log := c.log("handleJoinResponse")

	if err != nil {
		log.WithError(err).Warn("Join request failed")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}
	if resp.StatusCode == statusTooManyDevices {
		log.Info("SFU refused join, call is full")
		c.end(platform.GroupEndHasMaxDevices)
		return
	}
	result, err := parseJoinResponse(resp)
	if err != nil {
		log.WithError(err).Warn("Bad join response")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}

	remote := platform.RemoteDescription{
		Version: signaling.V4,
		V4: &signaling.ConnectionParametersV4{
			PublicKey: result.DhePublicKey,
			IceUfrag:  result.IceUfrag,
			IcePwd:    result.IcePwd,
		},
	}
	if err := c.session.SetRemoteAnswer(remote); err != nil {
		log.WithError(err).Warn("SFU description rejected")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}
	keys, err := crypto.NegotiateSRTPKeys(c.keyPair, result.DhePublicKey, c.keyPair.Public[:], result.DhePublicKey, crypto.RoleCaller)
	if err == nil {
		err = c.session.SetSRTPKeys(keys)
	}
	if err != nil {
		log.WithError(err).Warn("SRTP key agreement with SFU failed")
		c.end(platform.GroupEndSfuClientFailedToJoin)
		return
	}

	c.demuxID = result.DemuxID
	demux := result.DemuxID
	if !c.fireJoin(joinEventJoined, &demux) {
		return
	}
	log.WithFields(logrus.Fields{
		"demux_id": result.DemuxID,
		"sfu":      result.Address,
	}).Info("Joined group call")

	c.rotateKey(false)
	if c.lastPeek != nil {
		c.updateRoster(*c.lastPeek)
	}
	c.peek()
	c.schedulePeek()
}

func (c *Client) leave() {
	if c.JoinState() == platform.JoinNotJoined {
		return
	}
	c.stopPeekTimer()
	hadRoster := len(c.roster) > 0
	c.roster = make(map[platform.DemuxID]*platform.RemoteDeviceState)
	c.pendingKeys = make(map[platform.DemuxID]pendingKey)
	c.keysSentTo = make(map[platform.UserID]bool)
	if c.sendKey != nil {
		crypto.ZeroBytes(c.sendKey)
		c.sendKey = nil
	}
	c.demuxID = 0
	c.fireJoin(joinEventLeave, nil)
	if hadRoster {
		c.platform.HandleRemoteDevicesChanged(c.params.ID, nil)
	}
}

func (c *Client) end(reason platform.GroupEndReason) {
	if c.ended {
		return
	}
	c.leave()
	c.ended = true
	c.stopPeekTimer()
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			c.log("end").WithError(err).Debug("Closing SFU session failed")
		}
		c.session = nil
	}
	if c.keyPair != nil {
		c.keyPair.Wipe()
	}
	c.setConnState(platform.ConnectionNotConnected)
	c.platform.HandleEnded(c.params.ID, reason)
	c.log("end").WithField("reason", reason.String()).Info("Group call client ended")
}

func (c *Client) iceConnected() {
	if c.ended {
		return
	}
	switch c.connState {
	case platform.ConnectionConnecting, platform.ConnectionReconnecting:
		c.everConnected = true
		c.setConnState(platform.ConnectionConnected)
	}
}

func (c *Client) iceDisconnected() {
	if c.ended || c.connState != platform.ConnectionConnected {
		return
	}
	c.setConnState(platform.ConnectionReconnecting)
}

func (c *Client) setAudioMuted(muted bool) {
	c.audioMuted = muted
	if c.session == nil {
		return
	}
	if err := c.session.SetOutgoingMediaEnabled(!muted); err != nil {
		c.log("setAudioMuted").WithError(err).Warn("Muting failed")
	}
}

func (c *Client) setVideoMuted(muted bool) {
	c.videoMuted = muted
	if c.session == nil {
		return
	}
	msg := &signaling.DataChannelMessage{
		SenderStatus: &signaling.SenderStatus{CallID: signaling.CallID(c.params.ID), VideoEnabled: !muted},
	}
	if err := c.session.SendDataChannelMessage(msg.Marshal()); err != nil {
		c.log("setVideoMuted").WithError(err).Debug("Video status not sent")
	}
}

func (c *Client) setBandwidthMode(mode platform.BandwidthMode) {
	c.params.Mode = mode
	if c.session == nil {
		return
	}
	if err := c.session.SetMaxSendBitrate(mode.MaxBitrateBps()); err != nil {
		c.log("setBandwidthMode").WithError(err).Warn("SetMaxSendBitrate failed")
	}
}

// requestVideo caps the receive rate: nothing displayed asks for the
// lowest rate, anything displayed for the client's bandwidth mode.
func (c *Client) requestVideo(requests []VideoRequest) {
	c.videoRequests = requests
	if c.session == nil {
		return
	}
	bps := platform.BandwidthVeryLow.MaxBitrateBps()
	for _, r := range requests {
		if r.Height > 0 {
			bps = c.params.Mode.MaxBitrateBps()
			break
		}
	}
	msg := &signaling.DataChannelMessage{
		ReceiverStatus: &signaling.ReceiverStatus{CallID: signaling.CallID(c.params.ID), MaxBitrateBps: bps},
	}
	if err := c.session.SendDataChannelMessage(msg.Marshal()); err != nil {
		c.log("requestVideo").WithError(err).Debug("Receiver status not sent")
	}
}

func (c *Client) peek() {
	if c.ended || c.peekInFlight || len(c.proof) == 0 {
		return
	}
	c.peekInFlight = true
	_, err := Peek(c.http, c.params.SFUURL, c.proof, c.members, func(info platform.PeekInfo, err error) {
		_ = c.queue.Post(func() { c.handlePeek(info, err) })
	})
	if err != nil {
		c.peekInFlight = false
		c.log("peek").WithError(err).Warn("Peek not sent")
	}
}

func (c *Client) schedulePeek() {
	c.stopPeekTimer()
	c.peekTimer = time.AfterFunc(c.config.PeekInterval, func() {
		_ = c.queue.Post(func() {
			if c.ended || c.JoinState() != platform.JoinJoined {
				return
			}
			c.peek()
			c.schedulePeek()
		})
	})
}

func (c *Client) stopPeekTimer() {
	if c.peekTimer != nil {
		c.peekTimer.Stop()
		c.peekTimer = nil
	}
}

func (c *Client) handlePeek(info platform.PeekInfo, err error) {
	c.peekInFlight = false
	if c.ended {
		return
	}
	if err != nil {
		c.log("handlePeek").WithError(err).Warn("Peek failed")
		return
	}
	changed := c.lastPeek == nil || !samePeek(*c.lastPeek, info)
	c.lastPeek = &info
	if changed {
		c.platform.HandlePeekChanged(c.params.ID, info)
	}
	if c.JoinState() == platform.JoinJoined {
		c.updateRoster(info)
	}
}

func samePeek(a, b platform.PeekInfo) bool {
	if a.EraID != b.EraID || len(a.Devices) != len(b.Devices) {
		return false
	}
	if (a.MaxDevices == nil) != (b.MaxDevices == nil) || (a.MaxDevices != nil && *a.MaxDevices != *b.MaxDevices) {
		return false
	}
	if (a.Creator == nil) != (b.Creator == nil) || (a.Creator != nil && *a.Creator != *b.Creator) {
		return false
	}
	for i := range a.Devices {
		da, db := a.Devices[i], b.Devices[i]
		if da.DemuxID != db.DemuxID || (da.UserID == nil) != (db.UserID == nil) {
			return false
		}
		if da.UserID != nil && *da.UserID != *db.UserID {
			return false
		}
	}
	return true
}

// updateRoster applies a peek to the roster. New devices get the current
// key; a departed device forces a fresh key so it cannot decrypt what
// follows.
func (c *Client) updateRoster(info platform.PeekInfo) {
	now := c.config.TimeProvider.Now()
	present := make(map[platform.DemuxID]platform.PeekDevice, len(info.Devices))
	for _, d := range info.Devices {
		if d.DemuxID != c.demuxID {
			present[d.DemuxID] = d
		}
	}

	changed := false
	removed := false
	for demux := range c.roster {
		if _, ok := present[demux]; !ok {
			delete(c.roster, demux)
			delete(c.pendingKeys, demux)
			changed = true
			removed = true
		}
	}
	for demux, d := range present {
		if _, ok := c.roster[demux]; ok {
			continue
		}
		state := &platform.RemoteDeviceState{DemuxID: demux, AddedTime: now}
		if d.UserID != nil {
			state.UserID = *d.UserID
			// The new device needs the key even if its user already has it.
			delete(c.keysSentTo, *d.UserID)
		}
		c.roster[demux] = state
		changed = true
		if pk, ok := c.pendingKeys[demux]; ok {
			delete(c.pendingKeys, demux)
			if d.UserID != nil && *d.UserID == pk.sender {
				c.applyKey(state, pk.key)
			}
		}
	}

	if removed {
		c.rotateKey(true)
	} else {
		c.distributeKey()
	}
	if changed {
		c.platform.HandleRemoteDevicesChanged(c.params.ID, c.rosterSnapshot())
	}
}

func (c *Client) rosterSnapshot() []platform.RemoteDeviceState {
	out := make([]platform.RemoteDeviceState, 0, len(c.roster))
	for _, d := range c.roster {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedTime.Equal(out[j].AddedTime) {
			return out[i].AddedTime.Before(out[j].AddedTime)
		}
		return out[i].DemuxID < out[j].DemuxID
	})
	return out
}

// rotateKey installs a fresh send key. advance bumps the ratchet counter
// so receivers can tell the keys apart.
func (c *Client) rotateKey(advance bool) {
	key, err := crypto.GenerateMediaKey()
	if err != nil {
		c.log("rotateKey").WithError(err).Error("Media key generation failed")
		return
	}
	if c.sendKey != nil {
		crypto.ZeroBytes(c.sendKey)
	}
	c.sendKey = key
	if advance {
		c.ratchetCounter++
	}
	if enc, ok := c.session.(platform.FrameEncryptor); ok {
		if err := enc.SetSendMediaKey(c.ratchetCounter, key); err != nil {
			c.log("rotateKey").WithError(err).Warn("Installing send key failed")
		}
	}
	c.keysSentTo = make(map[platform.UserID]bool)
	c.distributeKey()
}

// distributeKey sends the current key to every user in the roster that
// has not had it yet.
func (c *Client) distributeKey() {
	if c.sendKey == nil || c.JoinState() != platform.JoinJoined {
		return
	}
	msg := &signaling.CallMessage{MediaKey: &signaling.MediaKey{
		DemuxID:        uint32(c.demuxID),
		RatchetCounter: c.ratchetCounter,
		Secret:         c.sendKey,
	}}
	payload := msg.Marshal()

	for _, d := range c.roster {
		user := d.UserID
		if user == (platform.UserID{}) || c.keysSentTo[user] || !c.isMember(user) {
			continue
		}
		if err := c.platform.SendCallMessage(user, payload, platform.UrgencyDroppable); err != nil {
			c.log("distributeKey").WithError(err).Warn("Media key not sent")
			continue
		}
		c.keysSentTo[user] = true
	}
}

// isMember reports whether user is in the group. Before the host has sent
// the member list every user is accepted.
func (c *Client) isMember(user platform.UserID) bool {
	if len(c.members) == 0 {
		return true
	}
	for _, m := range c.members {
		if m.UserID == user {
			return true
		}
	}
	return false
}

func (c *Client) receivedMediaKey(sender platform.UserID, key signaling.MediaKey) {
	if c.ended || !c.isMember(sender) {
		return
	}
	demux := platform.DemuxID(key.DemuxID)
	device, ok := c.roster[demux]
	if !ok {
		if _, held := c.pendingKeys[demux]; !held && len(c.pendingKeys) >= limits.MaxPendingMediaKeys {
			c.log("receivedMediaKey").WithField("demux_id", demux).Warn("Too many media keys for unknown devices, dropping")
			return
		}
		c.pendingKeys[demux] = pendingKey{sender: sender, key: key}
		return
	}
	if device.UserID != sender {
		c.log("receivedMediaKey").WithField("demux_id", demux).Warn("Media key from a user who does not own the device")
		return
	}
	c.applyKey(device, key)
	c.platform.HandleRemoteDevicesChanged(c.params.ID, c.rosterSnapshot())
}

func (c *Client) applyKey(device *platform.RemoteDeviceState, key signaling.MediaKey) {
	if enc, ok := c.session.(platform.FrameEncryptor); ok {
		if err := enc.AddReceiveMediaKey(device.DemuxID, key.RatchetCounter, key.Secret); err != nil {
			c.log("applyKey").WithError(err).Warn("Installing receive key failed")
			return
		}
	}
	device.MediaKeysReceived = true
}
