package calling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/connection"
	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/registry"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/taskqueue"
)

// Call is one one-to-one call. Identity fields are immutable; everything
// else is owned by the call's queue.
type Call struct {
	manager *Manager

	id          signaling.CallID
	remote      platform.RemotePeer
	direction   platform.CallDirection
	mediaType   signaling.CallMediaType
	localDevice signaling.DeviceID
	startedAt   time.Time

	queue  *taskqueue.Queue
	fsm    *fsm.FSM
	handle registry.Handle

	// Set once, read from any goroutine.
	endedFlag sync.Once
	ended     chan struct{}

	// Owned by queue.
	proceeded     bool
	accepted      bool
	terminated    bool
	reconnecting  bool
	connectedOnce bool
	context       platform.CallContext
	bandwidthMode platform.BandwidthMode
	keyPair       *crypto.KeyPair

	offer         *signaling.Offer
	receivedOffer *signaling.ReceivedOffer
	pendingAnswer *signaling.Answer
	answerSent    bool

	parentSession platform.MediaSession
	connections   map[signaling.DeviceID]*connection.Connection
	active        *connection.Connection

	outbound        outbound
	localIcePending []signaling.IceCandidate
	videoEnabled    bool
	incomingMedia   platform.IncomingMedia
	timer           *time.Timer
}

func newCall(m *Manager, id signaling.CallID, remote platform.RemotePeer, direction platform.CallDirection, mediaType signaling.CallMediaType, localDevice signaling.DeviceID) *Call {
	c := &Call{
		manager:       m,
		id:            id,
		remote:        remote,
		direction:     direction,
		mediaType:     mediaType,
		localDevice:   localDevice,
		startedAt:     m.config.TimeProvider.Now(),
		ended:         make(chan struct{}),
		bandwidthMode: platform.BandwidthNormal,
		connections:   make(map[signaling.DeviceID]*connection.Connection),
		videoEnabled:  mediaType == signaling.CallMediaTypeVideo,
	}
	c.fsm = newCallFSM(func(from, to CallState) {
		logrus.WithFields(logrus.Fields{
			"function": "transition",
			"call_id":  id.String(),
			"from":     from.String(),
			"to":       to.String(),
		}).Info("Call state changed")
	})
	c.queue = taskqueue.New("call-"+id.String(), m.config.QueueCapacity, func(r taskqueue.Report) {
		m.reportPanic(r)
		_ = c.queue.Post(func() {
			c.terminate(platform.EndReasonInternalFailure, hangupPtr(signaling.HangupNormal()), false)
		})
	})
	return c
}

// ID returns the call id.
func (c *Call) ID() signaling.CallID { return c.id }

// Remote returns the host's remote peer handle.
func (c *Call) Remote() platform.RemotePeer { return c.remote }

// Direction returns the local side of the call.
func (c *Call) Direction() platform.CallDirection { return c.direction }

// MediaType returns whether the call is audio or video.
func (c *Call) MediaType() signaling.CallMediaType { return c.mediaType }

// State returns the current lifecycle state.
func (c *Call) State() CallState {
	return parseState(c.fsm.Current())
}

// Ended is closed once the call has stopped handling events.
func (c *Call) Ended() <-chan struct{} { return c.ended }

func (c *Call) post(function string, task func()) error {
	if err := c.queue.Post(task); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"call_id":  c.id.String(),
			"error":    err.Error(),
		}).Warn("Call queue rejected task")
		return fmt.Errorf("%s: %w", function, ErrCallNotActive)
	}
	return nil
}

func (c *Call) fire(event string) bool {
	if err := c.fsm.Event(context.Background(), event); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "fire",
			"call_id":  c.id.String(),
			"event":    event,
			"state":    c.fsm.Current(),
			"error":    err.Error(),
		}).Debug("State transition refused")
		return false
	}
	return true
}

func (c *Call) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function":  function,
		"call_id":   c.id.String(),
		"direction": c.direction.String(),
		"state":     c.fsm.Current(),
	})
}

func (c *Call) emit(event platform.ApplicationEvent) {
	if err := c.manager.platform.OnEvent(c.remote, event); err != nil {
		c.log("emit").WithError(err).Warn("OnEvent failed")
	}
}

// start runs on the queue right after the call became active.
func (c *Call) start() {
	c.outbound.assumeSent = c.manager.platform.AssumeMessagesSent()
	c.manager.metrics.CallStarted(c.direction.String())

	if err := c.manager.platform.OnStartCall(c.remote, c.id, c.direction, c.mediaType); err != nil {
		c.log("start").WithError(err).Error("OnStartCall failed")
		c.terminate(platform.EndReasonInternalFailure, nil, false)
		return
	}

	timeout := c.manager.config.CallSetupTimeout
	c.timer = time.AfterFunc(timeout, func() {
		_ = c.queue.Post(c.handleSetupTimeout)
	})
	c.log("start").WithField("setup_timeout", timeout.String()).Info("Call started")
}

func (c *Call) handleSetupTimeout() {
	if c.terminated || c.connectedOnce {
		return
	}
	c.log("handleSetupTimeout").Warn("Call did not connect in time")
	c.terminate(platform.EndReasonTimeout, hangupPtr(signaling.HangupNormal()), false)
}

func (c *Call) internalFailure(function string, err error) {
	c.log(function).WithError(err).Error("Ending call after internal failure")
	c.terminate(platform.EndReasonInternalFailure, hangupPtr(signaling.HangupNormal()), false)
}

// proceed creates the media session once the host has supplied the call
// context.
func (c *Call) proceed(callContext platform.CallContext, mode platform.BandwidthMode) {
	if c.terminated {
		return
	}
	if c.proceeded {
		c.log("proceed").Warn("Proceed called twice, ignoring")
		return
	}
	c.proceeded = true
	c.context = callContext
	c.bandwidthMode = mode

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		c.internalFailure("proceed", err)
		return
	}
	c.keyPair = kp

	if c.direction == platform.DirectionOutgoing {
		c.proceedOutgoing()
	} else {
		c.proceedIncoming()
	}
}

func (c *Call) createSession(remoteDevice signaling.DeviceID) (platform.MediaSession, error) {
	session, err := c.manager.platform.CreateConnection(platform.ConnectionRequest{
		Kind:           platform.ConnectionKindDirect,
		CallID:         c.id,
		RemoteDeviceID: remoteDevice,
		Direction:      c.direction,
		MediaType:      c.mediaType,
		BandwidthMode:  c.bandwidthMode,
		Context:        c.context,
	})
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("create connection: %w", ErrMissingExternal)
	}
	return session, nil
}

func (c *Call) proceedOutgoing() {
	session, err := c.createSession(0)
	if err != nil {
		c.internalFailure("proceedOutgoing", err)
		return
	}
	c.parentSession = session

	desc, err := session.CreateOffer()
	if err != nil {
		c.internalFailure("proceedOutgoing", fmt.Errorf("create offer: %w", err))
		return
	}
	v4, err := localParamsV4(desc, c.keyPair)
	if err != nil {
		c.internalFailure("proceedOutgoing", err)
		return
	}

	var offer *signaling.Offer
	if desc.SDP != "" {
		offer, err = signaling.OfferFromV4AndV3AndV2(c.mediaType, c.keyPair.Public[:], v4, desc.SDP)
	} else {
		offer, err = signaling.OfferFromV4(c.mediaType, *v4)
	}
	if err != nil {
		c.internalFailure("proceedOutgoing", err)
		return
	}
	c.offer = offer

	c.log("proceedOutgoing").WithField("offer", offer.ToInfoString()).Info("Sending offer")
	c.enqueue(outboundMessage{
		msg:  offer,
		send: func() error { return c.manager.platform.OnSendOffer(c.remote, c.id, offer) },
		onSent: func() {
			if c.fire(eventRing) {
				c.emit(platform.EventRemoteRinging)
			}
		},
	})
}

func (c *Call) proceedIncoming() {
	received := c.receivedOffer
	sender := received.SenderDeviceID
	conn := c.connections[sender]

	version := received.Offer.LatestVersion()
	remote, remotePublic, err := remoteDescriptionFromOffer(received.Offer, version)
	if err != nil {
		c.internalFailure("proceedIncoming", err)
		return
	}

	session, err := c.createSession(sender)
	if err != nil {
		c.internalFailure("proceedIncoming", err)
		return
	}
	c.parentSession = session

	desc, err := session.CreateAnswer(remote)
	if err != nil {
		c.internalFailure("proceedIncoming", fmt.Errorf("create answer: %w", err))
		return
	}

	var answer *signaling.Answer
	switch version {
	case signaling.V4:
		v4, perr := localParamsV4(desc, c.keyPair)
		if perr != nil {
			c.internalFailure("proceedIncoming", perr)
			return
		}
		answer, err = signaling.AnswerFromV4(*v4)
	case signaling.V3:
		answer, err = signaling.AnswerFromV3AndV2SDP(c.keyPair.Public[:], desc.SDP)
	default:
		answer, err = signaling.AnswerFromV2SDP(desc.SDP)
	}
	if err != nil {
		c.internalFailure("proceedIncoming", err)
		return
	}

	if version >= signaling.V3 {
		keys, kerr := crypto.NegotiateSRTPKeys(c.keyPair, remotePublic,
			received.SenderIdentityKey, received.ReceiverIdentityKey, crypto.RoleCallee)
		if kerr != nil {
			c.internalFailure("proceedIncoming", kerr)
			return
		}
		if kerr = session.SetSRTPKeys(keys); kerr != nil {
			c.internalFailure("proceedIncoming", kerr)
			return
		}
	}

	conn.SetVersion(version)
	conn.SetRemoteFeatureLevel(received.SenderDeviceFeatureLevel)
	if err := conn.SetSession(session); err != nil {
		c.internalFailure("proceedIncoming", err)
		return
	}
	c.active = conn
	c.pendingAnswer = answer

	if !c.fire(eventRing) {
		return
	}
	c.emit(platform.EventLocalRinging)
	c.log("proceedIncoming").WithField("version", version.String()).Info("Ringing")

	if c.accepted {
		c.acceptNow()
	}
}

// accept records the user's acceptance. The answer goes out once the
// session exists.
func (c *Call) accept() {
	if c.terminated || c.accepted {
		return
	}
	c.accepted = true
	if c.pendingAnswer != nil {
		c.acceptNow()
	}
}

func (c *Call) acceptNow() {
	answer := c.pendingAnswer
	c.pendingAnswer = nil
	device := c.receivedOffer.SenderDeviceID

	c.enqueue(outboundMessage{
		msg: answer,
		send: func() error {
			return c.manager.platform.OnSendAnswer(c.remote, c.id, signaling.SendAnswer{
				Answer:           answer,
				ReceiverDeviceID: device,
			})
		},
	})
	c.answerSent = true

	if len(c.localIcePending) > 0 {
		pending := c.localIcePending
		c.localIcePending = nil
		c.enqueueIce(pending, &device)
	}

	if !c.fire(eventAccept) {
		return
	}
	c.emit(platform.EventLocalAccepted)

	if c.active != nil && c.active.IceConnected() {
		c.connected()
	}
}

func (c *Call) handleReceivedAnswer(received signaling.ReceivedAnswer) {
	log := c.log("handleReceivedAnswer").WithField("sender_device", received.SenderDeviceID)
	if c.terminated {
		return
	}
	if c.active != nil {
		log.Debug("Call already accepted by another device, ignoring answer")
		return
	}
	if c.offer == nil || c.parentSession == nil {
		log.Warn("Answer before offer was created, ignoring")
		return
	}

	version := signaling.MinVersion(c.offer.LatestVersion(), received.Answer.LatestVersion())
	remote, remotePublic, err := remoteDescriptionFromAnswer(received.Answer, version)
	if err != nil {
		log.WithError(err).Warn("Malformed answer, ignoring")
		return
	}

	session := c.parentSession
	if err := session.SetRemoteAnswer(remote); err != nil {
		c.internalFailure("handleReceivedAnswer", err)
		return
	}
	if version >= signaling.V3 {
		keys, err := crypto.NegotiateSRTPKeys(c.keyPair, remotePublic,
			received.ReceiverIdentityKey, received.SenderIdentityKey, crypto.RoleCaller)
		if err != nil {
			c.internalFailure("handleReceivedAnswer", err)
			return
		}
		if err := session.SetSRTPKeys(keys); err != nil {
			c.internalFailure("handleReceivedAnswer", err)
			return
		}
	}

	conn := c.connectionFor(received.SenderDeviceID)
	conn.SetVersion(version)
	conn.SetRemoteFeatureLevel(received.SenderDeviceFeatureLevel)
	if err := conn.SetSession(session); err != nil {
		c.internalFailure("handleReceivedAnswer", err)
		return
	}
	c.active = conn

	for device, other := range c.connections {
		if device == received.SenderDeviceID {
			continue
		}
		if err := other.Close(); err != nil {
			log.WithError(err).Debug("Closing losing connection failed")
		}
		delete(c.connections, device)
	}

	c.enqueueHangup(signaling.HangupAcceptedOnAnotherDevice(received.SenderDeviceID))

	if !c.fire(eventAccept) {
		return
	}
	c.emit(platform.EventRemoteAccepted)
	log.WithField("version", version.String()).Info("Answer accepted")
}

func (c *Call) connectionFor(device signaling.DeviceID) *connection.Connection {
	conn, ok := c.connections[device]
	if !ok {
		conn = connection.New(c.id, device, c.direction, c.bandwidthMode)
		c.connections[device] = conn
	}
	return conn
}

func (c *Call) handleReceivedIce(received signaling.ReceivedIce) {
	if c.terminated || received.Ice.Empty() {
		return
	}
	log := c.log("handleReceivedIce").WithField("sender_device", received.SenderDeviceID)

	var conn *connection.Connection
	switch {
	case c.active != nil:
		if c.active.RemoteDeviceID() != received.SenderDeviceID {
			log.Debug("Ice from non-active device, ignoring")
			return
		}
		conn = c.active
	case c.direction == platform.DirectionOutgoing:
		conn = c.connectionFor(received.SenderDeviceID)
	default:
		var ok bool
		if conn, ok = c.connections[received.SenderDeviceID]; !ok {
			log.Debug("Ice from unexpected device, ignoring")
			return
		}
	}

	if err := conn.BufferOrAddIce(received.Ice.CandidatesAdded); err != nil {
		log.WithError(err).Warn("Adding remote ice failed")
	}
}

func (c *Call) handleReceivedHangup(received signaling.ReceivedHangup) {
	if c.terminated {
		return
	}
	log := c.log("handleReceivedHangup").WithFields(logrus.Fields{
		"sender_device": received.SenderDeviceID,
		"hangup":        received.Hangup.String(),
	})

	reason, rebroadcast, ok := c.routeHangup(received)
	if !ok {
		log.Debug("Hangup does not apply to this device, ignoring")
		return
	}
	log.WithField("reason", reason.String()).Info("Remote hung up")
	c.terminate(reason, rebroadcast, false)
}

// routeHangup maps a received hangup to the reason the call ends with and
// the hangup, if any, the caller rebroadcasts to its other devices.
func (c *Call) routeHangup(received signaling.ReceivedHangup) (platform.EndReason, *signaling.Hangup, bool) {
	h := received.Hangup
	sender := received.SenderDeviceID

	if c.direction == platform.DirectionOutgoing {
		if c.active != nil {
			if c.active.RemoteDeviceID() != sender {
				return 0, nil, false
			}
			return hangupReason(h), nil, true
		}
		if h.Type() == signaling.HangupTypeNormal {
			return platform.EndReasonRemoteHangup, hangupPtr(signaling.HangupDeclinedOnAnotherDevice(sender)), true
		}
		return hangupReason(h), hangupPtr(signaling.HangupNormal()), true
	}

	if c.receivedOffer.SenderDeviceID != sender {
		return 0, nil, false
	}
	if device, has := h.DeviceID(); has && h.Type() != signaling.HangupTypeNeedPermission && device == c.localDevice {
		return 0, nil, false
	}
	return hangupReason(h), nil, true
}

func hangupReason(h signaling.Hangup) platform.EndReason {
	switch h.Type() {
	case signaling.HangupTypeAcceptedOnAnotherDevice:
		return platform.EndReasonAcceptedOnAnotherDevice
	case signaling.HangupTypeDeclinedOnAnotherDevice:
		return platform.EndReasonDeclinedOnAnotherDevice
	case signaling.HangupTypeBusyOnAnotherDevice:
		return platform.EndReasonBusyOnAnotherDevice
	case signaling.HangupTypeNeedPermission:
		return platform.EndReasonRemoteHangupNeedPermission
	default:
		return platform.EndReasonRemoteHangup
	}
}

func (c *Call) handleReceivedBusy(received signaling.ReceivedBusy) {
	if c.terminated {
		return
	}
	log := c.log("handleReceivedBusy").WithField("sender_device", received.SenderDeviceID)
	if c.direction != platform.DirectionOutgoing || c.active != nil {
		log.Debug("Busy does not apply, ignoring")
		return
	}
	log.Info("Remote is busy")
	c.terminate(platform.EndReasonBusy, hangupPtr(signaling.HangupBusyOnAnotherDevice(received.SenderDeviceID)), false)
}

func (c *Call) handleLocalIce(candidates []signaling.IceCandidate) {
	if c.terminated || len(candidates) == 0 {
		return
	}
	if c.direction == platform.DirectionOutgoing {
		if c.active == nil {
			c.enqueueIce(candidates, nil)
			return
		}
		device := c.active.RemoteDeviceID()
		c.enqueueIce(candidates, &device)
		return
	}
	if !c.answerSent {
		c.localIcePending = append(c.localIcePending, candidates...)
		return
	}
	device := c.receivedOffer.SenderDeviceID
	c.enqueueIce(candidates, &device)
}

// ownsDevice reports whether a media event for the device belongs to the
// current connection. The caller's forking session reports device zero.
func (c *Call) ownsDevice(device signaling.DeviceID) bool {
	if c.active == nil {
		return false
	}
	return device == 0 || device == c.active.RemoteDeviceID()
}

func (c *Call) handleIceConnected(device signaling.DeviceID) {
	if c.terminated || !c.ownsDevice(device) {
		return
	}
	c.active.SetIceConnected(true)

	if c.State() != StateConnecting {
		return
	}
	if c.direction == platform.DirectionIncoming && !c.answerSent {
		return
	}
	c.connected()
}

func (c *Call) connected() {
	if !c.fire(eventConnect) {
		return
	}
	if c.reconnecting {
		c.reconnecting = false
		c.emit(platform.EventReconnected)
		return
	}
	if c.connectedOnce {
		return
	}
	c.connectedOnce = true
	c.stopTimer()
	c.manager.metrics.CallConnected(c.manager.config.TimeProvider.Since(c.startedAt))

	if session, err := c.active.Session(); err == nil {
		if err := session.SetOutgoingMediaEnabled(true); err != nil {
			c.log("connected").WithError(err).Warn("Enabling outgoing media failed")
		}
	}
	if err := c.active.InjectSendSenderStatusViaDataChannel(c.videoEnabled); err != nil {
		c.log("connected").WithError(err).Debug("Sender status not sent")
	}
	c.log("connected").Info("Call connected")
}

func (c *Call) handleIceDisconnected(device signaling.DeviceID) {
	if c.terminated || !c.ownsDevice(device) {
		return
	}
	c.active.SetIceConnected(false)
	if c.State() != StateConnected {
		return
	}
	if c.fire(eventReconnect) {
		c.reconnecting = true
		c.emit(platform.EventReconnecting)
	}
}

func (c *Call) handleIceFailed(device signaling.DeviceID) {
	if c.terminated {
		return
	}
	if c.active != nil && !c.ownsDevice(device) {
		return
	}
	log := c.log("handleIceFailed").WithField("device", device)
	if conn, ok := c.connections[device]; ok && conn.EverConnected() {
		log.Warn("Ice connection lost")
	} else {
		log.Warn("Ice failed before connecting")
	}
	c.terminate(platform.EndReasonConnectionFailure, hangupPtr(signaling.HangupNormal()), false)
}

func (c *Call) handleIncomingMedia(media platform.IncomingMedia) {
	if c.terminated {
		return
	}
	c.incomingMedia = media
	if err := c.manager.platform.ConnectIncomingMedia(c.remote, c.id, media); err != nil {
		c.log("handleIncomingMedia").WithError(err).Warn("ConnectIncomingMedia failed")
	}
}

func (c *Call) handleDataChannelMessage(data []byte) {
	if c.terminated || c.active == nil {
		return
	}
	log := c.log("handleDataChannelMessage")
	msg, err := signaling.UnmarshalDataChannelMessage(data)
	if err != nil {
		log.WithError(err).Debug("Dropping undecodable data channel message")
		return
	}

	if s := msg.SenderStatus; s != nil && s.CallID == c.id {
		if s.VideoEnabled {
			c.emit(platform.EventRemoteVideoEnable)
		} else {
			c.emit(platform.EventRemoteVideoDisable)
		}
	}
	if r := msg.ReceiverStatus; r != nil && r.CallID == c.id {
		bps := r.MaxBitrateBps
		if local := c.bandwidthMode.MaxBitrateBps(); local < bps || bps == 0 {
			bps = local
		}
		session, err := c.active.Session()
		if err != nil {
			return
		}
		if err := session.SetMaxSendBitrate(bps); err != nil {
			log.WithError(err).Warn("SetMaxSendBitrate failed")
		}
	}
}

func (c *Call) setVideoEnabled(enabled bool) {
	if c.terminated {
		return
	}
	c.videoEnabled = enabled
	if c.active == nil || !c.active.Bound() {
		return
	}
	if err := c.active.InjectSendSenderStatusViaDataChannel(enabled); err != nil {
		c.log("setVideoEnabled").WithError(err).Warn("Sender status not sent")
	}
}

func (c *Call) updateBandwidthMode(mode platform.BandwidthMode) {
	if c.terminated {
		return
	}
	c.bandwidthMode = mode
	if c.active == nil || !c.active.Bound() {
		return
	}
	if err := c.active.InjectUpdateBandwidthMode(mode); err != nil {
		c.log("updateBandwidthMode").WithError(err).Warn("Bandwidth update failed")
	}
}

// useLegacyHangup reports whether the remote device needs the legacy
// hangup encoding. A caller without an answering device assumes multi-ring.
func (c *Call) useLegacyHangup() bool {
	if c.active != nil {
		return c.active.RemoteFeatureLevel() == signaling.FeatureLevelUnspecified
	}
	if c.receivedOffer != nil {
		return c.receivedOffer.SenderDeviceFeatureLevel == signaling.FeatureLevelUnspecified
	}
	return false
}

func (c *Call) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// terminate ends the call. hangup, when set, is broadcast immediately and
// anything still queued for sending is dropped. A silent termination
// reports no end reason to the host but still concludes the call.
func (c *Call) terminate(reason platform.EndReason, hangup *signaling.Hangup, silent bool) {
	if c.terminated {
		return
	}
	c.terminated = true
	c.stopTimer()
	c.fire(eventEnd)

	c.outbound.clear()
	if hangup != nil {
		c.sendHangupNow(*hangup)
	}
	c.closeMedia()

	log := c.log("terminate").WithFields(logrus.Fields{
		"reason": reason.String(),
		"silent": silent,
	})
	if !silent {
		c.emit(reason.ApplicationEvent())
	}
	c.manager.metrics.CallEnded(reason.String())
	log.Info("Call ended")

	c.conclude()
}

func (c *Call) closeMedia() {
	for device, conn := range c.connections {
		if err := conn.Close(); err != nil {
			c.log("closeMedia").WithError(err).Debug("Closing connection failed")
		}
		delete(c.connections, device)
	}
	if c.parentSession != nil {
		// Bound connections already closed the shared session.
		if c.active == nil {
			if err := c.parentSession.Close(); err != nil {
				c.log("closeMedia").WithError(err).Debug("Closing session failed")
			}
		}
		c.parentSession = nil
	}
	if c.keyPair != nil {
		c.keyPair.Wipe()
	}
	if err := c.manager.platform.DisconnectIncomingMedia(c.id); err != nil {
		c.log("closeMedia").WithError(err).Debug("DisconnectIncomingMedia failed")
	}
}

func (c *Call) conclude() {
	c.fire(eventConclude)
	if err := c.manager.platform.OnCallConcluded(c.remote, c.id); err != nil {
		c.log("conclude").WithError(err).Warn("OnCallConcluded failed")
	}
	c.manager.callConcluded(c)
	c.endedFlag.Do(func() { close(c.ended) })
	c.queue.Close()
}

func hangupPtr(h signaling.Hangup) *signaling.Hangup {
	return &h
}

// localParamsV4 returns the session's V4 parameters, deriving them from
// the SDP when the session produced none, with the public key filled in.
func localParamsV4(desc platform.LocalDescription, kp *crypto.KeyPair) (*signaling.ConnectionParametersV4, error) {
	var v4 signaling.ConnectionParametersV4
	switch {
	case desc.V4 != nil:
		v4 = *desc.V4
	case desc.SDP != "":
		creds, err := signaling.ParseIceCredentials(desc.SDP)
		if err != nil {
			return nil, fmt.Errorf("local description: %w", err)
		}
		v4.IceUfrag = creds.Ufrag
		v4.IcePwd = creds.Pwd
	default:
		return nil, fmt.Errorf("local description: %w", ErrMissingExternal)
	}
	v4.PublicKey = append([]byte(nil), kp.Public[:]...)
	return &v4, nil
}

func remoteDescriptionFromOffer(offer *signaling.Offer, version signaling.Version) (platform.RemoteDescription, []byte, error) {
	desc := platform.RemoteDescription{Version: version, EnableDTLS: version.EnableDTLS()}
	if version == signaling.V4 {
		v4, ok := offer.ToV4()
		if !ok {
			return desc, nil, fmt.Errorf("offer: %w", signaling.ErrDecode)
		}
		desc.V4 = &v4
		return desc, v4.PublicKey, nil
	}
	params, err := offer.ToV3OrV2Params()
	if err != nil {
		return desc, nil, fmt.Errorf("offer: %w", err)
	}
	desc.SDP = params.SDP
	return desc, params.PublicKey, nil
}

func remoteDescriptionFromAnswer(answer *signaling.Answer, version signaling.Version) (platform.RemoteDescription, []byte, error) {
	desc := platform.RemoteDescription{Version: version, EnableDTLS: version.EnableDTLS()}
	if version == signaling.V4 {
		v4, ok := answer.ToV4()
		if !ok {
			return desc, nil, fmt.Errorf("answer: %w", signaling.ErrDecode)
		}
		desc.V4 = &v4
		return desc, v4.PublicKey, nil
	}
	params, err := answer.ToV3OrV2Params()
	if err != nil {
		return desc, nil, fmt.Errorf("answer: %w", err)
	}
	desc.SDP = params.SDP
	return desc, params.PublicKey, nil
}
