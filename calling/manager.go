package calling

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/group"
	"github.com/opd-ai/callcore/httpdispatch"
	"github.com/opd-ai/callcore/metrics"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/registry"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/taskqueue"
)

// Manager owns every call and group call client of one local user.
type Manager struct {
	platform platform.Platform
	config   *Config
	metrics  *metrics.Collector
	queue    *taskqueue.Queue
	calls    *registry.Registry[*Call]
	http     *httpdispatch.Dispatcher

	mu           sync.Mutex
	active       *Call
	live         map[signaling.CallID]*Call
	recent       *recentIDs
	localDevice  signaling.DeviceID
	groups       map[platform.ClientID]*group.Client
	nextClientID platform.ClientID
	closed       bool
}

// NewManager creates a manager driving the given host platform. config may
// be nil for the defaults.
func NewManager(p platform.Platform, config *Config) (*Manager, error) {
	logrus.WithFields(logrus.Fields{
		"function": "NewManager",
	}).Info("Creating call manager")

	if p == nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewManager",
			"error":    "platform cannot be nil",
		}).Error("Platform validation failed")
		return nil, fmt.Errorf("new manager: %w", ErrMissingExternal)
	}

	cfg := config.withDefaults()
	serial := platform.Serialized(p)

	m := &Manager{
		platform:     serial,
		config:       cfg,
		metrics:      cfg.Metrics,
		calls:        registry.New[*Call]("calls"),
		live:         make(map[signaling.CallID]*Call),
		recent:       newRecentIDs(cfg.RecentCallIDs),
		groups:       make(map[platform.ClientID]*group.Client),
		nextClientID: 1,
	}
	m.queue = taskqueue.New("call-manager", 0, m.reportPanic)
	m.http = httpdispatch.New(serial, cfg.Metrics, m.reportPanic)

	logrus.WithFields(logrus.Fields{
		"function":           "NewManager",
		"max_offer_age":      cfg.MaxOfferAge.String(),
		"call_setup_timeout": cfg.CallSetupTimeout.String(),
		"recent_call_ids":    cfg.RecentCallIDs,
	}).Info("Call manager created")

	return m, nil
}

func (m *Manager) reportPanic(r taskqueue.Report) {
	logrus.WithFields(logrus.Fields{
		"function": "reportPanic",
		"queue":    r.Queue,
		"panic":    fmt.Sprint(r.Panic),
	}).Error("Recovered panic in queued work")
	if m.config.ErrorReporter != nil {
		m.config.ErrorReporter(r)
	}
}

// activeCall returns the active call if it has the given id.
func (m *Manager) activeCall(function string, callID signaling.CallID) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.active == nil || m.active.id != callID {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"call_id":  callID.String(),
		}).Debug("Rejecting event for inactive call")
		return nil, fmt.Errorf("%s %s: %w", function, callID, ErrCallNotActive)
	}
	return m.active, nil
}

func (m *Manager) currentCall(function string) (*Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.active == nil {
		return nil, fmt.Errorf("%s: %w", function, ErrCallNotActive)
	}
	return m.active, nil
}

// install makes c the active call. Caller holds m.mu.
func (m *Manager) install(c *Call) {
	c.handle = m.calls.Insert(c)
	m.active = c
	m.live[c.id] = c
}

// callConcluded runs on the call's queue as its last act.
func (m *Manager) callConcluded(c *Call) {
	m.mu.Lock()
	if m.active == c {
		m.active = nil
	}
	delete(m.live, c.id)
	m.recent.add(c.id)
	m.mu.Unlock()

	if _, err := m.calls.Release(c.handle); err != nil {
		c.log("callConcluded").WithError(err).Debug("Releasing call handle failed")
	}
	m.metrics.CallConcluded()
}

// newCallID returns a random non-zero id that is not in use.
func (m *Manager) newCallID() (signaling.CallID, error) {
	var b [8]byte
	for attempt := 0; attempt < 8; attempt++ {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("generate call id: %w", err)
		}
		id := signaling.CallID(binary.BigEndian.Uint64(b[:]))
		if id == 0 || m.recent.contains(id) {
			continue
		}
		if _, taken := m.live[id]; taken {
			continue
		}
		return id, nil
	}
	return 0, errors.New("generate call id: no unused id found")
}

// Call starts an outgoing call. The host answers OnStartCall with Proceed.
func (m *Manager) Call(remote platform.RemotePeer, mediaType signaling.CallMediaType, localDevice signaling.DeviceID) (signaling.CallID, error) {
	log := logrus.WithFields(logrus.Fields{
		"function":     "Call",
		"media_type":   mediaType.String(),
		"local_device": localDevice,
	})
	if remote == nil {
		return 0, fmt.Errorf("call: %w", ErrMissingExternal)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrManagerClosed
	}
	if m.active != nil {
		active := m.active.id
		m.mu.Unlock()
		log.WithField("active_call", active.String()).Warn("Call requested while another call is active")
		return 0, fmt.Errorf("call: %w", ErrCallActive)
	}
	id, err := m.newCallID()
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.localDevice = localDevice
	c := newCall(m, id, remote, platform.DirectionOutgoing, mediaType, localDevice)
	c.fire(eventStartOutgoing)
	m.install(c)
	m.mu.Unlock()

	log.WithField("call_id", id.String()).Info("Starting outgoing call")
	if err := c.post("Call", c.start); err != nil {
		return 0, err
	}
	return id, nil
}

// Proceed supplies the call context once the host is ready for media.
func (m *Manager) Proceed(callID signaling.CallID, callContext platform.CallContext, mode platform.BandwidthMode) error {
	c, err := m.activeCall("Proceed", callID)
	if err != nil {
		return err
	}
	return c.post("Proceed", func() { c.proceed(callContext, mode) })
}

// AcceptCall accepts an incoming call.
func (m *Manager) AcceptCall(callID signaling.CallID) error {
	c, err := m.activeCall("AcceptCall", callID)
	if err != nil {
		return err
	}
	if c.direction != platform.DirectionIncoming {
		return fmt.Errorf("accept call %s: %w", callID, ErrInvalidState)
	}
	return c.post("AcceptCall", c.accept)
}

// Hangup ends the active call locally and tells every remote device.
func (m *Manager) Hangup() error {
	c, err := m.currentCall("Hangup")
	if err != nil {
		return err
	}
	return c.post("Hangup", func() {
		c.terminate(platform.EndReasonLocalHangup, hangupPtr(signaling.HangupNormal()), false)
	})
}

// DropCall ends the call without sending anything, as when the host
// cannot present it.
func (m *Manager) DropCall(callID signaling.CallID) error {
	c, err := m.activeCall("DropCall", callID)
	if err != nil {
		return err
	}
	return c.post("DropCall", func() {
		c.terminate(platform.EndReasonDeclined, nil, false)
	})
}

// Reset concludes the active call without an end event and forgets the
// recent call ids and local device.
func (m *Manager) Reset() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	c := m.active
	m.recent.reset()
	m.localDevice = 0
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Reset",
		"had_active": c != nil,
	}).Info("Resetting call manager")

	if c == nil {
		return nil
	}
	return c.post("Reset", func() {
		c.terminate(platform.EndReasonLocalHangup, nil, true)
		m.mu.Lock()
		m.recent.reset()
		m.mu.Unlock()
	})
}

// MessageSent confirms delivery of the last signaling message.
func (m *Manager) MessageSent(callID signaling.CallID) error {
	c, err := m.activeCall("MessageSent", callID)
	if err != nil {
		return err
	}
	return c.post("MessageSent", c.messageSent)
}

// MessageSendFailure reports that the last signaling message could not be
// delivered. The call ends with SignalingFailure.
func (m *Manager) MessageSendFailure(callID signaling.CallID) error {
	c, err := m.activeCall("MessageSendFailure", callID)
	if err != nil {
		return err
	}
	return c.post("MessageSendFailure", c.messageSendFailure)
}

// SetVideoEnable tells the remote side whether local video is on.
func (m *Manager) SetVideoEnable(enabled bool) error {
	c, err := m.currentCall("SetVideoEnable")
	if err != nil {
		return err
	}
	return c.post("SetVideoEnable", func() { c.setVideoEnabled(enabled) })
}

// UpdateBandwidthMode changes the send cap of the active call.
func (m *Manager) UpdateBandwidthMode(mode platform.BandwidthMode) error {
	c, err := m.currentCall("UpdateBandwidthMode")
	if err != nil {
		return err
	}
	return c.post("UpdateBandwidthMode", func() { c.updateBandwidthMode(mode) })
}

// ActiveCallID returns the id of the active call, if any.
func (m *Manager) ActiveCallID() (signaling.CallID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0, false
	}
	return m.active.id, true
}

// ActiveCallState returns the state of the active call. A call that is
// ending no longer counts as active.
func (m *Manager) ActiveCallState() (CallState, bool) {
	m.mu.Lock()
	c := m.active
	m.mu.Unlock()
	if c == nil {
		return StateIdle, false
	}
	state := c.State()
	return state, !state.Terminal()
}

// LookupCall takes a reference on a live call for the host. The call stays
// reachable through the handle until ReleaseCall.
func (m *Manager) LookupCall(callID signaling.CallID) (registry.Handle, error) {
	m.mu.Lock()
	c, ok := m.live[callID]
	m.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("lookup call %s: %w", callID, ErrCallNotActive)
	}
	if _, err := m.calls.Acquire(c.handle); err != nil {
		return 0, fmt.Errorf("lookup call %s: %w", callID, err)
	}
	return c.handle, nil
}

// CallByHandle returns the call behind a handle from LookupCall.
func (m *Manager) CallByHandle(h registry.Handle) (*Call, error) {
	return m.calls.Get(h)
}

// ReleaseCall drops a reference taken by LookupCall.
func (m *Manager) ReleaseCall(h registry.Handle) error {
	_, err := m.calls.Release(h)
	return err
}

// Synchronize waits until all work posted before it has run, including
// work the manager queue hands on to call queues.
func (m *Manager) Synchronize(ctx context.Context) error {
	if err := m.queue.Sync(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	queues := make([]*taskqueue.Queue, 0, len(m.live)+len(m.groups))
	for _, c := range m.live {
		queues = append(queues, c.queue)
	}
	clients := make([]*group.Client, 0, len(m.groups))
	for _, g := range m.groups {
		clients = append(clients, g)
	}
	m.mu.Unlock()

	for _, q := range queues {
		if err := q.Sync(ctx); err != nil {
			return err
		}
	}
	if err := m.http.Sync(ctx); err != nil {
		return err
	}
	for _, g := range clients {
		if err := g.Synchronize(ctx); err != nil {
			return err
		}
	}
	return m.queue.Sync(ctx)
}

// Close stops the manager. It fails with ErrCallActive while a call is in
// progress; group clients are ended.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if m.active != nil {
		m.mu.Unlock()
		return ErrCallActive
	}
	m.closed = true
	clients := m.groups
	m.groups = make(map[platform.ClientID]*group.Client)
	queues := make([]*taskqueue.Queue, 0, len(m.live))
	for _, c := range m.live {
		queues = append(queues, c.queue)
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":      "Close",
		"group_clients": len(clients),
	}).Info("Closing call manager")

	for _, g := range clients {
		g.Close()
		m.metrics.GroupClientDeleted()
	}
	for _, g := range clients {
		if err := g.Wait(ctx); err != nil {
			return err
		}
	}

	m.queue.Close()
	if err := m.queue.Wait(ctx); err != nil {
		return err
	}
	for _, q := range queues {
		if err := q.Wait(ctx); err != nil {
			return err
		}
	}
	m.http.Close()
	return m.http.Wait(ctx)
}
