// Package connection wraps the media session to one remote device.
//
// A Connection exists before its media session does: ICE candidates that
// arrive early are buffered and handed to the session, in arrival order,
// the moment it is bound. Everything else needs the session and fails
// with ErrNotReady until then.
package connection

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// Connection is the per-device half of a call.
type Connection struct {
	mu sync.Mutex

	callID       signaling.CallID
	remoteDevice signaling.DeviceID
	direction    platform.CallDirection

	version            signaling.Version
	remoteFeatureLevel signaling.FeatureLevel
	bandwidthMode      platform.BandwidthMode

	session    platform.MediaSession
	pendingIce []signaling.IceCandidate

	iceConnected  bool
	everConnected bool
	closed        bool
}

// New creates an unbound connection.
func New(callID signaling.CallID, remoteDevice signaling.DeviceID, direction platform.CallDirection, mode platform.BandwidthMode) *Connection {
	return &Connection{
		callID:        callID,
		remoteDevice:  remoteDevice,
		direction:     direction,
		version:       signaling.V4,
		bandwidthMode: mode,
	}
}

// CallID returns the call this connection belongs to.
func (c *Connection) CallID() signaling.CallID { return c.callID }

// RemoteDeviceID returns the device on the other end.
func (c *Connection) RemoteDeviceID() signaling.DeviceID { return c.remoteDevice }

// Direction returns the local side of the call.
func (c *Connection) Direction() platform.CallDirection { return c.direction }

// Version returns the negotiated protocol version.
func (c *Connection) Version() signaling.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// SetVersion records the negotiated protocol version.
func (c *Connection) SetVersion(v signaling.Version) {
	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
}

// RemoteFeatureLevel returns what the remote device supports.
func (c *Connection) RemoteFeatureLevel() signaling.FeatureLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteFeatureLevel
}

// SetRemoteFeatureLevel records what the remote device supports.
func (c *Connection) SetRemoteFeatureLevel(f signaling.FeatureLevel) {
	c.mu.Lock()
	c.remoteFeatureLevel = f
	c.mu.Unlock()
}

// BandwidthMode returns the current send cap.
func (c *Connection) BandwidthMode() platform.BandwidthMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bandwidthMode
}

// SetSession binds the media session and flushes buffered candidates.
func (c *Connection) SetSession(session platform.MediaSession) error {
	if session == nil {
		return fmt.Errorf("set session: %w", ErrNotReady)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyBound
	}
	c.session = session
	pending := c.pendingIce
	c.pendingIce = nil
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":      "SetSession",
		"call_id":       c.callID.String(),
		"remote_device": c.remoteDevice,
		"flushed_ice":   len(pending),
	}).Debug("Media session bound")

	if len(pending) == 0 {
		return nil
	}
	if err := session.AddRemoteIceCandidates(pending); err != nil {
		return fmt.Errorf("flush buffered ice: %w", err)
	}
	return nil
}

// Session returns the bound media session.
func (c *Connection) Session() (platform.MediaSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.session == nil {
		return nil, ErrNotReady
	}
	return c.session, nil
}

// Bound reports whether a media session is attached.
func (c *Connection) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// BufferOrAddIce hands candidates to the session, or buffers them until
// one is bound. An empty batch is a no-op.
func (c *Connection) BufferOrAddIce(candidates []signaling.IceCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	session := c.session
	if session == nil {
		c.pendingIce = append(c.pendingIce, candidates...)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := session.AddRemoteIceCandidates(candidates); err != nil {
		return fmt.Errorf("add remote ice: %w", err)
	}
	return nil
}

// PendingIceCount returns the number of buffered candidates.
func (c *Connection) PendingIceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingIce)
}

// InjectSendSenderStatusViaDataChannel tells the remote side whether local
// video is enabled.
func (c *Connection) InjectSendSenderStatusViaDataChannel(videoEnabled bool) error {
	session, err := c.Session()
	if err != nil {
		return err
	}

	msg := &signaling.DataChannelMessage{
		SenderStatus: &signaling.SenderStatus{CallID: c.callID, VideoEnabled: videoEnabled},
	}
	if err := session.SendDataChannelMessage(msg.Marshal()); err != nil {
		return fmt.Errorf("send sender status: %w", err)
	}
	return nil
}

// InjectUpdateBandwidthMode caps the local send bitrate and asks the remote
// side to do the same. No renegotiation happens.
func (c *Connection) InjectUpdateBandwidthMode(mode platform.BandwidthMode) error {
	session, err := c.Session()
	if err != nil {
		return err
	}

	bps := mode.MaxBitrateBps()
	if err := session.SetMaxSendBitrate(bps); err != nil {
		return fmt.Errorf("set max send bitrate: %w", err)
	}

	msg := &signaling.DataChannelMessage{
		ReceiverStatus: &signaling.ReceiverStatus{CallID: c.callID, MaxBitrateBps: bps},
	}
	if err := session.SendDataChannelMessage(msg.Marshal()); err != nil {
		return fmt.Errorf("send receiver status: %w", err)
	}

	c.mu.Lock()
	c.bandwidthMode = mode
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "InjectUpdateBandwidthMode",
		"call_id":  c.callID.String(),
		"mode":     mode.String(),
		"bps":      bps,
	}).Debug("Bandwidth mode updated")
	return nil
}

// SetIceConnected records ICE connectivity and returns the previous value.
func (c *Connection) SetIceConnected(connected bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.iceConnected
	c.iceConnected = connected
	if connected {
		c.everConnected = true
	}
	return prev
}

// IceConnected reports current ICE connectivity.
func (c *Connection) IceConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iceConnected
}

// EverConnected reports whether ICE ever connected, which distinguishes a
// failure to connect from a dropped connection.
func (c *Connection) EverConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.everConnected
}

// Close closes the media session once and drops buffered candidates.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	session := c.session
	c.session = nil
	c.pendingIce = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
