package calling

import (
	"fmt"

	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// The Handle methods are called by the host's media engine. The device is
// the remote device of the session reporting the event; the caller's
// session reports zero until an answer binds it.

// HandleIceCandidatesGathered sends local candidates. An empty batch sends
// nothing.
func (m *Manager) HandleIceCandidatesGathered(callID signaling.CallID, device signaling.DeviceID, candidates []signaling.IceCandidate) error {
	c, err := m.activeCall("HandleIceCandidatesGathered", callID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}
	batch := append([]signaling.IceCandidate(nil), candidates...)
	return c.post("HandleIceCandidatesGathered", func() { c.handleLocalIce(batch) })
}

// HandleIceConnected reports that media is flowing.
func (m *Manager) HandleIceConnected(callID signaling.CallID, device signaling.DeviceID) error {
	c, err := m.activeCall("HandleIceConnected", callID)
	if err != nil {
		return err
	}
	return c.post("HandleIceConnected", func() { c.handleIceConnected(device) })
}

// HandleIceDisconnected reports a temporary loss of connectivity.
func (m *Manager) HandleIceDisconnected(callID signaling.CallID, device signaling.DeviceID) error {
	c, err := m.activeCall("HandleIceDisconnected", callID)
	if err != nil {
		return err
	}
	return c.post("HandleIceDisconnected", func() { c.handleIceDisconnected(device) })
}

// HandleIceFailed ends the call with ConnectionFailure.
func (m *Manager) HandleIceFailed(callID signaling.CallID, device signaling.DeviceID) error {
	c, err := m.activeCall("HandleIceFailed", callID)
	if err != nil {
		return err
	}
	return c.post("HandleIceFailed", func() { c.handleIceFailed(device) })
}

// HandleIncomingMedia connects a received stream to the host's renderer.
func (m *Manager) HandleIncomingMedia(callID signaling.CallID, device signaling.DeviceID, media platform.IncomingMedia) error {
	c, err := m.activeCall("HandleIncomingMedia", callID)
	if err != nil {
		return err
	}
	if media == nil {
		return fmt.Errorf("handle incoming media: %w", ErrMissingExternal)
	}
	return c.post("HandleIncomingMedia", func() { c.handleIncomingMedia(media) })
}

// HandleDataChannelMessage processes a status message from the remote
// device.
func (m *Manager) HandleDataChannelMessage(callID signaling.CallID, device signaling.DeviceID, data []byte) error {
	c, err := m.activeCall("HandleDataChannelMessage", callID)
	if err != nil {
		return err
	}
	if err := limits.ValidateProcessingBuffer(data); err != nil {
		return fmt.Errorf("handle data channel message: %w", err)
	}
	payload := append([]byte(nil), data...)
	return c.post("HandleDataChannelMessage", func() { c.handleDataChannelMessage(payload) })
}
