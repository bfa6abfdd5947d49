package calling

import (
	"fmt"

	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// ReceivedAnswer handles an answer from one of the callee's devices. The
// first device to answer becomes the call's connection.
func (m *Manager) ReceivedAnswer(callID signaling.CallID, received signaling.ReceivedAnswer) error {
	c, err := m.activeCall("ReceivedAnswer", callID)
	if err != nil {
		return err
	}
	if received.Answer == nil {
		return fmt.Errorf("received answer: %w", ErrMissingExternal)
	}
	if err := limits.ValidateOpaque(received.Answer.Opaque()); err != nil {
		return fmt.Errorf("received answer: %w", err)
	}
	if c.direction != platform.DirectionOutgoing {
		return fmt.Errorf("received answer %s: %w", callID, ErrInvalidState)
	}
	m.metrics.SignalingReceived(signaling.MessageTypeAnswer.String())
	return c.post("ReceivedAnswer", func() { c.handleReceivedAnswer(received) })
}

// ReceivedIce hands remote candidates to the sending device's connection.
func (m *Manager) ReceivedIce(callID signaling.CallID, received signaling.ReceivedIce) error {
	c, err := m.activeCall("ReceivedIce", callID)
	if err != nil {
		return err
	}
	sizes := make([]int, len(received.Ice.CandidatesAdded))
	for i, candidate := range received.Ice.CandidatesAdded {
		sizes[i] = len(candidate.Opaque())
	}
	if err := limits.ValidateIceBatch(sizes); err != nil {
		return fmt.Errorf("received ice: %w", err)
	}
	m.metrics.SignalingReceived(signaling.MessageTypeIce.String())
	return c.post("ReceivedIce", func() { c.handleReceivedIce(received) })
}

// ReceivedHangup ends the call if the hangup applies to this device.
func (m *Manager) ReceivedHangup(callID signaling.CallID, received signaling.ReceivedHangup) error {
	c, err := m.activeCall("ReceivedHangup", callID)
	if err != nil {
		return err
	}
	m.metrics.SignalingReceived(signaling.MessageTypeHangup.String())
	return c.post("ReceivedHangup", func() { c.handleReceivedHangup(received) })
}

// ReceivedBusy ends an outgoing call that no device has answered yet.
func (m *Manager) ReceivedBusy(callID signaling.CallID, received signaling.ReceivedBusy) error {
	c, err := m.activeCall("ReceivedBusy", callID)
	if err != nil {
		return err
	}
	m.metrics.SignalingReceived(signaling.MessageTypeBusy.String())
	return c.post("ReceivedBusy", func() { c.handleReceivedBusy(received) })
}
