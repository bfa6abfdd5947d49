package calling

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/taskqueue"
)

// maxAdmissionAttempts bounds how often admission re-evaluates after
// ending a glare loser, in case another call was started meanwhile.
const maxAdmissionAttempts = 3

// ReceivedOffer handles an offer from a remote device. Stale call ids are
// rejected synchronously; everything else is decided in arrival order on
// the manager queue.
func (m *Manager) ReceivedOffer(remote platform.RemotePeer, callID signaling.CallID, received signaling.ReceivedOffer) error {
	log := logrus.WithFields(logrus.Fields{
		"function":      "ReceivedOffer",
		"call_id":       callID.String(),
		"sender_device": received.SenderDeviceID,
		"age":           received.Age.String(),
	})

	if remote == nil || received.Offer == nil {
		return fmt.Errorf("received offer: %w", ErrMissingExternal)
	}
	if err := limits.ValidateOpaque(received.Offer.Opaque()); err != nil {
		log.WithError(err).Warn("Offer rejected by size limit")
		return fmt.Errorf("received offer: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	stale := m.recent.contains(callID) || (m.active != nil && m.active.id == callID)
	if _, live := m.live[callID]; live {
		stale = true
	}
	m.mu.Unlock()
	if stale {
		log.Info("Ignoring offer for a known call id")
		return fmt.Errorf("received offer %s: %w", callID, ErrStaleCallID)
	}

	m.metrics.SignalingReceived(signaling.MessageTypeOffer.String())
	log.WithField("offer", received.Offer.ToInfoString()).Info("Offer received")

	if err := m.queue.Post(func() { m.admitOffer(remote, callID, received) }); err != nil {
		return fmt.Errorf("received offer: %w", ErrManagerClosed)
	}
	return nil
}

// admitOffer runs on the manager queue.
func (m *Manager) admitOffer(remote platform.RemotePeer, callID signaling.CallID, received signaling.ReceivedOffer) {
	log := logrus.WithFields(logrus.Fields{
		"function": "admitOffer",
		"call_id":  callID.String(),
	})

	if received.Age > m.config.MaxOfferAge {
		log.WithField("max_age", m.config.MaxOfferAge.String()).Info("Offer expired")
		m.rejectOffer(remote, callID, platform.EndReasonReceivedOfferExpired, false)
		return
	}
	if !received.ReceiverDeviceIsPrimary && received.SenderDeviceFeatureLevel == signaling.FeatureLevelUnspecified {
		log.Info("Caller does not support multi-ring, ignoring on linked device")
		m.rejectOffer(remote, callID, platform.EndReasonCallerIsNotMultiring, false)
		return
	}

	for attempt := 0; attempt < maxAdmissionAttempts; attempt++ {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		active := m.active
		if active == nil {
			c := newCall(m, callID, remote, platform.DirectionIncoming, received.Offer.CallMediaType, received.ReceiverDeviceID)
			offer := received
			c.receivedOffer = &offer
			c.connectionFor(received.SenderDeviceID)
			c.fire(eventStartIncoming)
			m.localDevice = received.ReceiverDeviceID
			m.install(c)
			m.mu.Unlock()

			log.Info("Offer accepted, incoming call started")
			_ = c.post("admitOffer", c.start)
			return
		}
		m.mu.Unlock()

		if !m.isGlare(active, remote) {
			log.WithField("active_call", active.id.String()).Info("Busy with another call")
			m.rejectOffer(remote, callID, platform.EndReasonReceivedOfferWhileActive, true)
			return
		}
		if callID <= active.id {
			log.WithField("active_call", active.id.String()).Info("Glare, keeping local call")
			m.rejectOffer(remote, callID, platform.EndReasonReceivedOfferWithGlare, false)
			return
		}

		log.WithField("active_call", active.id.String()).Info("Glare, incoming call wins")
		m.endAndWait(active, platform.EndReasonGlare)
	}

	log.Warn("Could not admit offer, another call keeps becoming active")
	m.rejectOffer(remote, callID, platform.EndReasonReceivedOfferWhileActive, true)
}

// isGlare reports whether the active call is our own unanswered call to
// the same user.
func (m *Manager) isGlare(active *Call, remote platform.RemotePeer) bool {
	if active.direction != platform.DirectionOutgoing {
		return false
	}
	switch active.State() {
	case StateIdle, StateOutgoing, StateRinging:
	default:
		return false
	}
	same, err := m.platform.CompareRemotes(active.remote, remote)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "isGlare",
			"error":    err.Error(),
		}).Warn("CompareRemotes failed, treating remotes as different")
		return false
	}
	return same
}

// endAndWait ends a call and blocks until it has concluded. Call queues
// never wait on the manager queue, so this cannot deadlock.
func (m *Manager) endAndWait(c *Call, reason platform.EndReason) {
	err := c.queue.Post(func() {
		c.terminate(reason, hangupPtr(signaling.HangupNormal()), false)
	})
	if err != nil && !errors.Is(err, taskqueue.ErrClosed) {
		logrus.WithFields(logrus.Fields{
			"function": "endAndWait",
			"call_id":  c.id.String(),
			"error":    err.Error(),
		}).Warn("Could not end call")
		return
	}
	<-c.queue.Done()
}

// rejectOffer concludes an offer that never became a call.
func (m *Manager) rejectOffer(remote platform.RemotePeer, callID signaling.CallID, reason platform.EndReason, sendBusy bool) {
	m.mu.Lock()
	m.recent.add(callID)
	m.mu.Unlock()

	m.metrics.OfferRejected(reason.String())

	if sendBusy {
		if err := m.platform.OnSendBusy(remote, callID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "rejectOffer",
				"call_id":  callID.String(),
				"error":    err.Error(),
			}).Warn("Busy not sent")
		} else {
			m.metrics.SignalingSent(signaling.BusyMessage{}.MessageType().String())
		}
	}
	if err := m.platform.OnEvent(remote, reason.ApplicationEvent()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "rejectOffer",
			"error":    err.Error(),
		}).Warn("OnEvent failed")
	}
	if err := m.platform.OnCallConcluded(remote, callID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "rejectOffer",
			"error":    err.Error(),
		}).Warn("OnCallConcluded failed")
	}
}
