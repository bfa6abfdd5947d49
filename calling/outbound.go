package calling

import (
	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// outboundMessage is one piece of signaling waiting to be handed to the
// host. onSent runs once the host confirms delivery.
type outboundMessage struct {
	msg    signaling.Message
	send   func() error
	onSent func()
}

// outbound holds a call's signaling so that at most one message is
// awaiting MessageSent at a time.
type outbound struct {
	assumeSent bool
	pending    []outboundMessage
	awaiting   *outboundMessage
}

func (o *outbound) clear() {
	o.pending = nil
	o.awaiting = nil
}

func (c *Call) enqueue(msg outboundMessage) {
	c.outbound.pending = append(c.outbound.pending, msg)
	c.pump()
}

// pump sends queued messages until one needs confirmation.
func (c *Call) pump() {
	for !c.terminated && c.outbound.awaiting == nil && len(c.outbound.pending) > 0 {
		msg := c.outbound.pending[0]
		c.outbound.pending = c.outbound.pending[1:]

		if err := msg.send(); err != nil {
			c.log("pump").WithError(err).WithField("message", msg.msg.String()).Warn("Signaling send failed")
			c.terminate(platform.EndReasonSignalingFailure, hangupPtr(signaling.HangupNormal()), false)
			return
		}
		c.manager.metrics.SignalingSent(msg.msg.MessageType().String())

		if c.outbound.assumeSent {
			if msg.onSent != nil {
				msg.onSent()
			}
			continue
		}
		c.outbound.awaiting = &msg
	}
}

func (c *Call) messageSent() {
	msg := c.outbound.awaiting
	if msg == nil {
		c.log("messageSent").Debug("No message awaiting confirmation")
		return
	}
	c.outbound.awaiting = nil
	if msg.onSent != nil {
		msg.onSent()
	}
	c.pump()
}

func (c *Call) messageSendFailure() {
	if c.terminated {
		return
	}
	c.log("messageSendFailure").Warn("Host failed to deliver signaling")
	c.terminate(platform.EndReasonSignalingFailure, hangupPtr(signaling.HangupNormal()), false)
}

func (c *Call) enqueueIce(candidates []signaling.IceCandidate, device *signaling.DeviceID) {
	if len(candidates) == 0 {
		return
	}
	for start := 0; start < len(candidates); start += limits.MaxIceCandidatesPerMessage {
		end := start + limits.MaxIceCandidatesPerMessage
		if end > len(candidates) {
			end = len(candidates)
		}
		send := signaling.SendIce{
			Ice:              signaling.Ice{CandidatesAdded: candidates[start:end]},
			ReceiverDeviceID: device,
		}
		c.enqueue(outboundMessage{
			msg:  &send.Ice,
			send: func() error { return c.manager.platform.OnSendIce(c.remote, c.id, send) },
		})
	}
}

func (c *Call) enqueueHangup(h signaling.Hangup) {
	send := signaling.SendHangup{Hangup: h, UseLegacy: c.useLegacyHangup()}
	c.enqueue(outboundMessage{
		msg:  send.Message(),
		send: func() error { return c.manager.platform.OnSendHangup(c.remote, c.id, send) },
	})
}

// sendHangupNow bypasses the queue. Failures are only logged since the
// call is already ending.
func (c *Call) sendHangupNow(h signaling.Hangup) {
	send := signaling.SendHangup{Hangup: h, UseLegacy: c.useLegacyHangup()}
	msg := send.Message()
	if err := c.manager.platform.OnSendHangup(c.remote, c.id, send); err != nil {
		c.log("sendHangupNow").WithError(err).WithField("message", msg.String()).Warn("Hangup not sent")
		return
	}
	c.manager.metrics.SignalingSent(msg.MessageType().String())
}
