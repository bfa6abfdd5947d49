package signaling

import (
	"fmt"
	"time"
)

// MessageType is the kind of a signaling message.
type MessageType int

const (
	MessageTypeOffer MessageType = iota
	MessageTypeAnswer
	MessageTypeIce
	MessageTypeHangup
	MessageTypeBusy
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeOffer:
		return "Offer"
	case MessageTypeAnswer:
		return "Answer"
	case MessageTypeIce:
		return "Ice"
	case MessageTypeHangup:
		return "Hangup"
	case MessageTypeBusy:
		return "Busy"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message is any signaling message a call queues for sending.
type Message interface {
	MessageType() MessageType
	fmt.Stringer
}

// MessageType implements Message.
func (o *Offer) MessageType() MessageType { return MessageTypeOffer }

// MessageType implements Message.
func (a *Answer) MessageType() MessageType { return MessageTypeAnswer }

// MessageType implements Message.
func (i *Ice) MessageType() MessageType { return MessageTypeIce }

func (i *Ice) String() string { return i.ToInfoString() }

// HangupMessage is a hangup sent with the current encoding.
type HangupMessage struct {
	Hangup Hangup
}

// MessageType implements Message.
func (HangupMessage) MessageType() MessageType { return MessageTypeHangup }

func (m HangupMessage) String() string { return "Hangup(" + m.Hangup.String() + ")" }

// LegacyHangupMessage is a hangup sent with the encoding understood by
// devices without multi-ring support.
type LegacyHangupMessage struct {
	Hangup Hangup
}

// MessageType implements Message. Legacy hangups are still hangups.
func (LegacyHangupMessage) MessageType() MessageType { return MessageTypeHangup }

func (m LegacyHangupMessage) String() string { return "LegacyHangup(" + m.Hangup.String() + ")" }

// BusyMessage tells the caller the callee is in another call.
type BusyMessage struct{}

// MessageType implements Message.
func (BusyMessage) MessageType() MessageType { return MessageTypeBusy }

func (BusyMessage) String() string { return "Busy" }

// SendAnswer is an answer addressed to exactly one device.
type SendAnswer struct {
	Answer           *Answer
	ReceiverDeviceID DeviceID
}

// SendIce is a candidate batch for one device, or for every device of the
// remote user when ReceiverDeviceID is nil.
type SendIce struct {
	Ice              Ice
	ReceiverDeviceID *DeviceID
}

// Broadcast reports whether the batch goes to every device.
func (s SendIce) Broadcast() bool {
	return s.ReceiverDeviceID == nil
}

// SendHangup is always broadcast. UseLegacy selects the legacy encoding.
type SendHangup struct {
	Hangup    Hangup
	UseLegacy bool
}

// Message returns the hangup in the encoding it will be sent with.
func (s SendHangup) Message() Message {
	if s.UseLegacy {
		return LegacyHangupMessage{Hangup: s.Hangup}
	}
	return HangupMessage{Hangup: s.Hangup}
}

// ReceivedOffer is an offer plus what the transport knows about it.
type ReceivedOffer struct {
	Offer                    *Offer
	Age                      time.Duration
	SenderDeviceID           DeviceID
	SenderDeviceFeatureLevel FeatureLevel
	ReceiverDeviceID         DeviceID
	ReceiverDeviceIsPrimary  bool
	SenderIdentityKey        []byte
	ReceiverIdentityKey      []byte
}

// ReceivedAnswer is an answer plus its sender.
type ReceivedAnswer struct {
	Answer                   *Answer
	SenderDeviceID           DeviceID
	SenderDeviceFeatureLevel FeatureLevel
	SenderIdentityKey        []byte
	ReceiverIdentityKey      []byte
}

// ReceivedIce is a candidate batch plus its sender.
type ReceivedIce struct {
	Ice            Ice
	SenderDeviceID DeviceID
}

// ReceivedHangup is a hangup plus its sender.
type ReceivedHangup struct {
	Hangup         Hangup
	SenderDeviceID DeviceID
}

// ReceivedBusy is a busy notification plus its sender.
type ReceivedBusy struct {
	SenderDeviceID DeviceID
}
