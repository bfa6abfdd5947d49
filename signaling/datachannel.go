package signaling

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldDataSenderStatus   protowire.Number = 1
	fieldDataReceiverStatus protowire.Number = 2

	fieldStatusCallID       protowire.Number = 1
	fieldSenderVideoEnabled protowire.Number = 2
	fieldReceiverMaxBitrate protowire.Number = 2

	fieldCallMessageMediaKey protowire.Number = 1

	fieldMediaKeyDemuxID protowire.Number = 1
	fieldMediaKeyCounter protowire.Number = 2
	fieldMediaKeySecret  protowire.Number = 3
)

// SenderStatus is sent over the data channel when local video is toggled.
type SenderStatus struct {
	CallID       CallID
	VideoEnabled bool
}

// ReceiverStatus asks the remote sender to cap its bitrate.
type ReceiverStatus struct {
	CallID        CallID
	MaxBitrateBps uint64
}

// DataChannelMessage is exchanged in-band once media is connected. At most
// one of the fields is normally set.
type DataChannelMessage struct {
	SenderStatus   *SenderStatus
	ReceiverStatus *ReceiverStatus
}

// Marshal encodes the message.
func (m *DataChannelMessage) Marshal() []byte {
	var b []byte
	if s := m.SenderStatus; s != nil {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldStatusCallID, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(s.CallID))
		inner = protowire.AppendTag(inner, fieldSenderVideoEnabled, protowire.VarintType)
		inner = protowire.AppendVarint(inner, protowire.EncodeBool(s.VideoEnabled))
		b = protowire.AppendTag(b, fieldDataSenderStatus, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	if r := m.ReceiverStatus; r != nil {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldStatusCallID, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(r.CallID))
		inner = protowire.AppendTag(inner, fieldReceiverMaxBitrate, protowire.VarintType)
		inner = protowire.AppendVarint(inner, r.MaxBitrateBps)
		b = protowire.AppendTag(b, fieldDataReceiverStatus, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

// UnmarshalDataChannelMessage decodes a data channel payload.
func UnmarshalDataChannelMessage(b []byte) (*DataChannelMessage, error) {
	m := &DataChannelMessage{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldDataSenderStatus:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			callID, flag, err := decodeStatus(v)
			if err != nil {
				return 0, err
			}
			m.SenderStatus = &SenderStatus{CallID: callID, VideoEnabled: protowire.DecodeBool(flag)}
			return n, nil
		case fieldDataReceiverStatus:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			callID, bitrate, err := decodeStatus(v)
			if err != nil {
				return 0, err
			}
			m.ReceiverStatus = &ReceiverStatus{CallID: callID, MaxBitrateBps: bitrate}
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("data channel message: %w", err)
	}
	return m, nil
}

// decodeStatus reads the two varint fields shared by both status messages.
func decodeStatus(b []byte) (CallID, uint64, error) {
	var (
		callID CallID
		value  uint64
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldStatusCallID:
			v, n, err := consumeVarint(num, typ, b)
			callID = CallID(v)
			return n, err
		case fieldSenderVideoEnabled:
			v, n, err := consumeVarint(num, typ, b)
			value = v
			return n, err
		}
		return 0, nil
	})
	return callID, value, err
}

// MediaKey is a group call frame encryption key, sent to other members
// through the one-to-one signaling channel.
type MediaKey struct {
	DemuxID        uint32
	RatchetCounter uint32
	Secret         []byte
}

// CallMessage is the payload of an opaque group call message.
type CallMessage struct {
	MediaKey *MediaKey
}

// Marshal encodes the message.
func (m *CallMessage) Marshal() []byte {
	var b []byte
	if k := m.MediaKey; k != nil {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldMediaKeyDemuxID, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(k.DemuxID))
		inner = protowire.AppendTag(inner, fieldMediaKeyCounter, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(k.RatchetCounter))
		inner = protowire.AppendTag(inner, fieldMediaKeySecret, protowire.BytesType)
		inner = protowire.AppendBytes(inner, k.Secret)
		b = protowire.AppendTag(b, fieldCallMessageMediaKey, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

// UnmarshalCallMessage decodes a group call message.
func UnmarshalCallMessage(b []byte) (*CallMessage, error) {
	m := &CallMessage{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldCallMessageMediaKey {
			return 0, nil
		}
		v, n, err := consumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		key := &MediaKey{}
		err = walkFields(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case fieldMediaKeyDemuxID:
				x, n, err := consumeVarint(num, typ, b)
				key.DemuxID = uint32(x)
				return n, err
			case fieldMediaKeyCounter:
				x, n, err := consumeVarint(num, typ, b)
				key.RatchetCounter = uint32(x)
				return n, err
			case fieldMediaKeySecret:
				x, n, err := consumeBytes(num, typ, b)
				key.Secret = x
				return n, err
			}
			return 0, nil
		})
		if err != nil {
			return 0, err
		}
		m.MediaKey = key
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("call message: %w", err)
	}
	return m, nil
}
