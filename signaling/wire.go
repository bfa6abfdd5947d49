package signaling

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// VideoCodecType identifies a video codec a device can receive.
type VideoCodecType int32

const (
	VideoCodecVP8                     VideoCodecType = 8
	VideoCodecVP9                     VideoCodecType = 9
	VideoCodecH264ConstrainedBaseline VideoCodecType = 40
	VideoCodecH264ConstrainedHigh     VideoCodecType = 46
)

// VideoCodec is one entry of the receive codec list of a V4 payload.
// Level zero means no level was signaled.
type VideoCodec struct {
	Type  VideoCodecType
	Level uint32
}

// ConnectionParametersV4 is the SDP-free connection description of V4.
type ConnectionParametersV4 struct {
	PublicKey          []byte
	IceUfrag           string
	IcePwd             string
	ReceiveVideoCodecs []VideoCodec
	MaxBitrateBps      uint64
}

// V3OrV2Params is the legacy connection description: an SDP string plus,
// for V3, the sender's public key. PublicKey is nil for V2.
type V3OrV2Params struct {
	SDP       string
	PublicKey []byte
}

// Field numbers of the payload messages.
const (
	fieldLegacyPublicKey protowire.Number = 1
	fieldLegacySDP       protowire.Number = 2

	fieldCodecType  protowire.Number = 1
	fieldCodecLevel protowire.Number = 2

	fieldV4PublicKey     protowire.Number = 1
	fieldV4IceUfrag      protowire.Number = 2
	fieldV4IcePwd        protowire.Number = 3
	fieldV4ReceiveCodecs protowire.Number = 4
	fieldV4MaxBitrate    protowire.Number = 5

	fieldPayloadV3OrV2 protowire.Number = 1
	fieldPayloadV4     protowire.Number = 2

	fieldIceV3OrV2 protowire.Number = 1
	fieldIceSDP    protowire.Number = 1
)

// legacyParams mirrors the optional fields of the legacy sub-message.
type legacyParams struct {
	publicKey []byte
	sdp       string
	hasSDP    bool
}

// payload is the decoded form of an offer or answer blob. Offers and
// answers share the same layout.
type payload struct {
	legacy *legacyParams
	v4     *ConnectionParametersV4
}

func (p *payload) version() Version {
	switch {
	case p.v4 != nil:
		return V4
	case p.legacy != nil && p.legacy.publicKey != nil:
		return V3
	default:
		return V2
	}
}

func (p *payload) marshal() []byte {
	var b []byte
	if p.legacy != nil {
		b = protowire.AppendTag(b, fieldPayloadV3OrV2, protowire.BytesType)
		b = protowire.AppendBytes(b, p.legacy.marshal())
	}
	if p.v4 != nil {
		b = protowire.AppendTag(b, fieldPayloadV4, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalV4(p.v4))
	}
	return b
}

func (l *legacyParams) marshal() []byte {
	var b []byte
	if l.publicKey != nil {
		b = protowire.AppendTag(b, fieldLegacyPublicKey, protowire.BytesType)
		b = protowire.AppendBytes(b, l.publicKey)
	}
	if l.hasSDP {
		b = protowire.AppendTag(b, fieldLegacySDP, protowire.BytesType)
		b = protowire.AppendString(b, l.sdp)
	}
	return b
}

func marshalV4(v4 *ConnectionParametersV4) []byte {
	var b []byte
	if v4.PublicKey != nil {
		b = protowire.AppendTag(b, fieldV4PublicKey, protowire.BytesType)
		b = protowire.AppendBytes(b, v4.PublicKey)
	}
	if v4.IceUfrag != "" {
		b = protowire.AppendTag(b, fieldV4IceUfrag, protowire.BytesType)
		b = protowire.AppendString(b, v4.IceUfrag)
	}
	if v4.IcePwd != "" {
		b = protowire.AppendTag(b, fieldV4IcePwd, protowire.BytesType)
		b = protowire.AppendString(b, v4.IcePwd)
	}
	for _, codec := range v4.ReceiveVideoCodecs {
		var cb []byte
		cb = protowire.AppendTag(cb, fieldCodecType, protowire.VarintType)
		cb = protowire.AppendVarint(cb, uint64(codec.Type))
		if codec.Level != 0 {
			cb = protowire.AppendTag(cb, fieldCodecLevel, protowire.VarintType)
			cb = protowire.AppendVarint(cb, uint64(codec.Level))
		}
		b = protowire.AppendTag(b, fieldV4ReceiveCodecs, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}
	if v4.MaxBitrateBps != 0 {
		b = protowire.AppendTag(b, fieldV4MaxBitrate, protowire.VarintType)
		b = protowire.AppendVarint(b, v4.MaxBitrateBps)
	}
	return b
}

// fieldFunc handles one field of a message. It returns the number of bytes
// of the value it consumed, or zero to have the field skipped.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// walkFields iterates the fields of an encoded message, skipping unknown ones.
func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

// consumeBytes reads a length-delimited value, rejecting other wire types.
func consumeBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
	}
	return append([]byte{}, v...), n, nil
}

// consumeVarint reads a varint value, rejecting other wire types.
func consumeVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
	}
	return v, n, nil
}

func unmarshalPayload(b []byte) (*payload, error) {
	p := &payload{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldPayloadV3OrV2:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			l, err := unmarshalLegacy(v)
			if err != nil {
				return 0, err
			}
			p.legacy = l
			return n, nil
		case fieldPayloadV4:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			v4, err := unmarshalV4(v)
			if err != nil {
				return 0, err
			}
			p.v4 = v4
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalLegacy(b []byte) (*legacyParams, error) {
	l := &legacyParams{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldLegacyPublicKey:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			l.publicKey = v
			return n, nil
		case fieldLegacySDP:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			l.sdp = string(v)
			l.hasSDP = true
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func unmarshalV4(b []byte) (*ConnectionParametersV4, error) {
	v4 := &ConnectionParametersV4{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldV4PublicKey:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			v4.PublicKey = v
			return n, nil
		case fieldV4IceUfrag:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			v4.IceUfrag = string(v)
			return n, nil
		case fieldV4IcePwd:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			v4.IcePwd = string(v)
			return n, nil
		case fieldV4ReceiveCodecs:
			v, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			codec, err := unmarshalCodec(v)
			if err != nil {
				return 0, err
			}
			v4.ReceiveVideoCodecs = append(v4.ReceiveVideoCodecs, codec)
			return n, nil
		case fieldV4MaxBitrate:
			v, n, err := consumeVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			v4.MaxBitrateBps = v
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return v4, nil
}

func unmarshalCodec(b []byte) (VideoCodec, error) {
	var codec VideoCodec
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldCodecType:
			v, n, err := consumeVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			codec.Type = VideoCodecType(int32(v))
			return n, nil
		case fieldCodecLevel:
			v, n, err := consumeVarint(num, typ, b)
			if err != nil {
				return 0, err
			}
			codec.Level = uint32(v)
			return n, nil
		}
		return 0, nil
	})
	return codec, err
}

func marshalIceCandidate(sdp string) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, fieldIceSDP, protowire.BytesType)
	inner = protowire.AppendString(inner, sdp)

	var b []byte
	b = protowire.AppendTag(b, fieldIceV3OrV2, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// unmarshalIceCandidate returns the candidate SDP and whether it was present.
func unmarshalIceCandidate(b []byte) (string, bool, error) {
	var (
		sdp   string
		found bool
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldIceV3OrV2 {
			return 0, nil
		}
		v, n, err := consumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		err = walkFields(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num != fieldIceSDP {
				return 0, nil
			}
			s, m, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			sdp, found = string(s), true
			return m, nil
		})
		return n, err
	})
	return sdp, found, err
}
