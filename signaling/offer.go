package signaling

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Offer is the caller's connection description. The opaque payload is
// decoded once at construction so accessors never fail on malformed input.
type Offer struct {
	CallMediaType CallMediaType

	opaque []byte
	proto  *payload
}

// NewOffer parses an opaque offer payload received from the signaling
// transport.
func NewOffer(mediaType CallMediaType, opaque []byte) (*Offer, error) {
	proto, err := unmarshalPayload(opaque)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "NewOffer",
			"opaque_len": len(opaque),
			"error":      err.Error(),
		}).Warn("Failed to decode offer payload")
		return nil, fmt.Errorf("offer: %w", err)
	}
	return &Offer{
		CallMediaType: mediaType,
		opaque:        append([]byte{}, opaque...),
		proto:         proto,
	}, nil
}

// OfferFromV4 builds an offer that only carries the V4 representation.
func OfferFromV4(mediaType CallMediaType, v4 ConnectionParametersV4) (*Offer, error) {
	p := &payload{v4: &v4}
	return NewOffer(mediaType, p.marshal())
}

// OfferFromV4AndV3AndV2 builds an offer that a V2, V3 or V4 callee can all
// understand. A nil v4 produces a V3 offer.
func OfferFromV4AndV3AndV2(mediaType CallMediaType, publicKey []byte, v4 *ConnectionParametersV4, v3OrV2SDP string) (*Offer, error) {
	p := &payload{
		legacy: &legacyParams{
			publicKey: nonNil(publicKey),
			sdp:       v3OrV2SDP,
			hasSDP:    true,
		},
		v4: v4,
	}
	return NewOffer(mediaType, p.marshal())
}

// Opaque returns the encoded payload.
func (o *Offer) Opaque() []byte {
	return o.opaque
}

// LatestVersion is the highest version the payload carries.
func (o *Offer) LatestVersion() Version {
	return o.proto.version()
}

// ToV4 returns the V4 parameters if present.
func (o *Offer) ToV4() (ConnectionParametersV4, bool) {
	return toV4(o.proto)
}

// ToV3OrV2SDP returns the legacy SDP.
func (o *Offer) ToV3OrV2SDP() (string, error) {
	params, err := toV3OrV2Params(o.proto)
	return params.SDP, err
}

// ToV3OrV2Params returns the legacy SDP and the public key (nil for V2).
func (o *Offer) ToV3OrV2Params() (V3OrV2Params, error) {
	return toV3OrV2Params(o.proto)
}

// ToInfoString describes the offer for logs.
func (o *Offer) ToInfoString() string {
	return fmt.Sprintf("opaque.len=%d\tproto.version=%s\ttype=%s", len(o.opaque), o.LatestVersion(), o.CallMediaType)
}

func (o *Offer) String() string {
	return o.ToInfoString()
}

// Answer is the callee's connection description.
type Answer struct {
	opaque []byte
	proto  *payload
}

// NewAnswer parses an opaque answer payload received from the signaling
// transport.
func NewAnswer(opaque []byte) (*Answer, error) {
	proto, err := unmarshalPayload(opaque)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "NewAnswer",
			"opaque_len": len(opaque),
			"error":      err.Error(),
		}).Warn("Failed to decode answer payload")
		return nil, fmt.Errorf("answer: %w", err)
	}
	return &Answer{
		opaque: append([]byte{}, opaque...),
		proto:  proto,
	}, nil
}

// AnswerFromV4 builds an answer that only carries the V4 representation.
func AnswerFromV4(v4 ConnectionParametersV4) (*Answer, error) {
	p := &payload{v4: &v4}
	return NewAnswer(p.marshal())
}

// AnswerFromV3AndV2SDP builds a V3 answer.
func AnswerFromV3AndV2SDP(publicKey []byte, sdp string) (*Answer, error) {
	p := &payload{legacy: &legacyParams{publicKey: nonNil(publicKey), sdp: sdp, hasSDP: true}}
	return NewAnswer(p.marshal())
}

// AnswerFromV2SDP builds a V2 answer, used when the caller only offered V2.
func AnswerFromV2SDP(sdp string) (*Answer, error) {
	p := &payload{legacy: &legacyParams{sdp: sdp, hasSDP: true}}
	return NewAnswer(p.marshal())
}

// Opaque returns the encoded payload.
func (a *Answer) Opaque() []byte {
	return a.opaque
}

// LatestVersion is the highest version the payload carries.
func (a *Answer) LatestVersion() Version {
	return a.proto.version()
}

// ToV4 returns the V4 parameters if present.
func (a *Answer) ToV4() (ConnectionParametersV4, bool) {
	return toV4(a.proto)
}

// ToV3OrV2SDP returns the legacy SDP.
func (a *Answer) ToV3OrV2SDP() (string, error) {
	params, err := toV3OrV2Params(a.proto)
	return params.SDP, err
}

// ToV3OrV2Params returns the legacy SDP and the public key (nil for V2).
func (a *Answer) ToV3OrV2Params() (V3OrV2Params, error) {
	return toV3OrV2Params(a.proto)
}

// ToInfoString describes the answer for logs.
func (a *Answer) ToInfoString() string {
	return fmt.Sprintf("opaque.len=%d\tproto.version=%s", len(a.opaque), a.LatestVersion())
}

func (a *Answer) String() string {
	return a.ToInfoString()
}

func toV4(p *payload) (ConnectionParametersV4, bool) {
	if p.v4 == nil {
		return ConnectionParametersV4{}, false
	}
	v4 := *p.v4
	v4.ReceiveVideoCodecs = append([]VideoCodec(nil), p.v4.ReceiveVideoCodecs...)
	return v4, true
}

func toV3OrV2Params(p *payload) (V3OrV2Params, error) {
	if p.legacy == nil || !p.legacy.hasSDP {
		return V3OrV2Params{}, ErrUnknownProtocolVersion
	}
	return V3OrV2Params{SDP: p.legacy.sdp, PublicKey: p.legacy.publicKey}, nil
}

// nonNil keeps an empty public key distinguishable from an absent one.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
