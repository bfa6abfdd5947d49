package signaling

import (
	"fmt"
	"strings"
)

// IceCandidate is one opaque ICE candidate. The encoding is the same for
// every protocol version.
type IceCandidate struct {
	opaque []byte
}

// NewIceCandidate wraps a candidate payload received from the signaling
// transport. The payload is decoded lazily.
func NewIceCandidate(opaque []byte) IceCandidate {
	return IceCandidate{opaque: append([]byte{}, opaque...)}
}

// IceCandidateFromV3AndV2SDP encodes a candidate line.
func IceCandidateFromV3AndV2SDP(sdp string) IceCandidate {
	return IceCandidate{opaque: marshalIceCandidate(sdp)}
}

// Opaque returns the encoded payload.
func (c IceCandidate) Opaque() []byte {
	return c.opaque
}

// ToV3AndV2SDP decodes the candidate line.
func (c IceCandidate) ToV3AndV2SDP() (string, error) {
	sdp, ok, err := unmarshalIceCandidate(c.opaque)
	if err != nil {
		return "", fmt.Errorf("ice candidate: %w", err)
	}
	if !ok {
		return "", ErrUnknownProtocolVersion
	}
	return sdp, nil
}

// ToInfoString describes the candidate for logs.
func (c IceCandidate) ToInfoString() string {
	return fmt.Sprintf("opaque.len=%d", len(c.opaque))
}

// Ice is a batch of candidates sent in one message.
type Ice struct {
	CandidatesAdded []IceCandidate
}

// Empty reports whether the batch carries no candidates.
func (i *Ice) Empty() bool {
	return i == nil || len(i.CandidatesAdded) == 0
}

// ToInfoString describes the batch for logs.
func (i *Ice) ToInfoString() string {
	parts := make([]string, 0, len(i.CandidatesAdded))
	for _, c := range i.CandidatesAdded {
		parts = append(parts, c.ToInfoString())
	}
	return fmt.Sprintf("candidates=%d [%s]", len(i.CandidatesAdded), strings.Join(parts, ", "))
}
