package signaling

import (
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
)

// ErrNoIceCredentials indicates an SDP without ice-ufrag/ice-pwd attributes.
var ErrNoIceCredentials = errors.New("sdp has no ice credentials")

const (
	attrIceUfrag = "ice-ufrag"
	attrIcePwd   = "ice-pwd"
)

// IceCredentials are the ICE username fragment and password of a session.
type IceCredentials struct {
	Ufrag string
	Pwd   string
}

// ParseIceCredentials extracts the ICE credentials from a session
// description. Session-level attributes win over media sections.
func ParseIceCredentials(raw string) (IceCredentials, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return IceCredentials{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var creds IceCredentials
	collect := func(attrs []sdp.Attribute) {
		for _, attr := range attrs {
			switch attr.Key {
			case attrIceUfrag:
				if creds.Ufrag == "" {
					creds.Ufrag = attr.Value
				}
			case attrIcePwd:
				if creds.Pwd == "" {
					creds.Pwd = attr.Value
				}
			}
		}
	}
	collect(desc.Attributes)
	for _, media := range desc.MediaDescriptions {
		collect(media.Attributes)
	}

	if creds.Ufrag == "" || creds.Pwd == "" {
		return IceCredentials{}, ErrNoIceCredentials
	}
	return creds, nil
}

// BuildSessionDescription renders a minimal session description carrying
// the given ICE credentials and one section per media kind.
func BuildSessionDescription(sessionID uint64, creds IceCredentials, host string, media ...string) (string, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: 2,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: sdp.SessionName("-"),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		Attributes: []sdp.Attribute{
			{Key: attrIceUfrag, Value: creds.Ufrag},
			{Key: attrIcePwd, Value: creds.Pwd},
		},
	}

	for _, kind := range media {
		desc.MediaDescriptions = append(desc.MediaDescriptions, &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   kind,
				Port:    sdp.RangedPort{Value: 9},
				Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
				Formats: []string{"96"},
			},
			ConnectionInformation: &sdp.ConnectionInformation{
				NetworkType: "IN",
				AddressType: "IP4",
				Address:     &sdp.Address{Address: host},
			},
			Attributes: []sdp.Attribute{{Key: "sendrecv"}},
		})
	}

	out, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal session description: %w", err)
	}
	return string(out), nil
}
