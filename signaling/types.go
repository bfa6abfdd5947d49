package signaling

import "fmt"

// CallID identifies one call across all devices taking part in it.
type CallID uint64

// String renders the id the way it appears in logs.
func (id CallID) String() string {
	return fmt.Sprintf("0x%016x", uint64(id))
}

// DeviceID identifies one device of a user.
type DeviceID uint32

// CallMediaType is the media requested by the caller.
type CallMediaType int

const (
	CallMediaTypeAudio CallMediaType = iota
	CallMediaTypeVideo
)

func (t CallMediaType) String() string {
	switch t {
	case CallMediaTypeAudio:
		return "Audio"
	case CallMediaTypeVideo:
		return "Video"
	default:
		return fmt.Sprintf("CallMediaType(%d)", int(t))
	}
}

// FeatureLevel describes what the sending device supports.
type FeatureLevel int

const (
	// FeatureLevelUnspecified is a device that predates multi-ring.
	FeatureLevelUnspecified FeatureLevel = iota
	// FeatureLevelMultiRing is a device that can ring alongside linked devices.
	FeatureLevelMultiRing
)

func (f FeatureLevel) String() string {
	switch f {
	case FeatureLevelUnspecified:
		return "Unspecified"
	case FeatureLevelMultiRing:
		return "MultiRing"
	default:
		return fmt.Sprintf("FeatureLevel(%d)", int(f))
	}
}

// Version is the signaling protocol version of an offer or answer.
//
// V2 uses SDP and DTLS. V3 uses SDP plus a public key and no DTLS. V4 uses
// explicit connection parameters plus a public key and no DTLS.
type Version int

const (
	V2 Version = 2
	V3 Version = 3
	V4 Version = 4
)

// EnableDTLS reports whether a connection at this version runs DTLS.
func (v Version) EnableDTLS() bool {
	return v == V2
}

func (v Version) String() string {
	switch v {
	case V2, V3, V4:
		return fmt.Sprintf("V%d", int(v))
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// MinVersion returns the lower of two versions.
func MinVersion(a, b Version) Version {
	if a < b {
		return a
	}
	return b
}
