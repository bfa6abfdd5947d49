package platform

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClientID identifies a group call client owned by the manager.
type ClientID uint32

// DemuxID identifies one device in an SFU call.
type DemuxID uint32

// UserID identifies a member of a group.
type UserID = uuid.UUID

// GroupMember is a user the local user may share media keys with.
// MemberID is the user's opaque id as the SFU reports it.
type GroupMember struct {
	UserID   UserID
	MemberID []byte
}

// ConnectionState is the state of the client's connection to the SFU.
type ConnectionState int

const (
	ConnectionNotConnected ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNotConnected:
		return "NotConnected"
	case ConnectionConnecting:
		return "Connecting"
	case ConnectionConnected:
		return "Connected"
	case ConnectionReconnecting:
		return "Reconnecting"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// JoinState is whether the local device is a participant of the call.
type JoinState int

const (
	JoinNotJoined JoinState = iota
	JoinJoining
	JoinJoined
)

func (s JoinState) String() string {
	switch s {
	case JoinNotJoined:
		return "NotJoined"
	case JoinJoining:
		return "Joining"
	case JoinJoined:
		return "Joined"
	default:
		return fmt.Sprintf("JoinState(%d)", int(s))
	}
}

// RemoteDeviceState is one entry of the roster snapshot.
type RemoteDeviceState struct {
	DemuxID           DemuxID
	UserID            UserID
	MediaKeysReceived bool
	AudioMuted        *bool
	VideoMuted        *bool
	AddedTime         time.Time
	SpeakerTime       time.Time
}

// PeekDevice is a device reported by the SFU.
type PeekDevice struct {
	DemuxID DemuxID
	UserID  *UserID
}

// PeekInfo is what the SFU reports about a call without joining it.
type PeekInfo struct {
	Devices    []PeekDevice
	Creator    *UserID
	EraID      string
	MaxDevices *uint32
}

// DeviceCount is the number of devices in the call.
func (p PeekInfo) DeviceCount() int {
	return len(p.Devices)
}

// JoinedMembers lists each identified user once, in first-seen order.
func (p PeekInfo) JoinedMembers() []UserID {
	seen := make(map[UserID]bool)
	var out []UserID
	for _, d := range p.Devices {
		if d.UserID == nil || seen[*d.UserID] {
			continue
		}
		seen[*d.UserID] = true
		out = append(out, *d.UserID)
	}
	return out
}

// Full reports whether another device would exceed MaxDevices.
func (p PeekInfo) Full() bool {
	return p.MaxDevices != nil && uint32(p.DeviceCount()) >= *p.MaxDevices
}

// GroupEndReason is why a group client stopped.
type GroupEndReason int

const (
	GroupEndDeviceExplicitlyDisconnected GroupEndReason = iota
	GroupEndServerExplicitlyDisconnected
	GroupEndCallManagerIsBusy
	GroupEndSfuClientFailedToJoin
	GroupEndFailedToCreateConnection
	GroupEndIceFailedWhileConnecting
	GroupEndIceFailedAfterConnected
	GroupEndHasMaxDevices
)

func (r GroupEndReason) String() string {
	switch r {
	case GroupEndDeviceExplicitlyDisconnected:
		return "DeviceExplicitlyDisconnected"
	case GroupEndServerExplicitlyDisconnected:
		return "ServerExplicitlyDisconnected"
	case GroupEndCallManagerIsBusy:
		return "CallManagerIsBusy"
	case GroupEndSfuClientFailedToJoin:
		return "SfuClientFailedToJoin"
	case GroupEndFailedToCreateConnection:
		return "FailedToCreateConnection"
	case GroupEndIceFailedWhileConnecting:
		return "IceFailedWhileConnecting"
	case GroupEndIceFailedAfterConnected:
		return "IceFailedAfterConnected"
	case GroupEndHasMaxDevices:
		return "HasMaxDevices"
	default:
		return fmt.Sprintf("GroupEndReason(%d)", int(r))
	}
}

// CallMessageUrgency tells the host how to deliver an opaque call message.
type CallMessageUrgency int

const (
	UrgencyDroppable CallMessageUrgency = iota
	UrgencyHandleImmediately
)
