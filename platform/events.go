package platform

import "fmt"

// RemotePeer is the host's handle for the remote user of a call. The core
// never inspects it; equality is decided by Platform.CompareRemotes.
type RemotePeer = any

// CallDirection is the side of a call the local device is on.
type CallDirection int

const (
	DirectionOutgoing CallDirection = iota
	DirectionIncoming
)

func (d CallDirection) String() string {
	if d == DirectionOutgoing {
		return "Outgoing"
	}
	return "Incoming"
}

// ApplicationEvent is what the host is told about a call.
type ApplicationEvent int

const (
	EventLocalRinging ApplicationEvent = iota
	EventRemoteRinging
	EventLocalAccepted
	EventRemoteAccepted
	EventReconnecting
	EventReconnected
	EventEndedLocalHangup
	EventEndedRemoteHangup
	EventEndedRemoteHangupNeedPermission
	EventEndedRemoteHangupAccepted
	EventEndedRemoteHangupDeclined
	EventEndedRemoteHangupBusy
	EventEndedRemoteBusy
	EventEndedRemoteGlare
	EventEndedTimeout
	EventEndedInternalFailure
	EventEndedSignalingFailure
	EventEndedConnectionFailure
	EventEndedAppDroppedCall
	EventReceivedOfferExpired
	EventReceivedOfferWhileActive
	EventReceivedOfferWithGlare
	EventIgnoreCallsFromNonMultiringCallers
	EventRemoteVideoEnable
	EventRemoteVideoDisable
)

var applicationEventNames = map[ApplicationEvent]string{
	EventLocalRinging:                       "LocalRinging",
	EventRemoteRinging:                      "RemoteRinging",
	EventLocalAccepted:                      "LocalAccepted",
	EventRemoteAccepted:                     "RemoteAccepted",
	EventReconnecting:                       "Reconnecting",
	EventReconnected:                        "Reconnected",
	EventEndedLocalHangup:                   "EndedLocalHangup",
	EventEndedRemoteHangup:                  "EndedRemoteHangup",
	EventEndedRemoteHangupNeedPermission:    "EndedRemoteHangupNeedPermission",
	EventEndedRemoteHangupAccepted:          "EndedRemoteHangupAccepted",
	EventEndedRemoteHangupDeclined:          "EndedRemoteHangupDeclined",
	EventEndedRemoteHangupBusy:              "EndedRemoteHangupBusy",
	EventEndedRemoteBusy:                    "EndedRemoteBusy",
	EventEndedRemoteGlare:                   "EndedRemoteGlare",
	EventEndedTimeout:                       "EndedTimeout",
	EventEndedInternalFailure:               "EndedInternalFailure",
	EventEndedSignalingFailure:              "EndedSignalingFailure",
	EventEndedConnectionFailure:             "EndedConnectionFailure",
	EventEndedAppDroppedCall:                "EndedAppDroppedCall",
	EventReceivedOfferExpired:               "ReceivedOfferExpired",
	EventReceivedOfferWhileActive:           "ReceivedOfferWhileActive",
	EventReceivedOfferWithGlare:             "ReceivedOfferWithGlare",
	EventIgnoreCallsFromNonMultiringCallers: "IgnoreCallsFromNonMultiringCallers",
	EventRemoteVideoEnable:                  "RemoteVideoEnable",
	EventRemoteVideoDisable:                 "RemoteVideoDisable",
}

func (e ApplicationEvent) String() string {
	if name, ok := applicationEventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("ApplicationEvent(%d)", int(e))
}

// EndReason is why a call ended. Every ended call reports exactly one.
type EndReason int

const (
	EndReasonLocalHangup EndReason = iota
	EndReasonRemoteHangup
	EndReasonRemoteHangupNeedPermission
	EndReasonDeclined
	EndReasonBusy
	EndReasonGlare
	EndReasonReceivedOfferExpired
	EndReasonReceivedOfferWhileActive
	EndReasonReceivedOfferWithGlare
	EndReasonSignalingFailure
	EndReasonConnectionFailure
	EndReasonInternalFailure
	EndReasonTimeout
	EndReasonAcceptedOnAnotherDevice
	EndReasonDeclinedOnAnotherDevice
	EndReasonBusyOnAnotherDevice
	EndReasonCallerIsNotMultiring
)

var endReasonEvents = map[EndReason]ApplicationEvent{
	EndReasonLocalHangup:                EventEndedLocalHangup,
	EndReasonRemoteHangup:               EventEndedRemoteHangup,
	EndReasonRemoteHangupNeedPermission: EventEndedRemoteHangupNeedPermission,
	EndReasonDeclined:                   EventEndedAppDroppedCall,
	EndReasonBusy:                       EventEndedRemoteBusy,
	EndReasonGlare:                      EventEndedRemoteGlare,
	EndReasonReceivedOfferExpired:       EventReceivedOfferExpired,
	EndReasonReceivedOfferWhileActive:   EventReceivedOfferWhileActive,
	EndReasonReceivedOfferWithGlare:     EventReceivedOfferWithGlare,
	EndReasonSignalingFailure:           EventEndedSignalingFailure,
	EndReasonConnectionFailure:          EventEndedConnectionFailure,
	EndReasonInternalFailure:            EventEndedInternalFailure,
	EndReasonTimeout:                    EventEndedTimeout,
	EndReasonAcceptedOnAnotherDevice:    EventEndedRemoteHangupAccepted,
	EndReasonDeclinedOnAnotherDevice:    EventEndedRemoteHangupDeclined,
	EndReasonBusyOnAnotherDevice:        EventEndedRemoteHangupBusy,
	EndReasonCallerIsNotMultiring:       EventIgnoreCallsFromNonMultiringCallers,
}

var endReasonNames = map[EndReason]string{
	EndReasonLocalHangup:                "LocalHangup",
	EndReasonRemoteHangup:               "RemoteHangup",
	EndReasonRemoteHangupNeedPermission: "RemoteHangupNeedPermission",
	EndReasonDeclined:                   "Declined",
	EndReasonBusy:                       "Busy",
	EndReasonGlare:                      "Glare",
	EndReasonReceivedOfferExpired:       "ReceivedOfferExpired",
	EndReasonReceivedOfferWhileActive:   "ReceivedOfferWhileActive",
	EndReasonReceivedOfferWithGlare:     "ReceivedOfferWithGlare",
	EndReasonSignalingFailure:           "SignalingFailure",
	EndReasonConnectionFailure:          "ConnectionFailure",
	EndReasonInternalFailure:            "InternalFailure",
	EndReasonTimeout:                    "Timeout",
	EndReasonAcceptedOnAnotherDevice:    "AcceptedOnAnotherDevice",
	EndReasonDeclinedOnAnotherDevice:    "DeclinedOnAnotherDevice",
	EndReasonBusyOnAnotherDevice:        "BusyOnAnotherDevice",
	EndReasonCallerIsNotMultiring:       "CallerIsNotMultiring",
}

// AllEndReasons lists every end reason.
func AllEndReasons() []EndReason {
	out := make([]EndReason, 0, len(endReasonNames))
	for r := EndReasonLocalHangup; r <= EndReasonCallerIsNotMultiring; r++ {
		out = append(out, r)
	}
	return out
}

// ApplicationEvent is the event reported to the host for this reason.
func (r EndReason) ApplicationEvent() ApplicationEvent {
	return endReasonEvents[r]
}

func (r EndReason) String() string {
	if name, ok := endReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("EndReason(%d)", int(r))
}

// EndReason maps a terminal event back to its reason.
func (e ApplicationEvent) EndReason() (EndReason, bool) {
	for reason, event := range endReasonEvents {
		if event == e {
			return reason, true
		}
	}
	return 0, false
}

// BandwidthMode caps the bitrate a device sends.
type BandwidthMode int

const (
	BandwidthVeryLow BandwidthMode = iota
	BandwidthLow
	BandwidthNormal
)

// MaxBitrateBps is the send cap for the mode.
func (m BandwidthMode) MaxBitrateBps() uint64 {
	switch m {
	case BandwidthVeryLow:
		return 125_000
	case BandwidthLow:
		return 300_000
	default:
		return 2_000_000
	}
}

func (m BandwidthMode) String() string {
	switch m {
	case BandwidthVeryLow:
		return "VeryLow"
	case BandwidthLow:
		return "Low"
	case BandwidthNormal:
		return "Normal"
	default:
		return fmt.Sprintf("BandwidthMode(%d)", int(m))
	}
}
