package signaling

import "fmt"

// HangupType is the wire encoding of a hangup. The values are stable.
type HangupType int32

const (
	HangupTypeNormal                  HangupType = 0
	HangupTypeAcceptedOnAnotherDevice HangupType = 1
	HangupTypeDeclinedOnAnotherDevice HangupType = 2
	HangupTypeBusyOnAnotherDevice     HangupType = 3
	HangupTypeNeedPermission          HangupType = 4
)

// HangupTypeFromInt32 maps a wire value to a HangupType.
func HangupTypeFromInt32(v int32) (HangupType, bool) {
	if v < int32(HangupTypeNormal) || v > int32(HangupTypeNeedPermission) {
		return 0, false
	}
	return HangupType(v), true
}

func (t HangupType) String() string {
	switch t {
	case HangupTypeNormal:
		return "Normal"
	case HangupTypeAcceptedOnAnotherDevice:
		return "AcceptedOnAnotherDevice"
	case HangupTypeDeclinedOnAnotherDevice:
		return "DeclinedOnAnotherDevice"
	case HangupTypeBusyOnAnotherDevice:
		return "BusyOnAnotherDevice"
	case HangupTypeNeedPermission:
		return "NeedPermission"
	default:
		return fmt.Sprintf("HangupType(%d)", int32(t))
	}
}

// Hangup ends a call. Normal means this device hung up; the other variants
// name the device whose decision ended the call. NeedPermission may or may
// not name a device.
type Hangup struct {
	typ         HangupType
	deviceID    DeviceID
	hasDeviceID bool
}

// HangupNormal is a hangup on the sending device.
func HangupNormal() Hangup {
	return Hangup{typ: HangupTypeNormal}
}

// HangupAcceptedOnAnotherDevice tells other devices that device accepted.
func HangupAcceptedOnAnotherDevice(device DeviceID) Hangup {
	return Hangup{typ: HangupTypeAcceptedOnAnotherDevice, deviceID: device, hasDeviceID: true}
}

// HangupDeclinedOnAnotherDevice tells other devices that device declined.
func HangupDeclinedOnAnotherDevice(device DeviceID) Hangup {
	return Hangup{typ: HangupTypeDeclinedOnAnotherDevice, deviceID: device, hasDeviceID: true}
}

// HangupBusyOnAnotherDevice tells other devices that device was busy.
func HangupBusyOnAnotherDevice(device DeviceID) Hangup {
	return Hangup{typ: HangupTypeBusyOnAnotherDevice, deviceID: device, hasDeviceID: true}
}

// HangupNeedPermission reports that the callee must grant permission first.
// A nil device leaves the device unset.
func HangupNeedPermission(device *DeviceID) Hangup {
	if device == nil {
		return Hangup{typ: HangupTypeNeedPermission}
	}
	return Hangup{typ: HangupTypeNeedPermission, deviceID: *device, hasDeviceID: true}
}

// HangupFromTypeAndDeviceID decodes a received hangup. The device id is
// ignored for Normal and always taken as set for every other type, so an
// unset NeedPermission decodes as NeedPermission for device 0.
func HangupFromTypeAndDeviceID(typ HangupType, device DeviceID) (Hangup, error) {
	switch typ {
	case HangupTypeNormal:
		return HangupNormal(), nil
	case HangupTypeAcceptedOnAnotherDevice,
		HangupTypeDeclinedOnAnotherDevice,
		HangupTypeBusyOnAnotherDevice,
		HangupTypeNeedPermission:
		return Hangup{typ: typ, deviceID: device, hasDeviceID: true}, nil
	default:
		return Hangup{}, fmt.Errorf("%w: %d", ErrUnknownHangupType, int32(typ))
	}
}

// ToTypeAndDeviceID encodes the hangup for transmission. The boolean is
// false when no device is named.
func (h Hangup) ToTypeAndDeviceID() (HangupType, DeviceID, bool) {
	return h.typ, h.deviceID, h.hasDeviceID
}

// Type returns the hangup type.
func (h Hangup) Type() HangupType {
	return h.typ
}

// DeviceID returns the named device, if any.
func (h Hangup) DeviceID() (DeviceID, bool) {
	return h.deviceID, h.hasDeviceID
}

func (h Hangup) String() string {
	if !h.hasDeviceID {
		return fmt.Sprintf("%s/None", h.typ)
	}
	return fmt.Sprintf("%s/%d", h.typ, h.deviceID)
}
