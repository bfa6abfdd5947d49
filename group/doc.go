// Package group implements the client side of an SFU group call.
//
// A Client connects a media session to the SFU, joins the call, keeps a
// roster of the other devices and distributes end-to-end media keys to the
// group's members. All work runs on the client's own queue; the host is
// told about every change through platform.GroupObserver with full
// snapshots, never deltas.
//
// # Lifecycle
//
//	c.Connect()            // NotConnected -> Connecting, proof requested
//	c.SetMembershipProof(p) // peek
//	c.Join()               // NotJoined -> Joining -> Joined(demuxID)
//	c.HandleIceConnected() // Connecting -> Connected
//	c.Leave()              // Joined -> NotJoined
//	c.Disconnect()         // HandleEnded(DeviceExplicitlyDisconnected)
//
// Joining a call that already has MaxDevices devices ends the client with
// HasMaxDevices. Joining while a one-to-one call is active ends it with
// CallManagerIsBusy.
//
// # Peeking
//
// Peek asks the SFU who is in a call without joining it:
//
//	GET {sfu}/v1/conference/participants
//	{"eraId":"..","maxDevices":16,"creator":"<hex>","participants":[{"opaqueUserId":"<hex>","demuxId":16}]}
//
// A 404 means there is no call. While joined, the client peeks every
// Config.PeekInterval to learn about devices joining and leaving.
package group
