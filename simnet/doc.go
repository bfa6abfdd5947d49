// Package simnet is an in-memory signaling network for exercising call
// managers end to end without a real transport or media engine.
//
// Every Device is a platform.Platform wired to its own calling.Manager.
// Signaling a device sends is delivered to the remote user's devices on
// the network's delivery queue, fake media sessions report ICE
// connectivity as soon as both descriptions are known, and an in-memory
// SFU answers group call peeks and joins.
//
//	n := simnet.New(nil)
//	alice, _ := n.AddDevice(simnet.DeviceConfig{User: "alice", ID: 1, Primary: true})
//	bob, _ := n.AddDevice(simnet.DeviceConfig{User: "bob", ID: 1, Primary: true})
//	id, _ := alice.Call("bob", signaling.CallMediaTypeAudio)
//	_ = n.Settle(ctx)
//	_ = bob.Accept()
//	_ = n.Settle(ctx)
//
// Settle runs until no device or the network has work left, so tests
// observe a quiescent network rather than sleeping.
package simnet
