// Package platform defines everything callcore needs from its host: the
// signaling transport, the media engine, HTTP, and the callbacks that
// surface call state to the application.
//
// A host implements Platform once. The core invokes Platform methods from
// at most one goroutine at a time and never while holding its own locks,
// so a host may call back into the core from inside a callback.
//
// The value types exchanged with the host live here too: application
// events, end reasons, bandwidth modes, HTTP requests and responses, and
// the group call state snapshots.
package platform
