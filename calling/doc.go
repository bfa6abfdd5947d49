// Package calling orchestrates one-to-one calls between multi-device users.
//
// The Manager is the single entry point for a host. It accepts signaling
// received from the transport, user actions and media engine events from
// any goroutine, and turns them into signaling to send, media sessions to
// create and lifecycle callbacks for the host.
//
// # Call Lifecycle
//
// At most one call is active at a time. A call moves through
//
//	Idle -> Outgoing|Incoming -> Ringing -> Connecting -> Connected -> Ended -> Concluded
//
// with Connected falling back to Connecting while ICE reconnects. Every
// ended call reports exactly one platform.EndReason through OnEvent and
// then OnCallConcluded.
//
// Caller:
//
//	id, _ := m.Call(bob, signaling.CallMediaTypeAudio, myDevice)   // OnStartCall
//	m.Proceed(id, ctx, platform.BandwidthNormal)                    // offer sent to every device
//	m.MessageSent(id)                                               // Ringing
//	m.ReceivedAnswer(id, answer)                                    // first answer wins, Connecting
//	m.HandleIceConnected(id)                                        // Connected
//
// Callee:
//
//	m.ReceivedOffer(alice, id, offer)   // OnStartCall
//	m.Proceed(id, ctx, mode)            // Ringing
//	m.AcceptCall(id)                    // answer sent, Connecting
//	m.HandleIceConnected(id)            // Connected
//
// # Glare
//
// When an offer arrives from the user this device is already calling, the
// call with the higher CallID survives. If the incoming id is higher, the
// local outgoing call ends with Glare and the offer rings; otherwise the
// offer concludes with ReceivedOfferWithGlare. Equal ids keep the local call.
//
// # Concurrency
//
// Each call owns a taskqueue.Queue. Entry points validate the call id
// synchronously, so a stale id returns ErrCallNotActive without any
// callbacks, and then post the real work to the call's queue. Offer
// admission runs on the manager's own queue. Platform methods are invoked
// through platform.Serialized and never while the manager lock is held.
package calling
