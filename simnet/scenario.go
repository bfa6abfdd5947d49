package simnet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/opd-ai/callcore/calling"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// Scenario is a scripted exchange between simulated devices.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, n *Network) error
}

var scenarios = []Scenario{
	{Name: "basic", Description: "one device calls another, the callee answers, the caller hangs up", Run: runBasic},
	{Name: "multi-ring", Description: "a call rings two linked devices and the second one answers", Run: runMultiRing},
	{Name: "decline", Description: "one linked device declines and the other stops ringing", Run: runDecline},
	{Name: "busy", Description: "a third user calls someone already in a call", Run: runBusy},
	{Name: "glare", Description: "two users call each other at the same moment", Run: runGlare},
	{Name: "group", Description: "two users join a group call, exchange media keys and one leaves", Run: runGroup},
}

// Scenarios lists the registered scenarios in run order.
func Scenarios() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

// LookupScenario finds a scenario by name.
func LookupScenario(name string) (Scenario, error) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
}

func addDevices(n *Network, configs ...DeviceConfig) ([]*Device, error) {
	out := make([]*Device, 0, len(configs))
	for _, cfg := range configs {
		d, err := n.AddDevice(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func expectEvent(d *Device, event platform.ApplicationEvent) error {
	if !d.HasEvent(event) {
		return fmt.Errorf("%s never saw %s (saw %v): %w", d, event, d.Events(), ErrExpectation)
	}
	return nil
}

func expectState(d *Device, want calling.CallState) error {
	_, state, ok := d.ActiveCall()
	if !ok {
		return fmt.Errorf("%s has no call, want %s: %w", d, want, ErrExpectation)
	}
	if state != want {
		return fmt.Errorf("%s is %s, want %s: %w", d, state, want, ErrExpectation)
	}
	return nil
}

func expectIdle(d *Device) error {
	if id, state, ok := d.ActiveCall(); ok {
		return fmt.Errorf("%s still has call %s in %s: %w", d, id, state, ErrExpectation)
	}
	return nil
}

// expectSymmetricKeys checks that what the caller sends with the callee
// can receive with.
func expectSymmetricKeys(caller, callee *Device, callID signaling.CallID) error {
	cs, ok := caller.Session(platform.ConnectionKindDirect, callID)
	if !ok {
		return fmt.Errorf("%s has no session: %w", caller, ErrExpectation)
	}
	ce, ok := callee.Session(platform.ConnectionKindDirect, callID)
	if !ok {
		return fmt.Errorf("%s has no session: %w", callee, ErrExpectation)
	}
	ck, ek := cs.SRTPKeys(), ce.SRTPKeys()
	if ck == nil || ek == nil {
		return fmt.Errorf("srtp keys missing: %w", ErrExpectation)
	}
	if !bytes.Equal(ck.Send.Key, ek.Receive.Key) || !bytes.Equal(ek.Send.Key, ck.Receive.Key) {
		return fmt.Errorf("srtp keys differ between %s and %s: %w", caller, callee, ErrExpectation)
	}
	return nil
}

// checks runs expectations in order and stops at the first failure.
func checks(errs ...func() error) error {
	for _, fn := range errs {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func runBasic(ctx context.Context, n *Network) error {
	ds, err := addDevices(n,
		DeviceConfig{User: "alice", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 1, Primary: true},
	)
	if err != nil {
		return err
	}
	alice, bob := ds[0], ds[1]

	id, err := alice.Call("bob", signaling.CallMediaTypeVideo)
	if err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	if err := checks(
		func() error { return expectEvent(alice, platform.EventRemoteRinging) },
		func() error { return expectEvent(bob, platform.EventLocalRinging) },
	); err != nil {
		return err
	}

	if err := bob.Accept(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	if err := checks(
		func() error { return expectState(alice, calling.StateConnected) },
		func() error { return expectState(bob, calling.StateConnected) },
		func() error { return expectSymmetricKeys(alice, bob, id) },
	); err != nil {
		return err
	}

	if err := alice.Hangup(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	return checks(
		func() error { return expectEvent(alice, platform.EventEndedLocalHangup) },
		func() error { return expectEvent(bob, platform.EventEndedRemoteHangup) },
		func() error { return expectIdle(bob) },
	)
}

func runMultiRing(ctx context.Context, n *Network) error {
	ds, err := addDevices(n,
		DeviceConfig{User: "alice", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 2},
	)
	if err != nil {
		return err
	}
	alice, phone, laptop := ds[0], ds[1], ds[2]

	id, err := alice.Call("bob", signaling.CallMediaTypeAudio)
	if err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	if err := checks(
		func() error { return expectEvent(phone, platform.EventLocalRinging) },
		func() error { return expectEvent(laptop, platform.EventLocalRinging) },
	); err != nil {
		return err
	}

	if err := laptop.Accept(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	return checks(
		func() error { return expectState(alice, calling.StateConnected) },
		func() error { return expectState(laptop, calling.StateConnected) },
		func() error { return expectSymmetricKeys(alice, laptop, id) },
		func() error { return expectEvent(phone, platform.EventEndedRemoteHangupAccepted) },
		func() error { return expectIdle(phone) },
	)
}

func runDecline(ctx context.Context, n *Network) error {
	ds, err := addDevices(n,
		DeviceConfig{User: "alice", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 2},
	)
	if err != nil {
		return err
	}
	alice, phone, laptop := ds[0], ds[1], ds[2]

	if _, err := alice.Call("bob", signaling.CallMediaTypeAudio); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	if err := phone.Hangup(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	return checks(
		func() error { return expectEvent(alice, platform.EventEndedRemoteHangup) },
		func() error { return expectEvent(laptop, platform.EventEndedRemoteHangupDeclined) },
		func() error { return expectIdle(alice) },
		func() error { return expectIdle(laptop) },
	)
}

func runBusy(ctx context.Context, n *Network) error {
	ds, err := addDevices(n,
		DeviceConfig{User: "alice", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 1, Primary: true},
		DeviceConfig{User: "carol", ID: 1, Primary: true},
	)
	if err != nil {
		return err
	}
	alice, bob, carol := ds[0], ds[1], ds[2]

	if _, err := carol.Call("bob", signaling.CallMediaTypeAudio); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	if err := bob.Accept(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}

	if _, err := alice.Call("bob", signaling.CallMediaTypeAudio); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	return checks(
		func() error { return expectEvent(alice, platform.EventEndedRemoteBusy) },
		func() error { return expectEvent(bob, platform.EventReceivedOfferWhileActive) },
		func() error { return expectIdle(alice) },
		func() error { return expectState(bob, calling.StateConnected) },
		func() error { return expectState(carol, calling.StateConnected) },
	)
}

func runGlare(ctx context.Context, n *Network) error {
	ds, err := addDevices(n,
		DeviceConfig{User: "alice", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 1, Primary: true},
	)
	if err != nil {
		return err
	}
	alice, bob := ds[0], ds[1]

	fromAlice, err := alice.Call("bob", signaling.CallMediaTypeAudio)
	if err != nil {
		return err
	}
	fromBob, err := bob.Call("alice", signaling.CallMediaTypeAudio)
	if err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}

	winner, caller, callee := fromAlice, alice, bob
	if fromBob > fromAlice {
		winner, caller, callee = fromBob, bob, alice
	}
	for _, d := range []*Device{alice, bob} {
		id, _, ok := d.ActiveCall()
		if !ok || id != winner {
			return fmt.Errorf("%s kept call %s, want %s: %w", d, id, winner, ErrExpectation)
		}
	}
	if err := checks(
		func() error { return expectEvent(callee, platform.EventEndedRemoteGlare) },
		func() error { return expectEvent(caller, platform.EventReceivedOfferWithGlare) },
	); err != nil {
		return err
	}

	if err := callee.Accept(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	return checks(
		func() error { return expectState(caller, calling.StateConnected) },
		func() error { return expectState(callee, calling.StateConnected) },
		func() error { return expectSymmetricKeys(caller, callee, winner) },
	)
}

func expectKeysFrom(d *Device, client platform.ClientID, from string) error {
	for _, remote := range d.Roster(client) {
		if remote.UserID == UserID(from) {
			if !remote.MediaKeysReceived {
				return fmt.Errorf("%s has no media key from %s: %w", d, from, ErrExpectation)
			}
			return nil
		}
	}
	return fmt.Errorf("%s does not see %s in the call: %w", d, from, ErrExpectation)
}

func runGroup(ctx context.Context, n *Network) error {
	ds, err := addDevices(n,
		DeviceConfig{User: "alice", ID: 1, Primary: true},
		DeviceConfig{User: "bob", ID: 1, Primary: true},
		DeviceConfig{User: "carol", ID: 1, Primary: true},
	)
	if err != nil {
		return err
	}
	alice, bob, carol := ds[0], ds[1], ds[2]
	groupID := []byte("simnet-group")

	ca, err := alice.CreateGroupCall(groupID)
	if err != nil {
		return err
	}
	if err := ca.Join(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	cb, err := bob.CreateGroupCall(groupID)
	if err != nil {
		return err
	}
	if err := cb.Join(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	// Alice learns about bob on her next peek.
	if err := ca.RefreshPeek(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}

	if state := alice.JoinState(ca.ID()); state != platform.JoinJoined {
		return fmt.Errorf("alice is %s: %w", state, ErrExpectation)
	}
	if state := bob.JoinState(cb.ID()); state != platform.JoinJoined {
		return fmt.Errorf("bob is %s: %w", state, ErrExpectation)
	}
	if err := checks(
		func() error { return expectKeysFrom(alice, ca.ID(), "bob") },
		func() error { return expectKeysFrom(bob, cb.ID(), "alice") },
	); err != nil {
		return err
	}

	if err := carol.PeekGroupCall(1); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	reply, ok := carol.PeekReply(1)
	if !ok || reply.Err != nil {
		return fmt.Errorf("peek failed: %v: %w", reply.Err, ErrExpectation)
	}
	if reply.Info.DeviceCount() != 2 || len(reply.Info.JoinedMembers()) != 2 {
		return fmt.Errorf("peek saw %d devices: %w", reply.Info.DeviceCount(), ErrExpectation)
	}

	if err := cb.Leave(); err != nil {
		return err
	}
	n.SFU().Remove(bob.UserID())
	if err := ca.RefreshPeek(); err != nil {
		return err
	}
	if err := n.Settle(ctx); err != nil {
		return err
	}
	if roster := alice.Roster(ca.ID()); len(roster) != 0 {
		return fmt.Errorf("alice still sees %d devices: %w", len(roster), ErrExpectation)
	}
	session, ok := alice.Session(platform.ConnectionKindGroup, signaling.CallID(ca.ID()))
	if !ok {
		return fmt.Errorf("alice has no sfu session: %w", ErrExpectation)
	}
	if ratchet, ok := session.SendRatchet(); !ok || ratchet != 1 {
		return fmt.Errorf("send key was not rotated after bob left: %w", ErrExpectation)
	}
	return nil
}
