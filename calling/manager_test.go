package calling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/metrics"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/registry"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/taskqueue"
)

var (
	callerIdentity = []byte("caller-identity-key")
	calleeIdentity = []byte("callee-identity-key")
)

const candidateLine = "candidate:1 1 udp 2122260223 192.0.2.1 50000 typ host"

func newTestManager(t *testing.T, cfg *Config) (*Manager, *mockPlatform) {
	t.Helper()
	p := newMockPlatform()
	m, err := NewManager(p, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Hangup()
		settle(t, m)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m, p
}

// settle waits for all posted work to run.
func settle(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Synchronize(ctx))
}

func remoteKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func remoteOffer(t *testing.T, kp *crypto.KeyPair) *signaling.Offer {
	t.Helper()
	offer, err := signaling.OfferFromV4(signaling.CallMediaTypeAudio, signaling.ConnectionParametersV4{
		PublicKey: kp.Public[:],
		IceUfrag:  "remoteufrag",
		IcePwd:    "remotepwd",
	})
	require.NoError(t, err)
	return offer
}

func remoteAnswer(t *testing.T, kp *crypto.KeyPair) *signaling.Answer {
	t.Helper()
	answer, err := signaling.AnswerFromV4(signaling.ConnectionParametersV4{
		PublicKey: kp.Public[:],
		IceUfrag:  "answerufrag",
		IcePwd:    "answerpwd",
	})
	require.NoError(t, err)
	return answer
}

func incomingOffer(t *testing.T, kp *crypto.KeyPair) signaling.ReceivedOffer {
	return signaling.ReceivedOffer{
		Offer:                    remoteOffer(t, kp),
		SenderDeviceID:           2,
		SenderDeviceFeatureLevel: signaling.FeatureLevelMultiRing,
		ReceiverDeviceID:         1,
		ReceiverDeviceIsPrimary:  true,
		SenderIdentityKey:        callerIdentity,
		ReceiverIdentityKey:      calleeIdentity,
	}
}

func candidates(n int) []signaling.IceCandidate {
	out := make([]signaling.IceCandidate, n)
	for i := range out {
		out[i] = signaling.IceCandidateFromV3AndV2SDP(candidateLine)
	}
	return out
}

// startOutgoing places a call to remote and lets it proceed.
func startOutgoing(t *testing.T, m *Manager, remote platform.RemotePeer) signaling.CallID {
	t.Helper()
	id, err := m.Call(remote, signaling.CallMediaTypeAudio, 1)
	require.NoError(t, err)
	require.NoError(t, m.Proceed(id, platform.CallContext{}, platform.BandwidthNormal))
	settle(t, m)
	return id
}

// startIncoming delivers an offer and lets the call ring.
func startIncoming(t *testing.T, m *Manager, callID signaling.CallID, received signaling.ReceivedOffer) {
	t.Helper()
	require.NoError(t, m.ReceivedOffer("alice", callID, received))
	settle(t, m)
	require.NoError(t, m.Proceed(callID, platform.CallContext{}, platform.BandwidthNormal))
	settle(t, m)
}

func counterValue(t *testing.T, c *metrics.Collector, name, label string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewManagerRequiresPlatform(t *testing.T) {
	m, err := NewManager(nil, nil)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrMissingExternal)
}

func TestOutgoingCallFlow(t *testing.T) {
	m, p := newTestManager(t, nil)
	remote := "bob"

	id := startOutgoing(t, m, remote)

	state, ok := m.ActiveCallState()
	require.True(t, ok)
	assert.Equal(t, StateRinging, state)
	require.Len(t, p.byMethod("OnStartCall"), 1)
	require.Len(t, p.byMethod("OnSendOffer"), 1)
	assert.Equal(t, []platform.ApplicationEvent{platform.EventRemoteRinging}, p.events())

	session := p.lastSession()
	require.NotNil(t, session)
	assert.Equal(t, signaling.DeviceID(0), session.request.RemoteDeviceID)

	offer := p.byMethod("OnSendOffer")[0].offer
	v4, ok := offer.ToV4()
	require.True(t, ok)
	assert.Equal(t, "localufrag", v4.IceUfrag)
	require.Len(t, v4.PublicKey, crypto.KeySize)

	// Before any answer, local candidates go to every device.
	require.NoError(t, m.HandleIceCandidatesGathered(id, 0, candidates(1)))
	settle(t, m)
	ice := p.byMethod("OnSendIce")
	require.Len(t, ice, 1)
	assert.True(t, ice[0].ice.Broadcast())

	// Two callee devices send candidates; only the answering one's survive.
	require.NoError(t, m.ReceivedIce(id, signaling.ReceivedIce{
		Ice: signaling.Ice{CandidatesAdded: candidates(2)}, SenderDeviceID: 7,
	}))
	require.NoError(t, m.ReceivedIce(id, signaling.ReceivedIce{
		Ice: signaling.Ice{CandidatesAdded: candidates(3)}, SenderDeviceID: 8,
	}))

	calleeKP := remoteKeyPair(t)
	require.NoError(t, m.ReceivedAnswer(id, signaling.ReceivedAnswer{
		Answer:                   remoteAnswer(t, calleeKP),
		SenderDeviceID:           7,
		SenderDeviceFeatureLevel: signaling.FeatureLevelMultiRing,
		SenderIdentityKey:        calleeIdentity,
		ReceiverIdentityKey:      callerIdentity,
	}))
	settle(t, m)

	state, _ = m.ActiveCallState()
	assert.Equal(t, StateConnecting, state)
	assert.Len(t, session.iceStrings(), 2)
	require.Len(t, session.remoteAnswers, 1)
	assert.Equal(t, signaling.V4, session.remoteAnswers[0].Version)
	assert.False(t, session.remoteAnswers[0].EnableDTLS)

	hangups := p.hangups()
	require.Len(t, hangups, 1)
	assert.Equal(t, signaling.HangupAcceptedOnAnotherDevice(7), hangups[0].Hangup)
	assert.False(t, hangups[0].UseLegacy)

	// Both sides derive matching SRTP keys.
	remoteKeys, err := crypto.NegotiateSRTPKeys(calleeKP, v4.PublicKey, callerIdentity, calleeIdentity, crypto.RoleCallee)
	require.NoError(t, err)
	localKeys := session.keys()
	require.NotNil(t, localKeys)
	assert.Equal(t, remoteKeys.Send, localKeys.Receive)
	assert.Equal(t, remoteKeys.Receive, localKeys.Send)

	// Once bound, local candidates go only to the answering device.
	require.NoError(t, m.HandleIceCandidatesGathered(id, 0, candidates(1)))
	settle(t, m)
	ice = p.byMethod("OnSendIce")
	require.Len(t, ice, 2)
	require.NotNil(t, ice[1].ice.ReceiverDeviceID)
	assert.Equal(t, signaling.DeviceID(7), *ice[1].ice.ReceiverDeviceID)

	// Ice from the losing device is ignored.
	require.NoError(t, m.ReceivedIce(id, signaling.ReceivedIce{
		Ice: signaling.Ice{CandidatesAdded: candidates(1)}, SenderDeviceID: 8,
	}))
	require.NoError(t, m.HandleIceConnected(id, 0))
	settle(t, m)
	assert.Len(t, session.iceStrings(), 2)

	state, _ = m.ActiveCallState()
	assert.Equal(t, StateConnected, state)
	assert.True(t, session.outgoing)
	assert.Len(t, session.dataMessages, 1)

	require.NoError(t, m.Hangup())
	settle(t, m)

	_, active := m.ActiveCallID()
	assert.False(t, active)
	hangups = p.hangups()
	require.Len(t, hangups, 2)
	assert.Equal(t, signaling.HangupNormal(), hangups[1].Hangup)
	assert.Equal(t, []platform.ApplicationEvent{
		platform.EventRemoteRinging,
		platform.EventRemoteAccepted,
		platform.EventEndedLocalHangup,
	}, p.events())
	require.Len(t, p.byMethod("OnCallConcluded"), 1)
	assert.Equal(t, 1, session.closeCount())
}

func TestIncomingCallFlow(t *testing.T) {
	m, p := newTestManager(t, nil)
	callerKP := remoteKeyPair(t)
	const id = signaling.CallID(1000)
	received := incomingOffer(t, callerKP)

	require.NoError(t, m.ReceivedOffer("alice", id, received))
	settle(t, m)
	state, ok := m.ActiveCallState()
	require.True(t, ok)
	assert.Equal(t, StateIncoming, state)
	require.Len(t, p.byMethod("OnStartCall"), 1)

	// Remote candidates that arrive early wait for the session.
	require.NoError(t, m.ReceivedIce(id, signaling.ReceivedIce{
		Ice: signaling.Ice{CandidatesAdded: candidates(1)}, SenderDeviceID: 2,
	}))
	// Local candidates wait for the answer.
	require.NoError(t, m.HandleIceCandidatesGathered(id, 2, candidates(2)))
	settle(t, m)
	assert.Empty(t, p.byMethod("OnSendIce"))

	require.NoError(t, m.Proceed(id, platform.CallContext{}, platform.BandwidthNormal))
	settle(t, m)
	state, _ = m.ActiveCallState()
	assert.Equal(t, StateRinging, state)
	assert.Equal(t, []platform.ApplicationEvent{platform.EventLocalRinging}, p.events())

	session := p.lastSession()
	require.NotNil(t, session)
	assert.Equal(t, signaling.DeviceID(2), session.request.RemoteDeviceID)
	require.NotNil(t, session.answeredWith)
	assert.Equal(t, signaling.V4, session.answeredWith.Version)
	assert.Len(t, session.iceStrings(), 1)
	assert.Empty(t, p.byMethod("OnSendAnswer"))

	require.NoError(t, m.AcceptCall(id))
	settle(t, m)

	answers := p.byMethod("OnSendAnswer")
	require.Len(t, answers, 1)
	assert.Equal(t, signaling.DeviceID(2), answers[0].answer.ReceiverDeviceID)
	ice := p.byMethod("OnSendIce")
	require.Len(t, ice, 1)
	require.NotNil(t, ice[0].ice.ReceiverDeviceID)
	assert.Equal(t, signaling.DeviceID(2), *ice[0].ice.ReceiverDeviceID)
	assert.Len(t, ice[0].ice.Ice.CandidatesAdded, 2)

	records := p.snapshot()
	answerAt, iceAt := -1, -1
	for i, r := range records {
		switch r.method {
		case "OnSendAnswer":
			answerAt = i
		case "OnSendIce":
			iceAt = i
		}
	}
	assert.Less(t, answerAt, iceAt, "answer goes out before buffered ice")

	answerV4, ok := answers[0].answer.Answer.ToV4()
	require.True(t, ok)
	remoteKeys, err := crypto.NegotiateSRTPKeys(callerKP, answerV4.PublicKey, callerIdentity, calleeIdentity, crypto.RoleCaller)
	require.NoError(t, err)
	assert.Equal(t, remoteKeys.Send, session.keys().Receive)

	require.NoError(t, m.HandleIceConnected(id, 2))
	settle(t, m)
	state, _ = m.ActiveCallState()
	assert.Equal(t, StateConnected, state)
	assert.Equal(t, []platform.ApplicationEvent{
		platform.EventLocalRinging,
		platform.EventLocalAccepted,
	}, p.events())
}

func TestAcceptBeforeProceedAnswersOnceReady(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(77)

	require.NoError(t, m.ReceivedOffer("alice", id, incomingOffer(t, remoteKeyPair(t))))
	settle(t, m)
	require.NoError(t, m.AcceptCall(id))
	settle(t, m)
	assert.Empty(t, p.byMethod("OnSendAnswer"))

	require.NoError(t, m.Proceed(id, platform.CallContext{}, platform.BandwidthNormal))
	settle(t, m)
	assert.Len(t, p.byMethod("OnSendAnswer"), 1)
	state, _ := m.ActiveCallState()
	assert.Equal(t, StateConnecting, state)
}

func TestEntryPointsRejectWrongCall(t *testing.T) {
	m, _ := newTestManager(t, nil)

	assert.ErrorIs(t, m.Proceed(5, platform.CallContext{}, platform.BandwidthNormal), ErrCallNotActive)
	assert.ErrorIs(t, m.Hangup(), ErrCallNotActive)
	assert.ErrorIs(t, m.SetVideoEnable(true), ErrCallNotActive)

	id := startOutgoing(t, m, "bob")
	assert.ErrorIs(t, m.AcceptCall(id), ErrInvalidState)
	assert.ErrorIs(t, m.AcceptCall(id+1), ErrCallNotActive)

	_, err := m.Call("carol", signaling.CallMediaTypeAudio, 1)
	assert.ErrorIs(t, err, ErrCallActive)

	_, err = m.Call(nil, signaling.CallMediaTypeAudio, 1)
	assert.ErrorIs(t, err, ErrMissingExternal)
}

func TestSignalingForOtherCallsIsRejectedWithoutCallbacks(t *testing.T) {
	m, p := newTestManager(t, nil)
	concluded := startOutgoing(t, m, "bob")
	require.NoError(t, m.Hangup())
	settle(t, m)

	id := startOutgoing(t, m, "bob")
	other := id + 1
	if other == concluded {
		other++
	}
	answer := remoteAnswer(t, remoteKeyPair(t))

	entryPoints := []struct {
		name string
		call func(signaling.CallID) error
	}{
		{"ReceivedAnswer", func(callID signaling.CallID) error {
			return m.ReceivedAnswer(callID, signaling.ReceivedAnswer{Answer: answer, SenderDeviceID: 2})
		}},
		{"ReceivedIce", func(callID signaling.CallID) error {
			return m.ReceivedIce(callID, signaling.ReceivedIce{SenderDeviceID: 2})
		}},
		{"ReceivedHangup", func(callID signaling.CallID) error {
			return m.ReceivedHangup(callID, signaling.ReceivedHangup{Hangup: signaling.HangupNormal(), SenderDeviceID: 2})
		}},
		{"ReceivedBusy", func(callID signaling.CallID) error {
			return m.ReceivedBusy(callID, signaling.ReceivedBusy{SenderDeviceID: 2})
		}},
		{"MessageSent", m.MessageSent},
		{"MessageSendFailure", m.MessageSendFailure},
	}

	for _, ep := range entryPoints {
		for _, target := range []struct {
			name   string
			callID signaling.CallID
		}{{"unknown id", other}, {"concluded id", concluded}} {
			t.Run(ep.name+"/"+target.name, func(t *testing.T) {
				before := p.count()
				assert.ErrorIs(t, ep.call(target.callID), ErrCallNotActive)
				settle(t, m)
				assert.Equal(t, before, p.count())
			})
		}
	}

	active, ok := m.ActiveCallID()
	require.True(t, ok)
	assert.Equal(t, id, active)
	state, _ := m.ActiveCallState()
	assert.Equal(t, StateRinging, state)
}

func TestReceivedAnswerOnIncomingCall(t *testing.T) {
	m, _ := newTestManager(t, nil)
	const id = signaling.CallID(42)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))

	err := m.ReceivedAnswer(id, signaling.ReceivedAnswer{Answer: remoteAnswer(t, remoteKeyPair(t)), SenderDeviceID: 2})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOfferWhileActiveIsBusy(t *testing.T) {
	m, p := newTestManager(t, nil)
	id := startOutgoing(t, m, "bob")

	require.NoError(t, m.ReceivedOffer("carol", 555, incomingOffer(t, remoteKeyPair(t))))
	settle(t, m)

	active, ok := m.ActiveCallID()
	require.True(t, ok)
	assert.Equal(t, id, active)
	busy := p.byMethod("OnSendBusy")
	require.Len(t, busy, 1)
	assert.Equal(t, "carol", busy[0].remote)
	assert.Contains(t, p.events(), platform.EventReceivedOfferWhileActive)

	concluded := p.byMethod("OnCallConcluded")
	require.Len(t, concluded, 1)
	assert.Equal(t, signaling.CallID(555), concluded[0].callID)
}

func TestGlareIncomingWins(t *testing.T) {
	m, p := newTestManager(t, nil)
	local := startOutgoing(t, m, "bob")
	if local == ^signaling.CallID(0) {
		t.Skip("no higher call id available")
	}
	remoteID := local + 1

	require.NoError(t, m.ReceivedOffer("bob", remoteID, incomingOffer(t, remoteKeyPair(t))))
	settle(t, m)

	active, ok := m.ActiveCallID()
	require.True(t, ok)
	assert.Equal(t, remoteID, active)
	state, _ := m.ActiveCallState()
	assert.Equal(t, StateIncoming, state)

	assert.Contains(t, p.events(), platform.EventEndedRemoteGlare)
	hangups := p.byMethod("OnSendHangup")
	require.Len(t, hangups, 1)
	assert.Equal(t, local, hangups[0].callID)
	assert.Equal(t, signaling.HangupNormal(), hangups[0].hangup.Hangup)
	assert.Empty(t, p.byMethod("OnSendBusy"))
}

func TestGlareLocalWins(t *testing.T) {
	m, p := newTestManager(t, nil)
	local := startOutgoing(t, m, "bob")
	if local <= 1 {
		t.Skip("no lower call id available")
	}

	require.NoError(t, m.ReceivedOffer("bob", local-1, incomingOffer(t, remoteKeyPair(t))))
	settle(t, m)

	active, ok := m.ActiveCallID()
	require.True(t, ok)
	assert.Equal(t, local, active)
	assert.Contains(t, p.events(), platform.EventReceivedOfferWithGlare)
	assert.Empty(t, p.byMethod("OnSendHangup"))
	assert.Empty(t, p.byMethod("OnSendBusy"))
}

func TestStaleOfferIsRejectedWithoutCallbacks(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(9)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))

	err := m.ReceivedOffer("alice", id, incomingOffer(t, remoteKeyPair(t)))
	assert.ErrorIs(t, err, ErrStaleCallID)

	require.NoError(t, m.Hangup())
	settle(t, m)

	before := p.count()
	err = m.ReceivedOffer("alice", id, incomingOffer(t, remoteKeyPair(t)))
	assert.ErrorIs(t, err, ErrStaleCallID)
	settle(t, m)
	assert.Equal(t, before, p.count())
}

func TestExpiredOffer(t *testing.T) {
	m, p := newTestManager(t, nil)
	received := incomingOffer(t, remoteKeyPair(t))
	received.Age = 121 * time.Second

	require.NoError(t, m.ReceivedOffer("alice", 10, received))
	settle(t, m)

	_, active := m.ActiveCallID()
	assert.False(t, active)
	assert.Equal(t, []platform.ApplicationEvent{platform.EventReceivedOfferExpired}, p.events())
	assert.Empty(t, p.byMethod("OnStartCall"))
	assert.Len(t, p.byMethod("OnCallConcluded"), 1)
}

func TestNonMultiringCallerIgnoredOnLinkedDevice(t *testing.T) {
	m, p := newTestManager(t, nil)
	received := incomingOffer(t, remoteKeyPair(t))
	received.ReceiverDeviceIsPrimary = false
	received.SenderDeviceFeatureLevel = signaling.FeatureLevelUnspecified

	require.NoError(t, m.ReceivedOffer("alice", 11, received))
	settle(t, m)

	assert.Equal(t, []platform.ApplicationEvent{platform.EventIgnoreCallsFromNonMultiringCallers}, p.events())
	assert.Empty(t, p.byMethod("OnStartCall"))
}

func TestEmptyIceSendsNothing(t *testing.T) {
	m, p := newTestManager(t, nil)
	id := startOutgoing(t, m, "bob")

	require.NoError(t, m.HandleIceCandidatesGathered(id, 0, nil))
	require.NoError(t, m.ReceivedIce(id, signaling.ReceivedIce{SenderDeviceID: 3}))
	settle(t, m)
	assert.Empty(t, p.byMethod("OnSendIce"))
}

func TestLargeIceBatchIsChunked(t *testing.T) {
	m, p := newTestManager(t, nil)
	id := startOutgoing(t, m, "bob")

	require.NoError(t, m.HandleIceCandidatesGathered(id, 0, candidates(70)))
	settle(t, m)

	ice := p.byMethod("OnSendIce")
	require.Len(t, ice, 2)
	assert.Len(t, ice[0].ice.Ice.CandidatesAdded, 64)
	assert.Len(t, ice[1].ice.Ice.CandidatesAdded, 6)
}

func TestCallerHangupRouting(t *testing.T) {
	tests := []struct {
		name      string
		hangup    signaling.Hangup
		wantEvent platform.ApplicationEvent
		wantSent  signaling.Hangup
	}{
		{
			name:      "declined",
			hangup:    signaling.HangupNormal(),
			wantEvent: platform.EventEndedRemoteHangup,
			wantSent:  signaling.HangupDeclinedOnAnotherDevice(5),
		},
		{
			name:      "need permission",
			hangup:    signaling.HangupNeedPermission(nil),
			wantEvent: platform.EventEndedRemoteHangupNeedPermission,
			wantSent:  signaling.HangupNormal(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, p := newTestManager(t, nil)
			id := startOutgoing(t, m, "bob")

			require.NoError(t, m.ReceivedHangup(id, signaling.ReceivedHangup{Hangup: tt.hangup, SenderDeviceID: 5}))
			settle(t, m)

			assert.Contains(t, p.events(), tt.wantEvent)
			hangups := p.hangups()
			require.Len(t, hangups, 1)
			assert.Equal(t, tt.wantSent, hangups[0].Hangup)
		})
	}
}

func TestCallerIgnoresHangupFromLosingDevice(t *testing.T) {
	m, p := newTestManager(t, nil)
	id := startOutgoing(t, m, "bob")
	require.NoError(t, m.ReceivedAnswer(id, signaling.ReceivedAnswer{
		Answer:                   remoteAnswer(t, remoteKeyPair(t)),
		SenderDeviceID:           7,
		SenderDeviceFeatureLevel: signaling.FeatureLevelMultiRing,
		SenderIdentityKey:        calleeIdentity,
		ReceiverIdentityKey:      callerIdentity,
	}))
	settle(t, m)

	require.NoError(t, m.ReceivedHangup(id, signaling.ReceivedHangup{Hangup: signaling.HangupNormal(), SenderDeviceID: 8}))
	require.NoError(t, m.ReceivedBusy(id, signaling.ReceivedBusy{SenderDeviceID: 8}))
	settle(t, m)
	_, active := m.ActiveCallID()
	assert.True(t, active)

	require.NoError(t, m.ReceivedHangup(id, signaling.ReceivedHangup{Hangup: signaling.HangupNormal(), SenderDeviceID: 7}))
	settle(t, m)
	_, active = m.ActiveCallID()
	assert.False(t, active)
	assert.Contains(t, p.events(), platform.EventEndedRemoteHangup)
}

func TestReceivedBusyEndsRingingCall(t *testing.T) {
	m, p := newTestManager(t, nil)
	id := startOutgoing(t, m, "bob")

	require.NoError(t, m.ReceivedBusy(id, signaling.ReceivedBusy{SenderDeviceID: 4}))
	settle(t, m)

	assert.Contains(t, p.events(), platform.EventEndedRemoteBusy)
	hangups := p.hangups()
	require.Len(t, hangups, 1)
	assert.Equal(t, signaling.HangupBusyOnAnotherDevice(4), hangups[0].Hangup)
}

func TestCalleeHangupRouting(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(300)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))

	// A hangup naming this device is our own answer reflected back.
	require.NoError(t, m.ReceivedHangup(id, signaling.ReceivedHangup{
		Hangup: signaling.HangupAcceptedOnAnotherDevice(1), SenderDeviceID: 2,
	}))
	// Only the calling device may end the call.
	require.NoError(t, m.ReceivedHangup(id, signaling.ReceivedHangup{
		Hangup: signaling.HangupNormal(), SenderDeviceID: 9,
	}))
	settle(t, m)
	_, active := m.ActiveCallID()
	require.True(t, active)

	require.NoError(t, m.ReceivedHangup(id, signaling.ReceivedHangup{
		Hangup: signaling.HangupAcceptedOnAnotherDevice(3), SenderDeviceID: 2,
	}))
	settle(t, m)

	_, active = m.ActiveCallID()
	assert.False(t, active)
	assert.Contains(t, p.events(), platform.EventEndedRemoteHangupAccepted)
	assert.Empty(t, p.hangups())
}

func TestCalleeDeclinedOnAnotherDevice(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(301)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))

	require.NoError(t, m.ReceivedHangup(id, signaling.ReceivedHangup{
		Hangup: signaling.HangupDeclinedOnAnotherDevice(3), SenderDeviceID: 2,
	}))
	settle(t, m)
	assert.Contains(t, p.events(), platform.EventEndedRemoteHangupDeclined)
}

func TestLegacyHangupForOldCaller(t *testing.T) {
	m, p := newTestManager(t, nil)
	received := incomingOffer(t, remoteKeyPair(t))
	received.SenderDeviceFeatureLevel = signaling.FeatureLevelUnspecified
	startIncoming(t, m, 302, received)

	require.NoError(t, m.Hangup())
	settle(t, m)

	hangups := p.hangups()
	require.Len(t, hangups, 1)
	assert.True(t, hangups[0].UseLegacy)
	assert.Contains(t, p.events(), platform.EventEndedLocalHangup)
}

func TestSendFailureEndsCall(t *testing.T) {
	m, p := newTestManager(t, nil)
	p.sendErr = errors.New("transport down")

	startOutgoing(t, m, "bob")

	_, active := m.ActiveCallID()
	assert.False(t, active)
	assert.Contains(t, p.events(), platform.EventEndedSignalingFailure)
	assert.NotContains(t, p.events(), platform.EventRemoteRinging)
}

func TestOutboundWaitsForMessageSent(t *testing.T) {
	m, p := newTestManager(t, nil)
	p.assumeSent = false

	id := startOutgoing(t, m, "bob")
	require.NoError(t, m.HandleIceCandidatesGathered(id, 0, candidates(1)))
	settle(t, m)

	state, _ := m.ActiveCallState()
	assert.Equal(t, StateOutgoing, state)
	assert.Len(t, p.byMethod("OnSendOffer"), 1)
	assert.Empty(t, p.byMethod("OnSendIce"))

	require.NoError(t, m.MessageSent(id))
	settle(t, m)
	state, _ = m.ActiveCallState()
	assert.Equal(t, StateRinging, state)
	assert.Len(t, p.byMethod("OnSendIce"), 1)
	assert.Contains(t, p.events(), platform.EventRemoteRinging)

	require.NoError(t, m.MessageSendFailure(id))
	settle(t, m)
	assert.Contains(t, p.events(), platform.EventEndedSignalingFailure)
}

func TestSetupTimeout(t *testing.T) {
	m, p := newTestManager(t, &Config{CallSetupTimeout: 30 * time.Millisecond})
	startOutgoing(t, m, "bob")

	require.Eventually(t, func() bool {
		for _, e := range p.events() {
			if e == platform.EventEndedTimeout {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	settle(t, m)
	_, active := m.ActiveCallID()
	assert.False(t, active)
	require.Len(t, p.hangups(), 1)
}

func TestDropCallSendsNothing(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(400)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))

	require.NoError(t, m.DropCall(id))
	settle(t, m)

	assert.Contains(t, p.events(), platform.EventEndedAppDroppedCall)
	assert.Empty(t, p.hangups())
	assert.Empty(t, p.byMethod("OnSendBusy"))
}

func TestResetForgetsCall(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(500)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))
	events := len(p.events())

	require.NoError(t, m.Reset())
	settle(t, m)

	_, active := m.ActiveCallID()
	assert.False(t, active)
	assert.Len(t, p.events(), events, "reset reports no end event")
	assert.Len(t, p.byMethod("OnCallConcluded"), 1)

	// The id is no longer remembered.
	assert.NoError(t, m.ReceivedOffer("alice", id, incomingOffer(t, remoteKeyPair(t))))
	settle(t, m)
	activeID, ok := m.ActiveCallID()
	require.True(t, ok)
	assert.Equal(t, id, activeID)
}

func TestCloseRefusesWhileActive(t *testing.T) {
	p := newMockPlatform()
	m, err := NewManager(p, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	startOutgoing(t, m, "bob")
	assert.ErrorIs(t, m.Close(ctx), ErrCallActive)

	require.NoError(t, m.Hangup())
	settle(t, m)
	require.NoError(t, m.Close(ctx))

	_, err = m.Call("bob", signaling.CallMediaTypeAudio, 1)
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, m.ReceivedOffer("alice", 1, incomingOffer(t, remoteKeyPair(t))), ErrManagerClosed)
}

func TestLookupCallHoldsReference(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, err := m.LookupCall(99)
	assert.ErrorIs(t, err, ErrCallNotActive)

	id := startOutgoing(t, m, "bob")
	h, err := m.LookupCall(id)
	require.NoError(t, err)

	c, err := m.CallByHandle(h)
	require.NoError(t, err)
	assert.Equal(t, id, c.ID())
	assert.Equal(t, "bob", c.Remote())
	assert.Equal(t, platform.DirectionOutgoing, c.Direction())

	require.NoError(t, m.Hangup())
	settle(t, m)

	// The host's reference keeps the call reachable after it concluded.
	c, err = m.CallByHandle(h)
	require.NoError(t, err)
	assert.Equal(t, StateConcluded, c.State())
	select {
	case <-c.Ended():
	default:
		t.Fatal("ended channel not closed")
	}

	require.NoError(t, m.ReleaseCall(h))
	_, err = m.CallByHandle(h)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}

func TestReconnectEvents(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(600)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))
	require.NoError(t, m.AcceptCall(id))
	require.NoError(t, m.HandleIceConnected(id, 2))
	settle(t, m)

	// Events for other devices do not touch the call.
	require.NoError(t, m.HandleIceDisconnected(id, 8))
	settle(t, m)
	state, _ := m.ActiveCallState()
	assert.Equal(t, StateConnected, state)

	require.NoError(t, m.HandleIceDisconnected(id, 2))
	settle(t, m)
	state, _ = m.ActiveCallState()
	assert.Equal(t, StateConnecting, state)

	require.NoError(t, m.HandleIceConnected(id, 2))
	settle(t, m)
	state, _ = m.ActiveCallState()
	assert.Equal(t, StateConnected, state)

	assert.Equal(t, []platform.ApplicationEvent{
		platform.EventLocalRinging,
		platform.EventLocalAccepted,
		platform.EventReconnecting,
		platform.EventReconnected,
	}, p.events())

	require.NoError(t, m.HandleIceFailed(id, 2))
	settle(t, m)
	assert.Contains(t, p.events(), platform.EventEndedConnectionFailure)
}

func TestDataChannelStatus(t *testing.T) {
	m, p := newTestManager(t, nil)
	const id = signaling.CallID(700)
	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))
	require.NoError(t, m.AcceptCall(id))
	require.NoError(t, m.HandleIceConnected(id, 2))
	settle(t, m)
	session := p.lastSession()

	video := &signaling.DataChannelMessage{SenderStatus: &signaling.SenderStatus{CallID: id, VideoEnabled: true}}
	require.NoError(t, m.HandleDataChannelMessage(id, 2, video.Marshal()))
	other := &signaling.DataChannelMessage{SenderStatus: &signaling.SenderStatus{CallID: id + 1, VideoEnabled: false}}
	require.NoError(t, m.HandleDataChannelMessage(id, 2, other.Marshal()))
	rate := &signaling.DataChannelMessage{ReceiverStatus: &signaling.ReceiverStatus{CallID: id, MaxBitrateBps: 100_000}}
	require.NoError(t, m.HandleDataChannelMessage(id, 2, rate.Marshal()))
	settle(t, m)

	assert.Contains(t, p.events(), platform.EventRemoteVideoEnable)
	assert.NotContains(t, p.events(), platform.EventRemoteVideoDisable)
	assert.Equal(t, uint64(100_000), session.bitrate())

	sent := len(session.dataMessages)
	require.NoError(t, m.UpdateBandwidthMode(platform.BandwidthVeryLow))
	require.NoError(t, m.SetVideoEnable(true))
	settle(t, m)
	assert.Equal(t, platform.BandwidthVeryLow.MaxBitrateBps(), session.bitrate())
	assert.Len(t, session.dataMessages, sent+2)

	require.NoError(t, m.HandleIncomingMedia(id, 2, "stream"))
	settle(t, m)
	assert.Len(t, p.byMethod("ConnectIncomingMedia"), 1)
	assert.ErrorIs(t, m.HandleIncomingMedia(id, 2, nil), ErrMissingExternal)
}

func TestPanicEndsCallWithInternalFailure(t *testing.T) {
	reports := make(chan taskqueue.Report, 4)
	m, p := newTestManager(t, &Config{ErrorReporter: func(r taskqueue.Report) { reports <- r }})
	p.createPanic = true

	id, err := m.Call("bob", signaling.CallMediaTypeAudio, 1)
	require.NoError(t, err)
	require.NoError(t, m.Proceed(id, platform.CallContext{}, platform.BandwidthNormal))

	select {
	case r := <-reports:
		assert.Contains(t, r.Queue, id.String())
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported")
	}
	require.Eventually(t, func() bool {
		_, active := m.ActiveCallID()
		return !active
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, p.events(), platform.EventEndedInternalFailure)
}

func TestCreateConnectionFailure(t *testing.T) {
	m, p := newTestManager(t, nil)
	p.createNil = true

	startOutgoing(t, m, "bob")
	assert.Contains(t, p.events(), platform.EventEndedInternalFailure)
	_, active := m.ActiveCallID()
	assert.False(t, active)
}

func TestManagerMetrics(t *testing.T) {
	collector := metrics.New(nil)
	m, p := newTestManager(t, &Config{Metrics: collector})

	startOutgoing(t, m, "bob")
	require.NoError(t, m.Hangup())
	settle(t, m)

	expired := incomingOffer(t, remoteKeyPair(t))
	expired.Age = time.Hour
	require.NoError(t, m.ReceivedOffer("alice", 12, expired))
	settle(t, m)
	require.Len(t, p.byMethod("OnCallConcluded"), 2)

	assert.Equal(t, 1.0, counterValue(t, collector, "callcore_calls_started_total", "Outgoing"))
	assert.Equal(t, 1.0, counterValue(t, collector, "callcore_calls_ended_total", "LocalHangup"))
	assert.Equal(t, 1.0, counterValue(t, collector, "callcore_signaling_sent_total", "Offer"))
	assert.Equal(t, 1.0, counterValue(t, collector, "callcore_signaling_received_total", "Offer"))
	assert.Equal(t, 1.0, counterValue(t, collector, "callcore_offers_rejected_total", "ReceivedOfferExpired"))
}

func TestCallSetupLatencyUsesTimeProvider(t *testing.T) {
	collector := metrics.New(nil)
	clock := crypto.NewManualTimeProvider(time.Unix(1_700_000_000, 0))
	m, _ := newTestManager(t, &Config{Metrics: collector, TimeProvider: clock})
	const id = signaling.CallID(900)

	startIncoming(t, m, id, incomingOffer(t, remoteKeyPair(t)))
	require.NoError(t, m.AcceptCall(id))
	settle(t, m)
	clock.Advance(3 * time.Second)
	require.NoError(t, m.HandleIceConnected(id, 2))
	settle(t, m)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() != "callcore_call_setup_seconds" {
			continue
		}
		found = true
		require.Len(t, f.GetMetric(), 1)
		h := f.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(1), h.GetSampleCount())
		assert.InDelta(t, 3.0, h.GetSampleSum(), 0.001)
	}
	assert.True(t, found)
}

func TestPeekGroupCall(t *testing.T) {
	m, p := newTestManager(t, nil)
	member := platform.GroupMember{UserID: platform.UserID{1}, MemberID: []byte{0x0a, 0x0b}}

	require.NoError(t, m.PeekGroupCall(9, "https://sfu.example/", []byte("proof"), []platform.GroupMember{member}))
	settle(t, m)
	p.mu.Lock()
	require.Len(t, p.http, 1)
	req := p.http[0]
	p.mu.Unlock()
	assert.Equal(t, platform.HTTPGet, req.Method)
	assert.Equal(t, "https://sfu.example/v1/conference/participants", req.URL)
	assert.Equal(t, "Basic cHJvb2Y=", req.Headers["Authorization"])

	body := []byte(`{"eraId":"era1","maxDevices":8,"creator":"0a0b","participants":[{"opaqueUserId":"0a0b","demuxId":16},{"opaqueUserId":"ffff","demuxId":32}]}`)
	require.NoError(t, m.ReceivedHTTPResponse(req.RequestID, platform.HTTPResponse{StatusCode: 200, Body: body}))
	settle(t, m)

	p.mu.Lock()
	info, errPeek := p.peeks[9], p.peekErrs[9]
	p.mu.Unlock()
	require.NoError(t, errPeek)
	assert.Equal(t, "era1", info.EraID)
	require.Len(t, info.Devices, 2)
	require.NotNil(t, info.Devices[0].UserID)
	assert.Equal(t, member.UserID, *info.Devices[0].UserID)
	assert.Nil(t, info.Devices[1].UserID)
	require.NotNil(t, info.Creator)
	assert.Equal(t, []platform.UserID{member.UserID}, info.JoinedMembers())

	assert.Error(t, m.ReceivedHTTPResponse(req.RequestID, platform.HTTPResponse{StatusCode: 200}))
}

func TestPeekGroupCallFailure(t *testing.T) {
	m, p := newTestManager(t, nil)

	require.NoError(t, m.PeekGroupCall(3, "https://sfu.example", []byte("proof"), nil))
	settle(t, m)
	p.mu.Lock()
	id := p.http[0].RequestID
	p.mu.Unlock()
	require.NoError(t, m.HTTPRequestFailed(id))
	settle(t, m)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Error(t, p.peekErrs[3])

	assert.Error(t, m.PeekGroupCall(4, "https://sfu.example", nil, nil))
}

func TestEndingCallIsNotActive(t *testing.T) {
	m, p := newTestManager(t, nil)
	type observed struct {
		state  CallState
		active bool
	}
	seen := make(chan observed, 1)
	p.mu.Lock()
	p.onEvent = func(event platform.ApplicationEvent) {
		if event == platform.EventEndedLocalHangup {
			state, active := m.ActiveCallState()
			seen <- observed{state, active}
		}
	}
	p.mu.Unlock()

	startOutgoing(t, m, "bob")
	require.NoError(t, m.Hangup())
	settle(t, m)

	select {
	case got := <-seen:
		assert.Equal(t, StateEnded, got.state)
		assert.False(t, got.active)
	default:
		t.Fatal("no EndedLocalHangup event")
	}
	_, active := m.ActiveCallState()
	assert.False(t, active)
}

func TestPeekGroupCallFromCallback(t *testing.T) {
	m, p := newTestManager(t, nil)
	returned := make(chan error, 1)
	p.mu.Lock()
	p.onEvent = func(event platform.ApplicationEvent) {
		if event == platform.EventReceivedOfferExpired {
			returned <- m.PeekGroupCall(5, "https://sfu.example", []byte("proof"), nil)
		}
	}
	p.mu.Unlock()

	expired := incomingOffer(t, remoteKeyPair(t))
	expired.Age = time.Hour
	require.NoError(t, m.ReceivedOffer("alice", 10, expired))

	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("PeekGroupCall called from OnEvent did not return")
	}
	settle(t, m)

	p.mu.Lock()
	require.Len(t, p.http, 1)
	id := p.http[0].RequestID
	p.mu.Unlock()
	require.NoError(t, m.HTTPRequestFailed(id))
	settle(t, m)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Error(t, p.peekErrs[5])
}

func TestGroupClientLifecycle(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, err := m.CreateGroupCallClient(nil, "https://sfu.example", platform.UserID{1}, platform.CallContext{}, platform.BandwidthNormal)
	assert.ErrorIs(t, err, ErrMissingExternal)

	id, err := m.CreateGroupCallClient([]byte("group"), "https://sfu.example", platform.UserID{1}, platform.CallContext{}, platform.BandwidthNormal)
	require.NoError(t, err)
	client, err := m.GroupCallClient(id)
	require.NoError(t, err)
	assert.Equal(t, id, client.ID())

	second, err := m.CreateGroupCallClient([]byte("group"), "https://sfu.example", platform.UserID{1}, platform.CallContext{}, platform.BandwidthNormal)
	require.NoError(t, err)
	assert.NotEqual(t, id, second)

	require.NoError(t, m.DeleteGroupCallClient(id))
	_, err = m.GroupCallClient(id)
	assert.ErrorIs(t, err, ErrUnknownGroupClient)
	assert.ErrorIs(t, m.DeleteGroupCallClient(id), ErrUnknownGroupClient)

	assert.Error(t, m.ReceivedCallMessage(platform.UserID{2}, 1, 1, nil, 0))
}
