package connection

import (
	"sync"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// mockSession records what the connection asks of the media engine.
type mockSession struct {
	mu           sync.Mutex
	ice          []signaling.IceCandidate
	dataMessages [][]byte
	maxBitrate   uint64
	closeCount   int
	failData     error
}

func (m *mockSession) CreateOffer() (platform.LocalDescription, error) {
	return platform.LocalDescription{}, nil
}

func (m *mockSession) CreateAnswer(platform.RemoteDescription) (platform.LocalDescription, error) {
	return platform.LocalDescription{}, nil
}

func (m *mockSession) SetRemoteAnswer(platform.RemoteDescription) error { return nil }

func (m *mockSession) AddRemoteIceCandidates(c []signaling.IceCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ice = append(m.ice, c...)
	return nil
}

func (m *mockSession) SetSRTPKeys(*crypto.SRTPKeys) error { return nil }

func (m *mockSession) SendDataChannelMessage(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failData != nil {
		return m.failData
	}
	m.dataMessages = append(m.dataMessages, data)
	return nil
}

func (m *mockSession) SetMaxSendBitrate(bps uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxBitrate = bps
	return nil
}

func (m *mockSession) SetOutgoingMediaEnabled(bool) error { return nil }

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}
