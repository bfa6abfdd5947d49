package calling

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/group"
	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
)

// CreateGroupCallClient creates a client for a group call on the given
// SFU. The client starts NotConnected.
func (m *Manager) CreateGroupCallClient(groupID []byte, sfuURL string, localUser platform.UserID, callContext platform.CallContext, mode platform.BandwidthMode) (platform.ClientID, error) {
	if len(groupID) == 0 || sfuURL == "" {
		return 0, fmt.Errorf("create group call client: %w", ErrMissingExternal)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrManagerClosed
	}
	id := m.nextClientID
	m.nextClientID++
	m.mu.Unlock()

	client := group.NewClient(m.config.Group, m.platform, m.http, group.Params{
		ID:          id,
		GroupID:     append([]byte(nil), groupID...),
		SFUURL:      sfuURL,
		Context:     callContext,
		LocalUserID: localUser,
		Mode:        mode,
		Busy:        m.busy,
	}, m.reportPanic)

	m.mu.Lock()
	m.groups[id] = client
	m.mu.Unlock()
	m.metrics.GroupClientCreated()

	logrus.WithFields(logrus.Fields{
		"function":  "CreateGroupCallClient",
		"client_id": id,
	}).Info("Group call client created")
	return id, nil
}

// busy reports whether a one-to-one call is in progress.
func (m *Manager) busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// GroupCallClient returns a client for direct operation.
func (m *Manager) GroupCallClient(id platform.ClientID) (*group.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", id, ErrUnknownGroupClient)
	}
	return client, nil
}

// DeleteGroupCallClient ends and forgets a client.
func (m *Manager) DeleteGroupCallClient(id platform.ClientID) error {
	m.mu.Lock()
	client, ok := m.groups[id]
	delete(m.groups, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("delete client %d: %w", id, ErrUnknownGroupClient)
	}

	client.Close()
	m.metrics.GroupClientDeleted()
	logrus.WithFields(logrus.Fields{
		"function":  "DeleteGroupCallClient",
		"client_id": id,
	}).Info("Group call client deleted")
	return nil
}

// ReceivedCallMessage handles an opaque group call message another member
// sent through the one-to-one channel. Every group client sees it.
func (m *Manager) ReceivedCallMessage(sender platform.UserID, senderDevice signaling.DeviceID, localDevice signaling.DeviceID, message []byte, age time.Duration) error {
	log := logrus.WithFields(logrus.Fields{
		"function":      "ReceivedCallMessage",
		"sender_device": senderDevice,
		"local_device":  localDevice,
		"age":           age.String(),
	})
	if err := limits.ValidateCallMessage(message); err != nil {
		log.WithError(err).Warn("Call message rejected")
		return fmt.Errorf("received call message: %w", err)
	}
	msg, err := signaling.UnmarshalCallMessage(message)
	if err != nil {
		log.WithError(err).Warn("Undecodable call message")
		return fmt.Errorf("received call message: %w", err)
	}

	m.mu.Lock()
	clients := make([]*group.Client, 0, len(m.groups))
	for _, client := range m.groups {
		clients = append(clients, client)
	}
	m.mu.Unlock()

	for _, client := range clients {
		if err := client.ReceivedCallMessage(sender, msg); err != nil {
			log.WithError(err).Debug("Client did not take call message")
		}
	}
	return nil
}

// PeekGroupCall asks the SFU about a call without a client. The answer is
// delivered through HandlePeekResponse with requestID. The request is sent
// from the manager queue, so the host may call this from inside a callback.
func (m *Manager) PeekGroupCall(requestID uint32, sfuURL string, membershipProof []byte, members []platform.GroupMember) error {
	if len(membershipProof) == 0 {
		return fmt.Errorf("peek group call: %w", group.ErrMissingProof)
	}
	proof := append([]byte(nil), membershipProof...)
	snapshot := append([]platform.GroupMember(nil), members...)

	err := m.queue.Post(func() {
		respond := func(info platform.PeekInfo, err error) {
			m.platform.HandlePeekResponse(requestID, info, err)
		}
		if _, err := group.Peek(m.http, sfuURL, proof, snapshot, respond); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "PeekGroupCall",
				"request_id": requestID,
			}).WithError(err).Warn("Peek not sent")
			respond(platform.PeekInfo{}, fmt.Errorf("peek group call: %w", err))
		}
	})
	if err != nil {
		return fmt.Errorf("peek group call: %w", ErrManagerClosed)
	}
	return nil
}

// ReceivedHTTPResponse delivers the host's answer to an HTTP request.
func (m *Manager) ReceivedHTTPResponse(requestID uint32, resp platform.HTTPResponse) error {
	if err := limits.ValidateProcessingBuffer(resp.Body); err != nil {
		_ = m.http.Failed(requestID)
		return fmt.Errorf("received http response: %w", err)
	}
	return m.http.Response(requestID, resp)
}

// HTTPRequestFailed reports that the host could not perform a request.
func (m *Manager) HTTPRequestFailed(requestID uint32) error {
	return m.http.Failed(requestID)
}
