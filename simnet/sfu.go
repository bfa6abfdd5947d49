package simnet

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/platform"
)

const (
	sfuParticipantsPath = "/v1/conference/participants"
	sfuDemuxStride      = 16
	sfuAddress          = "203.0.113.7"
	sfuPort             = 10000
)

// ErrSFUUnreachable is returned for requests to a URL the SFU does not
// serve. The requesting device sees an HTTP failure.
var ErrSFUUnreachable = errors.New("sfu unreachable")

type sfuParticipant struct {
	OpaqueUserID string `json:"opaqueUserId"`
	DemuxID      uint32 `json:"demuxId"`
}

type sfuPeek struct {
	EraID        string           `json:"eraId"`
	MaxDevices   *uint32          `json:"maxDevices,omitempty"`
	Creator      string           `json:"creator,omitempty"`
	Participants []sfuParticipant `json:"participants"`
}

type sfuJoinRequest struct {
	IceUfrag     string `json:"iceUfrag"`
	IcePwd       string `json:"icePwd"`
	DhePublicKey string `json:"dhePublicKey"`
}

type sfuJoinResponse struct {
	DemuxID      uint32 `json:"demuxId"`
	IP           string `json:"ip"`
	Port         uint16 `json:"port"`
	IceUfrag     string `json:"iceUfrag"`
	IcePwd       string `json:"icePwd"`
	DhePublicKey string `json:"dhePublicKey"`
}

// SFU is an in-memory selective forwarding unit hosting a single call. It
// answers peeks and joins the way the real server does; media never
// flows.
type SFU struct {
	maxDevices uint32

	mu           sync.Mutex
	keyPair      *crypto.KeyPair
	eraID        string
	creator      string
	nextDemux    uint32
	participants []sfuParticipant
	joins        int
}

// NewSFU creates an empty SFU. maxDevices of zero is unlimited.
func NewSFU(maxDevices uint32) *SFU {
	return &SFU{maxDevices: maxDevices, nextDemux: sfuDemuxStride}
}

func (s *SFU) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"era_id":   s.eraID,
	})
}

// Handle answers one request addressed to baseURL.
func (s *SFU) Handle(baseURL string, req platform.HTTPRequest) (platform.HTTPResponse, error) {
	if req.URL != strings.TrimRight(baseURL, "/")+sfuParticipantsPath {
		return platform.HTTPResponse{}, fmt.Errorf("%s: %w", req.URL, ErrSFUUnreachable)
	}
	opaque, ok := opaqueUser(req.Headers)
	if !ok {
		return platform.HTTPResponse{StatusCode: 401}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case platform.HTTPGet:
		return s.peek()
	case platform.HTTPPut:
		return s.join(opaque, req.Body)
	default:
		return platform.HTTPResponse{StatusCode: 405}, nil
	}
}

// opaqueUser recovers the member id from the Basic authorization the
// client sends. The simulated proof is the member id itself.
func opaqueUser(headers map[string]string) (string, bool) {
	auth, ok := headers["Authorization"]
	if !ok || !strings.HasPrefix(auth, "Basic ") {
		return "", false
	}
	proof, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil || len(proof) == 0 {
		return "", false
	}
	return hex.EncodeToString(proof), true
}

func (s *SFU) peek() (platform.HTTPResponse, error) {
	if len(s.participants) == 0 {
		return platform.HTTPResponse{StatusCode: 404}, nil
	}
	body := sfuPeek{
		EraID:        s.eraID,
		Creator:      s.creator,
		Participants: append([]sfuParticipant(nil), s.participants...),
	}
	if s.maxDevices > 0 {
		limit := s.maxDevices
		body.MaxDevices = &limit
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return platform.HTTPResponse{}, fmt.Errorf("encode peek: %w", err)
	}
	return platform.HTTPResponse{StatusCode: 200, Body: encoded}, nil
}

func (s *SFU) join(opaque string, raw []byte) (platform.HTTPResponse, error) {
	var req sfuJoinRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.IceUfrag == "" || req.DhePublicKey == "" {
		return platform.HTTPResponse{StatusCode: 400}, nil
	}
	if s.maxDevices > 0 && uint32(len(s.participants)) >= s.maxDevices {
		s.log("join").WithField("devices", len(s.participants)).Info("Call full, refusing join")
		return platform.HTTPResponse{StatusCode: 413}, nil
	}
	if s.keyPair == nil {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return platform.HTTPResponse{}, err
		}
		s.keyPair = kp
	}
	if len(s.participants) == 0 {
		s.eraID = uuid.NewString()
		s.creator = opaque
	}

	demux := s.nextDemux
	s.nextDemux += sfuDemuxStride
	s.participants = append(s.participants, sfuParticipant{OpaqueUserID: opaque, DemuxID: demux})
	s.joins++

	encoded, err := json.Marshal(sfuJoinResponse{
		DemuxID:      demux,
		IP:           sfuAddress,
		Port:         sfuPort,
		IceUfrag:     "sfu" + req.IceUfrag,
		IcePwd:       "sfupwd",
		DhePublicKey: hex.EncodeToString(s.keyPair.Public[:]),
	})
	if err != nil {
		return platform.HTTPResponse{}, fmt.Errorf("encode join: %w", err)
	}
	s.log("join").WithField("demux_id", demux).Debug("Device joined")
	return platform.HTTPResponse{StatusCode: 200, Body: encoded}, nil
}

// Remove drops every device of a user from the call, as when its
// connection times out at the server.
func (s *SFU) Remove(user platform.UserID) int {
	opaque := hex.EncodeToString(user[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.participants[:0]
	removed := 0
	for _, p := range s.participants {
		if p.OpaqueUserID == opaque {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.participants = kept
	return removed
}

// DeviceCount is the number of devices in the call.
func (s *SFU) DeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// Joins counts accepted joins.
func (s *SFU) Joins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joins
}
