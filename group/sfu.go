package group

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/httpdispatch"
	"github.com/opd-ai/callcore/platform"
)

const participantsPath = "/v1/conference/participants"

// statusNotFound is the SFU's answer when no call exists.
const statusNotFound = 404

// statusTooManyDevices is the SFU's answer when a join would exceed
// MaxDevices.
const statusTooManyDevices = 413

type peekParticipant struct {
	OpaqueUserID string `json:"opaqueUserId"`
	DemuxID      uint32 `json:"demuxId"`
}

type peekResponse struct {
	EraID        string            `json:"eraId"`
	MaxDevices   *uint32           `json:"maxDevices,omitempty"`
	Creator      string            `json:"creator,omitempty"`
	Participants []peekParticipant `json:"participants"`
}

type joinRequest struct {
	IceUfrag     string `json:"iceUfrag"`
	IcePwd       string `json:"icePwd"`
	DhePublicKey string `json:"dhePublicKey"`
}

type joinResponse struct {
	DemuxID      uint32 `json:"demuxId"`
	IP           string `json:"ip"`
	Port         uint16 `json:"port"`
	IceUfrag     string `json:"iceUfrag"`
	IcePwd       string `json:"icePwd"`
	DhePublicKey string `json:"dhePublicKey"`
}

// joinResult is a decoded join response.
type joinResult struct {
	DemuxID      platform.DemuxID
	Address      string
	IceUfrag     string
	IcePwd       string
	DhePublicKey []byte
}

func participantsURL(sfuURL string) string {
	return strings.TrimRight(sfuURL, "/") + participantsPath
}

func authHeaders(proof []byte) map[string]string {
	return map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString(proof),
		"Content-Type":  "application/json",
	}
}

// memberIndex maps hex opaque ids to user ids.
func memberIndex(members []platform.GroupMember) map[string]platform.UserID {
	index := make(map[string]platform.UserID, len(members))
	for _, m := range members {
		if len(m.MemberID) == 0 {
			continue
		}
		index[hex.EncodeToString(m.MemberID)] = m.UserID
	}
	return index
}

// ParsePeekResponse decodes an SFU peek answer. Participants whose opaque
// id is not in members are reported without a user id. A 404 is an empty
// call, not an error.
func ParsePeekResponse(resp platform.HTTPResponse, members []platform.GroupMember) (platform.PeekInfo, error) {
	if resp.StatusCode == statusNotFound {
		return platform.PeekInfo{}, nil
	}
	if !resp.OK() {
		return platform.PeekInfo{}, fmt.Errorf("peek: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body peekResponse
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	if err := dec.Decode(&body); err != nil {
		return platform.PeekInfo{}, fmt.Errorf("peek: %w: %v", ErrBadResponse, err)
	}

	index := memberIndex(members)
	lookup := func(opaque string) *platform.UserID {
		if id, ok := index[strings.ToLower(opaque)]; ok {
			return &id
		}
		return nil
	}

	info := platform.PeekInfo{
		EraID:      body.EraID,
		MaxDevices: body.MaxDevices,
		Devices:    make([]platform.PeekDevice, 0, len(body.Participants)),
	}
	if body.Creator != "" {
		info.Creator = lookup(body.Creator)
	}
	for _, p := range body.Participants {
		info.Devices = append(info.Devices, platform.PeekDevice{
			DemuxID: platform.DemuxID(p.DemuxID),
			UserID:  lookup(p.OpaqueUserID),
		})
	}
	return info, nil
}

// Peek asks the SFU about a call. cb runs on the dispatcher's queue.
func Peek(d *httpdispatch.Dispatcher, sfuURL string, proof []byte, members []platform.GroupMember, cb func(platform.PeekInfo, error)) (uint32, error) {
	if len(proof) == 0 {
		return 0, ErrMissingProof
	}
	snapshot := append([]platform.GroupMember(nil), members...)

	logrus.WithFields(logrus.Fields{
		"function": "Peek",
		"members":  len(snapshot),
	}).Debug("Peeking group call")

	return d.Send(platform.HTTPGet, participantsURL(sfuURL), authHeaders(proof), nil,
		func(resp platform.HTTPResponse, err error) {
			if err != nil {
				cb(platform.PeekInfo{}, fmt.Errorf("peek: %w", err))
				return
			}
			cb(ParsePeekResponse(resp, snapshot))
		})
}

func encodeJoinRequest(ufrag, pwd string, publicKey []byte) ([]byte, error) {
	body, err := json.Marshal(joinRequest{
		IceUfrag:     ufrag,
		IcePwd:       pwd,
		DhePublicKey: hex.EncodeToString(publicKey),
	})
	if err != nil {
		return nil, fmt.Errorf("encode join request: %w", err)
	}
	return body, nil
}

func parseJoinResponse(resp platform.HTTPResponse) (joinResult, error) {
	if !resp.OK() {
		return joinResult{}, fmt.Errorf("join: %w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	var body joinResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return joinResult{}, fmt.Errorf("join: %w: %v", ErrBadResponse, err)
	}
	pub, err := hex.DecodeString(body.DhePublicKey)
	if err != nil {
		return joinResult{}, fmt.Errorf("join: %w: dhePublicKey: %v", ErrBadResponse, err)
	}
	if body.DemuxID == 0 || body.IceUfrag == "" || body.IcePwd == "" {
		return joinResult{}, fmt.Errorf("join: %w: missing fields", ErrBadResponse)
	}
	return joinResult{
		DemuxID:      platform.DemuxID(body.DemuxID),
		Address:      net.JoinHostPort(body.IP, strconv.Itoa(int(body.Port))),
		IceUfrag:     body.IceUfrag,
		IcePwd:       body.IcePwd,
		DhePublicKey: pub,
	}, nil
}
