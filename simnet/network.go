package simnet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/metrics"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/taskqueue"
)

// DefaultSFUURL is where devices find the network's SFU.
const DefaultSFUURL = "https://sfu.simnet.invalid"

// userNamespace derives stable user ids from user names.
var userNamespace = uuid.MustParse("6f0c3d52-93a4-4c4e-a2c1-5b8e0f1d7a10")

// Config tunes a Network.
type Config struct {
	// OfferAge is stamped on every delivered offer, as if it had spent
	// that long in transit.
	OfferAge time.Duration

	// SFUURL is the base URL the SFU answers on.
	SFUURL string

	// SFUMaxDevices caps group call size. Zero is unlimited.
	SFUMaxDevices uint32

	// SettleRounds bounds Settle.
	SettleRounds int

	// Metrics is shared by every device's manager when set.
	Metrics *metrics.Collector
}

// DefaultConfig returns a network that delivers instantly.
func DefaultConfig() *Config {
	return &Config{
		SFUURL:       DefaultSFUURL,
		SettleRounds: 64,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.SFUURL == "" {
		out.SFUURL = d.SFUURL
	}
	if out.SettleRounds <= 0 {
		out.SettleRounds = d.SettleRounds
	}
	return &out
}

// UserID returns the group user id of a named user.
func UserID(name string) platform.UserID {
	return uuid.NewSHA1(userNamespace, []byte(name))
}

// Network connects simulated devices. It is safe for concurrent use.
type Network struct {
	config *Config
	queue  *taskqueue.Queue
	sfu    *SFU

	// posted counts deliveries so Settle can tell when work stops.
	posted atomic.Uint64

	mu      sync.Mutex
	devices map[string][]*Device
	order   []string
	closed  bool
}

// New creates an empty network. config may be nil for the defaults.
func New(config *Config) *Network {
	cfg := config.withDefaults()
	n := &Network{
		config:  cfg,
		devices: make(map[string][]*Device),
	}
	n.queue = taskqueue.New("simnet", 0, func(r taskqueue.Report) {
		logrus.WithFields(logrus.Fields{
			"function": "deliver",
			"panic":    fmt.Sprint(r.Panic),
		}).Error("Recovered panic delivering simulated traffic")
	})
	n.sfu = NewSFU(cfg.SFUMaxDevices)

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"sfu_url":   cfg.SFUURL,
		"offer_age": cfg.OfferAge.String(),
	}).Debug("Simulated network created")
	return n
}

// SFU returns the network's group call server.
func (n *Network) SFU() *SFU { return n.sfu }

// SFUURL is the base URL devices should use for group calls.
func (n *Network) SFUURL() string { return n.config.SFUURL }

// AddDevice attaches a new device with its own call manager.
func (n *Network) AddDevice(cfg DeviceConfig) (*Device, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, taskqueue.ErrClosed
	}
	for _, d := range n.devices[cfg.User] {
		if d.config.ID == cfg.ID {
			return nil, fmt.Errorf("add device %s/%d: %w", cfg.User, cfg.ID, ErrDuplicateDevice)
		}
	}

	d, err := newDevice(n, cfg)
	if err != nil {
		return nil, err
	}
	if _, ok := n.devices[cfg.User]; !ok {
		n.order = append(n.order, cfg.User)
	}
	n.devices[cfg.User] = append(n.devices[cfg.User], d)

	logrus.WithFields(logrus.Fields{
		"function": "AddDevice",
		"user":     cfg.User,
		"device":   cfg.ID,
		"primary":  cfg.Primary,
	}).Debug("Device joined network")
	return d, nil
}

// Device finds a user's device.
func (n *Network) Device(user string, id signaling.DeviceID) (*Device, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, d := range n.devices[user] {
		if d.config.ID == id {
			return d, true
		}
	}
	return nil, false
}

// Devices lists a user's devices in the order they joined.
func (n *Network) Devices(user string) []*Device {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Device(nil), n.devices[user]...)
}

func (n *Network) allDevices() []*Device {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*Device
	for _, user := range n.order {
		out = append(out, n.devices[user]...)
	}
	return out
}

// userByID maps a group user id back to its name.
func (n *Network) userByID(id platform.UserID) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, user := range n.order {
		if UserID(user) == id {
			return user, true
		}
	}
	return "", false
}

// Members is the group member list shared by every user on the network.
// A member's SFU id is its user id bytes.
func (n *Network) Members() []platform.GroupMember {
	n.mu.Lock()
	users := append([]string(nil), n.order...)
	n.mu.Unlock()

	sort.Strings(users)
	out := make([]platform.GroupMember, 0, len(users))
	for _, user := range users {
		id := UserID(user)
		out = append(out, platform.GroupMember{UserID: id, MemberID: id[:]})
	}
	return out
}

// MessageCounts totals the signaling every device has sent.
func (n *Network) MessageCounts() map[signaling.MessageType]int {
	out := make(map[signaling.MessageType]int)
	for _, d := range n.allDevices() {
		d.mu.Lock()
		for kind, count := range d.sent {
			out[kind] += count
		}
		d.mu.Unlock()
	}
	return out
}

// post queues a delivery. Deliveries run one at a time, in order.
func (n *Network) post(function string, task func()) {
	n.posted.Add(1)
	if err := n.queue.Post(task); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"error":    err.Error(),
		}).Debug("Network closed, dropping delivery")
	}
}

// deliverTo queues a delivery to one device and waits for the device to
// finish the work it causes, so deliveries land in the order they were
// sent.
func (n *Network) deliverTo(function string, to *Device, task func()) {
	n.post(function, func() {
		task()
		to.sync(function)
	})
}

// Settle runs deliveries and device work until the network is quiet.
func (n *Network) Settle(ctx context.Context) error {
	for round := 0; round < n.config.SettleRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := n.posted.Load()
		if err := n.queue.Sync(ctx); err != nil {
			return err
		}
		for _, d := range n.allDevices() {
			if err := d.manager.Synchronize(ctx); err != nil {
				return fmt.Errorf("settle %s: %w", d, err)
			}
		}
		if n.posted.Load() == before && n.queue.Len() == 0 {
			return nil
		}
	}
	return ErrNotSettled
}

// Close hangs up every device, settles and stops the managers.
func (n *Network) Close(ctx context.Context) error {
	devices := n.allDevices()
	for _, d := range devices {
		_ = d.manager.Hangup()
	}
	if err := n.Settle(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"error":    err.Error(),
		}).Warn("Network did not settle before close")
	}

	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	var firstErr error
	for _, d := range devices {
		if err := d.manager.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", d, err)
		}
	}
	n.queue.Close()
	if err := n.queue.Wait(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// recipients resolves the devices signaling to remote should reach.
func (n *Network) recipients(function string, remote platform.RemotePeer) []*Device {
	name, ok := remote.(string)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"remote":   fmt.Sprintf("%T", remote),
		}).Warn("Remote peer is not a user name")
		return nil
	}
	devices := n.Devices(name)
	if len(devices) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"user":     name,
		}).Debug("No devices for user")
	}
	return devices
}

func (n *Network) deliverOffer(from *Device, remote platform.RemotePeer, callID signaling.CallID, offer *signaling.Offer) error {
	targets := n.recipients("deliverOffer", remote)
	if len(targets) == 0 {
		return fmt.Errorf("offer to %v: %w", remote, ErrUnknownUser)
	}
	opaque := append([]byte(nil), offer.Opaque()...)
	for _, to := range targets {
		to := to
		n.deliverTo("deliverOffer", to, func() {
			wire, err := signaling.NewOffer(offer.CallMediaType, opaque)
			if err != nil {
				return
			}
			_ = to.manager.ReceivedOffer(from.config.User, callID, signaling.ReceivedOffer{
				Offer:                    wire,
				Age:                      n.config.OfferAge,
				SenderDeviceID:           from.config.ID,
				SenderDeviceFeatureLevel: from.featureLevel(),
				ReceiverDeviceID:         to.config.ID,
				ReceiverDeviceIsPrimary:  to.config.Primary,
				SenderIdentityKey:        from.IdentityKey(),
				ReceiverIdentityKey:      to.IdentityKey(),
			})
		})
	}
	return nil
}

func (n *Network) deliverAnswer(from *Device, remote platform.RemotePeer, callID signaling.CallID, send signaling.SendAnswer) error {
	name, _ := remote.(string)
	to, ok := n.Device(name, send.ReceiverDeviceID)
	if !ok {
		return fmt.Errorf("answer to %v/%d: %w", remote, send.ReceiverDeviceID, ErrUnknownUser)
	}
	opaque := append([]byte(nil), send.Answer.Opaque()...)
	n.deliverTo("deliverAnswer", to, func() {
		wire, err := signaling.NewAnswer(opaque)
		if err != nil {
			return
		}
		_ = to.manager.ReceivedAnswer(callID, signaling.ReceivedAnswer{
			Answer:                   wire,
			SenderDeviceID:           from.config.ID,
			SenderDeviceFeatureLevel: from.featureLevel(),
			SenderIdentityKey:        from.IdentityKey(),
			ReceiverIdentityKey:      to.IdentityKey(),
		})
	})
	return nil
}

func (n *Network) deliverIce(from *Device, remote platform.RemotePeer, callID signaling.CallID, send signaling.SendIce) error {
	targets := n.recipients("deliverIce", remote)
	if !send.Broadcast() {
		name, _ := remote.(string)
		to, ok := n.Device(name, *send.ReceiverDeviceID)
		if !ok {
			return fmt.Errorf("ice to %v/%d: %w", remote, *send.ReceiverDeviceID, ErrUnknownUser)
		}
		targets = []*Device{to}
	}
	ice := signaling.Ice{CandidatesAdded: append([]signaling.IceCandidate(nil), send.Ice.CandidatesAdded...)}
	for _, to := range targets {
		to := to
		n.deliverTo("deliverIce", to, func() {
			_ = to.manager.ReceivedIce(callID, signaling.ReceivedIce{Ice: ice, SenderDeviceID: from.config.ID})
		})
	}
	return nil
}

func (n *Network) deliverHangup(from *Device, remote platform.RemotePeer, callID signaling.CallID, send signaling.SendHangup) error {
	for _, to := range n.recipients("deliverHangup", remote) {
		to := to
		n.deliverTo("deliverHangup", to, func() {
			_ = to.manager.ReceivedHangup(callID, signaling.ReceivedHangup{Hangup: send.Hangup, SenderDeviceID: from.config.ID})
		})
	}
	return nil
}

func (n *Network) deliverBusy(from *Device, remote platform.RemotePeer, callID signaling.CallID) error {
	for _, to := range n.recipients("deliverBusy", remote) {
		to := to
		n.deliverTo("deliverBusy", to, func() {
			_ = to.manager.ReceivedBusy(callID, signaling.ReceivedBusy{SenderDeviceID: from.config.ID})
		})
	}
	return nil
}

func (n *Network) deliverCallMessage(from *Device, recipient platform.UserID, message []byte) error {
	name, ok := n.userByID(recipient)
	if !ok {
		return fmt.Errorf("call message to %s: %w", recipient, ErrUnknownUser)
	}
	payload := append([]byte(nil), message...)
	sender := UserID(from.config.User)
	for _, to := range n.Devices(name) {
		to := to
		n.deliverTo("deliverCallMessage", to, func() {
			_ = to.manager.ReceivedCallMessage(sender, from.config.ID, to.config.ID, payload, 0)
		})
	}
	return nil
}

func (n *Network) deliverHTTP(from *Device, req platform.HTTPRequest) {
	n.deliverTo("deliverHTTP", from, func() {
		resp, err := n.sfu.Handle(n.config.SFUURL, req)
		if err != nil {
			_ = from.manager.HTTPRequestFailed(req.RequestID)
			return
		}
		_ = from.manager.ReceivedHTTPResponse(req.RequestID, resp)
	})
}
