package calling

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// CallState is the lifecycle position of a call.
type CallState int

const (
	StateIdle CallState = iota
	StateOutgoing
	StateIncoming
	StateRinging
	StateConnecting
	StateConnected
	StateEnded
	StateConcluded
)

var stateNames = map[CallState]string{
	StateIdle:       "Idle",
	StateOutgoing:   "Outgoing",
	StateIncoming:   "Incoming",
	StateRinging:    "Ringing",
	StateConnecting: "Connecting",
	StateConnected:  "Connected",
	StateEnded:      "Ended",
	StateConcluded:  "Concluded",
}

func (s CallState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CallState(%d)", int(s))
}

func parseState(name string) CallState {
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return StateIdle
}

// Terminal reports whether the call has ended.
func (s CallState) Terminal() bool {
	return s == StateEnded || s == StateConcluded
}

const (
	eventStartOutgoing = "start_outgoing"
	eventStartIncoming = "start_incoming"
	eventRing          = "ring"
	eventAccept        = "accept"
	eventConnect       = "connect"
	eventReconnect     = "reconnect"
	eventEnd           = "end"
	eventConclude      = "conclude"
)

func newCallFSM(onChange func(from, to CallState)) *fsm.FSM {
	idle := StateIdle.String()
	outgoing := StateOutgoing.String()
	incoming := StateIncoming.String()
	ringing := StateRinging.String()
	connecting := StateConnecting.String()
	connected := StateConnected.String()
	ended := StateEnded.String()

	return fsm.NewFSM(
		idle,
		fsm.Events{
			{Name: eventStartOutgoing, Src: []string{idle}, Dst: outgoing},
			{Name: eventStartIncoming, Src: []string{idle}, Dst: incoming},
			{Name: eventRing, Src: []string{outgoing, incoming}, Dst: ringing},
			{Name: eventAccept, Src: []string{outgoing, incoming, ringing}, Dst: connecting},
			{Name: eventConnect, Src: []string{connecting}, Dst: connected},
			{Name: eventReconnect, Src: []string{connected}, Dst: connecting},
			{Name: eventEnd, Src: []string{idle, outgoing, incoming, ringing, connecting, connected}, Dst: ended},
			{Name: eventConclude, Src: []string{ended}, Dst: StateConcluded.String()},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if onChange != nil {
					onChange(parseState(e.Src), parseState(e.Dst))
				}
			},
		},
	)
}
