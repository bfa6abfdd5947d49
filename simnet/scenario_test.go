package simnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/callcore/signaling"
)

func TestScenarios(t *testing.T) {
	for _, s := range Scenarios() {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			n := newTestNetwork(t, nil)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, s.Run(ctx, n))
		})
	}
}

func TestLookupScenario(t *testing.T) {
	s, err := LookupScenario("glare")
	require.NoError(t, err)
	assert.Equal(t, "glare", s.Name)
	assert.NotEmpty(t, s.Description)

	_, err = LookupScenario("conference")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestRunnerReport(t *testing.T) {
	r := NewRunner(nil)
	report, err := r.Run(context.Background(), []string{"basic", "busy"})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 0, report.Failed)

	basic := report.Results[0]
	assert.Equal(t, "basic", basic.Name)
	assert.Equal(t, StatusPassed, basic.Status)
	assert.Empty(t, basic.Error)
	assert.Equal(t, 1, basic.Messages[signaling.MessageTypeOffer])
	assert.Equal(t, 1, basic.Messages[signaling.MessageTypeAnswer])
	assert.Positive(t, basic.Messages[signaling.MessageTypeHangup])

	busy := report.Results[1]
	assert.Equal(t, 1, busy.Messages[signaling.MessageTypeBusy])
}

func TestRunnerRejectsUnknownScenarioBeforeRunning(t *testing.T) {
	report, err := NewRunner(nil).Run(context.Background(), []string{"basic", "nope"})
	assert.ErrorIs(t, err, ErrUnknownScenario)
	assert.Nil(t, report)
}

func TestRunnerRecordsFailure(t *testing.T) {
	scenario := Scenario{
		Name: "idle",
		Run: func(ctx context.Context, n *Network) error {
			d, err := n.AddDevice(DeviceConfig{User: "alice", ID: 1, Primary: true})
			require.NoError(t, err)
			return expectIdle(d)
		},
	}
	r := NewRunner(&RunnerConfig{ScenarioTimeout: time.Second})
	result := r.runOne(context.Background(), scenario)
	assert.Equal(t, StatusPassed, result.Status)

	scenario.Run = func(ctx context.Context, n *Network) error {
		d, err := n.AddDevice(DeviceConfig{User: "alice", ID: 1, Primary: true})
		require.NoError(t, err)
		return expectEvent(d, 0)
	}
	result = r.runOne(context.Background(), scenario)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, ErrExpectation.Error())

	scenario.Run = func(ctx context.Context, n *Network) error {
		<-ctx.Done()
		return ctx.Err()
	}
	result = r.runOne(context.Background(), scenario)
	assert.Equal(t, StatusTimeout, result.Status)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "PASSED", StatusPassed.String())
	assert.Equal(t, "TIMEOUT", StatusTimeout.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
}
