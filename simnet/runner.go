package simnet

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/signaling"
)

// Status is the outcome of a scenario.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusPassed
	StatusFailed
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusPassed:
		return "PASSED"
	case StatusFailed:
		return "FAILED"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Result is one scenario's outcome.
type Result struct {
	Name     string
	Status   Status
	Duration time.Duration
	Error    string

	// Messages counts signaling sent per message type across all devices.
	Messages map[signaling.MessageType]int
}

// Report collects a run's results.
type Report struct {
	Results  []Result
	Passed   int
	Failed   int
	Duration time.Duration
}

// OK reports whether every scenario passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	// Network configures the fresh network each scenario runs on.
	Network *Config

	// ScenarioTimeout bounds one scenario.
	ScenarioTimeout time.Duration
}

// DefaultRunnerConfig returns the defaults used by callsim.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		Network:         DefaultConfig(),
		ScenarioTimeout: 10 * time.Second,
	}
}

// Runner executes scenarios, each on its own network.
type Runner struct {
	config *RunnerConfig
}

// NewRunner creates a runner. config may be nil for the defaults.
func NewRunner(config *RunnerConfig) *Runner {
	if config == nil {
		config = DefaultRunnerConfig()
	}
	if config.ScenarioTimeout <= 0 {
		config.ScenarioTimeout = DefaultRunnerConfig().ScenarioTimeout
	}
	return &Runner{config: config}
}

// Run executes the named scenarios in order, or all of them when names is
// empty. An unknown name fails before anything runs.
func (r *Runner) Run(ctx context.Context, names []string) (*Report, error) {
	selected := Scenarios()
	if len(names) > 0 {
		selected = selected[:0]
		for _, name := range names {
			s, err := LookupScenario(name)
			if err != nil {
				return nil, err
			}
			selected = append(selected, s)
		}
	}

	start := time.Now()
	report := &Report{Results: make([]Result, 0, len(selected))}
	for _, s := range selected {
		result := r.runOne(ctx, s)
		if result.Status == StatusPassed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, s Scenario) Result {
	log := logrus.WithFields(logrus.Fields{
		"function": "runOne",
		"scenario": s.Name,
	})
	log.Info("Running scenario")

	runCtx, cancel := context.WithTimeout(ctx, r.config.ScenarioTimeout)
	defer cancel()

	n := New(r.config.Network)
	start := time.Now()
	err := s.Run(runCtx, n)
	result := Result{
		Name:     s.Name,
		Status:   StatusPassed,
		Duration: time.Since(start),
		Messages: n.MessageCounts(),
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), r.config.ScenarioTimeout)
	defer closeCancel()
	if cerr := n.Close(closeCtx); cerr != nil && err == nil {
		err = cerr
	}

	switch {
	case err == nil:
		log.WithField("duration", result.Duration.String()).Info("Scenario passed")
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusTimeout
		result.Error = err.Error()
		log.WithError(err).Error("Scenario timed out")
	default:
		result.Status = StatusFailed
		result.Error = err.Error()
		log.WithError(err).Error("Scenario failed")
	}
	return result
}
