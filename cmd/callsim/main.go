// Package main provides the command-line driver for the simulated calling
// network.
//
// It runs call scenarios (basic, multi-ring, decline, busy, glare, group)
// between in-process devices and reports which passed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore"
	"github.com/opd-ai/callcore/metrics"
	"github.com/opd-ai/callcore/simnet"
)

// Environment variables that supply flag defaults. A .env file in the
// working directory is loaded first.
const (
	envScenarios       = "CALLSIM_SCENARIOS"
	envScenarioTimeout = "CALLSIM_SCENARIO_TIMEOUT"
	envOverallTimeout  = "CALLSIM_OVERALL_TIMEOUT"
	envOfferAge        = "CALLSIM_OFFER_AGE"
	envSFUMaxDevices   = "CALLSIM_SFU_MAX_DEVICES"
	envLogLevel        = "CALLSIM_LOG_LEVEL"
	envRedact          = "CALLSIM_REDACT"
	envMetrics         = "CALLSIM_METRICS"
)

// CLI configuration
type CLIConfig struct {
	scenarios       string
	list            bool
	scenarioTimeout time.Duration
	overallTimeout  time.Duration
	offerAge        time.Duration
	sfuMaxDevices   uint
	settleRounds    int
	logLevel        string
	redact          bool
	collectMetrics  bool
	help            bool
}

// envLookup reads an environment variable. Tests pass a map-backed one.
type envLookup func(key string) (string, bool)

func envString(lookup envLookup, key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envDuration(lookup envLookup, key string, fallback time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envUint(lookup envLookup, key string, fallback uint) uint {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint(n)
		}
	}
	return fallback
}

func envBool(lookup envLookup, key string, fallback bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// newFlagSet declares the flags with defaults taken from the environment.
func newFlagSet(config *CLIConfig, lookup envLookup) *flag.FlagSet {
	fs := flag.NewFlagSet("callsim", flag.ContinueOnError)

	// Scenario selection
	fs.StringVar(&config.scenarios, "scenarios", envString(lookup, envScenarios, ""), "Comma-separated scenarios to run (default: all)")
	fs.BoolVar(&config.list, "list", false, "List scenarios and exit")

	// Timeout configuration
	fs.DurationVar(&config.scenarioTimeout, "scenario-timeout", envDuration(lookup, envScenarioTimeout, 10*time.Second), "Timeout for one scenario")
	fs.DurationVar(&config.overallTimeout, "overall-timeout", envDuration(lookup, envOverallTimeout, 2*time.Minute), "Overall run timeout")

	// Network configuration
	fs.DurationVar(&config.offerAge, "offer-age", envDuration(lookup, envOfferAge, 0), "Simulated transit age stamped on every offer")
	fs.UintVar(&config.sfuMaxDevices, "sfu-max-devices", envUint(lookup, envSFUMaxDevices, 0), "Group call size limit (0: unlimited)")
	fs.IntVar(&config.settleRounds, "settle-rounds", simnet.DefaultConfig().SettleRounds, "Delivery rounds before the network counts as stuck")

	// Logging configuration
	fs.StringVar(&config.logLevel, "log-level", envString(lookup, envLogLevel, "WARN"), "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.BoolVar(&config.redact, "redact", envBool(lookup, envRedact, true), "Redact ICE passwords and IP addresses in logs")

	// Feature flags
	fs.BoolVar(&config.collectMetrics, "metrics", envBool(lookup, envMetrics, false), "Print Prometheus counters after the run")

	// Help
	fs.BoolVar(&config.help, "help", false, "Show help message")

	return fs
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags(args []string, lookup envLookup) (*CLIConfig, *flag.FlagSet, error) {
	config := &CLIConfig{}
	fs := newFlagSet(config, lookup)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return config, fs, nil
}

// printUsage prints the usage information.
func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Call Scenario Simulator")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Runs one-to-one and group call scenarios between simulated devices")
	fmt.Fprintln(w, "connected by an in-process signaling network and SFU.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Scenarios:")
	printScenarios(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s [options]\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every option except -list, -settle-rounds and -help can also be set")
	fmt.Fprintln(w, "through CALLSIM_* variables in the environment or a .env file.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  # Run every scenario\n")
	fmt.Fprintf(w, "  %s\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  # Run glare and busy with debug logs\n")
	fmt.Fprintf(w, "  %s -scenarios glare,busy -log-level DEBUG\n", os.Args[0])
}

func printScenarios(w io.Writer) {
	for _, s := range simnet.Scenarios() {
		fmt.Fprintf(w, "  %-12s %s\n", s.Name, s.Description)
	}
}

// scenarioNames splits the -scenarios value.
func scenarioNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	for _, name := range scenarioNames(config.scenarios) {
		if _, err := simnet.LookupScenario(name); err != nil {
			return fmt.Errorf("invalid scenario list: %w", err)
		}
	}

	if config.scenarioTimeout <= 0 {
		return fmt.Errorf("scenario timeout must be positive")
	}

	if config.overallTimeout <= 0 {
		return fmt.Errorf("overall timeout must be positive")
	}

	if config.offerAge < 0 {
		return fmt.Errorf("offer age cannot be negative")
	}

	if config.sfuMaxDevices > 1<<16 {
		return fmt.Errorf("sfu max devices must be at most 65536")
	}

	if config.settleRounds <= 0 {
		return fmt.Errorf("settle rounds must be positive")
	}

	if _, err := logrus.ParseLevel(config.logLevel); err != nil {
		return fmt.Errorf("invalid log level %q", config.logLevel)
	}

	return nil
}

// createRunnerConfig converts CLI configuration to the runner's.
func createRunnerConfig(cliConfig *CLIConfig, collector *metrics.Collector) *simnet.RunnerConfig {
	network := simnet.DefaultConfig()
	network.OfferAge = cliConfig.offerAge
	network.SFUMaxDevices = uint32(cliConfig.sfuMaxDevices)
	network.SettleRounds = cliConfig.settleRounds
	network.Metrics = collector

	return &simnet.RunnerConfig{
		Network:         network,
		ScenarioTimeout: cliConfig.scenarioTimeout,
	}
}

// createOptions maps the logging flags onto callcore options.
func createOptions(cliConfig *CLIConfig) *callcore.Options {
	options := callcore.NewOptions()
	if level, err := logrus.ParseLevel(cliConfig.logLevel); err == nil {
		options.LogLevel = level
	}
	options.RedactionEnabled = cliConfig.redact
	return options
}

// setupSignalHandling sets up graceful shutdown on interrupt signals.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		fmt.Printf("\n🛑 Received signal %v, stopping scenarios...\n", sig)
		cancel()
	}()
}

// run executes the scenarios and returns the process exit code.
func run(ctx context.Context, cliConfig *CLIConfig, out, errOut io.Writer) int {
	var collector *metrics.Collector
	if cliConfig.collectMetrics {
		collector = metrics.New(nil)
	}

	ctx, cancel := context.WithTimeout(ctx, cliConfig.overallTimeout)
	defer cancel()

	runner := simnet.NewRunner(createRunnerConfig(cliConfig, collector))
	report, err := runner.Run(ctx, scenarioNames(cliConfig.scenarios))
	if err != nil {
		fmt.Fprintf(errOut, "❌ Scenario run failed: %v\n", err)
		return 1
	}

	for _, result := range report.Results {
		mark := "✅"
		if result.Status != simnet.StatusPassed {
			mark = "❌"
		}
		fmt.Fprintf(out, "%s %-12s %-8s %v\n", mark, result.Name, result.Status, result.Duration.Round(time.Millisecond))
		if result.Error != "" {
			fmt.Fprintf(out, "   %s\n", result.Error)
		}
	}

	if collector != nil {
		printMetrics(out, collector)
	}

	fmt.Fprintf(out, "\n📊 Summary: %d scenarios, %d passed, %d failed (execution time: %v)\n",
		len(report.Results), report.Passed, report.Failed, report.Duration.Round(time.Millisecond))

	if !report.OK() {
		fmt.Fprintf(errOut, "\n❌ Scenarios completed with failures\n")
		return 1
	}
	return 0
}

// printMetrics writes every non-zero counter and gauge sample.
func printMetrics(w io.Writer, collector *metrics.Collector) {
	families, err := collector.Registry().Gather()
	if err != nil {
		fmt.Fprintf(w, "⚠️  Failed to gather metrics: %v\n", err)
		return
	}

	var lines []string
	for _, f := range families {
		for _, m := range f.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			if value == 0 {
				continue
			}
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			name := f.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("  %s %g", name, value))
		}
	}
	sort.Strings(lines)

	fmt.Fprintln(w, "\n📈 Metrics:")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// main is the entry point for the simulator.
func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cliConfig, fs, err := parseCLIFlags(os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(2)
	}

	if cliConfig.help {
		printUsage(os.Stdout, fs)
		os.Exit(0)
	}

	if cliConfig.list {
		printScenarios(os.Stdout)
		os.Exit(0)
	}

	if err := validateCLIConfig(cliConfig); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}

	callcore.ConfigureLogging(createOptions(cliConfig))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	fmt.Println("🚀 Running call scenarios...")
	fmt.Println()

	exitCode := run(ctx, cliConfig, os.Stdout, os.Stderr)
	cancel()
	os.Exit(exitCode)
}
