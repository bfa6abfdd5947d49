// Package callcore is the entry point for embedding the calling core in a
// host application.
//
// The host implements platform.Platform, which carries signaling to remote
// devices, creates media sessions and receives call events. Everything else
// (offer admission, glare, multi-ring, group calls against an SFU) happens
// inside the manager returned by NewManager.
//
// # Getting Started
//
//	options := callcore.NewOptions()
//	options.RedactionEnabled = true
//
//	callcore.ConfigureLogging(options)
//
//	manager, err := callcore.NewManager(host, options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.Close(context.Background())
//
//	// Place a call. The host is told through OnStartCall and must answer
//	// with Proceed before any signaling goes out.
//	callID, err := manager.Call(remote, signaling.CallMediaTypeVideo, localDevice)
//
// Incoming signaling is handed to the manager's Received* methods, and
// media session events to its Handle* methods.
//
// # Logging
//
// All packages log through logrus with a "function" field on every entry.
// ConfigureLogging sets the level and installs a formatter that strips ICE
// passwords and IP addresses when redaction is enabled. Redaction can be
// flipped later with SetRedactionEnabled.
//
// # Metrics
//
// When Options.MetricsEnabled is set, NewManager records Prometheus counters
// for calls, signaling and group clients. Options.MetricsRegisterer picks the
// registry; by default the collector owns a private one, reachable through
// Metrics.
package callcore
