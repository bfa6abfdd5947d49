// Package redact removes IP addresses and ICE passwords from log output.
//
// Redaction is switched on and off at runtime through the Formatter, which
// wraps any logrus formatter:
//
//	f := redact.NewFormatter(&logrus.TextFormatter{}, true)
//	logrus.SetFormatter(f)
//	...
//	f.SetEnabled(false)
package redact

import (
	"net"
	"regexp"
	"strings"

	"github.com/pion/sdp/v3"
)

const (
	// IPPlaceholder replaces IP addresses.
	IPPlaceholder = "[REDACTED_IP]"
	// SecretPlaceholder replaces ICE passwords.
	SecretPlaceholder = "[REDACTED]"
)

var (
	ipv4Pattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	ipv6Pattern   = regexp.MustCompile(`[0-9A-Fa-f]*:[0-9A-Fa-f:.]*:[0-9A-Fa-f.]*`)
	icePwdPattern = regexp.MustCompile(`(ice-pwd:)\S+`)
)

// String redacts IPv4 and IPv6 addresses and ICE passwords from s.
func String(s string) string {
	s = icePwdPattern.ReplaceAllString(s, "${1}"+SecretPlaceholder)
	s = ipv4Pattern.ReplaceAllStringFunc(s, func(m string) string {
		if net.ParseIP(m) == nil {
			return m
		}
		return IPPlaceholder
	})
	s = ipv6Pattern.ReplaceAllStringFunc(s, func(m string) string {
		if strings.Count(m, ":") < 2 || net.ParseIP(strings.Trim(m, ".")) == nil {
			return m
		}
		return IPPlaceholder
	})
	return s
}

// SDP redacts a full session description. Well-formed input is rewritten
// attribute by attribute; anything else falls back to String.
func SDP(raw string) string {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return String(raw)
	}

	scrub := func(attrs []sdp.Attribute) {
		for i := range attrs {
			if attrs[i].Key == "ice-pwd" {
				attrs[i].Value = SecretPlaceholder
			}
		}
	}
	scrub(desc.Attributes)
	for _, m := range desc.MediaDescriptions {
		scrub(m.Attributes)
	}

	out, err := desc.Marshal()
	if err != nil {
		return String(raw)
	}
	return String(string(out))
}

// looksLikeSDP reports whether s is probably a session description.
func looksLikeSDP(s string) bool {
	return strings.HasPrefix(s, "v=0")
}
