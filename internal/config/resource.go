package config

import (
	"net"
	"os"
	"slices"
	"strings"
	"time"
)

// DefaultProtocolTimeout applies to protocols configured without a timeout.
const DefaultProtocolTimeout = 30 * time.Second

// Resource is the read-only configuration of one monitored host.
type Resource struct {
	ID                string              `mapstructure:"id"`
	Hostname          string              `mapstructure:"hostname"`
	DeviceKind        string              `mapstructure:"device_kind"`
	Connectors        []string            `mapstructure:"connectors"`
	ExcludeConnectors []string            `mapstructure:"exclude_connectors"`
	Protocols         map[string]Protocol `mapstructure:"protocols"`
}

// Protocol holds the credentials and tuning of one protocol for a resource.
type Protocol struct {
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Community string        `mapstructure:"community"`
	Version   string        `mapstructure:"version"`
	Namespace string        `mapstructure:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EffectiveTimeout returns the configured timeout or DefaultProtocolTimeout.
func (p Protocol) EffectiveTimeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultProtocolTimeout
	}
	return p.Timeout
}

// Protocol returns the configuration of the named protocol.
func (r *Resource) Protocol(name string) (Protocol, bool) {
	p, ok := r.Protocols[strings.ToLower(name)]
	return p, ok
}

// HasProtocol reports whether the named protocol is configured.
func (r *Resource) HasProtocol(name string) bool {
	_, ok := r.Protocol(name)
	return ok
}

// IsSelected reports whether the connector passes the resource's selected
// and excluded connector lists. An empty selection selects everything.
func (r *Resource) IsSelected(connectorID string) bool {
	if containsFold(r.ExcludeConnectors, connectorID) {
		return false
	}
	return len(r.Connectors) == 0 || containsFold(r.Connectors, connectorID)
}

// IsLocalhost reports whether the resource designates the machine the
// agent runs on.
func (r *Resource) IsLocalhost() bool {
	host := strings.ToLower(r.Hostname)
	switch host {
	case "localhost", "127.0.0.1", "::1", "":
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	self, err := os.Hostname()
	return err == nil && strings.EqualFold(self, host)
}

func containsFold(list []string, value string) bool {
	return slices.ContainsFunc(list, func(s string) bool {
		return strings.EqualFold(s, value)
	})
}
