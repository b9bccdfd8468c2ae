// Package health reports whether the process's services are up, over gRPC
// (grpc.health.v1) and as a JSON report for the HTTP router.
package health

import (
	"sort"
	"sync"
)

// Probe reports whether one component is serving.
type Probe func() bool

// Report is the JSON body of GET /health.
type Report struct {
	Status   string          `json:"status"`
	Services map[string]bool `json:"services"`
}

// Status values of Report.
const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
)

// Checker aggregates named probes. The process is healthy only when every
// probe passes.
type Checker struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewChecker returns a Checker with no probes; it reports healthy.
func NewChecker() *Checker {
	return &Checker{probes: make(map[string]Probe)}
}

// Register adds or replaces the probe for name.
func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Names returns registered probe names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report runs every probe.
func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r := Report{Status: StatusOK, Services: make(map[string]bool, len(c.probes))}
	for name, probe := range c.probes {
		ok := probe()
		r.Services[name] = ok
		if !ok {
			r.Status = StatusUnavailable
		}
	}
	return r
}

// Healthy reports whether every probe passes.
func (c *Checker) Healthy() bool {
	return c.Report().Status == StatusOK
}
