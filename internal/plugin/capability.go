package plugin

import "strings"

// Capability is a declared category of effect a task produces.
type Capability uint16

const (
	CapabilityAnalysis Capability = 1 << iota
	CapabilityValidation
	CapabilityDecision
	CapabilityEnrichment
	CapabilityNotification
	CapabilityMonitoring
	CapabilitySecurity
	CapabilityPerformance
	CapabilityCompliance
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapabilityAnalysis, "analysis"},
	{CapabilityValidation, "validation"},
	{CapabilityDecision, "decision"},
	{CapabilityEnrichment, "enrichment"},
	{CapabilityNotification, "notification"},
	{CapabilityMonitoring, "monitoring"},
	{CapabilitySecurity, "security"},
	{CapabilityPerformance, "performance"},
	{CapabilityCompliance, "compliance"},
}

func (c Capability) String() string {
	for _, cn := range capabilityNames {
		if cn.cap == c {
			return cn.name
		}
	}
	return "unknown"
}

// ParseCapability maps a lowercase name back to its Capability.
func ParseCapability(name string) (Capability, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, cn := range capabilityNames {
		if cn.name == name {
			return cn.cap, true
		}
	}
	return 0, false
}

// CapabilitySet is a bitset of capabilities.
type CapabilitySet uint16

// Capabilities builds a set from the given capabilities.
func Capabilities(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return c != 0 && s&CapabilitySet(c) == CapabilitySet(c)
}

// With returns a copy of the set including c.
func (s CapabilitySet) With(c Capability) CapabilitySet {
	return s | CapabilitySet(c)
}

// List returns the members in declaration order.
func (s CapabilitySet) List() []Capability {
	var out []Capability
	for _, cn := range capabilityNames {
		if s.Has(cn.cap) {
			out = append(out, cn.cap)
		}
	}
	return out
}

func (s CapabilitySet) String() string {
	caps := s.List()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}
