package chatmodel

import (
	"encoding/json"
	"sort"
)

// Capability names one feature a model can serve. The set is closed.
type Capability string

const (
	CapabilityText            Capability = "text"
	CapabilityVision          Capability = "vision"
	CapabilityAudio           Capability = "audio-understanding"
	CapabilityLongContext     Capability = "long-context"
	CapabilityFunctionCalling Capability = "function-calling"
)

// AllCapabilities lists every recognized capability.
var AllCapabilities = []Capability{
	CapabilityText,
	CapabilityVision,
	CapabilityAudio,
	CapabilityLongContext,
	CapabilityFunctionCalling,
}

// CapabilitySet is an immutable-by-convention set of capabilities.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// ParseCapabilities converts config strings into a set, ignoring
// unknown names (the config layer already validated them).
func ParseCapabilities(names []string) CapabilitySet {
	set := make(CapabilitySet, len(names))
	for _, n := range names {
		set[Capability(n)] = true
	}
	return set
}

// Has reports membership.
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// Superset reports whether s contains every capability in other.
func (s CapabilitySet) Superset(other CapabilitySet) bool {
	for c, ok := range other {
		if ok && !s[c] {
			return false
		}
	}
	return true
}

// Excess counts capabilities in s that are not required. Routing uses
// it to prefer specialists over generalists.
func (s CapabilitySet) Excess(required CapabilitySet) int {
	excess := 0
	for c, ok := range s {
		if ok && !required[c] {
			excess++
		}
	}
	return excess
}

// List returns the members sorted for deterministic output.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c, ok := range s {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted members as plain strings for wire output.
func (s CapabilitySet) Strings() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = string(c)
	}
	return out
}

// Clone returns an independent copy.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c, ok := range s {
		if ok {
			out[c] = true
		}
	}
	return out
}

// MarshalJSON renders the set as a sorted string array so descriptors
// survive a cache round-trip intact.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON restores the set from a string array.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set := make(CapabilitySet, len(names))
	for _, n := range names {
		set[Capability(n)] = true
	}
	*s = set
	return nil
}
