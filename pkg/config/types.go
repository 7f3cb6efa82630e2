// Package config defines the desired-state model: network segments,
// firewall rules, and DHCP scopes, parsed once per run and immutable
// thereafter.
package config

import (
	"fmt"
	"sort"
)

// ManagementVLAN is the VLAN tag of the externally managed management
// network. It must never appear in desired state and is excluded from
// every generated operation.
const ManagementVLAN = 1

// DHCPOption is a raw DHCP option forwarded to clients (e.g. option 66
// for TFTP boot servers).
type DHCPOption struct {
	Option int    `yaml:"option" json:"option"`
	Value  string `yaml:"value" json:"value"`
}

// QoSConfig holds per-segment traffic priorities.
type QoSConfig struct {
	UplinkPriority   int `yaml:"uplink_priority" json:"uplink_priority"`
	DownlinkPriority int `yaml:"downlink_priority" json:"downlink_priority"`
	DSCPMarking      int `yaml:"dscp_marking" json:"dscp_marking"`
}

// DHCPScope configures the DHCP server for a segment.
type DHCPScope struct {
	Enabled      *bool        `yaml:"enabled" json:"enabled,omitempty"`
	Start        string       `yaml:"start,omitempty" json:"start,omitempty"`
	Stop         string       `yaml:"stop,omitempty" json:"stop,omitempty"`
	LeaseSeconds int          `yaml:"lease,omitempty" json:"lease,omitempty"`
	DNS          []string     `yaml:"dns,omitempty" json:"dns,omitempty"`
	Options      []DHCPOption `yaml:"options,omitempty" json:"options,omitempty"`
}

// IsEnabled returns the DHCP enabled flag, defaulting to true.
func (d *DHCPScope) IsEnabled() bool {
	return d == nil || d.Enabled == nil || *d.Enabled
}

// Segment represents a logical network partition (VLAN) with its own
// subnet and DHCP scope.
type Segment struct {
	VLAN         int        `yaml:"vlan_id" json:"vlan_id"`
	Name         string     `yaml:"name" json:"name"`
	Purpose      string     `yaml:"purpose,omitempty" json:"purpose,omitempty"`
	Subnet       string     `yaml:"subnet" json:"subnet"`
	Gateway      string     `yaml:"gateway" json:"gateway"`
	DomainName   string     `yaml:"domain_name,omitempty" json:"domain_name,omitempty"`
	NetworkGroup string     `yaml:"networkgroup,omitempty" json:"networkgroup,omitempty"`
	DHCP         *DHCPScope `yaml:"dhcp,omitempty" json:"dhcp,omitempty"`
	IGMPSnooping *bool      `yaml:"igmp_snooping,omitempty" json:"igmp_snooping,omitempty"`
	MulticastDNS *bool      `yaml:"multicast_dns,omitempty" json:"multicast_dns,omitempty"`
	QoS          *QoSConfig `yaml:"qos,omitempty" json:"qos,omitempty"`
	Enabled      *bool      `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Notes        string     `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Key returns the stable identity used to match desired against live state.
func (s *Segment) Key() string {
	return fmt.Sprintf("segment/%d", s.VLAN)
}

// IsEnabled returns the enabled flag, defaulting to true.
func (s *Segment) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// IsManagement reports whether this is the protected management segment.
func (s *Segment) IsManagement() bool {
	return s.VLAN == ManagementVLAN
}

// Equal performs structural field-by-field comparison. Tri-state flags
// compare by effective value, so an omitted default equals an explicit one.
func (s *Segment) Equal(other *Segment) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.VLAN != other.VLAN ||
		s.Name != other.Name ||
		s.Purpose != other.Purpose ||
		s.Subnet != other.Subnet ||
		s.Gateway != other.Gateway ||
		s.DomainName != other.DomainName ||
		s.NetworkGroup != other.NetworkGroup ||
		s.Notes != other.Notes ||
		s.IsEnabled() != other.IsEnabled() {
		return false
	}
	if boolValue(s.IGMPSnooping) != boolValue(other.IGMPSnooping) {
		return false
	}
	if boolValue(s.MulticastDNS) != boolValue(other.MulticastDNS) {
		return false
	}
	if !qosEqual(s.QoS, other.QoS) {
		return false
	}
	return dhcpEqual(s.DHCP, other.DHCP)
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func qosEqual(a, b *QoSConfig) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func dhcpEqual(a, b *DHCPScope) bool {
	// nil scope means DHCP enabled with no explicit parameters
	if a.IsEnabled() != b.IsEnabled() {
		return false
	}
	av, bv := normalizeDHCP(a), normalizeDHCP(b)
	if av.Start != bv.Start || av.Stop != bv.Stop || av.LeaseSeconds != bv.LeaseSeconds {
		return false
	}
	if !stringSlicesEqual(av.DNS, bv.DNS) {
		return false
	}
	if len(av.Options) != len(bv.Options) {
		return false
	}
	for i := range av.Options {
		if av.Options[i] != bv.Options[i] {
			return false
		}
	}
	return true
}

func normalizeDHCP(d *DHCPScope) DHCPScope {
	if d == nil {
		return DHCPScope{}
	}
	return *d
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RuleAction is the verdict a firewall rule applies to matching traffic.
type RuleAction string

const (
	ActionAllow RuleAction = "allow"
	ActionDeny  RuleAction = "deny"
)

// Selector identifies the source or destination of a firewall rule:
// either a declared segment (by VLAN tag), a literal CIDR, or any.
type Selector struct {
	Segment int    `yaml:"segment,omitempty" json:"segment,omitempty"`
	CIDR    string `yaml:"cidr,omitempty" json:"cidr,omitempty"`
}

// IsAny reports whether the selector matches all addresses.
func (s Selector) IsAny() bool {
	return s.Segment == 0 && s.CIDR == ""
}

// RefersToSegment reports whether the selector references a segment by tag.
func (s Selector) RefersToSegment() bool {
	return s.Segment != 0
}

func (s Selector) String() string {
	switch {
	case s.Segment != 0:
		return fmt.Sprintf("segment:%d", s.Segment)
	case s.CIDR != "":
		return s.CIDR
	default:
		return "any"
	}
}

// FirewallRule is an ordered rule within a named chain (e.g. LAN-IN).
// Identity is chain plus priority; priority values are unique per chain.
type FirewallRule struct {
	Chain       string     `yaml:"chain" json:"chain"`
	Priority    int        `yaml:"priority" json:"priority"`
	Name        string     `yaml:"name,omitempty" json:"name,omitempty"`
	Action      RuleAction `yaml:"action" json:"action"`
	Protocol    string     `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Source      Selector   `yaml:"source,omitempty" json:"source,omitempty"`
	Destination Selector   `yaml:"destination,omitempty" json:"destination,omitempty"`
	Ports       string     `yaml:"ports,omitempty" json:"ports,omitempty"`
	Enabled     *bool      `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Key returns the stable identity used to match desired against live state.
func (r *FirewallRule) Key() string {
	return fmt.Sprintf("rule/%s/%d", r.Chain, r.Priority)
}

// IsEnabled returns the enabled flag, defaulting to true.
func (r *FirewallRule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// SegmentRefs returns the VLAN tags this rule references via selectors.
func (r *FirewallRule) SegmentRefs() []int {
	var refs []int
	if r.Source.RefersToSegment() {
		refs = append(refs, r.Source.Segment)
	}
	if r.Destination.RefersToSegment() {
		refs = append(refs, r.Destination.Segment)
	}
	return refs
}

// Equal performs structural field-by-field comparison including priority.
func (r *FirewallRule) Equal(other *FirewallRule) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Chain == other.Chain &&
		r.Priority == other.Priority &&
		r.EqualBody(other)
}

// EqualBody compares everything except priority. Used to recognize a
// priority reorder of an otherwise unchanged rule.
func (r *FirewallRule) EqualBody(other *FirewallRule) bool {
	return r.Name == other.Name &&
		r.Action == other.Action &&
		r.Protocol == other.Protocol &&
		r.Source == other.Source &&
		r.Destination == other.Destination &&
		r.Ports == other.Ports &&
		r.IsEnabled() == other.IsEnabled()
}

// Config is the parsed desired-state document (or normalized live state).
// Immutable after construction.
type Config struct {
	HardwareProfile string
	Segments        []*Segment
	Rules           []*FirewallRule
}

// SegmentByVLAN returns the segment with the given tag, or nil.
func (c *Config) SegmentByVLAN(vlan int) *Segment {
	for _, s := range c.Segments {
		if s.VLAN == vlan {
			return s
		}
	}
	return nil
}

// SortedSegments returns segments ordered by VLAN tag.
func (c *Config) SortedSegments() []*Segment {
	out := make([]*Segment, len(c.Segments))
	copy(out, c.Segments)
	sort.Slice(out, func(i, j int) bool { return out[i].VLAN < out[j].VLAN })
	return out
}

// SortedRules returns rules ordered by chain then priority.
func (c *Config) SortedRules() []*FirewallRule {
	out := make([]*FirewallRule, len(c.Rules))
	copy(out, c.Rules)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}
