// Package validate checks desired-state documents for schema correctness
// and hardware-profile constraints. It is pure: no network I/O occurs
// here, and a validation failure guarantees no controller call is made.
package validate

import (
	"fmt"
	"strconv"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/util"
)

// The controller exposes exactly four DHCP DNS slots per network
// (dhcpd_dns_1 through dhcpd_dns_4).
const maxDNSServers = 4

// Validate runs all check classes against the desired state, in order:
// structural, uniqueness, referential integrity, hardware ceiling. It
// short-circuits between classes but collects every violation within
// the failing class, so a report never mixes (say) a bad CIDR with a
// subnet overlap that may be a consequence of it.
func Validate(cfg *config.Config, profileName string) error {
	if err := structural(cfg); err != nil {
		return err
	}
	if err := uniqueness(cfg); err != nil {
		return err
	}
	if err := referential(cfg); err != nil {
		return err
	}
	return hardwareCeiling(cfg, profileName)
}

func structural(cfg *config.Config) error {
	var b util.ValidationBuilder

	for _, seg := range cfg.Segments {
		id := fmt.Sprintf("vlan %d", seg.VLAN)

		if seg.VLAN == config.ManagementVLAN {
			b.AddViolation(id+" vlan_id", "1", "tag 1 is the management network and must not appear in desired state")
		} else if err := util.ValidateVLANID(seg.VLAN); err != nil {
			b.AddViolation(id+" vlan_id", strconv.Itoa(seg.VLAN), err.Error())
		}

		if seg.Name == "" {
			b.AddViolation(id+" name", "", "required field missing")
		}

		if seg.Subnet == "" {
			b.AddViolation(id+" subnet", "", "required field missing")
		} else if !util.IsValidIPv4CIDR(seg.Subnet) {
			b.AddViolation(id+" subnet", seg.Subnet, "not a valid IPv4 CIDR")
		} else if canonical := util.CanonicalSubnet(seg.Subnet); canonical != seg.Subnet {
			// The controller stores the network address; a subnet with host
			// bits set would never match the fetched value.
			b.AddViolationf(id+" subnet", seg.Subnet, "host bits set, canonical form is %s", canonical)
		}

		if seg.Gateway == "" {
			b.AddViolation(id+" gateway", "", "required field missing")
		} else if !util.IsValidIPv4(seg.Gateway) {
			b.AddViolation(id+" gateway", seg.Gateway, "not a valid IPv4 address")
		} else if util.IsValidIPv4CIDR(seg.Subnet) && !util.IPInSubnet(seg.Gateway, seg.Subnet) {
			b.AddViolationf(id+" gateway", seg.Gateway, "not inside subnet %s", seg.Subnet)
		}

		structuralDHCP(&b, id, seg)
	}

	for _, rule := range cfg.Rules {
		id := fmt.Sprintf("rule %s/%d", rule.Chain, rule.Priority)

		if rule.Chain == "" {
			b.AddViolation("rule chain", "", "required field missing")
		}
		if rule.Priority < 0 {
			b.AddViolation(id+" priority", strconv.Itoa(rule.Priority), "must not be negative")
		}
		switch rule.Action {
		case config.ActionAllow, config.ActionDeny:
		case "":
			b.AddViolation(id+" action", "", "required field missing")
		default:
			b.AddViolation(id+" action", string(rule.Action), "must be allow or deny")
		}
		if _, _, err := util.ParsePortRange(rule.Ports); err != nil {
			b.AddViolation(id+" ports", rule.Ports, err.Error())
		}
		for _, sel := range []struct {
			field string
			sel   config.Selector
		}{
			{"source", rule.Source},
			{"destination", rule.Destination},
		} {
			if sel.sel.CIDR != "" && !util.IsValidIPv4CIDR(sel.sel.CIDR) {
				b.AddViolation(id+" "+sel.field, sel.sel.CIDR, "not a valid IPv4 CIDR")
			}
			if sel.sel.Segment != 0 && sel.sel.CIDR != "" {
				b.AddViolation(id+" "+sel.field, sel.sel.String(), "selector may name a segment or a CIDR, not both")
			}
		}
	}

	return b.Build()
}

func structuralDHCP(b *util.ValidationBuilder, id string, seg *config.Segment) {
	d := seg.DHCP
	if d == nil {
		return
	}

	subnetValid := util.IsValidIPv4CIDR(seg.Subnet)
	for _, f := range []struct {
		field string
		value string
	}{
		{"dhcp.start", d.Start},
		{"dhcp.stop", d.Stop},
	} {
		if f.value == "" {
			continue
		}
		if !util.IsValidIPv4(f.value) {
			b.AddViolation(id+" "+f.field, f.value, "not a valid IPv4 address")
		} else if subnetValid && !util.IPInSubnet(f.value, seg.Subnet) {
			b.AddViolationf(id+" "+f.field, f.value, "not inside subnet %s", seg.Subnet)
		}
	}

	if len(d.DNS) > maxDNSServers {
		b.AddViolationf(id+" dhcp.dns", strconv.Itoa(len(d.DNS)),
			"at most %d DNS servers are supported, found %d", maxDNSServers, len(d.DNS))
	}
	for _, dns := range d.DNS {
		if !util.IsValidIPv4(dns) {
			b.AddViolation(id+" dhcp.dns", dns, "not a valid IPv4 address")
		}
	}
	if d.LeaseSeconds < 0 {
		b.AddViolation(id+" dhcp.lease", strconv.Itoa(d.LeaseSeconds), "must not be negative")
	}
}

func uniqueness(cfg *config.Config) error {
	var b util.ValidationBuilder

	seenTags := make(map[int]bool)
	seenNames := make(map[string]int)
	for _, seg := range cfg.Segments {
		if seenTags[seg.VLAN] {
			b.AddViolationf("vlan_id", strconv.Itoa(seg.VLAN), "duplicate VLAN tag")
		}
		seenTags[seg.VLAN] = true

		if prev, ok := seenNames[seg.Name]; ok {
			b.AddViolationf("name", seg.Name, "duplicate segment name (vlans %d and %d)", prev, seg.VLAN)
		} else {
			seenNames[seg.Name] = seg.VLAN
		}
	}

	// Pairwise overlap: report each overlapping pair once, in tag order.
	segs := cfg.SortedSegments()
	for i := 0; i < len(segs); i++ {
		for j := i + 1; j < len(segs); j++ {
			if util.SubnetsOverlap(segs[i].Subnet, segs[j].Subnet) {
				b.AddViolationf("subnet", segs[i].Subnet,
					"overlaps subnet %s of vlan %d (vlan %d)", segs[j].Subnet, segs[j].VLAN, segs[i].VLAN)
			}
		}
	}

	seenRules := make(map[string]bool)
	for _, rule := range cfg.Rules {
		key := rule.Key()
		if seenRules[key] {
			b.AddViolationf("priority", strconv.Itoa(rule.Priority),
				"duplicate priority in chain %s", rule.Chain)
		}
		seenRules[key] = true
	}

	return b.Build()
}

func referential(cfg *config.Config) error {
	var b util.ValidationBuilder

	for _, rule := range cfg.Rules {
		for _, ref := range rule.SegmentRefs() {
			if cfg.SegmentByVLAN(ref) == nil {
				b.AddViolationf(fmt.Sprintf("rule %s/%d", rule.Chain, rule.Priority),
					strconv.Itoa(ref), "references undeclared segment")
			}
		}
	}

	return b.Build()
}

func hardwareCeiling(cfg *config.Config, profileName string) error {
	var b util.ValidationBuilder

	profile, err := config.LookupProfile(profileName)
	if err != nil {
		b.AddViolation("hardware_profile", profileName, err.Error())
		return b.Build()
	}

	count := len(cfg.Segments)
	if count > profile.MaxSegments {
		b.AddViolationf("vlans", strconv.Itoa(count),
			"%s supports at most %d managed segments, found %d",
			profile.Name, profile.MaxSegments, count)
	}

	return b.Build()
}
