package controller

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/util"
)

func newCookieJar() http.CookieJar {
	jar, _ := cookiejar.New(nil)
	return jar
}

// networkConf is the controller's wire representation of a network.
// The gateway address and prefix length travel together in ip_subnet
// ("10.0.10.1/24"); the subnet is derived from them.
type networkConf struct {
	ID           string          `json:"_id,omitempty"`
	Name         string          `json:"name"`
	Purpose      string          `json:"purpose,omitempty"`
	VLAN         int             `json:"vlan"`
	VLANEnabled  bool            `json:"vlan_enabled"`
	Enabled      bool            `json:"enabled"`
	IPSubnet     string          `json:"ip_subnet"`
	NetworkGroup string          `json:"networkgroup,omitempty"`
	DomainName   string          `json:"domain_name,omitempty"`
	DHCPDEnabled bool            `json:"dhcpd_enabled"`
	DHCPDStart   string          `json:"dhcpd_start,omitempty"`
	DHCPDStop    string          `json:"dhcpd_stop,omitempty"`
	DHCPDLease   int             `json:"dhcpd_leasetime,omitempty"`
	DHCPDDNS1    string          `json:"dhcpd_dns_1,omitempty"`
	DHCPDDNS2    string          `json:"dhcpd_dns_2,omitempty"`
	DHCPDDNS3    string          `json:"dhcpd_dns_3,omitempty"`
	DHCPDDNS4    string          `json:"dhcpd_dns_4,omitempty"`
	DHCPDOptions []dhcpOptionWire `json:"dhcpd_options,omitempty"`
	IGMPSnooping *bool           `json:"igmp_snooping,omitempty"`
	MDNSEnabled  *bool           `json:"mdns_enabled,omitempty"`
	QoS          *qosWire        `json:"qos,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

type dhcpOptionWire struct {
	Option int    `json:"option"`
	Value  string `json:"value"`
}

type qosWire struct {
	UplinkPriority   int `json:"uplink_priority"`
	DownlinkPriority int `json:"downlink_priority"`
	DSCPMarking      int `json:"dscp_marking"`
}

// toSegment normalizes a controller network into the config model.
func (n *networkConf) toSegment() (*config.Segment, error) {
	gw, maskLen, err := util.ParseIPWithMask(n.IPSubnet)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", n.Name, err)
	}
	network := util.ComputeNetworkAddr(gw.String(), maskLen)
	if network == "" {
		return nil, fmt.Errorf("network %q: cannot derive subnet from %s", n.Name, n.IPSubnet)
	}

	seg := &config.Segment{
		VLAN:         n.VLAN,
		Name:         n.Name,
		Purpose:      n.Purpose,
		Subnet:       fmt.Sprintf("%s/%d", network, maskLen),
		Gateway:      gw.String(),
		DomainName:   n.DomainName,
		NetworkGroup: n.NetworkGroup,
		IGMPSnooping: n.IGMPSnooping,
		MulticastDNS: n.MDNSEnabled,
		Notes:        n.Notes,
	}

	enabled := n.Enabled
	seg.Enabled = &enabled

	dhcpEnabled := n.DHCPDEnabled
	scope := &config.DHCPScope{
		Enabled:      &dhcpEnabled,
		Start:        n.DHCPDStart,
		Stop:         n.DHCPDStop,
		LeaseSeconds: n.DHCPDLease,
	}
	for _, dns := range []string{n.DHCPDDNS1, n.DHCPDDNS2, n.DHCPDDNS3, n.DHCPDDNS4} {
		if dns != "" {
			scope.DNS = append(scope.DNS, dns)
		}
	}
	for _, opt := range n.DHCPDOptions {
		scope.Options = append(scope.Options, config.DHCPOption{Option: opt.Option, Value: opt.Value})
	}
	seg.DHCP = scope

	if n.QoS != nil {
		seg.QoS = &config.QoSConfig{
			UplinkPriority:   n.QoS.UplinkPriority,
			DownlinkPriority: n.QoS.DownlinkPriority,
			DSCPMarking:      n.QoS.DSCPMarking,
		}
	}
	return seg, nil
}

// fromSegment renders a segment in the controller's wire shape.
func fromSegment(seg *config.Segment) *networkConf {
	_, maskLen, err := util.ParseIPWithMask(seg.Subnet)
	if err != nil {
		// Validation runs before any network call, so this is unreachable
		// for validated input; fall back to /24 rather than panic.
		maskLen = 24
	}

	conf := &networkConf{
		Name:         seg.Name,
		Purpose:      seg.Purpose,
		VLAN:         seg.VLAN,
		VLANEnabled:  true,
		Enabled:      seg.IsEnabled(),
		IPSubnet:     fmt.Sprintf("%s/%d", seg.Gateway, maskLen),
		NetworkGroup: seg.NetworkGroup,
		DomainName:   seg.DomainName,
		DHCPDEnabled: seg.DHCP.IsEnabled(),
		IGMPSnooping: seg.IGMPSnooping,
		MDNSEnabled:  seg.MulticastDNS,
		Notes:        seg.Notes,
	}

	if d := seg.DHCP; d != nil {
		conf.DHCPDStart = d.Start
		conf.DHCPDStop = d.Stop
		conf.DHCPDLease = d.LeaseSeconds
		dns := []*string{&conf.DHCPDDNS1, &conf.DHCPDDNS2, &conf.DHCPDDNS3, &conf.DHCPDDNS4}
		for i, addr := range d.DNS {
			if i >= len(dns) {
				break
			}
			*dns[i] = addr
		}
		for _, opt := range d.Options {
			conf.DHCPDOptions = append(conf.DHCPDOptions, dhcpOptionWire{Option: opt.Option, Value: opt.Value})
		}
	}

	if seg.QoS != nil {
		conf.QoS = &qosWire{
			UplinkPriority:   seg.QoS.UplinkPriority,
			DownlinkPriority: seg.QoS.DownlinkPriority,
			DSCPMarking:      seg.QoS.DSCPMarking,
		}
	}
	return conf
}

// firewallRuleConf is the controller's wire representation of a rule.
// Segment selectors travel as networkconf _id references.
type firewallRuleConf struct {
	ID           string `json:"_id,omitempty"`
	Ruleset      string `json:"ruleset"`
	RuleIndex    int    `json:"rule_index"`
	Name         string `json:"name,omitempty"`
	Action       string `json:"action"` // accept | drop
	Protocol     string `json:"protocol,omitempty"`
	SrcNetworkID string `json:"src_networkconf_id,omitempty"`
	SrcAddress   string `json:"src_address,omitempty"`
	DstNetworkID string `json:"dst_networkconf_id,omitempty"`
	DstAddress   string `json:"dst_address,omitempty"`
	DstPort      string `json:"dst_port,omitempty"`
	Enabled      bool   `json:"enabled"`
}

const (
	wireActionAccept = "accept"
	wireActionDrop   = "drop"
)

// toRule normalizes a controller rule. Network _id references become
// VLAN tag selectors via the map from the latest segment fetch; an
// unresolvable reference degrades to an any-selector with a warning.
func (f *firewallRuleConf) toRule(tagByNetID map[string]int) *config.FirewallRule {
	action := config.ActionDeny
	if f.Action == wireActionAccept {
		action = config.ActionAllow
	}

	enabled := f.Enabled
	rule := &config.FirewallRule{
		Chain:       f.Ruleset,
		Priority:    f.RuleIndex,
		Name:        f.Name,
		Action:      action,
		Protocol:    f.Protocol,
		Ports:       f.DstPort,
		Enabled:     &enabled,
		Source:      resolveSelector(f.SrcNetworkID, f.SrcAddress, tagByNetID, f.Ruleset, f.RuleIndex),
		Destination: resolveSelector(f.DstNetworkID, f.DstAddress, tagByNetID, f.Ruleset, f.RuleIndex),
	}
	return rule
}

func resolveSelector(netID, address string, tagByNetID map[string]int, chain string, priority int) config.Selector {
	if netID != "" {
		if tag, ok := tagByNetID[netID]; ok {
			return config.Selector{Segment: tag}
		}
		util.Warnf("rule %s/%d references unknown network %s; treating selector as any", chain, priority, netID)
		return config.Selector{}
	}
	return config.Selector{CIDR: address}
}

// fromRule renders a rule in the controller's wire shape, resolving
// segment selectors back to controller _ids.
func (c *HTTPClient) fromRule(rule *config.FirewallRule) (*firewallRuleConf, error) {
	action := wireActionDrop
	if rule.Action == config.ActionAllow {
		action = wireActionAccept
	}

	conf := &firewallRuleConf{
		Ruleset:   rule.Chain,
		RuleIndex: rule.Priority,
		Name:      rule.Name,
		Action:    action,
		Protocol:  rule.Protocol,
		DstPort:   rule.Ports,
		Enabled:   rule.IsEnabled(),
	}

	var err error
	conf.SrcNetworkID, conf.SrcAddress, err = c.selectorWire(rule.Source, rule.Key())
	if err != nil {
		return nil, err
	}
	conf.DstNetworkID, conf.DstAddress, err = c.selectorWire(rule.Destination, rule.Key())
	if err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *HTTPClient) selectorWire(sel config.Selector, ruleKey string) (netID, address string, err error) {
	if sel.RefersToSegment() {
		id, err := c.netID(sel.Segment, "resolve selector for "+ruleKey)
		if err != nil {
			return "", "", err
		}
		return id, "", nil
	}
	return "", sel.CIDR, nil
}
