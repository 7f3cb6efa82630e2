package validate

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/util"
)

func boolPtr(b bool) *bool { return &b }

func validConfig() *config.Config {
	return &config.Config{
		HardwareProfile: "usg3p",
		Segments: []*config.Segment{
			{
				VLAN:    10,
				Name:    "Home",
				Subnet:  "10.0.10.0/24",
				Gateway: "10.0.10.1",
				DHCP: &config.DHCPScope{
					Start: "10.0.10.100",
					Stop:  "10.0.10.200",
					DNS:   []string{"1.1.1.1"},
				},
			},
			{
				VLAN:    30,
				Name:    "IoT",
				Subnet:  "10.0.30.0/24",
				Gateway: "10.0.30.1",
			},
		},
		Rules: []*config.FirewallRule{
			{
				Chain:       "LAN-IN",
				Priority:    10,
				Action:      config.ActionDeny,
				Source:      config.Selector{Segment: 30},
				Destination: config.Selector{Segment: 10},
			},
		},
	}
}

func violations(t *testing.T, err error) []util.Violation {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var verr *util.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want *util.ValidationError", err)
	}
	return verr.Violations
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validConfig(), "usg3p"); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_ManagementTagForbidden(t *testing.T) {
	cfg := validConfig()
	cfg.Segments[0].VLAN = 1

	vs := violations(t, Validate(cfg, "usg3p"))
	found := false
	for _, v := range vs {
		if strings.Contains(v.Rule, "management") {
			found = true
		}
	}
	if !found {
		t.Errorf("violations = %v, want management-tag violation", vs)
	}
}

func TestValidate_TagRange(t *testing.T) {
	for _, tag := range []int{0, -5, 4095} {
		cfg := validConfig()
		cfg.Segments[0].VLAN = tag
		if err := Validate(cfg, "usg3p"); err == nil {
			t.Errorf("tag %d should fail validation", tag)
		}
	}
}

func TestValidate_GatewayOutsideSubnet(t *testing.T) {
	cfg := validConfig()
	cfg.Segments[0].Gateway = "10.0.99.1"

	vs := violations(t, Validate(cfg, "usg3p"))
	if len(vs) != 1 {
		t.Fatalf("violations = %v, want exactly one", vs)
	}
	if vs[0].Value != "10.0.99.1" || !strings.Contains(vs[0].Rule, "10.0.10.0/24") {
		t.Errorf("violation = %v, should name value and subnet", vs[0])
	}
}

func TestValidate_SubnetMustBeCanonical(t *testing.T) {
	// A subnet with host bits set would round-trip through the controller
	// as the network address and never converge.
	cfg := validConfig()
	cfg.Segments[0].Subnet = "10.0.10.5/24"

	vs := violations(t, Validate(cfg, "usg3p"))
	if len(vs) != 1 {
		t.Fatalf("violations = %v, want exactly one", vs)
	}
	if vs[0].Value != "10.0.10.5/24" || !strings.Contains(vs[0].Rule, "10.0.10.0/24") {
		t.Errorf("violation = %v, should name the offending subnet and its canonical form", vs[0])
	}
}

func TestValidate_DHCPDNSServerLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Segments[0].DHCP.DNS = []string{"1.1.1.1", "1.0.0.1", "8.8.8.8", "8.8.4.4", "9.9.9.9"}

	vs := violations(t, Validate(cfg, "usg3p"))
	if len(vs) != 1 {
		t.Fatalf("violations = %v, want exactly one", vs)
	}
	if !strings.Contains(vs[0].Rule, "4") {
		t.Errorf("violation = %v, should name the server limit", vs[0])
	}

	// Exactly four is fine.
	cfg.Segments[0].DHCP.DNS = cfg.Segments[0].DHCP.DNS[:4]
	if err := Validate(cfg, "usg3p"); err != nil {
		t.Errorf("Validate() with four DNS servers = %v, want nil", err)
	}
}

func TestValidate_DHCPRangeOutsideSubnet(t *testing.T) {
	cfg := validConfig()
	cfg.Segments[0].DHCP.Start = "10.0.30.100"

	if err := Validate(cfg, "usg3p"); err == nil {
		t.Error("DHCP start outside subnet should fail")
	}
}

func TestValidate_CollectsAllStructuralViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Segments[0].Subnet = "bogus"
	cfg.Segments[1].Name = ""

	vs := violations(t, Validate(cfg, "usg3p"))
	if len(vs) < 2 {
		t.Errorf("want all structural violations collected, got %v", vs)
	}
}

func TestValidate_StructuralShortCircuitsUniqueness(t *testing.T) {
	// Both a structural failure and a duplicate tag: only the structural
	// class is reported.
	cfg := validConfig()
	cfg.Segments[0].Subnet = "bogus"
	cfg.Segments[1].VLAN = 10
	cfg.Segments[1].Subnet = "10.0.10.0/24"
	cfg.Rules = nil

	vs := violations(t, Validate(cfg, "usg3p"))
	for _, v := range vs {
		if strings.Contains(v.Rule, "duplicate") {
			t.Errorf("uniqueness violation %v reported alongside structural failures", v)
		}
	}
}

func TestValidate_DuplicateTagAndName(t *testing.T) {
	cfg := validConfig()
	cfg.Segments[1].VLAN = 10
	cfg.Segments[1].Subnet = "10.0.40.0/24" // avoid a second overlap violation class mixing
	cfg.Segments[1].Gateway = "10.0.40.1"
	cfg.Segments[1].Name = "Home"
	cfg.Rules = nil

	vs := violations(t, Validate(cfg, "usg3p"))
	var dupTag, dupName bool
	for _, v := range vs {
		if strings.Contains(v.Rule, "duplicate VLAN tag") {
			dupTag = true
		}
		if strings.Contains(v.Rule, "duplicate segment name") {
			dupName = true
		}
	}
	if !dupTag || !dupName {
		t.Errorf("violations = %v, want duplicate tag and duplicate name", vs)
	}
}

func TestValidate_SubnetOverlap(t *testing.T) {
	// Overlap fails regardless of declaration order
	for _, order := range [][2]string{
		{"10.0.10.0/24", "10.0.10.128/25"},
		{"10.0.10.128/25", "10.0.10.0/24"},
	} {
		cfg := validConfig()
		cfg.Segments[0].Subnet = order[0]
		cfg.Segments[0].Gateway = "10.0.10.130"
		cfg.Segments[1].Subnet = order[1]
		cfg.Segments[1].Gateway = "10.0.10.131"
		cfg.Rules = nil

		err := Validate(cfg, "usg3p")
		if err == nil {
			t.Errorf("subnets %v should fail validation", order)
			continue
		}
		if !strings.Contains(err.Error(), "overlaps") {
			t.Errorf("error = %v, want overlap violation", err)
		}
	}
}

func TestValidate_DuplicateRulePriority(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = append(cfg.Rules, &config.FirewallRule{
		Chain:    "LAN-IN",
		Priority: 10,
		Action:   config.ActionAllow,
	})

	err := Validate(cfg, "usg3p")
	if err == nil || !strings.Contains(err.Error(), "duplicate priority") {
		t.Errorf("error = %v, want duplicate priority violation", err)
	}
}

func TestValidate_UndeclaredSegmentRef(t *testing.T) {
	cfg := validConfig()
	cfg.Rules[0].Source = config.Selector{Segment: 99}

	err := Validate(cfg, "usg3p")
	if err == nil || !strings.Contains(err.Error(), "undeclared segment") {
		t.Errorf("error = %v, want undeclared segment violation", err)
	}
}

func TestValidate_HardwareCeiling(t *testing.T) {
	makeSegments := func(n int) []*config.Segment {
		segs := make([]*config.Segment, n)
		for i := range segs {
			tag := 10 + i*10
			segs[i] = &config.Segment{
				VLAN:    tag,
				Name:    fmt.Sprintf("net-%d", tag),
				Subnet:  fmt.Sprintf("10.0.%d.0/24", tag),
				Gateway: fmt.Sprintf("10.0.%d.1", tag),
			}
		}
		return segs
	}

	// At the ceiling: passes
	atCeiling := &config.Config{Segments: makeSegments(4)}
	if err := Validate(atCeiling, "usg3p"); err != nil {
		t.Errorf("count at ceiling should pass: %v", err)
	}

	// One over: fails naming both counts
	over := &config.Config{Segments: makeSegments(5)}
	err := Validate(over, "usg3p")
	if err == nil {
		t.Fatal("count over ceiling should fail")
	}
	if !strings.Contains(err.Error(), "4") || !strings.Contains(err.Error(), "5") {
		t.Errorf("error = %v, should name the count and the ceiling", err)
	}
}

func TestValidate_UnknownProfile(t *testing.T) {
	err := Validate(validConfig(), "er-x")
	if err == nil {
		t.Fatal("unknown profile should fail validation")
	}
	if !strings.Contains(err.Error(), "usg3p") {
		t.Errorf("error = %v, should list supported profiles", err)
	}
}

func TestValidate_RuleStructural(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.FirewallRule)
	}{
		{"empty chain", func(r *config.FirewallRule) { r.Chain = "" }},
		{"bad action", func(r *config.FirewallRule) { r.Action = "drop" }},
		{"missing action", func(r *config.FirewallRule) { r.Action = "" }},
		{"bad ports", func(r *config.FirewallRule) { r.Ports = "99999" }},
		{"bad cidr", func(r *config.FirewallRule) { r.Source = config.Selector{CIDR: "bogus"} }},
		{"segment and cidr", func(r *config.FirewallRule) {
			r.Source = config.Selector{Segment: 10, CIDR: "10.0.10.0/24"}
		}},
		{"negative priority", func(r *config.FirewallRule) { r.Priority = -1 }},
	}

	for _, tt := range tests {
		cfg := validConfig()
		tt.mutate(cfg.Rules[0])
		if err := Validate(cfg, "usg3p"); err == nil {
			t.Errorf("%s: expected validation failure", tt.name)
		}
	}
}

func TestValidate_DisabledSegmentStillValidated(t *testing.T) {
	cfg := validConfig()
	cfg.Segments[0].Enabled = boolPtr(false)
	cfg.Segments[0].Subnet = "bogus"

	if err := Validate(cfg, "usg3p"); err == nil {
		t.Error("disabled segments are still part of desired state and must validate")
	}
}
