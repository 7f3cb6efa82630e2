package reconcile

import (
	"strings"
	"testing"

	"github.com/unifi-declarative/unifid/pkg/config"
)

func seg(vlan int, name, subnet, gateway string) *config.Segment {
	return &config.Segment{VLAN: vlan, Name: name, Subnet: subnet, Gateway: gateway}
}

func rule(chain string, priority int, action config.RuleAction, src, dst config.Selector) *config.FirewallRule {
	return &config.FirewallRule{Chain: chain, Priority: priority, Action: action, Source: src, Destination: dst}
}

func cfg(segs []*config.Segment, rules []*config.FirewallRule) *config.Config {
	return &config.Config{Segments: segs, Rules: rules}
}

func opIDs(ops []*Operation) []string {
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	return ids
}

func findOp(t *testing.T, ops []*Operation, id string) *Operation {
	t.Helper()
	for _, op := range ops {
		if op.ID == id {
			return op
		}
	}
	t.Fatalf("operation %q not found in %v", id, opIDs(ops))
	return nil
}

func TestDiff_IdenticalStatesProduceNothing(t *testing.T) {
	state := cfg(
		[]*config.Segment{seg(10, "servers", "10.0.10.0/24", "10.0.10.1")},
		[]*config.FirewallRule{rule("LAN_IN", 10, config.ActionDeny,
			config.Selector{Segment: 10}, config.Selector{})},
	)
	if ops := Diff(state, state); len(ops) != 0 {
		t.Errorf("Diff(x, x) = %v, want empty", opIDs(ops))
	}
}

func TestDiff_CreatesDesiredOnly(t *testing.T) {
	desired := cfg(
		[]*config.Segment{
			seg(10, "servers", "10.0.10.0/24", "10.0.10.1"),
			seg(30, "iot", "10.0.30.0/24", "10.0.30.1"),
		},
		[]*config.FirewallRule{rule("LAN_IN", 10, config.ActionDeny,
			config.Selector{Segment: 30}, config.Selector{Segment: 10})},
	)
	live := cfg(nil, nil)

	ops := Diff(desired, live)
	if len(ops) != 3 {
		t.Fatalf("len(ops) = %d (%v), want 3", len(ops), opIDs(ops))
	}
	for _, op := range ops {
		if op.Kind != OpCreate {
			t.Errorf("%s kind = %s, want create", op.ID, op.Kind)
		}
	}

	ruleOp := findOp(t, ops, "create rule/LAN_IN/10")
	wantDeps := map[string]bool{"create segment/10": true, "create segment/30": true}
	if len(ruleOp.DependsOn) != 2 {
		t.Fatalf("rule DependsOn = %v, want both segment creates", ruleOp.DependsOn)
	}
	for _, dep := range ruleOp.DependsOn {
		if !wantDeps[dep] {
			t.Errorf("unexpected dependency %q", dep)
		}
	}
}

func TestDiff_DeletesLiveOnly(t *testing.T) {
	desired := cfg(nil, nil)
	live := cfg(
		[]*config.Segment{seg(40, "guest", "10.0.40.0/24", "10.0.40.1")},
		[]*config.FirewallRule{rule("LAN_IN", 5, config.ActionAllow,
			config.Selector{Segment: 40}, config.Selector{})},
	)

	ops := Diff(desired, live)
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d (%v), want 2", len(ops), opIDs(ops))
	}

	segOp := findOp(t, ops, "delete segment/40")
	if len(segOp.DependsOn) != 1 || segOp.DependsOn[0] != "delete rule/LAN_IN/5" {
		t.Errorf("segment delete DependsOn = %v, want the referencing rule delete first", segOp.DependsOn)
	}
}

func TestDiff_UpdatesChangedSegment(t *testing.T) {
	desired := cfg([]*config.Segment{seg(10, "servers", "10.0.10.0/24", "10.0.10.1")}, nil)
	changed := seg(10, "servers-old", "10.0.10.0/24", "10.0.10.1")
	live := cfg([]*config.Segment{changed}, nil)

	ops := Diff(desired, live)
	if len(ops) != 1 || ops[0].ID != "update segment/10" {
		t.Fatalf("ops = %v, want single update segment/10", opIDs(ops))
	}
	if ops[0].Segment.Name != "servers" {
		t.Errorf("update carries name %q, want desired value", ops[0].Segment.Name)
	}
}

func TestDiff_ReorderBecomesSingleUpdate(t *testing.T) {
	body := func(priority int) *config.FirewallRule {
		r := rule("LAN_IN", priority, config.ActionDeny,
			config.Selector{Segment: 30}, config.Selector{Segment: 10})
		r.Name = "block-iot"
		return r
	}
	desired := cfg(
		[]*config.Segment{
			seg(10, "servers", "10.0.10.0/24", "10.0.10.1"),
			seg(30, "iot", "10.0.30.0/24", "10.0.30.1"),
		},
		[]*config.FirewallRule{body(20)},
	)
	live := cfg(desired.Segments, []*config.FirewallRule{body(10)})

	ops := Diff(desired, live)
	if len(ops) != 1 {
		t.Fatalf("ops = %v, want single reorder update", opIDs(ops))
	}
	op := ops[0]
	if op.Kind != OpUpdate || op.ID != "update rule/LAN_IN/20" {
		t.Errorf("op = %s %s, want update rule/LAN_IN/20", op.Kind, op.ID)
	}
	if !op.IsReorder() || op.PrevPriority != 10 {
		t.Errorf("PrevPriority = %d, want 10 (reorder)", op.PrevPriority)
	}
}

func TestDiff_ManagementSegmentNeverTouched(t *testing.T) {
	mgmt := seg(config.ManagementVLAN, "management", "192.168.1.0/24", "192.168.1.1")
	desired := cfg(nil, nil)
	live := cfg([]*config.Segment{mgmt}, nil)

	if ops := Diff(desired, live); len(ops) != 0 {
		t.Errorf("Diff produced %v for a live management segment, want none", opIDs(ops))
	}
}

func TestDiff_DanglingReferenceGetsPhantomDependency(t *testing.T) {
	desired := cfg(
		[]*config.Segment{seg(10, "servers", "10.0.10.0/24", "10.0.10.1")},
		[]*config.FirewallRule{rule("LAN_IN", 10, config.ActionDeny,
			config.Selector{Segment: 99}, config.Selector{Segment: 10})},
	)
	live := cfg(nil, nil)

	ops := Diff(desired, live)
	ruleOp := findOp(t, ops, "create rule/LAN_IN/10")

	found := false
	for _, dep := range ruleOp.DependsOn {
		if dep == "create segment/99" {
			found = true
		}
	}
	if !found {
		t.Errorf("DependsOn = %v, want edge to the missing segment/99 create", ruleOp.DependsOn)
	}
}

func TestDiff_CIDRSelectorsNeedNoSegmentEdges(t *testing.T) {
	desired := cfg(
		nil,
		[]*config.FirewallRule{rule("WAN_IN", 1, config.ActionDeny,
			config.Selector{CIDR: "203.0.113.0/24"}, config.Selector{})},
	)
	ops := Diff(desired, cfg(nil, nil))
	ruleOp := findOp(t, ops, "create rule/WAN_IN/1")
	if len(ruleOp.DependsOn) != 0 {
		t.Errorf("DependsOn = %v, want none for CIDR selectors", ruleOp.DependsOn)
	}
}

func TestDiff_OutputIsDeterministic(t *testing.T) {
	desired := cfg(
		[]*config.Segment{
			seg(30, "iot", "10.0.30.0/24", "10.0.30.1"),
			seg(10, "servers", "10.0.10.0/24", "10.0.10.1"),
			seg(20, "voice", "10.0.20.0/24", "10.0.20.1"),
		},
		nil,
	)
	live := cfg(nil, nil)

	first := strings.Join(opIDs(Diff(desired, live)), "|")
	for i := 0; i < 5; i++ {
		if got := strings.Join(opIDs(Diff(desired, live)), "|"); got != first {
			t.Fatalf("run %d produced %q, first run produced %q", i, got, first)
		}
	}
}
