package reconcile

import (
	"fmt"

	"github.com/unifi-declarative/unifid/pkg/config"
)

// Diff compares desired against live state and classifies the minimal
// set of operations, keyed by stable identity: VLAN tag for segments,
// chain+priority for rules. Identical objects produce no operation.
// Ordering is not meaningful here; the planner orders by dependency.
func Diff(desired, live *config.Config) []*Operation {
	var ops []*Operation

	segCreates := make(map[int]*Operation)
	segDeletes := make(map[int]*Operation)

	liveSegs := make(map[int]*config.Segment, len(live.Segments))
	for _, seg := range live.Segments {
		liveSegs[seg.VLAN] = seg
	}

	for _, seg := range desired.SortedSegments() {
		liveSeg, exists := liveSegs[seg.VLAN]
		switch {
		case !exists:
			op := &Operation{ID: opID(OpCreate, seg.Key()), Kind: OpCreate, Segment: seg}
			segCreates[seg.VLAN] = op
			ops = append(ops, op)
		case !seg.Equal(liveSeg):
			ops = append(ops, &Operation{ID: opID(OpUpdate, seg.Key()), Kind: OpUpdate, Segment: seg})
		}
	}

	desiredTags := make(map[int]bool, len(desired.Segments))
	for _, seg := range desired.Segments {
		desiredTags[seg.VLAN] = true
	}
	for _, seg := range live.SortedSegments() {
		if !desiredTags[seg.VLAN] {
			op := &Operation{ID: opID(OpDelete, seg.Key()), Kind: OpDelete, Segment: seg}
			segDeletes[seg.VLAN] = op
			ops = append(ops, op)
		}
	}

	ruleOps := diffRules(desired, live)
	ops = append(ops, ruleOps...)

	attachDependencies(ops, segCreates, segDeletes, desired, live)

	ops = FilterProtected(ops)
	sortOps(ops)
	return ops
}

// diffRules classifies rule operations. A desired rule whose body
// matches a live rule elsewhere in the same chain is recognized as a
// reorder and becomes a single update, never a delete+create, so the
// rule is present throughout the apply.
func diffRules(desired, live *config.Config) []*Operation {
	liveRules := make(map[string]*config.FirewallRule, len(live.Rules))
	for _, rule := range live.Rules {
		liveRules[rule.Key()] = rule
	}
	desiredKeys := make(map[string]bool, len(desired.Rules))
	for _, rule := range desired.Rules {
		desiredKeys[rule.Key()] = true
	}

	var ops []*Operation
	var creates []*Operation

	for _, rule := range desired.SortedRules() {
		liveRule, exists := liveRules[rule.Key()]
		switch {
		case !exists:
			op := &Operation{ID: opID(OpCreate, rule.Key()), Kind: OpCreate, Rule: rule, PrevPriority: rule.Priority}
			creates = append(creates, op)
			ops = append(ops, op)
		case !rule.Equal(liveRule):
			ops = append(ops, &Operation{ID: opID(OpUpdate, rule.Key()), Kind: OpUpdate, Rule: rule, PrevPriority: rule.Priority})
		}
	}

	var deletes []*Operation
	for _, rule := range live.SortedRules() {
		if !desiredKeys[rule.Key()] {
			op := &Operation{ID: opID(OpDelete, rule.Key()), Kind: OpDelete, Rule: rule, PrevPriority: rule.Priority}
			deletes = append(deletes, op)
			ops = append(ops, op)
		}
	}

	// Pair same-chain create/delete with identical bodies into reorders.
	paired := make(map[*Operation]bool)
	for _, create := range creates {
		for _, del := range deletes {
			if paired[del] || del.Rule.Chain != create.Rule.Chain {
				continue
			}
			if !del.Rule.EqualBody(create.Rule) {
				continue
			}
			paired[del] = true
			create.Kind = OpUpdate
			create.ID = opID(OpUpdate, create.Rule.Key())
			create.PrevPriority = del.Rule.Priority
			break
		}
	}

	out := ops[:0]
	for _, op := range ops {
		if !paired[op] {
			out = append(out, op)
		}
	}
	return out
}

// attachDependencies wires the edges the planner orders by:
//   - a rule create/update referencing a segment being created runs
//     after that create; a reference resolving to neither desired nor
//     live state points at a nonexistent operation, which the planner
//     reports as unresolved
//   - a segment delete runs after every rule operation whose live
//     version referenced that segment, so no rule dangles mid-apply
func attachDependencies(ops []*Operation, segCreates map[int]*Operation, segDeletes map[int]*Operation, desired, live *config.Config) {
	// Rule op addressing the live rule at a given key, accounting for
	// reorders which consume the old key.
	ruleOpByLiveKey := make(map[string]*Operation)
	for _, op := range ops {
		if op.Rule == nil {
			continue
		}
		switch op.Kind {
		case OpDelete:
			ruleOpByLiveKey[op.Rule.Key()] = op
		case OpUpdate:
			liveKey := fmt.Sprintf("rule/%s/%d", op.Rule.Chain, op.PrevPriority)
			ruleOpByLiveKey[liveKey] = op
		}
	}

	for _, op := range ops {
		if op.Rule == nil || op.Kind == OpDelete {
			continue
		}
		for _, tag := range op.Rule.SegmentRefs() {
			if create, ok := segCreates[tag]; ok {
				op.dependsOn(create.ID)
				continue
			}
			if desired.SegmentByVLAN(tag) == nil && live.SegmentByVLAN(tag) == nil {
				// Dangling reference: point at the create that would be
				// needed so planning fails closed with its identity.
				op.dependsOn(opID(OpCreate, fmt.Sprintf("segment/%d", tag)))
			}
		}
	}

	for tag, segDelete := range segDeletes {
		for _, rule := range live.Rules {
			for _, ref := range rule.SegmentRefs() {
				if ref != tag {
					continue
				}
				if ruleOp, ok := ruleOpByLiveKey[rule.Key()]; ok {
					segDelete.dependsOn(ruleOp.ID)
				}
			}
		}
	}
}
