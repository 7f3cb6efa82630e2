package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/util"
)

// Plan is a dependency-ordered sequence of operations. Every operation
// appears after all of its dependencies.
type Plan struct {
	Ops []*Operation
}

// Empty reports whether the plan contains no operations.
func (p *Plan) Empty() bool {
	return len(p.Ops) == 0
}

// Summary renders the plan one operation per line, in apply order.
func (p *Plan) Summary() string {
	if p.Empty() {
		return "  no changes\n"
	}
	return renderOps(p.Ops)
}

// PlanningError reports why an operation set could not be ordered. It
// names the offending operation identities so the configuration can be
// corrected without guessing.
type PlanningError struct {
	Reason string
	Ops    []string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s: %s", e.Reason, strings.Join(e.Ops, ", "))
}

func (e *PlanningError) Unwrap() error {
	return util.ErrPlanningFailed
}

// FilterProtected drops every operation targeting the management
// segment. Applied uniformly to every operation-producing path so the
// management network can never be mutated or deleted.
func FilterProtected(ops []*Operation) []*Operation {
	out := ops[:0]
	for _, op := range ops {
		if op.Segment != nil && op.Segment.IsManagement() {
			perr := &util.ProtectedError{
				Resource: op.TargetKey(),
				Reason:   "management network is never reconciled",
			}
			util.Debugf("dropping %s: %v", op.ID, perr)
			continue
		}
		out = append(out, op)
	}
	return out
}

// BuildPlan orders operations so that every dependency precedes its
// dependents. An edge naming an operation that is not in the set means
// a reference could not be resolved against either desired or live
// state; a cycle means the set cannot be applied at all. Both are
// planning failures, never silently dropped edges.
func BuildPlan(ops []*Operation) (*Plan, error) {
	ops = FilterProtected(ops)

	byID := make(map[string]*Operation, len(ops))
	for _, op := range ops {
		byID[op.ID] = op
	}

	var unresolved []string
	for _, op := range ops {
		for _, dep := range op.DependsOn {
			if _, ok := byID[dep]; !ok {
				unresolved = append(unresolved, util.NewDependencyError(op.ID, "operation", dep).Error())
			}
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, &PlanningError{Reason: "unresolved dependency", Ops: unresolved}
	}

	// Kahn's algorithm with a sorted ready set for deterministic output.
	indegree := make(map[string]int, len(ops))
	dependents := make(map[string][]*Operation, len(ops))
	for _, op := range ops {
		indegree[op.ID] = len(op.DependsOn)
		for _, dep := range op.DependsOn {
			dependents[dep] = append(dependents[dep], op)
		}
	}

	var ready []*Operation
	for _, op := range ops {
		if indegree[op.ID] == 0 {
			ready = append(ready, op)
		}
	}
	sortOps(ready)

	ordered := make([]*Operation, 0, len(ops))
	for len(ready) > 0 {
		op := ready[0]
		ready = ready[1:]
		ordered = append(ordered, op)

		var released []*Operation
		for _, dependent := range dependents[op.ID] {
			indegree[dependent.ID]--
			if indegree[dependent.ID] == 0 {
				released = append(released, dependent)
			}
		}
		sortOps(released)
		ready = append(ready, released...)
	}

	if len(ordered) != len(ops) {
		var cycle []string
		for _, op := range ops {
			if indegree[op.ID] > 0 {
				cycle = append(cycle, op.ID)
			}
		}
		sort.Strings(cycle)
		return nil, &PlanningError{Reason: "dependency cycle", Ops: cycle}
	}

	return &Plan{Ops: ordered}, nil
}

// Reconcile runs the diff and planning stages in one step, the common
// path for both dry-run and live apply.
func Reconcile(desired, live *config.Config) (*Plan, error) {
	return BuildPlan(Diff(desired, live))
}
