// Package reconcile computes and executes the operations that move a
// controller's live configuration toward desired state: diff, dependency
// planning, and idempotent apply.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/unifi-declarative/unifid/pkg/config"
)

// OpKind classifies an operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is a single planned mutation. Exactly one of Segment and
// Rule is set. The operation ID doubles as the dependency-edge handle.
type Operation struct {
	ID   string
	Kind OpKind

	Segment *config.Segment
	Rule    *config.FirewallRule

	// PrevPriority addresses the live rule for reorder updates; equal
	// to Rule.Priority otherwise. Meaningless for segment operations.
	PrevPriority int

	// DependsOn lists operation IDs that must succeed first.
	DependsOn []string
}

// opID builds the canonical operation identifier.
func opID(kind OpKind, targetKey string) string {
	return string(kind) + " " + targetKey
}

// TargetKey returns the stable identity of the operation's target.
func (op *Operation) TargetKey() string {
	if op.Segment != nil {
		return op.Segment.Key()
	}
	return op.Rule.Key()
}

// IsReorder reports whether this is a rule update that moves priority.
func (op *Operation) IsReorder() bool {
	return op.Rule != nil && op.Kind == OpUpdate && op.PrevPriority != op.Rule.Priority
}

// dependsOn records a dependency edge, deduplicating.
func (op *Operation) dependsOn(id string) {
	for _, existing := range op.DependsOn {
		if existing == id {
			return
		}
	}
	op.DependsOn = append(op.DependsOn, id)
}

// String renders the operation as a human-readable intended action.
// Dry-run output and the live action log both use this rendering.
func (op *Operation) String() string {
	tag := ""
	switch op.Kind {
	case OpCreate:
		tag = "[ADD]"
	case OpUpdate:
		tag = "[MOD]"
	case OpDelete:
		tag = "[DEL]"
	}

	var detail string
	switch {
	case op.Segment != nil && op.Kind != OpDelete:
		detail = fmt.Sprintf(" → %s %s", op.Segment.Name, op.Segment.Subnet)
	case op.Rule != nil && op.Kind != OpDelete:
		detail = fmt.Sprintf(" → %s %s from %s to %s",
			op.Rule.Action, protocolOrAll(op.Rule.Protocol), op.Rule.Source, op.Rule.Destination)
		if op.IsReorder() {
			detail += fmt.Sprintf(" (moved from priority %d)", op.PrevPriority)
		}
	}
	return fmt.Sprintf("%s %s%s", tag, op.TargetKey(), detail)
}

func protocolOrAll(proto string) string {
	if proto == "" {
		return "all"
	}
	return proto
}

// sortOps orders operations deterministically by ID. Used for stable
// diff output before planning imposes dependency order.
func sortOps(ops []*Operation) {
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
}

// renderOps renders a list of operations one per line.
func renderOps(ops []*Operation) string {
	var sb strings.Builder
	for _, op := range ops {
		sb.WriteString("  ")
		sb.WriteString(op.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
