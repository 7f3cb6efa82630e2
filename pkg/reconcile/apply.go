package reconcile

import (
	"context"
	"fmt"

	"github.com/unifi-declarative/unifid/pkg/controller"
	"github.com/unifi-declarative/unifid/pkg/util"
)

// DefaultWorkers bounds concurrent controller mutations.
const DefaultWorkers = 4

// ResultStatus classifies the outcome of one planned operation.
type ResultStatus string

const (
	StatusSucceeded ResultStatus = "succeeded"
	StatusFailed    ResultStatus = "failed"
	StatusSkipped   ResultStatus = "skipped"
	StatusPlanned   ResultStatus = "planned"
)

// Result records the outcome of a single operation.
type Result struct {
	Op     *Operation
	Status ResultStatus
	Err    error
	// Reason explains a skip, naming the operation that caused it.
	Reason string
}

// ApplyReport summarizes an apply run. Results follow plan order.
type ApplyReport struct {
	DryRun   bool
	Snapshot *controller.SnapshotHandle
	Results  []*Result
	// Halted is set when a fatal error stopped dispatch early.
	Halted bool
}

// OK reports whether every operation succeeded (or, in dry-run, was
// planned).
func (r *ApplyReport) OK() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusSkipped {
			return false
		}
	}
	return true
}

// Counts returns the number of succeeded, failed, and skipped
// operations.
func (r *ApplyReport) Counts() (succeeded, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded, StatusPlanned:
			succeeded++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// Applier executes a plan against a controller. Retry behavior belongs
// to the client, not here; wrap with controller.WithRetry before
// constructing.
type Applier struct {
	Client  controller.Client
	Workers int
}

// NewApplier returns an applier with the default worker bound.
func NewApplier(client controller.Client) *Applier {
	return &Applier{Client: client, Workers: DefaultWorkers}
}

// Apply executes the plan. In dry-run mode it renders the exact action
// log a live run would produce and touches the controller not at all.
// A live run snapshots the controller first and aborts if the snapshot
// fails. Operations run concurrently up to the worker bound; an
// operation runs only after all of its dependencies succeeded, and a
// failure skips every transitive dependent with the failing operation
// named. Fatal errors halt dispatch; everything else is best effort.
func (a *Applier) Apply(ctx context.Context, plan *Plan, dryRun bool) (*ApplyReport, error) {
	report := &ApplyReport{DryRun: dryRun}

	if dryRun {
		for _, op := range plan.Ops {
			// Same action line a live run emits; the mode travels as a
			// field so log consumers can diff the two byte for byte.
			util.WithField("mode", "dry-run").Infof("%s", op.String())
			report.Results = append(report.Results, &Result{Op: op, Status: StatusPlanned})
		}
		return report, nil
	}

	if plan.Empty() {
		return report, nil
	}

	snapshot, err := a.Client.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("pre-apply snapshot: %w", err)
	}
	report.Snapshot = snapshot
	util.WithField("snapshot_id", snapshot.ID).Info("controller snapshot taken")

	workers := a.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	resultByID := make(map[string]*Result, len(plan.Ops))

	type doneMsg struct {
		op  *Operation
		err error
	}
	done := make(chan doneMsg)
	inflight := 0
	dispatched := make(map[string]bool, len(plan.Ops))
	halted := false

	// blockedBy returns the first dependency of op that did not succeed,
	// or nil when op is ready to run.
	blockedBy := func(op *Operation) *Result {
		for _, dep := range op.DependsOn {
			res, ok := resultByID[dep]
			if !ok {
				return nil
			}
			if res.Status == StatusFailed || res.Status == StatusSkipped {
				return res
			}
		}
		return nil
	}

	ready := func(op *Operation) bool {
		for _, dep := range op.DependsOn {
			res, ok := resultByID[dep]
			if !ok || res.Status != StatusSucceeded {
				return false
			}
		}
		return true
	}

	for {
		// Cooperative cancellation checkpoint between dispatches.
		cancelled := ctx.Err() != nil

		for _, op := range plan.Ops {
			if dispatched[op.ID] || resultByID[op.ID] != nil {
				continue
			}
			if blocker := blockedBy(op); blocker != nil {
				resultByID[op.ID] = &Result{
					Op:     op,
					Status: StatusSkipped,
					Reason: fmt.Sprintf("dependency %s %s", blocker.Op.ID, blocker.Status),
				}
				util.Warnf("skipping %s: %s", op.ID, resultByID[op.ID].Reason)
				continue
			}
			if halted || cancelled {
				reason := "apply halted after fatal error"
				if cancelled {
					reason = "apply cancelled"
				}
				resultByID[op.ID] = &Result{Op: op, Status: StatusSkipped, Reason: reason}
				continue
			}
			if inflight < workers && ready(op) {
				dispatched[op.ID] = true
				inflight++
				go func(op *Operation) {
					util.Infof("%s", op.String())
					done <- doneMsg{op: op, err: a.execute(ctx, op)}
				}(op)
			}
		}

		if inflight == 0 {
			break
		}

		msg := <-done
		inflight--
		if msg.err != nil {
			resultByID[msg.op.ID] = &Result{Op: msg.op, Status: StatusFailed, Err: msg.err}
			util.WithField("operation", msg.op.ID).Errorf("apply failed: %v", msg.err)
			if controller.IsFatal(msg.err) {
				halted = true
				report.Halted = true
			}
		} else {
			resultByID[msg.op.ID] = &Result{Op: msg.op, Status: StatusSucceeded}
		}
	}

	for _, op := range plan.Ops {
		report.Results = append(report.Results, resultByID[op.ID])
	}
	return report, nil
}

// execute performs the remote call for a single operation.
func (a *Applier) execute(ctx context.Context, op *Operation) error {
	switch {
	case op.Segment != nil:
		switch op.Kind {
		case OpCreate:
			return a.Client.CreateSegment(ctx, op.Segment)
		case OpUpdate:
			return a.Client.UpdateSegment(ctx, op.Segment)
		case OpDelete:
			return a.Client.DeleteSegment(ctx, op.Segment.VLAN)
		}
	case op.Rule != nil:
		switch op.Kind {
		case OpCreate:
			return a.Client.CreateFirewallRule(ctx, op.Rule)
		case OpUpdate:
			return a.Client.UpdateFirewallRule(ctx, op.PrevPriority, op.Rule)
		case OpDelete:
			return a.Client.DeleteFirewallRule(ctx, op.Rule.Chain, op.Rule.Priority)
		}
	}
	return fmt.Errorf("unknown operation %q", op.ID)
}
