package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/unifi-declarative/unifid/internal/testutil"
	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/controller"
	"github.com/unifi-declarative/unifid/pkg/util"
)

func mustPlan(t *testing.T, desired, live *config.Config) *Plan {
	t.Helper()
	plan, err := Reconcile(desired, live)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	return plan
}

func bootstrapConfig() *config.Config {
	return cfg(
		[]*config.Segment{
			seg(10, "servers", "10.0.10.0/24", "10.0.10.1"),
			seg(30, "iot", "10.0.30.0/24", "10.0.30.1"),
		},
		[]*config.FirewallRule{rule("LAN_IN", 10, config.ActionDeny,
			config.Selector{Segment: 30}, config.Selector{Segment: 10})},
	)
}

func TestApply_DryRunTouchesNothing(t *testing.T) {
	client := testutil.NewFakeClient()
	plan := mustPlan(t, bootstrapConfig(), cfg(nil, nil))

	report, err := NewApplier(client).Apply(context.Background(), plan, true)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !report.DryRun || !report.OK() {
		t.Errorf("report = %+v, want successful dry run", report)
	}
	if len(report.Results) != len(plan.Ops) {
		t.Errorf("results = %d, want %d", len(report.Results), len(plan.Ops))
	}
	for _, res := range report.Results {
		if res.Status != StatusPlanned {
			t.Errorf("%s status = %s, want planned", res.Op.ID, res.Status)
		}
	}
	if calls := client.CallLog(); len(calls) != 0 {
		t.Errorf("dry run made controller calls: %v", calls)
	}
	if client.Snapshots != 0 {
		t.Errorf("dry run took %d snapshots, want 0", client.Snapshots)
	}
}

func TestApply_DryRunActionLinesMatchLive(t *testing.T) {
	plan := mustPlan(t, bootstrapConfig(), cfg(nil, nil))

	capture := func(run func()) string {
		var buf bytes.Buffer
		util.SetLogOutput(&buf)
		defer util.SetLogOutput(os.Stderr)
		run()
		return buf.String()
	}

	dryOut := capture(func() {
		if _, err := NewApplier(testutil.NewFakeClient()).Apply(context.Background(), plan, true); err != nil {
			t.Fatalf("dry-run Apply() error = %v", err)
		}
	})
	liveOut := capture(func() {
		if _, err := (&Applier{Client: testutil.NewFakeClient(), Workers: 1}).Apply(context.Background(), plan, false); err != nil {
			t.Fatalf("live Apply() error = %v", err)
		}
	})

	// Both modes emit the same action line; only the mode field differs.
	for _, op := range plan.Ops {
		if !strings.Contains(dryOut, op.String()) {
			t.Errorf("dry-run log missing action line %q:\n%s", op.String(), dryOut)
		}
		if !strings.Contains(liveOut, op.String()) {
			t.Errorf("live log missing action line %q:\n%s", op.String(), liveOut)
		}
	}
	if strings.Contains(dryOut, "dry-run: ") {
		t.Errorf("dry-run log prefixes action lines:\n%s", dryOut)
	}
	if !strings.Contains(dryOut, "mode=dry-run") {
		t.Errorf("dry-run log missing mode field:\n%s", dryOut)
	}
	if strings.Contains(liveOut, "mode=dry-run") {
		t.Errorf("live log carries the dry-run mode field:\n%s", liveOut)
	}
}

func TestApply_SnapshotsThenExecutesInOrder(t *testing.T) {
	client := testutil.NewFakeClient()
	plan := mustPlan(t, bootstrapConfig(), cfg(nil, nil))

	applier := &Applier{Client: client, Workers: 1}
	report, err := applier.Apply(context.Background(), plan, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !report.OK() {
		t.Fatalf("report not OK: %+v", report.Results)
	}
	if report.Snapshot == nil || client.Snapshots != 1 {
		t.Errorf("snapshot handle = %v, snapshots = %d, want exactly one", report.Snapshot, client.Snapshots)
	}

	calls := client.CallLog()
	if len(calls) != 3 {
		t.Fatalf("calls = %v, want 3", calls)
	}
	if calls[2] != "create rule/LAN_IN/10" {
		t.Errorf("rule created at position %v, want last (after its segments)", calls)
	}
	if len(client.Segments) != 2 || len(client.Rules) != 1 {
		t.Errorf("controller state: %d segments %d rules, want 2 and 1",
			len(client.Segments), len(client.Rules))
	}
}

func TestApply_SecondRunIsNoOp(t *testing.T) {
	client := testutil.NewFakeClient()
	desired := bootstrapConfig()

	plan := mustPlan(t, desired, cfg(nil, nil))
	if _, err := (&Applier{Client: client, Workers: 1}).Apply(context.Background(), plan, false); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}

	live := cfg(client.Segments, client.Rules)
	again := mustPlan(t, desired, live)
	if !again.Empty() {
		t.Errorf("second reconcile = %v, want empty plan", opIDs(again.Ops))
	}
}

func TestApply_FailureSkipsDependents(t *testing.T) {
	client := testutil.NewFakeClient()
	client.FailOn["create segment/30"] = &controller.APIError{
		Op: "create segment/30", StatusCode: 409, Err: controller.ErrConflict,
	}
	plan := mustPlan(t, bootstrapConfig(), cfg(nil, nil))

	report, err := (&Applier{Client: client, Workers: 1}).Apply(context.Background(), plan, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.OK() {
		t.Fatal("report.OK() = true after a failed operation")
	}

	byID := make(map[string]*Result)
	for _, res := range report.Results {
		byID[res.Op.ID] = res
	}
	if byID["create segment/10"].Status != StatusSucceeded {
		t.Errorf("independent operation status = %s, want succeeded (best effort)", byID["create segment/10"].Status)
	}
	if byID["create segment/30"].Status != StatusFailed {
		t.Errorf("failing operation status = %s, want failed", byID["create segment/30"].Status)
	}
	ruleRes := byID["create rule/LAN_IN/10"]
	if ruleRes.Status != StatusSkipped {
		t.Fatalf("dependent status = %s, want skipped", ruleRes.Status)
	}
	if ruleRes.Reason == "" || !errors.Is(byID["create segment/30"].Err, controller.ErrConflict) {
		t.Errorf("skip reason = %q, err = %v", ruleRes.Reason, byID["create segment/30"].Err)
	}

	succeeded, failed, skipped := report.Counts()
	if succeeded != 1 || failed != 1 || skipped != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", succeeded, failed, skipped)
	}
}

func TestApply_FatalErrorHaltsDispatch(t *testing.T) {
	client := testutil.NewFakeClient()
	client.FailOn["create segment/10"] = &controller.APIError{
		Op: "create segment/10", StatusCode: 401, Err: controller.ErrAuthFailed,
	}
	plan := mustPlan(t, bootstrapConfig(), cfg(nil, nil))

	report, err := (&Applier{Client: client, Workers: 1}).Apply(context.Background(), plan, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !report.Halted {
		t.Error("report.Halted = false after a fatal error")
	}
	var executed int
	for _, call := range client.CallLog() {
		if call != "create segment/10" {
			executed++
		}
	}
	if executed != 0 {
		t.Errorf("dispatched %d operations after the fatal failure: %v", executed, client.CallLog())
	}
	for _, res := range report.Results {
		if res.Op.ID == "create segment/10" {
			continue
		}
		if res.Status != StatusSkipped {
			t.Errorf("%s status = %s, want skipped after halt", res.Op.ID, res.Status)
		}
	}
}

func TestApply_SnapshotFailureAborts(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SnapshotErr = fmt.Errorf("backup rejected: %w", util.ErrSnapshotFailed)
	plan := mustPlan(t, bootstrapConfig(), cfg(nil, nil))

	_, err := NewApplier(client).Apply(context.Background(), plan, false)
	if !errors.Is(err, util.ErrSnapshotFailed) {
		t.Fatalf("Apply() error = %v, want ErrSnapshotFailed", err)
	}
	if calls := client.CallLog(); len(calls) != 0 {
		t.Errorf("operations ran despite snapshot failure: %v", calls)
	}
}

func TestApply_CancelledContextSkipsRemaining(t *testing.T) {
	client := testutil.NewFakeClient()
	plan := mustPlan(t, bootstrapConfig(), cfg(nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewApplier(client).Apply(ctx, plan, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	for _, res := range report.Results {
		if res.Status != StatusSkipped {
			t.Errorf("%s status = %s, want skipped under cancellation", res.Op.ID, res.Status)
		}
	}
}

func TestApply_EmptyPlanSkipsSnapshot(t *testing.T) {
	client := testutil.NewFakeClient()
	report, err := NewApplier(client).Apply(context.Background(), &Plan{}, false)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !report.OK() || client.Snapshots != 0 {
		t.Errorf("empty plan: OK=%v snapshots=%d, want OK with no snapshot", report.OK(), client.Snapshots)
	}
}
