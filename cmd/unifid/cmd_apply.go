package main

import (
	"context"
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/unifi-declarative/unifid/pkg/audit"
	"github.com/unifi-declarative/unifid/pkg/reconcile"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile the controller toward desired state",
	Long: `Reconcile the controller toward the desired-state file.

Previews the plan by default. With -x, a controller snapshot is taken
first, then operations run in dependency order; a failed operation
skips its dependents but independent work continues.

Examples:
  unifid apply -f vlans.yaml        # preview only
  unifid apply -f vlans.yaml -x     # execute`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		started := time.Now()

		client, cleanup, err := buildClient()
		if err != nil {
			return err
		}
		defer cleanup()

		_, plan, err := preparePlan(ctx, client)
		if err != nil {
			return err
		}

		if plan.Empty() {
			fmt.Println(green("In sync: no changes needed."))
			return nil
		}

		fmt.Println("Changes to be applied:")
		fmt.Print(plan.Summary())

		if !executeMode {
			report, err := reconcile.NewApplier(client).Apply(ctx, plan, true)
			if err != nil {
				return err
			}
			recordRun(audit.ModeDryRun, plan, report, time.Since(started))
			fmt.Println("\n" + yellow("DRY-RUN: No changes applied. Use -x to execute."))
			return nil
		}

		report, err := reconcile.NewApplier(client).Apply(ctx, plan, false)
		if err != nil {
			return err
		}

		recordRun(audit.ModeApply, plan, report, time.Since(started))
		printReport(report)

		if !report.OK() {
			return errPartialApply
		}
		return nil
	},
}

func printReport(report *reconcile.ApplyReport) {
	succeeded, failed, skipped := report.Counts()
	if report.OK() {
		fmt.Printf("\n%s %d operations applied.\n", green("Done:"), succeeded)
		return
	}

	fmt.Printf("\n%s %d applied, %d failed, %d skipped\n",
		red("Incomplete:"), succeeded, failed, skipped)
	for _, res := range report.Results {
		switch res.Status {
		case reconcile.StatusFailed:
			fmt.Printf("  %s %s: %v\n", red("FAILED"), res.Op.ID, res.Err)
		case reconcile.StatusSkipped:
			fmt.Printf("  %s %s: %s\n", yellow("SKIPPED"), res.Op.ID, res.Reason)
		}
	}
	if report.Snapshot != nil {
		fmt.Printf("\nPre-apply snapshot %s is available on the controller.\n", report.Snapshot.ID)
	}
}

// recordRun writes one audit event per operation plus a run summary.
func recordRun(mode string, plan *reconcile.Plan, report *reconcile.ApplyReport, elapsed time.Duration) {
	runID := audit.NewRunID()
	userName := currentUser()
	snapshotID := ""
	if report.Snapshot != nil {
		snapshotID = report.Snapshot.ID
	}

	for _, res := range report.Results {
		event := audit.NewEvent(runID, userName, controllerURL).
			WithSite(siteName).
			WithMode(mode).
			WithOperation(res.Op.ID, res.Op.TargetKey()).
			WithOutcome(string(res.Status))
		if res.Err != nil {
			event.WithError(res.Err)
		}
		if res.Reason != "" {
			event.WithReason(res.Reason)
		}
		audit.Log(event)
	}

	succeeded, failed, skipped := report.Counts()
	audit.Log(audit.NewEvent(runID, userName, controllerURL).
		WithSite(siteName).
		WithMode(mode).
		WithOutcome(runOutcome(report)).
		WithSnapshot(snapshotID).
		WithDuration(elapsed).
		WithSummary(fmt.Sprintf("%d applied, %d failed, %d skipped of %d planned",
			succeeded, failed, skipped, len(plan.Ops))))
}

func runOutcome(report *reconcile.ApplyReport) string {
	switch {
	case report.DryRun:
		return audit.OutcomePlanned
	case report.OK():
		return audit.OutcomeSucceeded
	default:
		return audit.OutcomeFailed
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
