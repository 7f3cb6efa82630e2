package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unifi-declarative/unifid/pkg/audit"
	"github.com/unifi-declarative/unifid/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View audit logs of applied changes.

Every apply run is logged with:
  - Timestamp and run ID
  - User who ran it
  - Operation and target
  - Outcome (succeeded/failed/skipped)

Examples:
  unifid audit list --last 24h
  unifid audit list --failures
  unifid audit list --run <run-id>`,
}

var (
	auditRun      string
	auditUser     string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			RunID:       auditRun,
			User:        auditUser,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "OPERATION", "OUTCOME")
		for _, event := range events {
			outcome := event.Outcome
			switch outcome {
			case audit.OutcomeSucceeded:
				outcome = green(outcome)
			case audit.OutcomeFailed:
				outcome = red(outcome)
			case audit.OutcomeSkipped, audit.OutcomePlanned:
				outcome = yellow(outcome)
			}

			operation := event.Operation
			if operation == "" && event.Summary != "" {
				operation = event.Summary
			}

			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				operation,
				outcome,
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditRun, "run", "", "Filter by run ID")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}
