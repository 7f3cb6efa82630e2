package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/controller"
	"github.com/unifi-declarative/unifid/pkg/reconcile"
	"github.com/unifi-declarative/unifid/pkg/validate"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show the plan without changing anything",
	Long: `Compare desired state against the live controller and print the
ordered operations a run would apply. Read-only: no mutation, no
snapshot.

Examples:
  unifid diff -f vlans.yaml
  unifid diff -f vlans.yaml --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		client, cleanup, err := buildClient()
		if err != nil {
			return err
		}
		defer cleanup()

		_, plan, err := preparePlan(ctx, client)
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(planDoc(plan))
		}

		if plan.Empty() {
			fmt.Println(green("In sync: no changes needed."))
			return nil
		}
		fmt.Println(bold("Planned changes:"))
		fmt.Print(plan.Summary())
		return nil
	},
}

// preparePlan runs the read-only pipeline stages: load, validate,
// fetch live state, diff, order.
func preparePlan(ctx context.Context, client controller.Client) (*config.Config, *reconcile.Plan, error) {
	path, err := requireConfigPath()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if err := validate.Validate(cfg, cfg.HardwareProfile); err != nil {
		printViolations(err)
		return nil, nil, err
	}

	live, err := controller.FetchLive(ctx, client)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching live state: %w", err)
	}

	plan, err := reconcile.Reconcile(cfg, live)
	if err != nil {
		return nil, nil, err
	}
	return cfg, plan, nil
}

// planOp is the JSON shape of one planned operation.
type planOp struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Target    string   `json:"target"`
	DependsOn []string `json:"depends_on,omitempty"`
}

func planDoc(plan *reconcile.Plan) []planOp {
	doc := make([]planOp, 0, len(plan.Ops))
	for _, op := range plan.Ops {
		doc = append(doc, planOp{
			ID:        op.ID,
			Kind:      string(op.Kind),
			Target:    op.TargetKey(),
			DependsOn: op.DependsOn,
		})
	}
	return doc
}
