package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unifi-declarative/unifid/pkg/config"
	"github.com/unifi-declarative/unifid/pkg/util"
	"github.com/unifi-declarative/unifid/pkg/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a desired-state file",
	Long: `Validate a desired-state file without contacting the controller.

Checks structure, uniqueness (VLAN tags, names, subnets, rule slots),
referential integrity of firewall selectors, and the hardware profile's
segment ceiling.

Examples:
  unifid validate -f vlans.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := requireConfigPath()
		if err != nil {
			return err
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		if err := validate.Validate(cfg, cfg.HardwareProfile); err != nil {
			printViolations(err)
			return err
		}

		fmt.Printf("%s %s: %d segments, %d rules (profile %s)\n",
			green("OK"), path, len(cfg.Segments), len(cfg.Rules), cfg.HardwareProfile)
		return nil
	},
}

// printViolations renders each violation on its own line so the whole
// batch is visible at once.
func printViolations(err error) {
	var verr *util.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	fmt.Println(red("Validation failed:"))
	for _, v := range verr.Violations {
		fmt.Printf("  - %s\n", v.String())
	}
}
