package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goodtune/puttstep/internal/distance"
	"github.com/spf13/cobra"
)

var estimateUnit string

var estimateCmd = &cobra.Command{
	Use:   "estimate STEPS",
	Short: "Convert a step count to distance",
	Args:  cobra.ExactArgs(1),
	RunE:  runEstimate,
}

func init() {
	estimateCmd.Flags().StringVarP(&estimateUnit, "unit", "u", "", "Display unit: m, km or ft (default: subject preference)")
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 0 {
		return fmt.Errorf("invalid step count: %q", args[0])
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	policy, settings, err := a.manager.Policy(context.Background(), a.cfg.Subject.ID)
	if err != nil {
		return err
	}

	unitName := estimateUnit
	if unitName == "" {
		unitName = settings.PreferredUnit
	}
	unit, err := distance.ParseUnit(unitName)
	if err != nil {
		return err
	}

	res := distance.Estimate(steps, policy)
	fmt.Printf("%s (%s)\n", distance.Format(res.DistanceMeters, unit), distance.FormatCompact(res.DistanceMeters))
	fmt.Printf("stride %.3f m from %s\n", res.StrideLengthUsed, res.Source)
	return nil
}
