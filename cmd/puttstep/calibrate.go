package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/puttstep/internal/calibration"
	"github.com/goodtune/puttstep/internal/distance"
	"github.com/spf13/cobra"
)

var (
	calibrateDistance float64
	calibrateSteps    int
	calibrateStride   float64
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate stride length over a known distance",
	Long: `Record a calibration trial: walk a measured course, count the steps, and
store distance / steps as the subject's stride length. Alternatively set the
stride directly with --stride.`,
	Example: `  puttstep calibrate --distance 10 --steps 13
  puttstep calibrate --stride 0.76`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().Float64VarP(&calibrateDistance, "distance", "d", 0, "Known course length in meters")
	calibrateCmd.Flags().IntVarP(&calibrateSteps, "steps", "n", 0, "Steps taken over the course")
	calibrateCmd.Flags().Float64Var(&calibrateStride, "stride", 0, "Set the stride length in meters directly")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	subject := a.cfg.Subject.ID

	if cmd.Flags().Changed("stride") {
		if err := a.manager.SetStride(ctx, subject, calibrateStride); err != nil {
			return err
		}
		color.Green("Stride for %s set to %.3f m", subject, calibrateStride)
		return nil
	}

	if !cmd.Flags().Changed("distance") || !cmd.Flags().Changed("steps") {
		return errors.New("--distance and --steps are required unless --stride is given")
	}

	stride, err := a.manager.Calibrate(ctx, subject, calibrateDistance, calibrateSteps)
	if err != nil {
		if errors.Is(err, calibration.ErrInvalidTrial) {
			color.Red("Calibration rejected: %v", err)
		}
		return err
	}

	color.Green("Stride for %s calibrated to %.3f m", subject, stride)
	fmt.Printf("Trial: %d steps over %s\n", calibrateSteps, distance.Format(calibrateDistance, distance.Meters))
	return nil
}
