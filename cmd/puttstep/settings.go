package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/puttstep/internal/distance"
	"github.com/goodtune/puttstep/internal/pedometer"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/spf13/cobra"
)

var (
	settingsHeight        float64
	settingsSensitivity   int
	settingsUnit          string
	settingsUseCalibrated bool
	settingsUseHardware   bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the subject's pedometer settings",
	Example: `  puttstep settings
  puttstep settings --height 182 --unit km
  puttstep settings --use-calibrated=false`,
	RunE: runSettings,
}

func init() {
	f := settingsCmd.Flags()
	f.Float64Var(&settingsHeight, "height", 0, "Height in centimeters")
	f.IntVar(&settingsSensitivity, "sensitivity", 0, "Step sensitivity, 1 (least) to 10 (most)")
	f.StringVar(&settingsUnit, "unit", "", "Preferred unit: m, km or ft")
	f.BoolVar(&settingsUseCalibrated, "use-calibrated", false, "Use the calibrated stride length")
	f.BoolVar(&settingsUseHardware, "use-hardware", false, "Prefer a hardware step counter")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	flags := cmd.Flags()

	var patch storage.SettingsPatch
	changed := false
	if flags.Changed("height") {
		patch.HeightCm = &settingsHeight
		changed = true
	}
	if flags.Changed("sensitivity") {
		patch.Sensitivity = &settingsSensitivity
		changed = true
	}
	if flags.Changed("unit") {
		patch.PreferredUnit = &settingsUnit
		changed = true
	}
	if flags.Changed("use-calibrated") {
		patch.UseCalibrated = &settingsUseCalibrated
		changed = true
	}
	if flags.Changed("use-hardware") {
		patch.UseHardwareSensor = &settingsUseHardware
		changed = true
	}

	var settings storage.Settings
	if changed {
		settings, err = a.manager.SaveSettings(ctx, a.cfg.Subject.ID, patch)
		if err != nil {
			return err
		}
		color.Green("Settings saved")
	} else {
		settings, err = a.manager.Settings(ctx, a.cfg.Subject.ID)
		if err != nil {
			return err
		}
	}

	stride, err := a.manager.Stride(ctx, a.cfg.Subject.ID)
	if err != nil {
		return err
	}
	policy, _, err := a.manager.Policy(ctx, a.cfg.Subject.ID)
	if err != nil {
		return err
	}
	used, source := distance.ResolveStride(policy)

	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Printf("[%s]\n", settings.SubjectID)
	fmt.Printf("  height_cm           = %.0f\n", settings.HeightCm)
	fmt.Printf("  sensitivity         = %d (threshold %.2f)\n", settings.Sensitivity, pedometer.SensitivityToThreshold(settings.Sensitivity))
	fmt.Printf("  preferred_unit      = %s\n", settings.PreferredUnit)
	fmt.Printf("  use_calibrated      = %t\n", settings.UseCalibrated)
	fmt.Printf("  use_hardware_sensor = %t\n", settings.UseHardwareSensor)
	fmt.Printf("  stored stride       = %.3f m\n", stride.StrideLengthMeters)
	fmt.Printf("  stride in use       = %.3f m (%s)\n", used, source)
	return nil
}
