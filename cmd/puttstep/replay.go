package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/goodtune/puttstep/internal/distance"
	"github.com/goodtune/puttstep/internal/motion"
	"github.com/goodtune/puttstep/internal/pedometer"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/spf13/cobra"
)

var (
	replaySave    bool
	replayVerbose bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Count steps in a recorded motion file",
	Long: `Replay a JSON-lines motion recording through the step detector. Each line
holds one reading: {"x":0.1,"y":-0.2,"z":9.8,"t_ms":1717232400000}. Use "-"
to read standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replaySave, "save", false, "Save the session as a measurement")
	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "Print every detected step")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer f.Close()
		in = f
	}

	var measurements storage.MeasurementStore
	if replaySave {
		measurements = a.store.Measurements()
	}

	// Recordings carry no hardware counter events.
	a.cfg.Detector.UseHardwareSensor = false
	tr := a.newTracker(nil, measurements)

	ctx := context.Background()
	if err := tr.Start(ctx); err != nil {
		return err
	}

	src := motion.NewJSONLSource(in)
	outcomes := map[pedometer.Outcome]int{}
	for {
		r, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read recording: %w", err)
		}
		outcome := tr.Process(r)
		outcomes[outcome]++
		if replayVerbose && outcome == pedometer.OutcomeStep {
			fmt.Printf("step %d at %s\n", tr.State().Steps, r.Time.Format("15:04:05.000"))
		}
	}

	res, saveErr := tr.Stop(ctx)

	settings, err := a.manager.Settings(ctx, a.cfg.Subject.ID)
	if err != nil {
		return err
	}
	unit, err := distance.ParseUnit(settings.PreferredUnit)
	if err != nil {
		unit = distance.Meters
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Steps:    %d\n", res.Steps)
	_, _ = bold.Printf("Distance: %s\n", distance.Format(res.Distance.DistanceMeters, unit))
	fmt.Printf("Stride:   %.3f m (%s)\n", res.Distance.StrideLengthUsed, res.Distance.Source)
	fmt.Printf("Samples:  %d step, %d below threshold, %d refractory, %d still, %d dropped\n",
		outcomes[pedometer.OutcomeStep], outcomes[pedometer.OutcomeBelowThreshold],
		outcomes[pedometer.OutcomeRefractory], outcomes[pedometer.OutcomeStill], outcomes[pedometer.OutcomeDropped])

	if saveErr != nil {
		return saveErr
	}
	if res.Measurement != nil {
		color.Green("Saved measurement %s", res.Measurement.ID)
	}
	return nil
}
