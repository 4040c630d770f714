package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/puttstep/internal/distance"
	"github.com/goodtune/puttstep/internal/storage"
	"github.com/spf13/cobra"
)

var (
	historyMeasurements bool
	historyLimit        int
	historySince        string
	historyPrune        string
	historyAllSubjects  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show calibration trials and saved sessions",
	Example: `  puttstep history
  puttstep history --measurements --since 168h
  puttstep history --prune 2160h
  puttstep history --prune 2160h --all-subjects`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVarP(&historyMeasurements, "measurements", "m", false, "List saved sessions instead of calibration trials")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Maximum sessions to list")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only sessions newer than this duration ago")
	historyCmd.Flags().StringVar(&historyPrune, "prune", "", "Delete the subject's sessions older than this duration")
	historyCmd.Flags().BoolVar(&historyAllSubjects, "all-subjects", false, "Prune sessions of every subject")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	cyan := color.New(color.FgCyan, color.Bold)

	if historyPrune != "" {
		age, err := time.ParseDuration(historyPrune)
		if err != nil {
			return fmt.Errorf("invalid --prune duration: %w", err)
		}
		cutoff := time.Now().Add(-age)
		var n int
		if historyAllSubjects {
			n, err = a.store.Measurements().DeleteBefore(ctx, cutoff)
		} else {
			n, err = pruneMeasurements(ctx, a.store.Measurements(), a.cfg.Subject.ID, cutoff)
		}
		if err != nil {
			return err
		}
		color.Yellow("Deleted %d session(s)", n)
		return nil
	}

	if !historyMeasurements {
		history, err := a.manager.History(ctx, a.cfg.Subject.ID)
		if err != nil {
			return err
		}
		_, _ = cyan.Printf("Calibration trials for %s\n", a.cfg.Subject.ID)
		if len(history) == 0 {
			fmt.Println("  none")
		}
		for _, h := range history {
			fmt.Printf("  %s  %8s  %4d steps  stride %.3f m\n",
				h.Timestamp.Local().Format("2006-01-02 15:04"),
				distance.Format(h.KnownDistanceMeters, distance.Meters),
				h.StepsTaken, h.CalculatedStrideLength)
		}
		return nil
	}

	filter := storage.MeasurementFilter{
		SubjectID: a.cfg.Subject.ID,
		Type:      storage.MeasurementDistance,
		Limit:     historyLimit,
	}
	if historySince != "" {
		age, err := time.ParseDuration(historySince)
		if err != nil {
			return fmt.Errorf("invalid --since duration: %w", err)
		}
		start := time.Now().Add(-age)
		filter.StartTime = &start
	}

	list, err := a.store.Measurements().Query(ctx, filter)
	if err != nil {
		return err
	}
	_, _ = cyan.Printf("Sessions for %s\n", a.cfg.Subject.ID)
	if len(list) == 0 {
		fmt.Println("  none")
	}
	for _, m := range list {
		fmt.Printf("  %s  %6d steps  %10s  stride %.3f m  %s\n",
			m.Timestamp.Local().Format("2006-01-02 15:04"),
			m.Steps, distance.FormatCompact(m.DistanceMeters), m.StrideLength, m.ID)
	}
	return nil
}

// pruneMeasurements deletes one subject's measurements taken before cutoff.
func pruneMeasurements(ctx context.Context, store storage.MeasurementStore, subjectID string, cutoff time.Time) (int, error) {
	expired, err := store.Query(ctx, storage.MeasurementFilter{SubjectID: subjectID, EndTime: &cutoff})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, m := range expired {
		if err := store.Delete(ctx, m.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("delete measurement %s: %w", m.ID, err)
		}
		deleted++
	}
	return deleted, nil
}
