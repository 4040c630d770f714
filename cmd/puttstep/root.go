package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	subjectID  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "puttstep",
	Short: "puttstep - step counting and distance estimation from motion samples",
	Long: `puttstep turns a stream of accelerometer samples, or a hardware step
counter, into a step count and walked distance. Distance uses a stride
length calibrated over a known course, or one estimated from height.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to serve when no subcommand is provided
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/puttstep/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&subjectID, "subject", "s", "", "Subject whose settings and calibration are used (overrides config)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
