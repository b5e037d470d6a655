package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"certimages-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
	dumpDir    string
	verbose    bool
	perfStats  bool
)

var rootCmd = &cobra.Command{
	Use:   "certimages-cli",
	Short: "certimages-cli finds the photographs of graded card certificates.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose || dumpDir != "")
		if perfStats {
			telemetry.InstrumentPerfStats(cmd.Context(), 5*time.Second)
		}
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file, by default certimages.json5 is searched for upwards from the working directory.")
	flags.StringVar(&dbPath, "db", "", "Record every lookup in this sqlite database.")
	flags.StringVar(&dumpDir, "dump", "", "Write every request and response to this directory, implies --verbose.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
	flags.BoolVar(&perfStats, "perf-stats", false, "Report cpu and memory gauges while running.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
